package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Open 通过DSN打开SQLite数据库并执行PRAGMA配置（对外导出）
// 文件库的父目录不存在时自动创建
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	if path := filePath(dsn); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("创建数据库目录失败: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	// 内存库每个连接是独立的库，限制为单连接
	if dsn == ":memory:" || dsn == "file::memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range NewSQLiteDialect().ConfigureDB() {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("配置SQLite失败: %w", err)
		}
	}
	return db, nil
}

// filePath 从DSN中取出文件路径，内存库返回空
func filePath(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || strings.Contains(path, ":memory:") {
		return ""
	}
	return path
}
