package mysql

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

// Open 通过DSN打开MySQL数据库（对外导出）
// dsn格式: user:password@tcp(host:port)/dbname?parseTime=true
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	// 确保DSN包含parseTime=true
	if !strings.Contains(dsn, "parseTime=true") {
		if strings.Contains(dsn, "?") {
			dsn += "&parseTime=true"
		} else {
			dsn += "?parseTime=true"
		}
	}

	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}

	for _, stmt := range NewMySQLDialect().ConfigureDB() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			log.Warnf("[MySQL] 会话配置失败，继续执行: %v", err)
		}
	}
	return db, nil
}
