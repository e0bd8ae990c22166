package ctas

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/LENAX/ctas-pipeline/pkg/core/cache"
	"github.com/LENAX/ctas-pipeline/pkg/core/task"
)

var (
	// ErrSQLNotFound SQL文件不存在
	ErrSQLNotFound = fmt.Errorf("sql file not found: %w", task.ErrInvalidConfig)
	// ErrInvalidName schema或表名不能作为路径片段
	ErrInvalidName = fmt.Errorf("invalid schema or table name: %w", task.ErrInvalidConfig)
)

// SQLLoader 按 <sql_directory>/<schema>/<table>.sql 读取查询语句（对外导出）
type SQLLoader struct {
	cache cache.Cache[string] // 可为nil，表示不缓存
}

// NewSQLLoader 创建SQLLoader（对外导出）
func NewSQLLoader(c cache.Cache[string]) *SQLLoader {
	return &SQLLoader{cache: c}
}

// Path 返回表对应的SQL文件路径
func (l *SQLLoader) Path(sqlDirectory, schemaName, tableName string) string {
	return filepath.Join(sqlDirectory, schemaName, tableName+".sql")
}

// Load 读取SQL文件内容，去掉首尾空白和结尾的分号
func (l *SQLLoader) Load(sqlDirectory, schemaName, tableName string) (string, error) {
	for _, part := range []string{schemaName, tableName} {
		if part == "" || part == "." || part == ".." || strings.ContainsAny(part, `/\`) {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, part)
		}
	}

	path := l.Path(sqlDirectory, schemaName, tableName)
	if l.cache != nil {
		if query, ok := l.cache.Get(path); ok {
			return query, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrSQLNotFound, path)
		}
		return "", fmt.Errorf("读取SQL文件失败: %w", err)
	}

	query := normalizeQuery(string(data))
	if query == "" {
		return "", fmt.Errorf("%w: SQL文件为空: %s", task.ErrInvalidConfig, path)
	}
	if l.cache != nil {
		l.cache.Set(path, query, 0)
	}
	return query, nil
}

func normalizeQuery(query string) string {
	query = strings.TrimSpace(query)
	for strings.HasSuffix(query, ";") {
		query = strings.TrimSpace(strings.TrimSuffix(query, ";"))
	}
	return query
}
