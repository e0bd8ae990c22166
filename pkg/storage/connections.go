package storage

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
)

// ErrUnknownConnection 连接ID未在配置中注册
var ErrUnknownConnection = errors.New("unknown connection id")

// ConnectionProvider 按连接ID提供数据库连接（对外导出）
// 任务中的 postgres_conn_id 通过该接口解析为实际的数据库连接
type ConnectionProvider interface {
	// Get 返回连接ID对应的数据库连接及其方言，未注册时返回ErrUnknownConnection
	Get(ctx context.Context, connID string) (*sqlx.DB, Dialect, error)
	// IDs 返回已注册的连接ID（排序后）
	IDs() []string
	// Close 关闭所有已打开的连接
	Close() error
}
