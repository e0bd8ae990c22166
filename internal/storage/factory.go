package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/LENAX/ctas-pipeline/pkg/config"
	"github.com/LENAX/ctas-pipeline/pkg/storage"
	"github.com/LENAX/ctas-pipeline/pkg/storage/mysql"
	"github.com/LENAX/ctas-pipeline/pkg/storage/postgres"
	pkgsqlite "github.com/LENAX/ctas-pipeline/pkg/storage/sqlite"
	"github.com/jmoiron/sqlx"
	log "github.com/sirupsen/logrus"
)

// OpenDatabase 按数据库类型打开连接并返回对应方言（内部方法）
// dbType: 数据库类型（sqlite/mysql/postgres）
// dsn: 数据库连接字符串
func OpenDatabase(ctx context.Context, dbType, dsn string) (*sqlx.DB, storage.Dialect, error) {
	switch dbType {
	case "sqlite":
		db, err := pkgsqlite.Open(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("create sqlite connection failed: %w", err)
		}
		return db, pkgsqlite.NewSQLiteDialect(), nil
	case "mysql":
		db, err := mysql.Open(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("create mysql connection failed: %w", err)
		}
		return db, mysql.NewMySQLDialect(), nil
	case "postgres", "postgresql":
		db, err := postgres.Open(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("create postgres connection failed: %w", err)
		}
		return db, postgres.NewPostgresDialect(), nil
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// NewRunRepository 根据框架配置创建运行历史Repository（内部方法）
func NewRunRepository(ctx context.Context, cfg *config.EngineConfig) (storage.RunRepository, error) {
	dbCfg := cfg.Pipeline.Storage.Database
	db, dialect, err := OpenDatabase(ctx, dbCfg.Type, dbCfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(dbCfg.MaxOpenConns)
	db.SetMaxIdleConns(dbCfg.MaxIdleConns)
	db.SetConnMaxLifetime(dbCfg.ConnMaxLifetime)

	repo, err := storage.NewSQLRunRepo(ctx, db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

type openedConn struct {
	db      *sqlx.DB
	dialect storage.Dialect
}

// ConnectionRegistry 连接ID到数据库连接的注册表（内部使用）
// 连接在首次使用时打开并缓存
type ConnectionRegistry struct {
	mu      sync.Mutex
	configs map[string]config.ConnectionConfig
	opened  map[string]*openedConn
}

// NewConnectionRegistry 创建连接注册表（内部方法）
func NewConnectionRegistry(conns map[string]config.ConnectionConfig) *ConnectionRegistry {
	configs := make(map[string]config.ConnectionConfig, len(conns))
	for id, c := range conns {
		configs[id] = c
	}
	return &ConnectionRegistry{
		configs: configs,
		opened:  make(map[string]*openedConn),
	}
}

// Get 返回连接ID对应的数据库连接
func (r *ConnectionRegistry) Get(ctx context.Context, connID string) (*sqlx.DB, storage.Dialect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.opened[connID]; ok {
		return c.db, c.dialect, nil
	}
	cfg, ok := r.configs[connID]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", storage.ErrUnknownConnection, connID)
	}

	db, dialect, err := OpenDatabase(ctx, cfg.Type, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("打开连接 %s 失败: %w", connID, err)
	}
	r.opened[connID] = &openedConn{db: db, dialect: dialect}
	log.WithFields(log.Fields{"conn_id": connID, "type": cfg.Type}).Info("[连接注册表] 已打开数据库连接")
	return db, dialect, nil
}

// IDs 返回已注册的连接ID
func (r *ConnectionRegistry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.configs))
	for id := range r.configs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close 关闭所有已打开的连接
func (r *ConnectionRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for id, c := range r.opened {
		if err := c.db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("关闭连接 %s 失败: %w", id, err)
		}
		delete(r.opened, id)
	}
	return firstErr
}

// 确保实现接口
var _ storage.ConnectionProvider = (*ConnectionRegistry)(nil)
