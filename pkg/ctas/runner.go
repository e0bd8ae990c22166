// Package ctas 实现"根据SQL查询重建表"的执行函数。
//
// 执行时从 <sql_directory>/<schema>/<table>.sql 读取查询，在 postgres_conn_id
// 指向的连接上先删除旧表，再以 CREATE TABLE ... AS 重建。
package ctas

import (
	"fmt"
	"maps"
	"time"

	"github.com/LENAX/ctas-pipeline/pkg/core/operator/createtable"
	"github.com/LENAX/ctas-pipeline/pkg/core/task"
	"github.com/LENAX/ctas-pipeline/pkg/core/workflow"
	"github.com/LENAX/ctas-pipeline/pkg/storage"
	log "github.com/sirupsen/logrus"
)

// Result 一次重建的结果（对外导出）
type Result struct {
	Table    string        `json:"table"`
	Rows     int64         `json:"rows"`
	Duration time.Duration `json:"duration"`
}

// RowCount 重建后的行数
func (r *Result) RowCount() int64 { return r.Rows }

// TableName 带schema限定的表名
func (r *Result) TableName() string { return r.Table }

// Runner 重建表的执行函数（对外导出）
type Runner struct {
	conns  storage.ConnectionProvider
	loader *SQLLoader
}

// NewRunner 创建Runner（对外导出）
func NewRunner(conns storage.ConnectionProvider, loader *SQLLoader) *Runner {
	if loader == nil {
		loader = NewSQLLoader(nil)
	}
	return &Runner{conns: conns, loader: loader}
}

// Loader 返回SQL文件加载器
func (r *Runner) Loader() *SQLLoader {
	return r.loader
}

// Register 将Run注册到函数注册表，名称为createtable.CallableName
func (r *Runner) Register(registry *task.FunctionRegistry) error {
	return registry.Register(createtable.CallableName, r.Run, "(Re-)create a table from a SQL file")
}

// Prepare 读取并渲染Task的SQL，不访问数据库（对外导出）
func (r *Runner) Prepare(tc *task.TaskContext) (string, error) {
	schemaName, err := tc.RequireString(createtable.KeySchemaName)
	if err != nil {
		return "", err
	}
	tableName, err := tc.RequireString(createtable.KeyTableName)
	if err != nil {
		return "", err
	}
	sqlDir, err := tc.RequireString(createtable.KeySQLDirectory)
	if err != nil {
		return "", err
	}

	query, err := r.loader.Load(sqlDir, schemaName, tableName)
	if err != nil {
		return "", err
	}
	rendered, err := workflow.RenderTemplate(query, templateValues(tc))
	if err != nil {
		return "", fmt.Errorf("渲染SQL失败: %w", err)
	}
	return rendered, nil
}

// Run 删除并重建目标表，返回*Result
func (r *Runner) Run(tc *task.TaskContext) (any, error) {
	start := time.Now()
	query, err := r.Prepare(tc)
	if err != nil {
		return nil, err
	}
	schemaName := tc.GetParamString(createtable.KeySchemaName)
	tableName := tc.GetParamString(createtable.KeyTableName)
	connID, err := tc.RequireString(createtable.KeyPostgresConnID)
	if err != nil {
		return nil, err
	}

	ctx := tc.Context()
	db, dialect, err := r.conns.Get(ctx, connID)
	if err != nil {
		return nil, err
	}
	qualified := dialect.QualifiedTable(schemaName, tableName)

	logger := log.WithFields(task.LogFields(ctx)).WithFields(log.Fields{
		"table":   qualified,
		"conn_id": connID,
	})
	logger.Info("[CTAS] 开始重建表")

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+qualified); err != nil {
		return nil, fmt.Errorf("删除旧表 %s 失败: %w", qualified, err)
	}
	if _, err := tx.ExecContext(ctx, "CREATE TABLE "+qualified+" AS "+query); err != nil {
		return nil, fmt.Errorf("创建表 %s 失败: %w", qualified, err)
	}
	var rows int64
	if err := tx.GetContext(ctx, &rows, "SELECT COUNT(*) FROM "+qualified); err != nil {
		return nil, fmt.Errorf("统计表 %s 行数失败: %w", qualified, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("提交事务失败: %w", err)
	}

	result := &Result{Table: qualified, Rows: rows, Duration: time.Since(start)}
	logger.WithFields(log.Fields{"rows": rows, "duration": result.Duration}).Info("[CTAS] 重建表完成")
	return result, nil
}

// templateValues 渲染SQL用的变量：关键字参数，再叠加运行时上下文
func templateValues(tc *task.TaskContext) map[string]any {
	values := maps.Clone(tc.Params)
	if values == nil {
		values = make(map[string]any)
	}
	if tc.HasRuntime() {
		for k, v := range tc.Runtime {
			values[k] = v
		}
	}
	return values
}
