package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/LENAX/ctas-pipeline/pkg/storage/dao"
	"github.com/jmoiron/sqlx"
)

var (
	pipelineRunColumns = []string{"id", "pipeline_id", "trigger_type", "status", "start_time", "end_time", "error_msg"}
	taskRunColumns     = []string{"id", "run_id", "pipeline_id", "task_id", "status", "attempts", "start_time", "end_time", "result", "error_msg"}
)

// SQLRunRepo 基于sqlx的运行历史Repository（对外导出）
// 三种数据库共用同一实现，差异由Dialect处理
type SQLRunRepo struct {
	db      *sqlx.DB
	dialect Dialect
}

// NewSQLRunRepo 创建运行历史Repository并初始化表结构（对外导出）
func NewSQLRunRepo(ctx context.Context, db *sqlx.DB, dialect Dialect) (*SQLRunRepo, error) {
	repo := &SQLRunRepo{db: db, dialect: dialect}
	if err := repo.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return repo, nil
}

// GetDB 获取底层数据库连接（对外导出）
func (r *SQLRunRepo) GetDB() *sqlx.DB {
	return r.db
}

// Close 关闭数据库连接（对外导出）
func (r *SQLRunRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *SQLRunRepo) initSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS pipeline_run (
			id VARCHAR(64) PRIMARY KEY,
			pipeline_id VARCHAR(255) NOT NULL,
			trigger_type VARCHAR(32) NOT NULL,
			status VARCHAR(32) NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME NULL,
			error_msg TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS task_run (
			id VARCHAR(64) PRIMARY KEY,
			run_id VARCHAR(64) NOT NULL,
			pipeline_id VARCHAR(255) NOT NULL,
			task_id VARCHAR(255) NOT NULL,
			status VARCHAR(32) NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			start_time DATETIME NOT NULL,
			end_time DATETIME NULL,
			result TEXT,
			error_msg TEXT
		);`,
	}
	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, r.dialect.CreateTableSQL(stmt)); err != nil {
			return err
		}
	}
	return nil
}

// SaveRun 保存Pipeline运行记录（对外导出）
func (r *SQLRunRepo) SaveRun(ctx context.Context, run *PipelineRun) error {
	if run == nil || run.ID == "" {
		return fmt.Errorf("运行记录ID不能为空")
	}
	row := dao.PipelineRunDAO{
		ID:           run.ID,
		PipelineID:   run.PipelineID,
		Trigger:      run.Trigger,
		Status:       run.Status,
		StartTime:    run.StartTime.UTC(),
		EndTime:      nullTime(run.EndTime),
		ErrorMessage: nullString(run.ErrorMessage),
	}
	query := r.dialect.UpsertSQL("pipeline_run", pipelineRunColumns, "id", pipelineRunColumns[1:])
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("保存运行记录失败: %w", err)
	}
	return nil
}

// GetRun 查询运行记录（对外导出）
func (r *SQLRunRepo) GetRun(ctx context.Context, runID string) (*PipelineRun, error) {
	var row dao.PipelineRunDAO
	query := r.db.Rebind("SELECT * FROM pipeline_run WHERE id = ?")
	if err := r.db.GetContext(ctx, &row, query, runID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("查询运行记录失败: %w", err)
	}
	return pipelineRunFromDAO(&row), nil
}

// ListRuns 查询Pipeline的运行记录（对外导出）
func (r *SQLRunRepo) ListRuns(ctx context.Context, pipelineID string, limit int) ([]*PipelineRun, error) {
	query := "SELECT * FROM pipeline_run WHERE pipeline_id = ? ORDER BY start_time DESC"
	args := []any{pipelineID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	var rows []dao.PipelineRunDAO
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("查询运行记录失败: %w", err)
	}
	runs := make([]*PipelineRun, 0, len(rows))
	for i := range rows {
		runs = append(runs, pipelineRunFromDAO(&rows[i]))
	}
	return runs, nil
}

// SaveTaskRun 保存Task运行记录（对外导出）
func (r *SQLRunRepo) SaveTaskRun(ctx context.Context, tr *TaskRun) error {
	if tr == nil || tr.ID == "" {
		return fmt.Errorf("Task运行记录ID不能为空")
	}
	row := dao.TaskRunDAO{
		ID:           tr.ID,
		RunID:        tr.RunID,
		PipelineID:   tr.PipelineID,
		TaskID:       tr.TaskID,
		Status:       tr.Status,
		Attempts:     tr.Attempts,
		StartTime:    tr.StartTime.UTC(),
		EndTime:      nullTime(tr.EndTime),
		Result:       nullString(tr.Result),
		ErrorMessage: nullString(tr.ErrorMessage),
	}
	query := r.dialect.UpsertSQL("task_run", taskRunColumns, "id", taskRunColumns[1:])
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("保存Task运行记录失败: %w", err)
	}
	return nil
}

// ListTaskRuns 查询一次运行中的Task记录（对外导出）
func (r *SQLRunRepo) ListTaskRuns(ctx context.Context, runID string) ([]*TaskRun, error) {
	var rows []dao.TaskRunDAO
	query := r.db.Rebind("SELECT * FROM task_run WHERE run_id = ? ORDER BY start_time, task_id")
	if err := r.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("查询Task运行记录失败: %w", err)
	}
	runs := make([]*TaskRun, 0, len(rows))
	for i := range rows {
		row := &rows[i]
		runs = append(runs, &TaskRun{
			ID:           row.ID,
			RunID:        row.RunID,
			PipelineID:   row.PipelineID,
			TaskID:       row.TaskID,
			Status:       row.Status,
			Attempts:     row.Attempts,
			StartTime:    row.StartTime,
			EndTime:      timePtr(row.EndTime),
			Result:       row.Result.String,
			ErrorMessage: row.ErrorMessage.String,
		})
	}
	return runs, nil
}

func pipelineRunFromDAO(row *dao.PipelineRunDAO) *PipelineRun {
	return &PipelineRun{
		ID:           row.ID,
		PipelineID:   row.PipelineID,
		Trigger:      row.Trigger,
		Status:       row.Status,
		StartTime:    row.StartTime,
		EndTime:      timePtr(row.EndTime),
		ErrorMessage: row.ErrorMessage.String,
	}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// 确保实现接口
var _ RunRepository = (*SQLRunRepo)(nil)
