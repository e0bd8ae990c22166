package dao

import (
	"database/sql"
	"time"
)

// PipelineRunDAO pipeline_run表的数据访问对象（内部使用）
type PipelineRunDAO struct {
	ID           string         `db:"id"`
	PipelineID   string         `db:"pipeline_id"`
	Trigger      string         `db:"trigger_type"`
	Status       string         `db:"status"`
	StartTime    time.Time      `db:"start_time"`
	EndTime      sql.NullTime   `db:"end_time"`
	ErrorMessage sql.NullString `db:"error_msg"`
}

// TaskRunDAO task_run表的数据访问对象（内部使用）
type TaskRunDAO struct {
	ID           string         `db:"id"`
	RunID        string         `db:"run_id"`
	PipelineID   string         `db:"pipeline_id"`
	TaskID       string         `db:"task_id"`
	Status       string         `db:"status"`
	Attempts     int            `db:"attempts"`
	StartTime    time.Time      `db:"start_time"`
	EndTime      sql.NullTime   `db:"end_time"`
	Result       sql.NullString `db:"result"` // JSON格式存储
	ErrorMessage sql.NullString `db:"error_msg"`
}
