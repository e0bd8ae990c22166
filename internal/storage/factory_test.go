package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/LENAX/ctas-pipeline/pkg/config"
	"github.com/LENAX/ctas-pipeline/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionRegistry_GetCachesConnection(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "warehouse.db")
	reg := NewConnectionRegistry(map[string]config.ConnectionConfig{
		"warehouse": {Type: "sqlite", DSN: dsn},
	})
	defer reg.Close()

	ctx := context.Background()
	db1, dialect, err := reg.Get(ctx, "warehouse")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", dialect.Name())

	db2, _, err := reg.Get(ctx, "warehouse")
	require.NoError(t, err)
	assert.Same(t, db1, db2)
	assert.Equal(t, []string{"warehouse"}, reg.IDs())
}

func TestConnectionRegistry_UnknownConnection(t *testing.T) {
	reg := NewConnectionRegistry(nil)
	_, _, err := reg.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrUnknownConnection))
}

func TestOpenDatabase_UnsupportedType(t *testing.T) {
	_, _, err := OpenDatabase(context.Background(), "oracle", "x")
	assert.Error(t, err)
}

func TestNewRunRepository_SQLite(t *testing.T) {
	ctx := context.Background()
	cfg := &config.EngineConfig{}
	cfg.Pipeline.Storage.Database.Type = "sqlite"
	cfg.Pipeline.Storage.Database.DSN = filepath.Join(t.TempDir(), "runs.db")
	cfg.ApplyDefaults()

	repo, err := NewRunRepository(ctx, cfg)
	require.NoError(t, err)
	defer repo.Close()

	start := time.Now().Add(-time.Minute)
	require.NoError(t, repo.SaveRun(ctx, &storage.PipelineRun{
		ID:         "run-1",
		PipelineID: "p1",
		Trigger:    "manual",
		Status:     storage.RunStatusRunning,
		StartTime:  start,
	}))

	end := time.Now()
	require.NoError(t, repo.SaveRun(ctx, &storage.PipelineRun{
		ID:           "run-1",
		PipelineID:   "p1",
		Trigger:      "manual",
		Status:       storage.RunStatusFailed,
		StartTime:    start,
		EndTime:      &end,
		ErrorMessage: "boom",
	}))

	run, err := repo.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, storage.RunStatusFailed, run.Status)
	assert.Equal(t, "boom", run.ErrorMessage)
	require.NotNil(t, run.EndTime)

	_, err = repo.GetRun(ctx, "run-404")
	assert.True(t, errors.Is(err, storage.ErrRunNotFound))

	require.NoError(t, repo.SaveRun(ctx, &storage.PipelineRun{
		ID: "run-2", PipelineID: "p1", Trigger: "cron", Status: storage.RunStatusSuccess, StartTime: time.Now(),
	}))
	runs, err := repo.ListRuns(ctx, "p1", 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-2", runs[0].ID)

	all, err := repo.ListRuns(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, repo.SaveTaskRun(ctx, &storage.TaskRun{
		ID: "tr-1", RunID: "run-1", PipelineID: "p1", TaskID: "create_s_t_task",
		Status: "FAILED", Attempts: 2, StartTime: start, ErrorMessage: "boom",
	}))
	taskRuns, err := repo.ListTaskRuns(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, taskRuns, 1)
	assert.Equal(t, 2, taskRuns[0].Attempts)
	assert.Nil(t, taskRuns[0].EndTime)
	assert.Empty(t, taskRuns[0].Result)
}
