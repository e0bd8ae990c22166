package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LENAX/ctas-pipeline/pkg/config"
	"github.com/LENAX/ctas-pipeline/pkg/core/engine"
	"github.com/LENAX/ctas-pipeline/pkg/core/executor"
	"github.com/LENAX/ctas-pipeline/pkg/core/task"
	"github.com/LENAX/ctas-pipeline/pkg/core/workflow"
	"github.com/LENAX/ctas-pipeline/pkg/storage"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *engine.Engine) {
	t.Helper()
	dir := t.TempDir()
	sqlDir := filepath.Join(dir, "sql")
	require.NoError(t, os.MkdirAll(filepath.Join(sqlDir, "main"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sqlDir, "main", "answer.sql"),
		[]byte("SELECT 42 AS answer"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(sqlDir, "main", "answer_copy.sql"),
		[]byte("SELECT answer FROM answer"), 0644))

	cfg := &config.EngineConfig{}
	cfg.Pipeline.Storage.Database.Type = "sqlite"
	cfg.Pipeline.Storage.Database.DSN = filepath.Join(dir, "runs.db")
	cfg.Pipeline.Connections = map[string]config.ConnectionConfig{
		"warehouse": {Type: "sqlite", DSN: filepath.Join(dir, "warehouse.db")},
	}
	cfg.ApplyDefaults()

	eng, err := engine.NewEngine(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(eng.Stop)

	pipelines, err := config.ParsePipelineConfig([]byte(`
pipelines:
  - pipeline_id: demo
    description: "demo pipeline"
    default_args: {postgres_conn_id: warehouse, sql_directory: ` + sqlDir + `}
    tasks:
      - {operator: create_table_from_select, schema_name: main, table_name: answer}
      - operator: create_table_from_select
        schema_name: main
        table_name: answer_copy
        dependencies: [create_main_answer_task]
`))
	require.NoError(t, err)
	require.NoError(t, eng.LoadPipelines(pipelines))

	return SetupRouter(eng, "test"), eng
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestHealthAndReady(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, env.Code)
	assert.Contains(t, string(env.Data), `"version":"test"`)

	w, _ = do(t, r, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListAndGetPipeline(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := do(t, r, http.MethodGet, "/api/v1/pipelines", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Total int `json:"total"`
		Items []struct {
			ID        string `json:"id"`
			TaskCount int    `json:"task_count"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Equal(t, 1, list.Total)
	assert.Equal(t, "demo", list.Items[0].ID)
	assert.Equal(t, 2, list.Items[0].TaskCount)

	w, env = do(t, r, http.MethodGet, "/api/v1/pipelines/demo", "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail struct {
		Levels [][]string `json:"levels"`
		Tasks  []struct {
			ID       string         `json:"id"`
			Callable string         `json:"callable"`
			Params   map[string]any `json:"params"`
		} `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, [][]string{{"create_main_answer_task"}, {"create_main_answer_copy_task"}}, detail.Levels)
	require.Len(t, detail.Tasks, 2)
	assert.Equal(t, "warehouse", detail.Tasks[0].Params["postgres_conn_id"])

	w, env = do(t, r, http.MethodGet, "/api/v1/pipelines/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 404, env.Code)
}

func TestTriggerSyncAndHistory(t *testing.T) {
	r, _ := newTestRouter(t)

	w, env := do(t, r, http.MethodPost, "/api/v1/pipelines/demo/runs", `{"wait": true}`)
	require.Equal(t, http.StatusOK, w.Code)
	var trig struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &trig))
	require.NotEmpty(t, trig.RunID)
	assert.Equal(t, storage.RunStatusSuccess, trig.Status)

	w, env = do(t, r, http.MethodGet, "/api/v1/runs/"+trig.RunID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), `"trigger":"api"`)

	w, env = do(t, r, http.MethodGet, "/api/v1/runs/"+trig.RunID+"/tasks", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tasks struct {
		Total int `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &tasks))
	assert.Equal(t, 2, tasks.Total)

	w, env = do(t, r, http.MethodGet, "/api/v1/pipelines/demo/runs?limit=5", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(env.Data), trig.RunID)

	w, _ = do(t, r, http.MethodGet, "/api/v1/pipelines/demo/runs?limit=1000", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodGet, "/api/v1/runs/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTriggerAsync(t *testing.T) {
	r, eng := newTestRouter(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	finished, err := eng.EventBus().Subscribe(ctx, executor.EventRunFinished)
	require.NoError(t, err)

	w, env := do(t, r, http.MethodPost, "/api/v1/pipelines/demo/runs", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	var trig struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &trig))

	select {
	case ev := <-finished:
		assert.Equal(t, trig.RunID, ev.RunID)
	case <-ctx.Done():
		t.Fatal("等待异步运行结束超时")
	}

	w, _ = do(t, r, http.MethodPost, "/api/v1/pipelines/missing/runs", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/v1/pipelines/demo/runs", `{"wait":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)
	do(t, r, http.MethodGet, "/health", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "http_requests_total")
}

func TestServer_StoppedEngine(t *testing.T) {
	_, eng := newTestRouter(t)
	srv := NewAPIServer(eng, DefaultServerConfig(""), "test")
	assert.Equal(t, ":8080", srv.Addr())
	eng.Stop()

	w, _ := do(t, srv.Handler(), http.MethodPost, "/api/v1/pipelines/demo/runs", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func dialEvents(t *testing.T, srv *httptest.Server, runID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/runs/" + runID + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEvents 读到服务端正常关闭为止
func readEvents(t *testing.T, conn *websocket.Conn) []executor.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(10*time.Second)))
	var events []executor.Event
	for {
		var ev executor.Event
		if err := conn.ReadJSON(&ev); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
			return events
		}
		events = append(events, ev)
	}
}

func TestRunEvents_ReplaysFinishedRun(t *testing.T) {
	r, _ := newTestRouter(t)
	w, env := do(t, r, http.MethodPost, "/api/v1/pipelines/demo/runs", `{"wait":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	var trig struct {
		RunID string `json:"run_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &trig))

	srv := httptest.NewServer(r)
	defer srv.Close()

	events := readEvents(t, dialEvents(t, srv, trig.RunID))
	require.Len(t, events, 3)
	for _, ev := range events[:2] {
		assert.Equal(t, executor.EventTaskSucceeded, ev.Type)
		assert.Equal(t, trig.RunID, ev.RunID)
	}
	last := events[2]
	assert.Equal(t, executor.EventRunFinished, last.Type)
	assert.Equal(t, storage.RunStatusSuccess, last.Status)
}

func TestRunEvents_UnknownRun(t *testing.T) {
	r, _ := newTestRouter(t)
	w, env := do(t, r, http.MethodGet, "/api/v1/runs/nope/events", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 404, env.Code)
}

func TestRunEvents_StreamsLiveRun(t *testing.T) {
	r, eng := newTestRouter(t)

	gate := make(chan struct{})
	var once sync.Once
	open := func() { once.Do(func() { close(gate) }) }
	t.Cleanup(open)

	require.NoError(t, eng.GetRegistry().Register("gate", func(tc *task.TaskContext) (any, error) {
		<-gate
		return "opened", nil
	}, ""))
	require.NoError(t, eng.Operators().Register("gate", func(p *workflow.Pipeline, def config.TaskDefinition) (*task.Task, error) {
		tk := task.NewTask(*def.TaskID, "gate", nil)
		return tk, p.AddTask(tk)
	}))
	cfg, err := config.ParsePipelineConfig([]byte(`
pipelines:
  - pipeline_id: gated
    tasks:
      - {operator: gate, task_id: g1}
`))
	require.NoError(t, err)
	require.NoError(t, eng.LoadPipelines(cfg))

	runID, err := eng.TriggerAsync("gated", executor.TriggerAPI)
	require.NoError(t, err)

	srv := httptest.NewServer(r)
	defer srv.Close()
	conn := dialEvents(t, srv, runID)
	open()

	events := readEvents(t, conn)
	require.NotEmpty(t, events)
	types := make([]executor.EventType, 0, len(events))
	for _, ev := range events {
		assert.Equal(t, runID, ev.RunID)
		types = append(types, ev.Type)
	}
	assert.Contains(t, types, executor.EventTaskSucceeded)
	assert.Equal(t, executor.EventRunFinished, types[len(types)-1])
	assert.Equal(t, storage.RunStatusSuccess, events[len(events)-1].Status)
}
