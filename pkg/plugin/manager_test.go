package plugin

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/LENAX/ctas-pipeline/pkg/config"
	"github.com/LENAX/ctas-pipeline/pkg/core/executor"
	"github.com/LENAX/ctas-pipeline/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPlugin struct {
	name    string
	initErr error
	execErr error

	mu   sync.Mutex
	got  []Notification
	done chan struct{}
}

func newRecorder(name string) *recordingPlugin {
	return &recordingPlugin{name: name, done: make(chan struct{}, 16)}
}

func (r *recordingPlugin) Name() string                      { return r.name }
func (r *recordingPlugin) Init(params map[string]string) error { return r.initErr }
func (r *recordingPlugin) Execute(_ context.Context, n Notification) error {
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
	r.done <- struct{}{}
	return r.execErr
}

func (r *recordingPlugin) notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.got...)
}

func TestManager_RegisterAndBind(t *testing.T) {
	m := NewManager()
	rec := newRecorder("rec")

	require.NoError(t, m.Register(rec))
	assert.Error(t, m.Register(rec))
	assert.Error(t, m.Register(nil))
	assert.Error(t, m.Register(newRecorder("")))

	assert.Error(t, m.Bind(Binding{PluginName: "missing", Event: executor.EventRunFinished}))
	assert.Error(t, m.Bind(Binding{PluginName: "rec"}))
	require.NoError(t, m.Bind(Binding{PluginName: "rec", Event: executor.EventRunFinished}))
	assert.Equal(t, []executor.EventType{executor.EventRunFinished}, m.Events())
	assert.Equal(t, []string{"rec"}, m.ListPlugins())

	require.NoError(t, m.Unregister("rec"))
	assert.Empty(t, m.Events())
	assert.Error(t, m.Unregister("rec"))
}

func TestManager_RegisterWithInitFailure(t *testing.T) {
	m := NewManager()
	rec := newRecorder("rec")
	rec.initErr = errors.New("bad params")

	assert.Error(t, m.RegisterWithInit(rec, nil))
	_, ok := m.GetPlugin("rec")
	assert.False(t, ok)
}

func TestManager_TriggerWithCondition(t *testing.T) {
	m := NewManager()
	rec := newRecorder("rec")
	require.NoError(t, m.Register(rec))
	require.NoError(t, m.Bind(Binding{
		PluginName: "rec",
		Event:      executor.EventTaskFailed,
		Condition:  pipelineFilter([]string{"marts"}),
	}))

	ctx := context.Background()
	require.NoError(t, m.Trigger(ctx, Notification{Event: executor.EventTaskFailed, PipelineID: "other"}))
	require.NoError(t, m.Trigger(ctx, Notification{Event: executor.EventTaskFailed, PipelineID: "marts", TaskID: "t1"}))
	require.NoError(t, m.Trigger(ctx, Notification{Event: executor.EventRunFinished, PipelineID: "marts"}))

	got := rec.notifications()
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].TaskID)

	rec.execErr = errors.New("smtp down")
	err := m.Trigger(ctx, Notification{Event: executor.EventTaskFailed, PipelineID: "marts"})
	assert.ErrorContains(t, err, "smtp down")
}

func TestManager_AttachDispatchesBusEvents(t *testing.T) {
	m := NewManager()
	rec := newRecorder("rec")
	require.NoError(t, m.Register(rec))

	bus := executor.NewEventBus()
	require.NoError(t, m.Attach(context.Background(), bus))

	// Attach之后的绑定同样生效
	require.NoError(t, m.Bind(Binding{PluginName: "rec", Event: executor.EventRunFinished}))

	ev := executor.NewEvent(executor.EventRunFinished, "r1", "marts", "")
	ev.Status = storage.RunStatusFailed
	require.NoError(t, bus.Publish(ev))

	select {
	case <-rec.done:
	case <-time.After(5 * time.Second):
		t.Fatal("等待插件收到通知超时")
	}
	got := rec.notifications()
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].RunID)
	assert.Equal(t, storage.RunStatusFailed, got[0].Status)

	require.NoError(t, bus.Close())
	m.Wait()
}

func TestNewManagerFromConfig(t *testing.T) {
	m, err := NewManagerFromConfig([]config.NotificationConfig{
		{Plugin: "log", Events: []string{"run.finished"}},
		{Plugin: "log", Events: []string{"task.failed"}, Pipelines: []string{"marts"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"log"}, m.ListPlugins())
	assert.Equal(t, []executor.EventType{executor.EventRunFinished, executor.EventTaskFailed}, m.Events())

	_, err = NewManagerFromConfig([]config.NotificationConfig{{Plugin: "slack", Events: []string{"run.finished"}}})
	assert.ErrorContains(t, err, "slack")

	_, err = NewManagerFromConfig([]config.NotificationConfig{{Plugin: "email", Events: []string{"run.finished"}}})
	assert.ErrorContains(t, err, "smtp_host")
}

func TestEmailPlugin(t *testing.T) {
	p := &EmailPlugin{}
	var sentTo []string
	var sentMsg string
	p.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		assert.Equal(t, "mail.local:2525", addr)
		assert.Nil(t, auth)
		sentTo = to
		sentMsg = string(msg)
		return nil
	}

	assert.Error(t, p.Execute(context.Background(), Notification{}))
	assert.Error(t, p.Init(map[string]string{"smtp_host": "mail.local", "from": "etl@x"}))
	require.NoError(t, p.Init(map[string]string{
		"smtp_host": "mail.local",
		"smtp_port": "2525",
		"from":      "etl@x",
		"to":        "a@x, b@x,",
	}))

	n := Notification{
		Event:      executor.EventRunFinished,
		RunID:      "r1",
		PipelineID: "marts",
		Status:     storage.RunStatusFailed,
		Error:      "1 task failed",
		Timestamp:  time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Execute(context.Background(), n))
	assert.Equal(t, []string{"a@x", "b@x"}, sentTo)
	assert.Contains(t, sentMsg, "Subject: [运行失败] marts - r1\r\n")
	assert.Contains(t, sentMsg, "错误信息: 1 task failed")
	assert.True(t, strings.HasPrefix(sentMsg, "From: etl@x\r\nTo: a@x, b@x\r\n"))
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "[运行完成] p - r", subject(Notification{Event: executor.EventRunFinished, PipelineID: "p", RunID: "r", Status: storage.RunStatusSuccess}))
	assert.Equal(t, "[Task重试] p.t 第2次", subject(Notification{Event: executor.EventTaskRetrying, PipelineID: "p", TaskID: "t", Attempt: 2}))
}
