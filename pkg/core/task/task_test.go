package task

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctionRegistry_RegisterAndGet(t *testing.T) {
	r := NewFunctionRegistry()

	err := r.Register("echo", func(tc *TaskContext) (any, error) {
		return tc.GetParamString("msg"), nil
	}, "回显参数")
	require.NoError(t, err)
	assert.True(t, r.Exists("echo"))

	fn, err := r.Get("echo")
	require.NoError(t, err)

	tc := NewTaskContext(context.Background(), NewTask("t1", "echo", map[string]any{"msg": "hi"}), "p1", "run-1")
	out, err := fn(tc)
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	meta := r.GetMeta("echo")
	require.NotNil(t, meta)
	assert.Equal(t, "回显参数", meta.Description)
}

func TestFunctionRegistry_Rejects(t *testing.T) {
	r := NewFunctionRegistry()
	noop := func(*TaskContext) (any, error) { return nil, nil }

	assert.Error(t, r.Register("", noop, ""))
	assert.Error(t, r.Register("nil-fn", nil, ""))
	require.NoError(t, r.Register("noop", noop, ""))
	assert.Error(t, r.Register("noop", noop, ""), "重复注册应失败")

	_, err := r.Get("missing")
	assert.True(t, errors.Is(err, ErrFunctionNotFound))

	require.NoError(t, r.Unregister("noop"))
	assert.False(t, r.Exists("noop"))
	assert.True(t, errors.Is(r.Unregister("noop"), ErrFunctionNotFound))
}

func TestFunctionRegistry_ListSorted(t *testing.T) {
	r := NewFunctionRegistry()
	noop := func(*TaskContext) (any, error) { return nil, nil }
	require.NoError(t, r.Register("b", noop, ""))
	require.NoError(t, r.Register("a", noop, ""))

	metas := r.List()
	require.Len(t, metas, 2)
	assert.Equal(t, "a", metas[0].Name)
	assert.Equal(t, "b", metas[1].Name)
}

func TestTaskContext_ParamsAreCopied(t *testing.T) {
	tk := NewTask("t1", "fn", map[string]any{"k": "v"})
	tc := NewTaskContext(context.Background(), tk, "p1", "run-1")
	tc.Params["k"] = "changed"

	assert.Equal(t, "v", tk.Params["k"])
	assert.Equal(t, "run-1", GetRunID(tc.Context()))
	assert.Equal(t, "p1", GetPipelineID(tc.Context()))
	assert.Equal(t, "t1", GetTaskID(tc.Context()))
	assert.Equal(t, map[string]any{"k": "changed"}, GetTaskParams(tc.Context()))
	assert.False(t, tc.HasRuntime())
}

func TestLogFields(t *testing.T) {
	assert.Empty(t, LogFields(context.Background()))

	ctx := WithIdentity(context.Background(), Identity{PipelineID: "p1", RunID: "r1"})
	fields := LogFields(ctx)
	assert.Equal(t, "p1", fields["pipeline_id"])
	assert.Equal(t, "r1", fields["run_id"])
	assert.NotContains(t, fields, "task_id")
}

func TestTaskContext_RequireString(t *testing.T) {
	tc := NewTaskContext(context.Background(), NewTask("t1", "fn", map[string]any{
		"s":     "x",
		"empty": "",
		"num":   3,
	}), "p", "r")

	v, err := tc.RequireString("s")
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	_, err = tc.RequireString("empty")
	assert.Error(t, err)
	_, err = tc.RequireString("num")
	assert.Error(t, err)
	_, err = tc.RequireString("missing")
	assert.Error(t, err)
	assert.Equal(t, "3", tc.GetParamString("num"))
}

func TestTask_Clone(t *testing.T) {
	tk := NewTask("t1", "fn", map[string]any{"a": 1})
	tk.Dependencies = []string{"t0"}

	c := tk.Clone()
	c.Params["a"] = 2
	c.Dependencies[0] = "changed"

	assert.Equal(t, 1, tk.Params["a"])
	assert.Equal(t, []string{"t0"}, tk.GetDependencies())
}
