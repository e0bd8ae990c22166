package workflow

import (
	"errors"
	"testing"

	"github.com/LENAX/ctas-pipeline/pkg/core/dag"
	"github.com/LENAX/ctas-pipeline/pkg/core/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultArgs_Lookup(t *testing.T) {
	d := DefaultArgs{"postgres_conn_id": "db1", "retries": 3}

	s, ok := d.String("postgres_conn_id")
	assert.True(t, ok)
	assert.Equal(t, "db1", s)

	_, ok = d.String("retries")
	assert.False(t, ok, "非string类型不应作为字符串返回")

	_, ok = d.Lookup("missing")
	assert.False(t, ok)

	var nilDefaults DefaultArgs
	_, ok = nilDefaults.Lookup("x")
	assert.False(t, ok)
}

func TestPipeline_AddTask(t *testing.T) {
	p := NewPipeline("nightly", "", nil)

	require.NoError(t, p.AddTask(task.NewTask("a", "fn", nil)))
	err := p.AddTask(task.NewTask("a", "fn", nil))
	assert.True(t, errors.Is(err, ErrDuplicateTask))
	assert.Error(t, p.AddTask(nil))
	assert.Error(t, p.AddTask(task.NewTask("", "fn", nil)))

	require.NoError(t, p.AddTask(task.NewTask("b", "fn", nil)))
	tasks := p.Tasks()
	require.Len(t, tasks, 2)
	assert.Equal(t, "a", tasks[0].ID)
	assert.Equal(t, "b", tasks[1].ID)

	_, ok := p.GetTask("b")
	assert.True(t, ok)
}

func TestPipeline_Validate(t *testing.T) {
	p := NewPipeline("nightly", "", nil)
	assert.Error(t, p.Validate(), "空Pipeline应校验失败")

	a := task.NewTask("a", "fn", nil)
	b := task.NewTask("b", "fn", nil)
	b.Dependencies = []string{"a"}
	require.NoError(t, p.AddTask(a))
	require.NoError(t, p.AddTask(b))
	require.NoError(t, p.Validate())

	a.Dependencies = []string{"b"}
	err := p.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, dag.ErrCycle))
}

func TestRenderTemplate(t *testing.T) {
	out, err := RenderTemplate("SELECT * FROM t WHERE d = '${ds}' AND r = '${run_id}'", map[string]any{
		"ds":     "2026-10-19",
		"run_id": "r1",
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM t WHERE d = '2026-10-19' AND r = 'r1'", out)

	out, err = RenderTemplate("x ${missing} y", map[string]any{})
	assert.Error(t, err)
	assert.Equal(t, "x ${missing} y", out)
}

func TestReplaceParamsInMap(t *testing.T) {
	params := map[string]any{"a": "${ds}", "b": "plain", "c": 1, "d": "${nope}"}
	unreplaced, err := ReplaceParamsInMap(params, map[string]any{"ds": "2026-10-19"})
	assert.Error(t, err)
	assert.Equal(t, []string{"nope"}, unreplaced)
	assert.Equal(t, "2026-10-19", params["a"])
	assert.Equal(t, "plain", params["b"])
}
