package dag

import (
	"errors"
	"testing"
)

func TestBuildDAG_TopologicalLevels(t *testing.T) {
	nodes := map[string]string{"a": "A", "b": "B", "c": "C", "d": "D"}
	deps := map[string][]string{
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
	}

	d, err := BuildDAG(nodes, deps)
	if err != nil {
		t.Fatalf("构建DAG失败: %v", err)
	}

	order, err := d.TopologicalSort()
	if err != nil {
		t.Fatalf("拓扑排序失败: %v", err)
	}

	want := [][]string{{"a"}, {"b", "c"}, {"d"}}
	if len(order.Levels) != len(want) {
		t.Fatalf("层数错误，期望: %d, 实际: %d (%v)", len(want), len(order.Levels), order.Levels)
	}
	for i := range want {
		if len(order.Levels[i]) != len(want[i]) {
			t.Fatalf("第%d层错误，期望: %v, 实际: %v", i, want[i], order.Levels[i])
		}
		for j := range want[i] {
			if order.Levels[i][j] != want[i][j] {
				t.Errorf("第%d层错误，期望: %v, 实际: %v", i, want[i], order.Levels[i])
			}
		}
	}

	if got := order.Flatten(); len(got) != 4 || got[0] != "a" || got[3] != "d" {
		t.Errorf("展开顺序错误: %v", got)
	}
	if roots := d.GetRoots(); len(roots) != 1 || roots[0] != "a" {
		t.Errorf("根节点错误: %v", roots)
	}
	node, ok := d.GetNode("d")
	if !ok {
		t.Fatal("节点d不存在")
	}
	if node.InDegree != 2 || node.Name != "D" {
		t.Errorf("节点d信息错误: %+v", node)
	}
	if d.Size() != 4 {
		t.Errorf("节点数错误: %d", d.Size())
	}
}

func TestBuildDAG_DetectsCycle(t *testing.T) {
	nodes := map[string]string{"a": "A", "b": "B", "c": "C"}
	deps := map[string][]string{
		"a": {"c"},
		"b": {"a"},
		"c": {"b"},
	}

	_, err := BuildDAG(nodes, deps)
	if err == nil {
		t.Fatal("期望检测到循环依赖")
	}
	if !errors.Is(err, ErrCycle) {
		t.Errorf("期望ErrCycle，实际: %v", err)
	}
}

func TestBuildDAG_UnknownDependency(t *testing.T) {
	_, err := BuildDAG(map[string]string{"a": "A"}, map[string][]string{"a": {"ghost"}})
	if err == nil {
		t.Fatal("期望未知依赖报错")
	}
}

func TestBuildDAG_Independent(t *testing.T) {
	d, err := BuildDAG(map[string]string{"x": "X", "y": "Y"}, nil)
	if err != nil {
		t.Fatalf("构建DAG失败: %v", err)
	}
	order, err := d.TopologicalSort()
	if err != nil {
		t.Fatalf("拓扑排序失败: %v", err)
	}
	if len(order.Levels) != 1 || len(order.Levels[0]) != 2 {
		t.Errorf("期望单层两个节点，实际: %v", order.Levels)
	}
}

func TestBuildDAG_DistinctVerticesWithSameName(t *testing.T) {
	d, err := BuildDAG(map[string]string{"a": "ctas", "b": "ctas", "c": "ctas"}, nil)
	if err != nil {
		t.Fatalf("构建DAG失败: %v", err)
	}
	if d.Size() != 3 {
		t.Fatalf("期望3个节点，实际: %d", d.Size())
	}
	node, ok := d.GetNode("b")
	if !ok || node.ID != "b" || node.Name != "ctas" {
		t.Errorf("节点b信息错误: %+v", node)
	}
}
