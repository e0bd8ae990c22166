package dag

import (
	"errors"
	"fmt"
	"sort"

	godag "github.com/begmaroman/go-dag"
)

// ErrCycle 存在循环依赖
var ErrCycle = errors.New("cycle detected")

// dagImpl 基于 go-dag 的DAG实现
type dagImpl struct {
	g *godag.DAG[*vertex]
}

// BuildDAG 构建DAG（对外导出）
// nodes: 节点ID -> 节点名称
// dependencies: 后置节点ID -> 前置节点ID列表
func BuildDAG(nodes map[string]string, dependencies map[string][]string) (DAG, error) {
	// 先构建临时邻接表，一次性检测循环，再写入 go-dag
	graph := make(map[string][]string, len(nodes))
	for id := range nodes {
		graph[id] = make([]string, 0)
	}
	for id, depIDs := range dependencies {
		if _, exists := nodes[id]; !exists {
			return nil, fmt.Errorf("节点 %s 不存在", id)
		}
		for _, depID := range depIDs {
			if _, exists := nodes[depID]; !exists {
				return nil, fmt.Errorf("节点 %s 依赖的节点 %s 不存在", id, depID)
			}
			graph[depID] = append(graph[depID], id)
		}
	}

	if hasCycle, cyclePath := detectCycleDFS(graph); hasCycle {
		return nil, fmt.Errorf("%w: %v", ErrCycle, cyclePath)
	}

	g := godag.NewDAG[*vertex]()
	ids := sortedKeys(nodes)
	for _, id := range ids {
		if _, err := g.AddVertex(&vertex{NodeID: id, Name: nodes[id]}); err != nil {
			return nil, fmt.Errorf("添加节点失败: ID=%s, Error=%w", id, err)
		}
	}
	for _, id := range ids {
		for _, depID := range dependencies[id] {
			if err := g.AddEdge(depID, id); err != nil {
				return nil, fmt.Errorf("添加边失败: %s -> %s, Error=%w", depID, id, err)
			}
		}
	}

	return &dagImpl{g: g}, nil
}

// detectCycleDFS 使用DFS三色标记检测循环，返回循环路径
func detectCycleDFS(graph map[string][]string) (bool, []string) {
	// 0=未访问，1=访问中，2=已完成
	color := make(map[string]int, len(graph))
	parent := make(map[string]string)
	var cyclePath []string

	var dfs func(nodeID string) bool
	dfs = func(nodeID string) bool {
		color[nodeID] = 1
		for _, childID := range graph[nodeID] {
			switch color[childID] {
			case 0:
				parent[childID] = nodeID
				if dfs(childID) {
					return true
				}
			case 1:
				// 后向边，回溯出循环路径
				cyclePath = append(cyclePath, childID)
				for cur := nodeID; cur != childID && cur != ""; cur = parent[cur] {
					cyclePath = append(cyclePath, cur)
				}
				cyclePath = append(cyclePath, childID)
				return true
			}
		}
		color[nodeID] = 2
		return false
	}

	ids := make([]string, 0, len(graph))
	for id := range graph {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if color[id] == 0 && dfs(id) {
			return true, cyclePath
		}
	}
	return false, nil
}

// TopologicalSort 执行拓扑排序（Kahn算法，层内按ID排序）（对外导出）
func (d *dagImpl) TopologicalSort() (*TopologicalOrder, error) {
	vertices := d.g.GetVertices()
	inDegree := make(map[string]int, len(vertices))
	for id := range vertices {
		parents, err := d.g.GetParents(id)
		if err != nil {
			return nil, fmt.Errorf("获取父节点失败: %w", err)
		}
		inDegree[id] = len(parents)
	}

	queue := make([]string, 0)
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}

	result := &TopologicalOrder{Levels: make([][]string, 0)}
	visited := 0
	for len(queue) > 0 {
		sort.Strings(queue)
		result.Levels = append(result.Levels, queue)
		visited += len(queue)

		next := make([]string, 0)
		for _, id := range queue {
			children, _ := d.g.GetChildren(id)
			for childID := range children {
				inDegree[childID]--
				if inDegree[childID] == 0 {
					next = append(next, childID)
				}
			}
		}
		queue = next
	}

	if visited != len(vertices) {
		return nil, fmt.Errorf("拓扑排序失败: %w", ErrCycle)
	}
	return result, nil
}

// GetChildren 获取节点的子节点（对外导出）
func (d *dagImpl) GetChildren(nodeID string) ([]string, error) {
	children, err := d.g.GetChildren(nodeID)
	if err != nil {
		return nil, err
	}
	return sortedKeys(children), nil
}

// GetParents 获取节点的父节点（对外导出）
func (d *dagImpl) GetParents(nodeID string) ([]string, error) {
	parents, err := d.g.GetParents(nodeID)
	if err != nil {
		return nil, err
	}
	return sortedKeys(parents), nil
}

// GetRoots 获取所有根节点（对外导出）
func (d *dagImpl) GetRoots() []string {
	return sortedKeys(d.g.GetRoots())
}

// GetNode 获取指定节点（对外导出）
func (d *dagImpl) GetNode(nodeID string) (*Node, bool) {
	v, err := d.g.GetVertex(nodeID)
	if err != nil {
		return nil, false
	}
	parents, _ := d.GetParents(nodeID)
	children, _ := d.GetChildren(nodeID)
	return &Node{
		ID:       nodeID,
		Name:     v.Name,
		InDegree: len(parents),
		OutEdges: children,
	}, true
}

// Size 节点数量（对外导出）
func (d *dagImpl) Size() int {
	return len(d.g.GetVertices())
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
