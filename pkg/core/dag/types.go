package dag

// Node DAG节点结构（对外导出）
type Node struct {
	ID       string   // 节点ID（Task ID）
	Name     string   // 节点名称（Task名称）
	InDegree int      // 入度（依赖的前置Task数量）
	OutEdges []string // 出边（下游依赖该节点的Task ID列表）
}

// TopologicalOrder 拓扑排序结果（对外导出）
type TopologicalOrder struct {
	Levels [][]string // 每一层的Task ID列表，可以并行执行
}

// Flatten 按层展开为线性顺序（对外导出）
func (o *TopologicalOrder) Flatten() []string {
	ids := make([]string, 0)
	for _, level := range o.Levels {
		ids = append(ids, level...)
	}
	return ids
}

// vertex go-dag顶点（实现 Identifiable 接口）
// go-dag按导出字段计算哈希，字段必须导出，否则所有顶点哈希相同
type vertex struct {
	NodeID string
	Name   string
}

// ID 实现 Identifiable 接口
func (v *vertex) ID() string {
	return v.NodeID
}
