package dag

// DAG 有向无环图接口（对外导出）
type DAG interface {
	// TopologicalSort 执行拓扑排序，每一层内的节点可以并行执行
	TopologicalSort() (*TopologicalOrder, error)
	// GetChildren 获取节点的子节点（已排序）
	GetChildren(nodeID string) ([]string, error)
	// GetParents 获取节点的父节点（已排序）
	GetParents(nodeID string) ([]string, error)
	// GetRoots 获取所有根节点（入度为0的节点，已排序）
	GetRoots() []string
	// GetNode 获取指定节点
	GetNode(nodeID string) (*Node, bool)
	// Size 节点数量
	Size() int
}
