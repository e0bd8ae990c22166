package dto

// TriggerRunRequest 触发运行请求
type TriggerRunRequest struct {
	// Wait 为true时同步等待运行结束
	Wait bool `json:"wait"`
}

// RunsQueryRequest 运行历史查询请求
type RunsQueryRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

// GetDefaultLimit 获取默认limit
func (r *RunsQueryRequest) GetDefaultLimit() int {
	if r.Limit <= 0 {
		return 20
	}
	return r.Limit
}
