package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/LENAX/ctas-pipeline/pkg/core/executor"
	"github.com/LENAX/ctas-pipeline/pkg/core/workflow"
	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// cronLogger 把robfig/cron的日志转到logrus；调度器自身只输出错误，跳过本轮的提示走Info
var (
	cronLogger      = cron.VerbosePrintfLogger(log.WithField("component", "cron"))
	cronErrorLogger = cron.PrintfLogger(log.WithField("component", "cron"))
)

// cronParser 支持秒级精度的Cron解析器
var cronParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule 校验Cron表达式（6段，含秒；也支持@daily等描述符）
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("Cron表达式 %q 无效: %w", expr, err)
	}
	return nil
}

// CronScheduler 定时调度器（对外导出）
type CronScheduler struct {
	cron    *cron.Cron
	engine  *Engine
	entries map[string]cron.EntryID // pipelineID -> cron.EntryID映射
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewCronScheduler 创建定时调度器（对外导出）
func NewCronScheduler(eng *Engine) *CronScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &CronScheduler{
		// 同一Cron条目上一轮未结束时跳过本轮；跨条目的重叠由triggerExclusive处理
		cron: cron.New(
			cron.WithParser(cronParser),
			cron.WithLogger(cronErrorLogger),
			cron.WithChain(cron.SkipIfStillRunning(cronLogger)),
		),
		engine:  eng,
		entries: make(map[string]cron.EntryID),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// RegisterPipeline 注册Pipeline到定时调度器（对外导出）
func (cs *CronScheduler) RegisterPipeline(p *workflow.Pipeline) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if _, exists := cs.entries[p.ID]; exists {
		return fmt.Errorf("Pipeline %s 已注册到定时调度器", p.ID)
	}
	if p.Schedule == "" {
		return fmt.Errorf("Pipeline %s 未设置Cron表达式", p.ID)
	}
	if err := ValidateSchedule(p.Schedule); err != nil {
		return fmt.Errorf("Pipeline %s: %w", p.ID, err)
	}

	pipelineID := p.ID
	entryID, err := cs.cron.AddFunc(p.Schedule, func() {
		cs.triggerPipeline(pipelineID)
	})
	if err != nil {
		return fmt.Errorf("添加Cron任务失败: %w", err)
	}
	cs.entries[p.ID] = entryID

	log.WithFields(log.Fields{"pipeline_id": p.ID, "schedule": p.Schedule}).Info("[Cron调度器] 已注册Pipeline")
	return nil
}

// UnregisterPipeline 取消注册Pipeline（对外导出）
func (cs *CronScheduler) UnregisterPipeline(pipelineID string) error {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	entryID, exists := cs.entries[pipelineID]
	if !exists {
		return fmt.Errorf("Pipeline %s 未注册到定时调度器", pipelineID)
	}
	cs.cron.Remove(entryID)
	delete(cs.entries, pipelineID)

	log.WithField("pipeline_id", pipelineID).Info("[Cron调度器] 已取消注册Pipeline")
	return nil
}

// triggerPipeline 触发Pipeline执行（内部方法）
// 执行时按ID重新取Pipeline，配置重新加载后使用新定义
func (cs *CronScheduler) triggerPipeline(pipelineID string) {
	log.WithField("pipeline_id", pipelineID).Info("[Cron调度器] 触发Pipeline执行")
	res, skipped, err := cs.engine.triggerExclusive(cs.ctx, pipelineID, executor.TriggerCron)
	if skipped {
		log.WithField("pipeline_id", pipelineID).Warn("[Cron调度器] 上一轮运行未结束，跳过本次触发")
		return
	}
	if err != nil {
		log.WithError(err).WithField("pipeline_id", pipelineID).Error("[Cron调度器] Pipeline执行失败")
		return
	}
	log.WithFields(log.Fields{"pipeline_id": pipelineID, "run_id": res.RunID}).Info("[Cron调度器] Pipeline执行完成")
}

// Start 启动定时调度器（对外导出）
func (cs *CronScheduler) Start() {
	cs.cron.Start()
	log.Info("[Cron调度器] 已启动")
}

// Stop 停止定时调度器，并等待正在执行的任务结束（对外导出）
func (cs *CronScheduler) Stop() {
	cs.cancel()
	<-cs.cron.Stop().Done()
	log.Info("[Cron调度器] 已停止")
}

// GetRegisteredPipelines 获取已注册的Pipeline列表（对外导出）
func (cs *CronScheduler) GetRegisteredPipelines() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	ids := make([]string, 0, len(cs.entries))
	for id := range cs.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// NextRun 返回Pipeline下次触发时间（对外导出）
func (cs *CronScheduler) NextRun(pipelineID string) (string, bool) {
	cs.mu.RLock()
	entryID, ok := cs.entries[pipelineID]
	cs.mu.RUnlock()
	if !ok {
		return "", false
	}
	next := cs.cron.Entry(entryID).Next
	if next.IsZero() {
		return "", false
	}
	return next.Format("2006-01-02T15:04:05Z07:00"), true
}
