// Package executor 按DAG层级执行Pipeline。
//
// 同一层内的Task并发执行（受并发上限约束），下一层在上一层全部结束后开始。
// 某个Task失败后，依赖它的Task（直接或间接）被标记为UPSTREAM_FAILED，不再执行。
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/LENAX/ctas-pipeline/internal/metrics"
	"github.com/LENAX/ctas-pipeline/pkg/core/task"
	"github.com/LENAX/ctas-pipeline/pkg/core/workflow"
	"github.com/LENAX/ctas-pipeline/pkg/storage"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrRunFailed 至少一个Task未成功
var ErrRunFailed = errors.New("pipeline run failed")

// 运行时上下文中的键，provide_context为true时传给执行函数
const (
	RuntimeRunID      = "run_id"
	RuntimePipelineID = "pipeline_id"
	RuntimeTaskID     = "task_id"
	RuntimeDS         = "ds"
	RuntimeDSNoDash   = "ds_nodash"
	RuntimeTS         = "ts"
	RuntimeParams     = "params"
)

// 触发方式
const (
	TriggerManual = "manual"
	TriggerCron   = "cron"
	TriggerAPI    = "api"
)

// RetryPolicy 重试策略
// MaxAttempts为总尝试次数（含首次），Task上的retry_count优先
type RetryPolicy struct {
	Enabled     bool
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration
}

// Options 执行器配置
type Options struct {
	Concurrency    int
	DefaultTimeout time.Duration
	Retry          RetryPolicy
}

// RunRequest 一次运行的参数
type RunRequest struct {
	RunID       string    // 为空时自动生成
	Trigger     string    // manual/cron/api
	LogicalDate time.Time // ds/ts的来源，为零值时取当前时间
}

// TaskResult 单个Task的执行结果
type TaskResult struct {
	TaskID    string        `json:"task_id"`
	Status    string        `json:"status"`
	Attempts  int           `json:"attempts"`
	Output    any           `json:"output,omitempty"`
	Error     string        `json:"error,omitempty"`
	StartTime time.Time     `json:"start_time"`
	Duration  time.Duration `json:"duration"`
}

// RunResult 一次Pipeline运行的结果
type RunResult struct {
	RunID      string                 `json:"run_id"`
	PipelineID string                 `json:"pipeline_id"`
	Trigger    string                 `json:"trigger"`
	Status     string                 `json:"status"`
	StartTime  time.Time              `json:"start_time"`
	EndTime    time.Time              `json:"end_time"`
	Tasks      map[string]*TaskResult `json:"tasks"`
}

// Succeeded 是否全部Task成功
func (r *RunResult) Succeeded() bool {
	return r.Status == storage.RunStatusSuccess
}

// Executor Pipeline执行器（对外导出）
type Executor struct {
	registry *task.FunctionRegistry
	repo     storage.RunRepository // 可为nil，表示不记录运行历史
	bus      *EventBus             // 可为nil，表示不发布事件
	opts     Options
}

// New 创建执行器
func New(registry *task.FunctionRegistry, repo storage.RunRepository, bus *EventBus, opts Options) *Executor {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	return &Executor{registry: registry, repo: repo, bus: bus, opts: opts}
}

// Execute 执行Pipeline
// 返回的RunResult在Pipeline能够开始运行时总是非nil；有Task未成功时同时返回ErrRunFailed
func (e *Executor) Execute(ctx context.Context, p *workflow.Pipeline, req RunRequest) (*RunResult, error) {
	d, err := p.BuildDAG()
	if err != nil {
		return nil, fmt.Errorf("构建DAG失败: %w", err)
	}
	order, err := d.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("拓扑排序失败: %w", err)
	}

	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	if req.Trigger == "" {
		req.Trigger = TriggerManual
	}
	if req.LogicalDate.IsZero() {
		req.LogicalDate = time.Now()
	}

	result := &RunResult{
		RunID:      req.RunID,
		PipelineID: p.ID,
		Trigger:    req.Trigger,
		Status:     storage.RunStatusRunning,
		StartTime:  time.Now(),
		Tasks:      make(map[string]*TaskResult, p.Len()),
	}
	logger := log.WithFields(log.Fields{"pipeline_id": p.ID, "run_id": req.RunID, "trigger": req.Trigger})
	logger.WithField("tasks", p.Len()).Info("[执行器] Pipeline开始运行")

	e.saveRun(ctx, result, "")
	e.publish(NewEvent(EventRunStarted, req.RunID, p.ID, ""))

	var mu sync.Mutex
	for _, level := range order.Levels {
		g := new(errgroup.Group)
		g.SetLimit(e.opts.Concurrency)
		for _, taskID := range level {
			t, _ := p.GetTask(taskID)

			mu.Lock()
			blocked := upstreamBlocked(t, result.Tasks)
			mu.Unlock()
			if blocked {
				tr := e.skipTask(ctx, p, req, t)
				mu.Lock()
				result.Tasks[taskID] = tr
				mu.Unlock()
				continue
			}

			g.Go(func() error {
				tr := e.runTask(ctx, p, req, t)
				mu.Lock()
				result.Tasks[t.ID] = tr
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
	}

	result.EndTime = time.Now()
	result.Status = storage.RunStatusSuccess
	var failedTasks []string
	for _, id := range order.Flatten() {
		if tr := result.Tasks[id]; tr.Status != task.TaskStatusSuccess {
			result.Status = storage.RunStatusFailed
			failedTasks = append(failedTasks, id)
		}
	}

	errMsg := ""
	if len(failedTasks) > 0 {
		errMsg = fmt.Sprintf("未成功的Task: %v", failedTasks)
	}
	e.saveRun(ctx, result, errMsg)
	finished := NewEvent(EventRunFinished, req.RunID, p.ID, "")
	finished.Status = result.Status
	finished.Error = errMsg
	e.publish(finished)
	metrics.PipelineRuns.WithLabelValues(p.ID, req.Trigger, result.Status).Inc()

	logger.WithFields(log.Fields{
		"status":   result.Status,
		"duration": result.EndTime.Sub(result.StartTime),
	}).Info("[执行器] Pipeline运行结束")

	if result.Status != storage.RunStatusSuccess {
		return result, fmt.Errorf("%w: %s", ErrRunFailed, errMsg)
	}
	return result, nil
}

// upstreamBlocked 任一依赖未成功时返回true
func upstreamBlocked(t *task.Task, done map[string]*TaskResult) bool {
	for _, dep := range t.Dependencies {
		tr, ok := done[dep]
		if !ok || tr.Status != task.TaskStatusSuccess {
			return true
		}
	}
	return false
}

func (e *Executor) skipTask(ctx context.Context, p *workflow.Pipeline, req RunRequest, t *task.Task) *TaskResult {
	tr := &TaskResult{
		TaskID:    t.ID,
		Status:    task.TaskStatusUpstreamFailed,
		StartTime: time.Now(),
		Error:     "上游Task未成功",
	}
	log.WithFields(log.Fields{"run_id": req.RunID, "task_id": t.ID}).Warn("[执行器] 上游失败，跳过Task")
	e.saveTaskRun(ctx, p, req, tr)
	ev := NewEvent(EventTaskFailed, req.RunID, p.ID, t.ID)
	ev.Status = tr.Status
	ev.Error = tr.Error
	e.publish(ev)
	metrics.TaskRuns.WithLabelValues(p.ID, tr.Status).Inc()
	return tr
}

func (e *Executor) runTask(ctx context.Context, p *workflow.Pipeline, req RunRequest, t *task.Task) *TaskResult {
	tr := &TaskResult{TaskID: t.ID, Status: task.TaskStatusRunning, StartTime: time.Now()}
	logger := log.WithFields(log.Fields{"pipeline_id": p.ID, "run_id": req.RunID, "task_id": t.ID})

	e.saveTaskRun(ctx, p, req, tr)
	e.publish(NewEvent(EventTaskStarted, req.RunID, p.ID, t.ID))

	fn, err := e.registry.Get(t.JobFuncName)
	if err != nil {
		return e.finishTask(ctx, p, req, tr, nil, err, logger)
	}

	tc := task.NewTaskContext(ctx, t, p.ID, req.RunID)
	if t.ProvideContext {
		tc.Runtime = RuntimeContext(p, t, req)
	}

	timeout := t.Timeout()
	if timeout <= 0 {
		timeout = e.opts.DefaultTimeout
	}

	var output any
	operation := func() error {
		tr.Attempts++
		if tr.Attempts > 1 {
			metrics.TaskRetries.WithLabelValues(p.ID).Inc()
			ev := NewEvent(EventTaskRetrying, req.RunID, p.ID, t.ID)
			ev.Attempt = tr.Attempts
			e.publish(ev)
			logger.WithField("attempt", tr.Attempts).Warn("[执行器] 重试Task")
		}
		out, err := callWithTimeout(ctx, fn, tc, timeout)
		if err != nil {
			if permanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		output = out
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(e.newBackOff(), uint64(e.retriesFor(t))), ctx)
	err = backoff.Retry(operation, policy)
	return e.finishTask(ctx, p, req, tr, output, err, logger)
}

func (e *Executor) finishTask(ctx context.Context, p *workflow.Pipeline, req RunRequest, tr *TaskResult, output any, err error, logger *log.Entry) *TaskResult {
	tr.Duration = time.Since(tr.StartTime)
	ev := NewEvent(EventTaskSucceeded, req.RunID, p.ID, tr.TaskID)
	ev.Attempt = tr.Attempts

	switch {
	case err == nil:
		tr.Status = task.TaskStatusSuccess
		tr.Output = output
		logger.WithFields(log.Fields{"attempts": tr.Attempts, "duration": tr.Duration}).Info("[执行器] Task执行成功")
	case errors.Is(err, context.DeadlineExceeded):
		tr.Status = task.TaskStatusTimeout
		tr.Error = err.Error()
		ev.Type = EventTaskFailed
		logger.WithError(err).Error("[执行器] Task执行超时")
	default:
		tr.Status = task.TaskStatusFailed
		tr.Error = err.Error()
		ev.Type = EventTaskFailed
		logger.WithError(err).Error("[执行器] Task执行失败")
	}
	ev.Status = tr.Status
	ev.Error = tr.Error

	e.saveTaskRun(ctx, p, req, tr)
	e.publish(ev)
	metrics.TaskRuns.WithLabelValues(p.ID, tr.Status).Inc()
	metrics.TaskDuration.WithLabelValues(p.ID).Observe(tr.Duration.Seconds())
	if rows, table, ok := rowCount(output); ok {
		metrics.TableRows.WithLabelValues(table).Set(float64(rows))
	}
	return tr
}

// callWithTimeout 在独立goroutine中调用执行函数；函数不响应ctx时也能按时返回
func callWithTimeout(ctx context.Context, fn task.JobFunction, tc *task.TaskContext, timeout time.Duration) (any, error) {
	actx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		actx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type outcome struct {
		out any
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("执行函数panic: %v", r)}
			}
		}()
		out, err := fn(tc.WithContext(actx))
		ch <- outcome{out: out, err: err}
	}()

	select {
	case o := <-ch:
		if o.err != nil && actx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("执行超时(%s): %w", timeout, context.DeadlineExceeded)
		}
		return o.out, o.err
	case <-actx.Done():
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("执行超时(%s): %w", timeout, context.DeadlineExceeded)
	}
}

// permanent 配置类错误重试也不会成功
func permanent(err error) bool {
	return errors.Is(err, task.ErrInvalidConfig) ||
		errors.Is(err, task.ErrFunctionNotFound) ||
		errors.Is(err, storage.ErrUnknownConnection)
}

func (e *Executor) retriesFor(t *task.Task) int {
	if t.RetryCount > 0 {
		return t.RetryCount
	}
	if e.opts.Retry.Enabled && e.opts.Retry.MaxAttempts > 1 {
		return e.opts.Retry.MaxAttempts - 1
	}
	return 0
}

func (e *Executor) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if e.opts.Retry.Delay > 0 {
		b.InitialInterval = e.opts.Retry.Delay
	}
	if e.opts.Retry.MaxDelay > 0 {
		b.MaxInterval = e.opts.Retry.MaxDelay
	}
	b.MaxElapsedTime = 0
	return b
}

// RuntimeContext 构造传给执行函数的运行时上下文
func RuntimeContext(p *workflow.Pipeline, t *task.Task, req RunRequest) map[string]any {
	return map[string]any{
		RuntimeRunID:      req.RunID,
		RuntimePipelineID: p.ID,
		RuntimeTaskID:     t.ID,
		RuntimeDS:         req.LogicalDate.Format("2006-01-02"),
		RuntimeDSNoDash:   req.LogicalDate.Format("20060102"),
		RuntimeTS:         req.LogicalDate.Format(time.RFC3339),
		RuntimeParams:     maps.Clone(t.Params),
	}
}

// rowCount 从执行结果中取出行数（结果实现RowCounter时）
func rowCount(output any) (int64, string, bool) {
	rc, ok := output.(RowCounter)
	if !ok {
		return 0, "", false
	}
	return rc.RowCount(), rc.TableName(), true
}

// RowCounter 执行结果可实现该接口以上报表行数
type RowCounter interface {
	RowCount() int64
	TableName() string
}

func (e *Executor) saveRun(ctx context.Context, r *RunResult, errMsg string) {
	if e.repo == nil {
		return
	}
	run := &storage.PipelineRun{
		ID:           r.RunID,
		PipelineID:   r.PipelineID,
		Trigger:      r.Trigger,
		Status:       r.Status,
		StartTime:    r.StartTime,
		ErrorMessage: errMsg,
	}
	if !r.EndTime.IsZero() {
		end := r.EndTime
		run.EndTime = &end
	}
	if err := e.repo.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		log.WithError(err).WithField("run_id", r.RunID).Warn("[执行器] 保存运行记录失败")
	}
}

func (e *Executor) saveTaskRun(ctx context.Context, p *workflow.Pipeline, req RunRequest, tr *TaskResult) {
	if e.repo == nil {
		return
	}
	rec := &storage.TaskRun{
		ID:           req.RunID + ":" + tr.TaskID,
		RunID:        req.RunID,
		PipelineID:   p.ID,
		TaskID:       tr.TaskID,
		Status:       tr.Status,
		Attempts:     tr.Attempts,
		StartTime:    tr.StartTime,
		ErrorMessage: tr.Error,
	}
	if tr.Status != task.TaskStatusRunning {
		end := tr.StartTime.Add(tr.Duration)
		rec.EndTime = &end
	}
	if tr.Output != nil {
		if data, err := json.Marshal(tr.Output); err == nil {
			rec.Result = string(data)
		}
	}
	if err := e.repo.SaveTaskRun(context.WithoutCancel(ctx), rec); err != nil {
		log.WithError(err).WithField("task_id", tr.TaskID).Warn("[执行器] 保存Task运行记录失败")
	}
}

func (e *Executor) publish(ev *Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ev); err != nil {
		log.WithError(err).WithField("event_type", ev.Type).Warn("[执行器] 发布事件失败")
	}
}
