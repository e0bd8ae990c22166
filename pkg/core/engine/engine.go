package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	istorage "github.com/LENAX/ctas-pipeline/internal/storage"
	"github.com/LENAX/ctas-pipeline/pkg/config"
	"github.com/LENAX/ctas-pipeline/pkg/core/cache"
	"github.com/LENAX/ctas-pipeline/pkg/core/executor"
	"github.com/LENAX/ctas-pipeline/pkg/core/task"
	"github.com/LENAX/ctas-pipeline/pkg/core/workflow"
	"github.com/LENAX/ctas-pipeline/pkg/ctas"
	"github.com/LENAX/ctas-pipeline/pkg/plugin"
	"github.com/LENAX/ctas-pipeline/pkg/storage"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrPipelineNotFound Pipeline未加载
	ErrPipelineNotFound = errors.New("pipeline not found")
	// ErrEngineStopped 引擎已停止，不再接受新的运行
	ErrEngineStopped = errors.New("engine stopped")
)

// Deps 引擎依赖，nil字段由NewEngineWithDeps按配置补齐（测试中可注入）
type Deps struct {
	RunRepo     storage.RunRepository
	Connections storage.ConnectionProvider
}

// Engine 调度引擎核心结构体（对外导出）
type Engine struct {
	cfg           *config.EngineConfig
	registry      *task.FunctionRegistry
	operators     *OperatorRegistry
	conns         storage.ConnectionProvider
	runRepo       storage.RunRepository
	bus           *executor.EventBus
	executor      *executor.Executor
	runner        *ctas.Runner
	sqlCache      *cache.MemoryCache[string]
	cronScheduler *CronScheduler
	plugins       *plugin.Manager

	pipelines map[string]*workflow.Pipeline
	order     []string
	running   bool
	stopped   bool
	active    map[string]string // 进行中的运行：run ID -> Pipeline ID
	inflight  sync.WaitGroup
	mu        sync.RWMutex
}

// NewEngine 按框架配置创建Engine：打开运行历史库，登记外部连接（对外导出）
func NewEngine(ctx context.Context, cfg *config.EngineConfig) (*Engine, error) {
	return NewEngineWithDeps(ctx, cfg, Deps{})
}

// NewEngineWithDeps 创建Engine，允许注入运行历史库和连接注册表（对外导出）
func NewEngineWithDeps(ctx context.Context, cfg *config.EngineConfig, deps Deps) (*Engine, error) {
	if cfg == nil {
		cfg = &config.EngineConfig{}
		cfg.ApplyDefaults()
	}

	runRepo := deps.RunRepo
	if runRepo == nil {
		repo, err := istorage.NewRunRepository(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("创建运行历史存储失败: %w", err)
		}
		runRepo = repo
	}
	conns := deps.Connections
	if conns == nil {
		conns = istorage.NewConnectionRegistry(cfg.Pipeline.Connections)
	}

	var sqlCache *cache.MemoryCache[string]
	var loader *ctas.SQLLoader
	if cfg.Pipeline.SQLCache.Enabled {
		sqlCache = cache.NewMemoryCache[string](cfg.Pipeline.SQLCache.TTL, cfg.Pipeline.SQLCache.TTL)
		loader = ctas.NewSQLLoader(sqlCache)
	} else {
		loader = ctas.NewSQLLoader(nil)
	}

	registry := task.NewFunctionRegistry()
	runner := ctas.NewRunner(conns, loader)
	if err := runner.Register(registry); err != nil {
		return nil, err
	}

	plugins, err := plugin.NewManagerFromConfig(cfg.Pipeline.Notifications)
	if err != nil {
		return nil, fmt.Errorf("初始化通知插件失败: %w", err)
	}
	bus := executor.NewEventBus()
	// 总线关闭时分发协程随订阅channel关闭而退出
	if err := plugins.Attach(context.WithoutCancel(ctx), bus); err != nil {
		bus.Close()
		return nil, err
	}
	retry := cfg.Pipeline.Execution.Retry
	exec := executor.New(registry, runRepo, bus, executor.Options{
		Concurrency:    cfg.GetWorkerConcurrency(),
		DefaultTimeout: cfg.GetDefaultTaskTimeout(),
		Retry: executor.RetryPolicy{
			Enabled:     retry.Enabled,
			MaxAttempts: retry.MaxAttempts,
			Delay:       retry.Delay,
			MaxDelay:    retry.MaxDelay,
		},
	})

	eng := &Engine{
		cfg:       cfg,
		registry:  registry,
		operators: NewOperatorRegistry(),
		conns:     conns,
		runRepo:   runRepo,
		bus:       bus,
		executor:  exec,
		runner:    runner,
		sqlCache:  sqlCache,
		plugins:   plugins,
		pipelines: make(map[string]*workflow.Pipeline),
		active:    make(map[string]string),
	}
	eng.cronScheduler = NewCronScheduler(eng)
	return eng, nil
}

// GetRegistry 获取函数注册表，可注册自定义执行函数（对外导出）
func (e *Engine) GetRegistry() *task.FunctionRegistry {
	return e.registry
}

// Operators 获取operator注册表（对外导出）
func (e *Engine) Operators() *OperatorRegistry {
	return e.operators
}

// EventBus 获取事件总线（对外导出）
func (e *Engine) EventBus() *executor.EventBus {
	return e.bus
}

// RunRepository 获取运行历史存储（对外导出）
func (e *Engine) RunRepository() storage.RunRepository {
	return e.runRepo
}

// Plugins 获取通知插件管理器，可注册自定义插件并绑定事件（对外导出）
func (e *Engine) Plugins() *plugin.Manager {
	return e.plugins
}

// Scheduler 获取定时调度器（对外导出）
func (e *Engine) Scheduler() *CronScheduler {
	return e.cronScheduler
}

// Runner 获取重建表的执行函数（对外导出）
func (e *Engine) Runner() *ctas.Runner {
	return e.runner
}

// BuildPipeline 将单个Pipeline定义转换为workflow.Pipeline（对外导出）
func (e *Engine) BuildPipeline(def config.PipelineDefinition) (*workflow.Pipeline, error) {
	p := workflow.NewPipeline(def.PipelineID, def.Description, workflow.DefaultArgs(def.DefaultArgs))
	p.Schedule = def.Schedule
	if p.Schedule != "" {
		if err := ValidateSchedule(p.Schedule); err != nil {
			return nil, fmt.Errorf("Pipeline %s: %w", def.PipelineID, err)
		}
	}

	for i, taskDef := range def.Tasks {
		if _, err := e.operators.Build(p, taskDef); err != nil {
			return nil, fmt.Errorf("Pipeline %s 的tasks[%d]构建失败: %w", def.PipelineID, i, err)
		}
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// LoadPipelines 加载业务配置中的全部Pipeline（对外导出）
// 任一Pipeline构建失败时整体不生效；引擎已启动时同步更新定时调度
func (e *Engine) LoadPipelines(cfg *config.PipelineConfig) error {
	if cfg == nil {
		return fmt.Errorf("Pipeline配置不能为空")
	}
	if err := config.ValidatePipelineConfig(cfg); err != nil {
		return fmt.Errorf("validate pipeline config failed: %w", err)
	}

	built := make(map[string]*workflow.Pipeline, len(cfg.Pipelines))
	order := make([]string, 0, len(cfg.Pipelines))
	for _, def := range cfg.Pipelines {
		p, err := e.BuildPipeline(def)
		if err != nil {
			return err
		}
		built[p.ID] = p
		order = append(order, p.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		for _, id := range e.cronScheduler.GetRegisteredPipelines() {
			_ = e.cronScheduler.UnregisterPipeline(id)
		}
	}
	e.pipelines = built
	e.order = order
	if e.running {
		if err := e.registerSchedulesLocked(); err != nil {
			return err
		}
	}

	log.WithField("pipelines", len(order)).Info("[引擎] Pipeline配置已加载")
	return nil
}

// LoadPipelinesFromFile 从文件加载业务配置（对外导出）
func (e *Engine) LoadPipelinesFromFile(path string) error {
	cfg, err := config.LoadPipelineConfig(path)
	if err != nil {
		return fmt.Errorf("load pipeline config failed: %w", err)
	}
	return e.LoadPipelines(cfg)
}

// Pipelines 返回已加载的Pipeline（按配置顺序）（对外导出）
func (e *Engine) Pipelines() []*workflow.Pipeline {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*workflow.Pipeline, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.pipelines[id])
	}
	return out
}

// GetPipeline 根据ID获取Pipeline（对外导出）
func (e *Engine) GetPipeline(pipelineID string) (*workflow.Pipeline, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.pipelines[pipelineID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotFound, pipelineID)
	}
	return p, nil
}

// Trigger 同步执行一次Pipeline（对外导出）
func (e *Engine) Trigger(ctx context.Context, pipelineID, trigger string) (*executor.RunResult, error) {
	return e.TriggerWithRequest(ctx, pipelineID, executor.RunRequest{Trigger: trigger})
}

// TriggerWithRequest 按指定运行参数同步执行一次Pipeline（对外导出）
func (e *Engine) TriggerWithRequest(ctx context.Context, pipelineID string, req executor.RunRequest) (*executor.RunResult, error) {
	if req.RunID == "" {
		req.RunID = uuid.NewString()
	}
	p, err := e.acquire(pipelineID, req.RunID, false)
	if err != nil {
		return nil, err
	}
	defer e.release(req.RunID)
	return e.executor.Execute(ctx, p, req)
}

// TriggerAsync 异步执行一次Pipeline，立即返回run ID（对外导出）
// 运行状态通过运行历史或事件总线获取
func (e *Engine) TriggerAsync(pipelineID, trigger string) (string, error) {
	req := executor.RunRequest{RunID: uuid.NewString(), Trigger: trigger}
	p, err := e.acquire(pipelineID, req.RunID, false)
	if err != nil {
		return "", err
	}
	go func() {
		defer e.release(req.RunID)
		if _, err := e.executor.Execute(context.Background(), p, req); err != nil {
			log.WithError(err).WithFields(log.Fields{"pipeline_id": pipelineID, "run_id": req.RunID}).Warn("[引擎] 异步运行未成功")
		}
	}()
	return req.RunID, nil
}

// triggerExclusive 同一Pipeline已有运行时跳过，返回skipped=true
// 定时调度用它避免重新加载配置后新旧Cron条目的运行重叠
func (e *Engine) triggerExclusive(ctx context.Context, pipelineID, trigger string) (res *executor.RunResult, skipped bool, err error) {
	req := executor.RunRequest{RunID: uuid.NewString(), Trigger: trigger}
	p, err := e.acquire(pipelineID, req.RunID, true)
	if errors.Is(err, errPipelineBusy) {
		return nil, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	defer e.release(req.RunID)
	res, err = e.executor.Execute(ctx, p, req)
	return res, false, err
}

var errPipelineBusy = errors.New("pipeline already running")

// acquire 取Pipeline并登记一个进行中的运行
func (e *Engine) acquire(pipelineID, runID string, exclusive bool) (*workflow.Pipeline, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return nil, ErrEngineStopped
	}
	p, ok := e.pipelines[pipelineID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPipelineNotFound, pipelineID)
	}
	if exclusive && e.activeRunsLocked(pipelineID) > 0 {
		return nil, errPipelineBusy
	}
	e.active[runID] = pipelineID
	e.inflight.Add(1)
	return p, nil
}

func (e *Engine) release(runID string) {
	e.mu.Lock()
	delete(e.active, runID)
	e.mu.Unlock()
	e.inflight.Done()
}

func (e *Engine) activeRunsLocked(pipelineID string) int {
	n := 0
	for _, id := range e.active {
		if id == pipelineID {
			n++
		}
	}
	return n
}

// RunInFlight run ID对应的运行是否仍在进行（对外导出）
func (e *Engine) RunInFlight(runID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.active[runID]
	return ok
}

// ActiveRuns Pipeline进行中的运行数（对外导出）
func (e *Engine) ActiveRuns(pipelineID string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.activeRunsLocked(pipelineID)
}

// RenderTask 预览Task将执行的SQL（不访问数据库）（对外导出）
func (e *Engine) RenderTask(ctx context.Context, pipelineID, taskID string, logicalDate time.Time) (string, error) {
	p, err := e.GetPipeline(pipelineID)
	if err != nil {
		return "", err
	}
	t, ok := p.GetTask(taskID)
	if !ok {
		return "", fmt.Errorf("Pipeline %s 中不存在Task %s", pipelineID, taskID)
	}
	if logicalDate.IsZero() {
		logicalDate = time.Now()
	}
	req := executor.RunRequest{RunID: "preview", Trigger: executor.TriggerManual, LogicalDate: logicalDate}
	tc := task.NewTaskContext(ctx, t, p.ID, req.RunID)
	if t.ProvideContext {
		tc.Runtime = executor.RuntimeContext(p, t, req)
	}
	return e.runner.Prepare(tc)
}

// Start 启动引擎：注册定时调度并启动Cron（对外导出）
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	if e.stopped {
		return ErrEngineStopped
	}
	if err := e.registerSchedulesLocked(); err != nil {
		return err
	}
	e.cronScheduler.Start()
	e.running = true
	log.WithField("instance", e.cfg.Pipeline.General.InstanceName).Info("[引擎] 已启动")
	return nil
}

func (e *Engine) registerSchedulesLocked() error {
	for _, id := range e.order {
		p := e.pipelines[id]
		if p.Schedule == "" {
			continue
		}
		if err := e.cronScheduler.RegisterPipeline(p); err != nil {
			return err
		}
	}
	return nil
}

// Stop 停止引擎：停止Cron，等待进行中的运行结束，释放资源（对外导出）
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	wasRunning := e.running
	e.running = false
	e.stopped = true
	e.mu.Unlock()

	if wasRunning {
		e.cronScheduler.Stop()
	}
	e.inflight.Wait()

	if err := e.bus.Close(); err != nil {
		log.WithError(err).Warn("[引擎] 关闭事件总线失败")
	}
	e.plugins.Wait()
	if e.sqlCache != nil {
		e.sqlCache.Stop()
	}
	if err := e.conns.Close(); err != nil {
		log.WithError(err).Warn("[引擎] 关闭数据库连接失败")
	}
	if err := e.runRepo.Close(); err != nil {
		log.WithError(err).Warn("[引擎] 关闭运行历史存储失败")
	}
	log.Info("[引擎] 已停止")
}

// PipelineIDs 返回已加载的Pipeline ID（排序后）（对外导出）
func (e *Engine) PipelineIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.pipelines))
	for id := range e.pipelines {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
