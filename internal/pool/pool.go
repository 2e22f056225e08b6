// Package pool implements a thermally governed worker-pool scheduler:
// priority-ordered admission, worker lifecycle management with
// respawn-on-crash, a feedback-controlled thermal governor that resizes the
// pool and throttles low-priority admission under load, and graceful/forced
// shutdown.
//
// Concurrency model: one coordinator goroutine owns the queue, the worker
// registry and the governor, and serializes every mutation. Workers are
// independent goroutines that share nothing with the coordinator except the
// dispatch channel in and the event channel out. The only object shared
// across truly parallel contexts is the per-task Future, which settles
// exactly once behind an atomic guard.
package pool

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"thermopool/internal/eventbus"
	"thermopool/internal/history"
	logx "thermopool/pkg/logx"
)

// Config controls the pool. It is immutable after New.
type Config struct {
	// Workers is the base pool size. Defaults to the logical CPU count.
	Workers int

	// MaxTasksPerWorker recycles a worker after this many completions,
	// bounding per-worker memory growth. 0 disables recycling.
	MaxTasksPerWorker int

	// TaskTimeout is the default soft deadline for tasks that do not
	// override it. Defaults to 30s.
	TaskTimeout time.Duration

	// MaxQueueSize caps the admission queue. Defaults to 256.
	MaxQueueSize int

	// ThermalThreshold is the estimated-temperature threshold (Celsius)
	// separating Warm from Hot. Defaults to 70.
	ThermalThreshold float64

	// RebalanceInterval is the governor's sampling tick. Defaults to 5s.
	RebalanceInterval time.Duration

	ThermalThrottling  bool
	DynamicRebalancing bool
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = 30 * time.Second
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 256
	}
	if c.ThermalThreshold <= 0 {
		c.ThermalThreshold = 70
	}
	if c.RebalanceInterval <= 0 {
		c.RebalanceInterval = 5 * time.Second
	}
	return c
}

// Option configures optional collaborators.
type Option func(*Pool)

func WithLogger(log logx.Logger) Option { return func(p *Pool) { p.log = log } }
func WithBus(bus eventbus.Bus) Option   { return func(p *Pool) { p.bus = bus } }
func WithSampler(s LoadSampler) Option  { return func(p *Pool) { p.sampler = s } }

// WithHistory journals every terminal task outcome to the given recorder.
// Recorders must not block; see history.NewAsync.
func WithHistory(r history.Recorder) Option { return func(p *Pool) { p.hist = r } }

type phase int8

const (
	phaseRunning phase = iota
	phaseDraining
	phaseTerminating
	phaseStopped
)

type pendingState int8

const (
	stateDelayed pendingState = iota
	stateQueued
	stateInflight
)

// pendingTask is the coordinator's bookkeeping for one accepted,
// not-yet-terminal task. A task is referenced by at most one of
// {delay timer, queue, worker} at any instant.
type pendingTask struct {
	task Task
	fut  *Future

	state    pendingState
	deadline time.Time

	timer     *time.Timer // timeout, armed at acceptance
	delay     *time.Timer // throttle backoff, stateDelayed only
	cancelRun context.CancelFunc
	workerID  int
}

type submitReq struct {
	task Task
	fut  *Future
	resp chan error
}

type counters struct {
	completed       uint64
	failed          uint64
	timedOut        uint64
	cancelled       uint64
	throttled       uint64
	thermalRejected uint64
	totalTaskDur    time.Duration
}

// Pool is the public-facing coordinator. Construct with New, call Start,
// submit with Submit. There is no package-level default pool; callers
// needing a shared instance pass it explicitly.
type Pool struct {
	cfg     Config
	execs   map[string]Executor
	log     logx.Logger
	bus     eventbus.Bus
	sampler LoadSampler
	hist    history.Recorder

	warnLim *rate.Limiter

	submitCh chan *submitReq
	cmdCh    chan func()
	events   chan workerEvent
	loopDone chan struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc
	started    atomic.Bool

	// Everything below is owned by the coordinator loop.
	queue   *taskQueue
	reg     *registry
	gov     *governor
	pending map[string]*pendingTask

	phase          phase
	graceful       bool
	shutdownWaits  []chan struct{}
	liveGoroutines int
	inflight       int
	launchedAt     time.Time
	ctrs           counters
	finalStats     *Stats
}

// New builds a pool executing the given kind→executor table. The pool does
// not run until Start.
func New(cfg Config, execs map[string]Executor, opts ...Option) *Pool {
	cfg = cfg.withDefaults()
	p := &Pool{
		cfg:      cfg,
		execs:    execs,
		log:      logx.Nop(),
		sampler:  NewCPUSampler(),
		warnLim:  rate.NewLimiter(rate.Every(5*time.Second), 1),
		submitCh: make(chan *submitReq),
		cmdCh:    make(chan func(), 64),
		events:   make(chan workerEvent, 4*cfg.Workers+64),
		loopDone: make(chan struct{}),
		queue:    newTaskQueue(),
		reg:      newRegistry(),
		pending:  map[string]*pendingTask{},
	}
	for _, o := range opts {
		o(p)
	}
	p.gov = newGovernor(cfg.ThermalThreshold, p.sampler)
	return p
}

// Start spawns the initial workers and the coordinator loop. Cancelling ctx
// forces an immediate (non-graceful) shutdown.
func (p *Pool) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("pool: already started")
	}

	p.baseCtx, p.baseCancel = context.WithCancel(ctx)
	p.launchedAt = time.Now()

	for i := 0; i < p.cfg.Workers; i++ {
		p.spawnWorker()
	}

	go p.run()

	p.log.Info("pool started",
		logx.Int("workers", p.cfg.Workers),
		logx.Int("max_queue", p.cfg.MaxQueueSize),
		logx.Bool("thermal_throttling", p.cfg.ThermalThrottling),
		logx.Bool("dynamic_rebalancing", p.cfg.DynamicRebalancing),
	)
	return nil
}

// Submit admits a task and returns its future immediately. It fails fast
// with ErrQueueFull at capacity and ErrPoolShuttingDown once shutdown has
// begun; the thermal governor may additionally reject (ErrThermalReject) or
// silently delay admission. ctx bounds only the admission handshake, not
// the task's execution.
func (p *Pool) Submit(ctx context.Context, kind string, payload []byte, opts *SubmitOptions) (*Future, error) {
	if !p.started.Load() {
		return nil, ErrNotStarted
	}
	if ctx == nil {
		ctx = context.Background()
	}

	prio := DefaultPriority
	timeout := p.cfg.TaskTimeout
	if opts != nil {
		prio = clampPriority(opts.Priority)
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
	}

	req := &submitReq{
		task: Task{
			ID:       uuid.NewString(),
			Kind:     kind,
			Payload:  payload,
			Priority: prio,
			Timeout:  timeout,
			QueuedAt: time.Now(),
		},
		fut:  newFuture(),
		resp: make(chan error, 1),
	}

	select {
	case p.submitCh <- req:
	case <-p.loopDone:
		return nil, ErrPoolShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case err := <-req.resp:
		if err != nil {
			return nil, err
		}
		return req.fut, nil
	case <-ctx.Done():
		// The coordinator may already have admitted the task; reap it so an
		// abandoned handshake leaves no orphan running.
		go p.reapAdmitted(req)
		return nil, ctx.Err()
	}
}

// reapAdmitted cancels a task whose submitter gave up on the admission
// handshake. resp is buffered, so the coordinator is never blocked on it.
func (p *Pool) reapAdmitted(req *submitReq) {
	if err := <-req.resp; err == nil {
		p.Cancel(req.task.ID)
	}
}

// Cancel removes a queued task (certain) or advises an in-flight worker to
// stop (best-effort; the future rejects immediately either way). It returns
// false if the task is unknown or already terminal.
func (p *Pool) Cancel(taskID string) bool {
	if !p.started.Load() {
		return false
	}
	resp := make(chan bool, 1)
	if !p.post(func() { resp <- p.cancelTask(taskID) }) {
		return false
	}
	return <-resp
}

// Scale adjusts the live worker count. Scaling up spawns the difference;
// scaling down terminates currently-idle workers only, so it may not reach
// the target immediately.
func (p *Pool) Scale(target int) {
	if !p.started.Load() {
		return
	}
	p.post(func() {
		if p.phase != phaseRunning {
			return
		}
		from := p.reg.size()
		p.scaleTo(target)
		p.emit(EventScaled, RebalanceEventInfo{From: from, To: p.reg.size(), Reason: "manual"})
	})
}

// Shutdown stops the pool. Graceful shutdown blocks admission, waits for
// all in-flight tasks to resolve, then rejects whatever is still queued;
// forced shutdown rejects everything immediately with ErrPoolShutdown.
// ctx bounds only this caller's wait, not the drain itself.
func (p *Pool) Shutdown(ctx context.Context, graceful bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !p.started.Load() {
		return nil
	}
	done := make(chan struct{})
	if !p.post(func() { p.beginShutdown(graceful, done) }) {
		return nil // already stopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns a read-only snapshot; it has no side effects.
func (p *Pool) Stats() Stats {
	if !p.started.Load() {
		return Stats{}
	}
	resp := make(chan Stats, 1)
	if !p.post(func() { resp <- p.snapshotStats() }) {
		if p.finalStats != nil {
			return *p.finalStats
		}
		return Stats{}
	}
	return <-resp
}

// QueuedTasks returns a copy of the queue in dequeue order.
func (p *Pool) QueuedTasks() []Task {
	if !p.started.Load() {
		return nil
	}
	resp := make(chan []Task, 1)
	if !p.post(func() { resp <- p.queue.snapshot() }) {
		return nil
	}
	return <-resp
}

// post schedules fn onto the coordinator loop. It reports false once the
// loop has exited.
func (p *Pool) post(fn func()) bool {
	select {
	case p.cmdCh <- fn:
		return true
	case <-p.loopDone:
		return false
	}
}

func (p *Pool) emit(typ string, data any) {
	if p.bus != nil {
		p.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

// ---- coordinator loop ----

func (p *Pool) run() {
	var tickC <-chan time.Time
	if p.cfg.ThermalThrottling || p.cfg.DynamicRebalancing {
		t := time.NewTicker(p.cfg.RebalanceInterval)
		defer t.Stop()
		tickC = t.C
	}

	ctxDone := p.baseCtx.Done()

	for p.phase != phaseStopped {
		select {
		case req := <-p.submitCh:
			p.handleSubmit(req)
		case fn := <-p.cmdCh:
			fn()
		case ev := <-p.events:
			p.handleWorkerEvent(ev)
		case <-tickC:
			p.handleTick()
		case <-ctxDone:
			ctxDone = nil
			p.beginShutdown(false, nil)
		}
	}
}

func (p *Pool) handleSubmit(req *submitReq) {
	if p.phase != phaseRunning {
		req.resp <- ErrPoolShuttingDown
		return
	}

	if p.cfg.ThermalThrottling {
		dec, backoff := p.gov.admit(req.task.Priority)
		switch dec {
		case admitRejected:
			p.ctrs.thermalRejected++
			p.emit(EventTaskThrottled, TaskEventInfo{ID: req.task.ID, Kind: req.task.Kind, Priority: req.task.Priority, Action: "rejected"})
			if p.warnLim.Allow() {
				p.log.Warn("task rejected: thermal critical",
					logx.String("kind", req.task.Kind),
					logx.Int("priority", req.task.Priority),
					logx.Float64("est_temp_c", p.gov.estTemp),
				)
			}
			req.resp <- ErrThermalReject
			return

		case admitDelayed:
			pt := p.accept(req, stateDelayed)
			pt.delay = time.AfterFunc(backoff, func() {
				p.post(func() { p.enqueueDelayed(pt) })
			})
			p.ctrs.throttled++
			p.emit(EventTaskThrottled, TaskEventInfo{ID: pt.task.ID, Kind: pt.task.Kind, Priority: pt.task.Priority, Action: "delayed", Backoff: backoff})
			p.log.Debug("task throttled",
				logx.String("id", pt.task.ID),
				logx.Int("priority", pt.task.Priority),
				logx.Duration("backoff", backoff),
			)
			req.resp <- nil
			return
		}
	}

	if p.queue.len() >= p.cfg.MaxQueueSize {
		if p.warnLim.Allow() {
			p.log.Warn("task rejected: queue full",
				logx.String("kind", req.task.Kind),
				logx.Int("queue_len", p.queue.len()),
				logx.Int("queue_cap", p.cfg.MaxQueueSize),
			)
		}
		req.resp <- ErrQueueFull
		return
	}

	pt := p.accept(req, stateQueued)
	p.queue.push(pt)
	p.emit(EventTaskQueued, TaskEventInfo{ID: pt.task.ID, Kind: pt.task.Kind, Priority: pt.task.Priority})
	req.resp <- nil

	p.dispatchIdle()
}

// accept registers bookkeeping for an admitted task and arms its timeout.
func (p *Pool) accept(req *submitReq, st pendingState) *pendingTask {
	pt := &pendingTask{
		task:     req.task,
		fut:      req.fut,
		state:    st,
		deadline: req.task.QueuedAt.Add(req.task.Timeout),
		workerID: -1,
	}
	p.pending[pt.task.ID] = pt

	pt.timer = time.AfterFunc(time.Until(pt.deadline), func() {
		// Reject immediately regardless of what the worker is doing; the
		// bookkeeping cleanup runs on the loop.
		if pt.fut.settle(Result{}, ErrTaskTimeout) {
			p.post(func() { p.afterTimeout(pt) })
		}
	})
	return pt
}

func (p *Pool) afterTimeout(pt *pendingTask) {
	if p.pending[pt.task.ID] != pt {
		return
	}
	delete(p.pending, pt.task.ID)
	p.noteTimedOut(pt, 0)

	switch pt.state {
	case stateDelayed:
		if pt.delay != nil {
			pt.delay.Stop()
		}
	case stateQueued:
		p.queue.remove(pt.task.ID)
	case stateInflight:
		p.inflight--
		if pt.cancelRun != nil {
			pt.cancelRun()
		}
	}
	p.log.Debug("task timed out", logx.String("id", pt.task.ID), logx.String("kind", pt.task.Kind))
	p.maybeFinishDrain()
}

// noteTimedOut accounts for a timed-out task exactly once: either
// afterTimeout runs it, or the worker-result path that found the entry
// still pending after losing the settle race. Both delete the pending
// entry first, so they cannot both observe the same task.
func (p *Pool) noteTimedOut(pt *pendingTask, dur time.Duration) {
	p.ctrs.timedOut++
	p.record(pt, "timeout", ErrTaskTimeout.Error(), dur)
}

func (p *Pool) enqueueDelayed(pt *pendingTask) {
	if p.pending[pt.task.ID] != pt || pt.state != stateDelayed {
		return // timed out or cancelled while held back
	}
	if p.phase != phaseRunning {
		p.dropPending(pt, ErrPoolShuttingDown, "shutdown")
		return
	}
	if p.queue.len() >= p.cfg.MaxQueueSize {
		p.dropPending(pt, ErrQueueFull, "queue_full")
		return
	}
	pt.state = stateQueued
	p.queue.push(pt)
	p.emit(EventTaskQueued, TaskEventInfo{ID: pt.task.ID, Kind: pt.task.Kind, Priority: pt.task.Priority})
	p.dispatchIdle()
}

// dropPending settles and fully forgets a delayed or queued task.
func (p *Pool) dropPending(pt *pendingTask, err error, outcome string) {
	delete(p.pending, pt.task.ID)
	if pt.timer != nil {
		pt.timer.Stop()
	}
	if pt.delay != nil {
		pt.delay.Stop()
	}
	if pt.fut.settle(Result{}, err) {
		p.ctrs.failed++
		p.record(pt, outcome, err.Error(), 0)
	}
}

func (p *Pool) dispatchIdle() {
	if p.phase != phaseRunning {
		return
	}
	for p.queue.len() > 0 {
		h := p.reg.idle()
		if h == nil {
			return
		}
		pt := p.queue.pop()
		if pt.fut.isSettled() {
			// Timed out between pop and dispatch; cleanup owns the rest.
			continue
		}

		runCtx, cancel := context.WithDeadline(p.baseCtx, pt.deadline)
		pt.cancelRun = cancel
		pt.state = stateInflight
		pt.workerID = h.id
		pt.task.StartedAt = time.Now()
		p.inflight++

		h.status = StatusBusy
		h.currentTaskID = pt.task.ID
		h.lastActiveAt = pt.task.StartedAt

		h.w.tasks <- dispatch{ctx: runCtx, task: pt.task}
		p.emit(EventTaskAssigned, TaskEventInfo{ID: pt.task.ID, Kind: pt.task.Kind, Priority: pt.task.Priority, WorkerID: h.id})
		p.log.Debug("task assigned",
			logx.String("id", pt.task.ID),
			logx.String("kind", pt.task.Kind),
			logx.Int("worker", h.id),
			logx.Duration("queue_delay", pt.task.StartedAt.Sub(pt.task.QueuedAt)),
		)
	}
}

func (p *Pool) handleWorkerEvent(ev workerEvent) {
	h := p.reg.byID(ev.workerID)

	switch ev.kind {
	case evReady:
		if h == nil {
			return // terminated before the handshake arrived
		}
		h.ready = true
		p.dispatchIdle()

	case evComplete, evError:
		p.settleInflight(ev)
		if h != nil {
			h.currentTaskID = ""
			h.status = StatusIdle
			h.lastActiveAt = time.Now()
			if ev.kind == evComplete {
				h.tasksCompleted++
				h.totalExecTime += ev.duration
			} else {
				h.errorCount++
			}
			if p.phase == phaseRunning && p.cfg.MaxTasksPerWorker > 0 && h.tasksCompleted >= p.cfg.MaxTasksPerWorker {
				p.recycle(h)
			}
		}
		p.dispatchIdle()
		p.maybeFinishDrain()

	case evFault:
		p.liveGoroutines--
		if h != nil {
			h.status = StatusError
			h.errorCount++
			p.reg.remove(h.id)
			p.log.Error("worker fault",
				logx.Int("worker", h.id),
				logx.Err(ev.err),
				logx.String("stack", ev.stack),
			)
			p.emit(EventWorkerError, WorkerEventInfo{WorkerID: h.id, Error: ev.err.Error()})

			if pt, ok := p.pending[ev.taskID]; ok && pt.state == stateInflight && pt.workerID == h.id {
				delete(p.pending, pt.task.ID)
				p.inflight--
				pt.timer.Stop()
				if pt.cancelRun != nil {
					pt.cancelRun()
				}
				if pt.fut.settle(Result{}, fmt.Errorf("%w: %v", ErrWorkerFault, ev.err)) {
					p.ctrs.failed++
					p.record(pt, "fault", ev.err.Error(), ev.duration)
				} else {
					p.noteTimedOut(pt, ev.duration)
				}
			}

			// Self-healing: keep the pool size unless we are going down.
			if p.phase == phaseRunning {
				p.spawnWorker()
			}
		}
		p.maybeFinishDrain()
		p.maybeFinishStop()

	case evExit:
		p.liveGoroutines--
		if h != nil {
			// The worker left without being terminated by us; treat like a
			// fault without an owned task.
			p.reg.remove(h.id)
			p.log.Warn("worker exited unexpectedly", logx.Int("worker", h.id))
			if p.phase == phaseRunning {
				p.spawnWorker()
			}
		}
		p.emit(EventWorkerExit, WorkerEventInfo{WorkerID: ev.workerID})
		p.maybeFinishDrain()
		p.maybeFinishStop()
	}
}

// settleInflight resolves the future for a worker result, discarding late
// results for tasks that already timed out or were cancelled.
func (p *Pool) settleInflight(ev workerEvent) {
	pt, ok := p.pending[ev.taskID]
	if !ok || pt.state != stateInflight || pt.workerID != ev.workerID {
		return
	}
	delete(p.pending, pt.task.ID)
	p.inflight--
	pt.timer.Stop()
	if pt.cancelRun != nil {
		pt.cancelRun()
	}

	if ev.kind == evComplete {
		if pt.fut.settle(Result{Value: ev.value, Duration: ev.duration, WorkerID: ev.workerID}, nil) {
			p.ctrs.completed++
			p.ctrs.totalTaskDur += ev.duration
			p.record(pt, "completed", "", ev.duration)
		} else {
			// Only the timeout timer settles without removing the pending
			// entry; its accounting falls to whoever cleans up.
			p.noteTimedOut(pt, ev.duration)
		}
		return
	}

	err := fmt.Errorf("worker %d: %w", ev.workerID, ev.err)
	if pt.fut.settle(Result{}, err) {
		p.ctrs.failed++
		p.record(pt, "error", ev.err.Error(), ev.duration)
	} else {
		p.noteTimedOut(pt, ev.duration)
	}
}

func (p *Pool) cancelTask(taskID string) bool {
	pt, ok := p.pending[taskID]
	if !ok {
		return false
	}
	if !pt.fut.settle(Result{}, ErrTaskCancelled) {
		// Lost a race against timeout; its cleanup owns the bookkeeping.
		return false
	}

	delete(p.pending, taskID)
	pt.timer.Stop()
	p.ctrs.cancelled++
	p.record(pt, "cancelled", ErrTaskCancelled.Error(), 0)

	switch pt.state {
	case stateDelayed:
		if pt.delay != nil {
			pt.delay.Stop()
		}
	case stateQueued:
		p.queue.remove(taskID)
	case stateInflight:
		// Advisory: ask the worker to stop; a result it still reports is
		// discarded.
		p.inflight--
		if pt.cancelRun != nil {
			pt.cancelRun()
		}
	}
	p.log.Debug("task cancelled", logx.String("id", taskID))
	p.maybeFinishDrain()
	return true
}

func (p *Pool) handleTick() {
	from, to, temp, changed, err := p.gov.tick(p.baseCtx)
	if err != nil {
		if p.warnLim.Allow() {
			p.log.Warn("load sample failed", logx.Err(err))
		}
		return
	}
	if changed {
		p.emit(EventThermalStateChanged, ThermalEventInfo{From: from.String(), To: to.String(), EstimatedTemp: temp})
		p.log.Info("thermal state changed",
			logx.String("from", from.String()),
			logx.String("to", to.String()),
			logx.Float64("est_temp_c", temp),
		)
	}

	if !p.cfg.DynamicRebalancing || p.phase != phaseRunning {
		return
	}
	target := p.gov.targetWorkers(p.cfg.Workers)
	cur := p.reg.size()
	if target == cur {
		return
	}
	p.emit(EventRebalancing, RebalanceEventInfo{From: cur, To: target, Reason: to.String()})
	p.log.Info("rebalancing",
		logx.Int("from", cur),
		logx.Int("to", target),
		logx.String("reason", to.String()),
	)
	p.scaleTo(target)
}

func (p *Pool) scaleTo(target int) {
	if target < 1 {
		target = 1
	}
	cur := p.reg.size()
	if target > cur {
		for i := cur; i < target; i++ {
			p.spawnWorker()
		}
		return
	}
	// Scale-down is best-effort: only idle capacity is removed, busy
	// workers drain naturally.
	excess := cur - target
	for _, h := range p.reg.idleAll() {
		if excess == 0 {
			return
		}
		p.terminate(h)
		excess--
	}
}

func (p *Pool) spawnWorker() {
	h := p.reg.newHandle(time.Now())
	h.w = &worker{
		id:       h.id,
		tasks:    make(chan dispatch, 1),
		events:   p.events,
		execs:    p.execs,
		loopDone: p.loopDone,
	}
	p.liveGoroutines++
	go h.w.run()
	p.emit(EventWorkerSpawned, WorkerEventInfo{WorkerID: h.id})
	p.log.Debug("worker spawned", logx.Int("worker", h.id))
}

// terminate removes a worker from the registry and closes its dispatch
// channel; the goroutine exits and reports evExit.
func (p *Pool) terminate(h *workerHandle) {
	h.status = StatusTerminated
	p.reg.remove(h.id)
	close(h.w.tasks)
}

func (p *Pool) recycle(h *workerHandle) {
	p.emit(EventWorkerRecycled, WorkerEventInfo{WorkerID: h.id, TasksCompleted: h.tasksCompleted})
	p.log.Debug("worker recycled", logx.Int("worker", h.id), logx.Int("tasks_completed", h.tasksCompleted))
	p.terminate(h)
	p.spawnWorker()
}

// ---- shutdown ----

func (p *Pool) beginShutdown(graceful bool, done chan struct{}) {
	if done != nil {
		p.shutdownWaits = append(p.shutdownWaits, done)
	}
	if p.phase != phaseRunning {
		return
	}
	p.phase = phaseDraining
	p.graceful = graceful
	p.log.Info("pool shutting down", logx.Bool("graceful", graceful))

	if !graceful {
		for _, pt := range p.plainPending() {
			delete(p.pending, pt.task.ID)
			pt.timer.Stop()
			if pt.delay != nil {
				pt.delay.Stop()
			}
			if pt.state == stateInflight {
				p.inflight--
				if pt.cancelRun != nil {
					pt.cancelRun()
				}
			}
			if pt.fut.settle(Result{}, ErrPoolShutdown) {
				p.ctrs.failed++
				p.record(pt, "shutdown", ErrPoolShutdown.Error(), 0)
			}
		}
		p.queue.clear()
	}
	p.maybeFinishDrain()
}

// plainPending returns pending entries as a slice so the map can be
// mutated while iterating.
func (p *Pool) plainPending() []*pendingTask {
	out := make([]*pendingTask, 0, len(p.pending))
	for _, pt := range p.pending {
		out = append(out, pt)
	}
	return out
}

// maybeFinishDrain moves a draining pool to termination once nothing is in
// flight. Graceful drain waits only for in-flight work; whatever is still
// queued or delayed is rejected at that point.
func (p *Pool) maybeFinishDrain() {
	if p.phase != phaseDraining || p.inflight > 0 {
		return
	}
	for _, pt := range p.plainPending() {
		p.dropPending(pt, ErrPoolShutdown, "shutdown")
	}
	p.queue.clear()

	p.phase = phaseTerminating
	for _, h := range p.allWorkers() {
		p.terminate(h)
	}
	p.maybeFinishStop()
}

func (p *Pool) allWorkers() []*workerHandle {
	out := make([]*workerHandle, 0, len(p.reg.workers))
	for _, h := range p.reg.workers {
		out = append(out, h)
	}
	return out
}

func (p *Pool) maybeFinishStop() {
	if p.phase != phaseTerminating || p.liveGoroutines > 0 {
		return
	}
	st := p.snapshotStats()
	p.finalStats = &st

	p.emit(EventShutdown, ShutdownEventInfo{Graceful: p.graceful})
	p.log.Info("pool stopped",
		logx.Uint64("completed", p.ctrs.completed),
		logx.Uint64("failed", p.ctrs.failed),
		logx.Duration("uptime", time.Since(p.launchedAt)),
	)

	p.baseCancel()
	p.phase = phaseStopped
	for _, done := range p.shutdownWaits {
		close(done)
	}
	p.shutdownWaits = nil
	close(p.loopDone)
}

func (p *Pool) snapshotStats() Stats {
	total, busy, idle := p.reg.counts()
	st := Stats{
		TotalWorkers:    total,
		BusyWorkers:     busy,
		IdleWorkers:     idle,
		QueueDepth:      p.queue.len(),
		Completed:       p.ctrs.completed,
		Failed:          p.ctrs.failed,
		TimedOut:        p.ctrs.timedOut,
		Cancelled:       p.ctrs.cancelled,
		Throttled:       p.ctrs.throttled,
		ThermalRejected: p.ctrs.thermalRejected,
		Uptime:          time.Since(p.launchedAt),
		ThermalState:    p.gov.state.String(),
		EstimatedTempC:  p.gov.estTemp,
		Workers:         p.reg.infos(),
	}
	if p.ctrs.completed > 0 {
		st.AvgTaskDuration = p.ctrs.totalTaskDur / time.Duration(p.ctrs.completed)
	}
	return st
}

func (p *Pool) record(pt *pendingTask, outcome, errStr string, dur time.Duration) {
	if p.hist == nil {
		return
	}
	rec := history.Record{
		TaskID:   pt.task.ID,
		Kind:     pt.task.Kind,
		Priority: pt.task.Priority,
		WorkerID: pt.workerID,
		QueuedAt: pt.task.QueuedAt,
		Started:  pt.task.StartedAt,
		Duration: dur,
		Outcome:  outcome,
		Error:    errStr,
	}
	if !pt.task.StartedAt.IsZero() {
		rec.QueueDelay = pt.task.StartedAt.Sub(pt.task.QueuedAt)
	}
	p.hist.Record(rec)
}
