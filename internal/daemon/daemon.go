// Package daemon wires the poold process: configuration, logging, the
// scheduler pool, the history journal, cron-triggered submissions and the
// systemd readiness/watchdog protocol.
package daemon

import (
	"context"
	"fmt"
	"sync"
	"time"

	sd "github.com/coreos/go-systemd/v22/daemon"

	"thermopool/internal/config"
	"thermopool/internal/eventbus"
	"thermopool/internal/history"
	"thermopool/internal/observability/debug"
	"thermopool/internal/pool"
	"thermopool/internal/schedule"
	logx "thermopool/pkg/logx"
)

type Daemon struct {
	cfgPath string

	logs *logx.Service
	log  logx.Logger
	bus  eventbus.Bus

	store history.Store
	hist  *history.Async

	pool  *pool.Pool
	sched *schedule.Service
	dbg   *debug.Server

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New loads the config and builds every component. Nothing runs until Start.
func New(cfgPath string) (*Daemon, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: config.BoolOr(cfg.Logging.Console, true),
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "daemon"))

	bus := eventbus.New()

	d := &Daemon{
		cfgPath: cfgPath,
		logs:    logSvc,
		log:     log,
		bus:     bus,
	}

	// History journal (optional).
	busyTimeout, err := config.ParseDurationOrDefault("history.busy_timeout", cfg.History.BusyTimeout, 0)
	if err != nil {
		return nil, err
	}
	store, err := history.Open(history.Config{
		Driver:      cfg.History.Driver,
		Path:        cfg.History.Path,
		BusyTimeout: busyTimeout,
		RingSize:    cfg.History.RingSize,
	}, log.With(logx.String("comp", "history")))
	if err != nil {
		return nil, err
	}
	d.store = store

	poolCfg, err := mapPoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	opts := []pool.Option{
		pool.WithLogger(log.With(logx.String("comp", "pool"))),
		pool.WithBus(bus),
	}
	if store != nil {
		d.hist = history.NewAsync(store, 256, log.With(logx.String("comp", "history")))
		opts = append(opts, pool.WithHistory(d.hist))
		log.Info("history enabled", logx.String("driver", cfg.History.Driver))
	}

	d.pool = pool.New(poolCfg, builtinExecutors(), opts...)

	d.sched = schedule.New(d.pool, log.With(logx.String("comp", "schedule")))
	for i, e := range cfg.Schedule {
		entry, err := mapScheduleEntry(e, poolCfg.TaskTimeout)
		if err != nil {
			return nil, fmt.Errorf("schedule[%d]: %w", i, err)
		}
		if _, err := d.sched.Add(entry); err != nil {
			return nil, fmt.Errorf("schedule[%d]: %w", i, err)
		}
	}

	d.dbg = debug.New(debug.Config{
		Enabled:       cfg.Debug.Enabled,
		Addr:          cfg.Debug.Addr,
		Token:         cfg.Debug.Token,
		AllowInsecure: cfg.Debug.AllowInsecure,
	}, d.pool.Stats, store, log.With(logx.String("comp", "debug")))

	return d, nil
}

func mapPoolConfig(cfg *config.Config) (pool.Config, error) {
	timeout, err := cfg.TaskTimeoutDuration()
	if err != nil {
		return pool.Config{}, err
	}
	interval, err := cfg.RebalanceIntervalDuration()
	if err != nil {
		return pool.Config{}, err
	}
	return pool.Config{
		Workers:            cfg.Pool.Workers,
		MaxTasksPerWorker:  cfg.Pool.MaxTasksPerWorker,
		TaskTimeout:        timeout,
		MaxQueueSize:       cfg.Pool.MaxQueueSize,
		ThermalThreshold:   cfg.Pool.ThermalThresholdC,
		RebalanceInterval:  interval,
		ThermalThrottling:  config.BoolOr(cfg.Pool.ThermalThrottling, true),
		DynamicRebalancing: config.BoolOr(cfg.Pool.DynamicRebalancing, true),
	}, nil
}

func mapScheduleEntry(e config.ScheduleEntry, defTimeout time.Duration) (schedule.Entry, error) {
	prio := pool.DefaultPriority
	if e.Priority != nil {
		prio = *e.Priority
	}
	timeout, err := config.ParseDurationOrDefault("schedule.timeout", e.Timeout, defTimeout)
	if err != nil {
		return schedule.Entry{}, err
	}
	return schedule.Entry{
		Spec:     e.Cron,
		Kind:     e.Kind,
		Payload:  []byte(e.Payload),
		Priority: prio,
		Timeout:  timeout,
	}, nil
}

// Start runs the pool and the background services. It returns immediately;
// cancelling ctx forces shutdown of everything Start spawned.
func (d *Daemon) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.pool.Start(runCtx); err != nil {
		cancel()
		return err
	}
	d.sched.Start()

	if err := d.dbg.Start(); err != nil {
		cancel()
		_ = d.pool.Shutdown(ctx, false)
		return err
	}

	d.wg.Add(1)
	go d.eventLog(runCtx)

	d.wg.Add(1)
	go d.watchConfig(runCtx)

	d.wg.Add(1)
	go d.watchdog(runCtx)

	if sent, err := sd.SdNotify(false, sd.SdNotifyReady); err != nil {
		d.log.Warn("sd_notify failed", logx.Err(err))
	} else if sent {
		d.log.Debug("sd_notify ready sent")
	}
	return nil
}

// Stop drains the pool gracefully, then tears everything down.
func (d *Daemon) Stop(ctx context.Context) error {
	_, _ = sd.SdNotify(false, sd.SdNotifyStopping)

	d.sched.Stop()
	err := d.pool.Shutdown(ctx, true)
	d.dbg.Stop(ctx)

	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()

	if d.hist != nil {
		d.hist.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
	_ = d.logs.Close()
	return err
}

// eventLog forwards bus events to the structured log so operators can follow
// pool behavior without attaching a subscriber of their own.
func (d *Daemon) eventLog(ctx context.Context) {
	defer d.wg.Done()

	events, unsub := d.bus.SubscribePrefix(256, "worker.", "thermal.", "pool.")
	defer unsub()

	log := d.log.With(logx.String("comp", "events"))
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			log.Debug("event", logx.String("type", ev.Type), logx.Any("data", ev.Data))
		}
	}
}

// watchConfig hot-applies the logging section on file changes. Pool sizing
// changes are applied through Scale; everything else needs a restart.
func (d *Daemon) watchConfig(ctx context.Context) {
	defer d.wg.Done()

	log := d.log.With(logx.String("comp", "config"))
	err := config.Watch(ctx, d.cfgPath, log, func(cfg *config.Config) {
		d.logs.Apply(logx.Config{
			Level:   cfg.Logging.Level,
			Console: config.BoolOr(cfg.Logging.Console, true),
			File: logx.FileConfig{
				Enabled: cfg.Logging.File.Enabled,
				Path:    cfg.Logging.File.Path,
			},
		})
		if cfg.Pool.Workers > 0 {
			d.pool.Scale(cfg.Pool.Workers)
		}
	})
	if err != nil && ctx.Err() == nil {
		log.Warn("config watcher stopped", logx.Err(err))
	}
}

// watchdog services the systemd watchdog when WatchdogSec is configured.
func (d *Daemon) watchdog(ctx context.Context) {
	defer d.wg.Done()

	interval, err := sd.SdWatchdogEnabled(false)
	if err != nil {
		d.log.Warn("watchdog detection failed", logx.Err(err))
		return
	}
	if interval == 0 {
		return
	}

	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = sd.SdNotify(false, sd.SdNotifyWatchdog)
		}
	}
}

// Pool exposes the running pool for embedding callers.
func (d *Daemon) Pool() *pool.Pool { return d.pool }
