package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"scribe/internal/api"
	"scribe/internal/app"
	"scribe/internal/logging"
	"scribe/internal/staging"
	"scribe/internal/workflow"
)

const (
	// DefaultDepthInterval is how often queue counts are published.
	DefaultDepthInterval = 15 * time.Second
	// DefaultShutdownGrace is how long Stop waits for in-flight jobs.
	DefaultShutdownGrace = 30 * time.Second
)

// Options selects the services a daemon runs.
type Options struct {
	// DisableWorker serves the API without processing jobs.
	DisableWorker bool
	// SyncVoices pulls intro samples from blob storage before workers start.
	SyncVoices    bool
	DepthInterval time.Duration
	// ShutdownGrace bounds how long Stop waits for in-flight jobs before
	// canceling them. Canceled jobs are redelivered after their lease.
	ShutdownGrace time.Duration
	// ScratchMaxAge is the age past which leftover transcription work
	// directories are removed at startup.
	ScratchMaxAge time.Duration
}

// Status represents daemon runtime information.
type Status struct {
	Running        bool                   `json:"running"`
	PID            int                    `json:"pid"`
	APIAddress     string                 `json:"api_address,omitempty"`
	LockFilePath   string                 `json:"lock_file_path"`
	QueueDBPath    string                 `json:"queue_db_path"`
	MeetingsDBPath string                 `json:"meetings_db_path"`
	Worker         *workflow.WorkerStatus `json:"worker,omitempty"`
}

// Daemon coordinates the API, worker and monitor and enforces
// single-instance execution.
type Daemon struct {
	container *app.Container
	logger    *slog.Logger
	opts      Options

	worker *workflow.QueueWorker
	api    *api.Server

	lockPath string
	lock     *flock.Flock

	running      atomic.Bool
	cancel       context.CancelFunc
	workerCancel context.CancelFunc
	workerDone   chan struct{}
	wg           sync.WaitGroup
}

// New wires a daemon around an initialized container. Workers require a
// configured extraction model unless DisableWorker is set.
func New(c *app.Container, opts Options) (*Daemon, error) {
	if c == nil || c.Config == nil {
		return nil, errors.New("daemon: container is required")
	}
	if opts.DepthInterval <= 0 {
		opts.DepthInterval = DefaultDepthInterval
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = DefaultShutdownGrace
	}
	if opts.ScratchMaxAge <= 0 {
		opts.ScratchMaxAge = staging.DefaultMaxAge
	}
	d := &Daemon{
		container: c,
		logger:    logging.NewComponentLogger(c.Logger, "daemon"),
		opts:      opts,
		lockPath:  c.Config.LockPath(),
		lock:      flock.New(c.Config.LockPath()),
	}
	if !opts.DisableWorker {
		worker, err := c.NewWorker()
		if err != nil {
			return nil, err
		}
		d.worker = worker
	}

	apiOpts := api.Options{
		Bind:      c.Config.Paths.APIBind,
		Submitter: c.Submitter,
		Uploads:   c.Storage,
		Meetings:  c.Meetings,
		Queue:     c.Queue,
		Blobs:     c.Storage,
		Metrics:   c.Metrics.Handler(),
		Logger:    c.Logger,
	}
	if d.worker != nil {
		apiOpts.WorkerStatus = d.worker.Status
	}
	d.api = api.NewServer(apiOpts)
	return d, nil
}

// Start acquires the daemon lock and launches the services. It returns once
// they are running.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another scribe daemon instance is already running (lock %s)", d.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.api.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start api: %w", err)
	}
	d.cancel = cancel
	d.running.Store(true)

	staging.CleanStale(runCtx, d.container.Config.ScratchDir(), d.opts.ScratchMaxAge, d.logger)

	if d.opts.SyncVoices {
		d.syncVoices(runCtx)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.monitorDepth(runCtx)
	}()
	if d.worker != nil {
		// workerCtx is canceled only by drainWorker. It ends polling; jobs
		// are interrupted by worker.Abort once the grace period runs out.
		workerCtx, workerCancel := context.WithCancel(context.WithoutCancel(runCtx))
		d.workerCancel = workerCancel
		d.workerDone = make(chan struct{})
		go func() {
			defer close(d.workerDone)
			if err := d.worker.Run(workerCtx); err != nil {
				logging.ErrorWithContext(d.logger, "queue worker stopped", "worker_stopped",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check queue database access"),
					logging.String(logging.FieldImpact, "queued meetings will not be processed"),
				)
			}
		}()
	}

	d.logger.Info("scribe daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api_address", d.api.Addr()),
		logging.Bool("worker_enabled", d.worker != nil),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

// Stop lets in-flight jobs finish, stops the services and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.worker != nil {
		d.worker.Stop()
	}
	d.api.Stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.drainWorker()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_unlock_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "remove "+d.lockPath+" if no daemon is running"),
		)
	}
	d.running.Store(false)
	d.logger.Info("scribe daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close stops the daemon. The container stays open; its owner closes it.
func (d *Daemon) Close() error {
	d.Stop()
	return nil
}

// Status reports the current runtime state.
func (d *Daemon) Status() Status {
	cfg := d.container.Config
	status := Status{
		Running:        d.running.Load(),
		PID:            os.Getpid(),
		APIAddress:     d.api.Addr(),
		LockFilePath:   d.lockPath,
		QueueDBPath:    cfg.QueueDBPath(),
		MeetingsDBPath: cfg.MeetingsDBPath(),
	}
	if d.worker != nil {
		ws := d.worker.Status()
		status.Worker = &ws
	}
	return status
}

func (d *Daemon) drainWorker() {
	if d.workerDone == nil {
		return
	}
	timer := time.NewTimer(d.opts.ShutdownGrace)
	defer timer.Stop()
	select {
	case <-d.workerDone:
	case <-timer.C:
		logging.WarnWithContext(d.logger, "in-flight jobs canceled at shutdown", "worker_drain_timeout",
			logging.Duration("grace", d.opts.ShutdownGrace),
			logging.String(logging.FieldErrorHint, "raise the shutdown grace or expect redelivery after the lease"),
		)
		d.worker.Abort()
		d.workerCancel()
		<-d.workerDone
	}
	d.workerCancel()
	d.workerDone = nil
}

func (d *Daemon) syncVoices(ctx context.Context) {
	if d.container.Voices == nil {
		return
	}
	samples, err := d.container.Voices.Sync(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "voice sample sync failed", "voices_sync_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run `scribe voices sync` to retry"),
			logging.String(logging.FieldImpact, "speaker labels fall back to diarization numbers"),
		)
		return
	}
	d.logger.Info("voice samples synced",
		logging.Int("samples", len(samples)),
		logging.String(logging.FieldEventType, "voices_synced"),
	)
}

// monitorDepth publishes queue counts until ctx ends.
func (d *Daemon) monitorDepth(ctx context.Context) {
	ticker := time.NewTicker(d.opts.DepthInterval)
	defer ticker.Stop()
	for {
		d.publishDepth(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (d *Daemon) publishDepth(ctx context.Context) {
	stats, err := d.container.Queue.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			d.logger.Debug("queue stats failed", logging.Error(err))
		}
		return
	}
	d.container.Metrics.SetQueueDepth(stats.Visible, stats.Leased, stats.DeadLettered)
}
