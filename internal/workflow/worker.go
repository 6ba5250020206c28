package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"scribe/internal/config"
	"scribe/internal/jobs"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/telemetry"
)

// WorkerOptions configures a QueueWorker. Zero durations and counts fall back
// to the queue defaults.
type WorkerOptions struct {
	Queue              Queue
	Handler            Handler
	Metrics            *telemetry.Metrics
	Logger             *slog.Logger
	MaxBatch           int
	Workers            int
	Visibility         time.Duration
	PollInterval       time.Duration
	ErrorRetryInterval time.Duration
	// Wait replaces the idle and retry sleeps; tests use it to observe them.
	Wait func(ctx context.Context, d time.Duration)
}

// WorkerOptionsFromConfig copies the queue section into WorkerOptions.
func WorkerOptionsFromConfig(cfg *config.Config) WorkerOptions {
	return WorkerOptions{
		MaxBatch:           cfg.Queue.MaxBatch,
		Workers:            cfg.Queue.Workers,
		Visibility:         cfg.VisibilityTimeout(),
		PollInterval:       cfg.PollInterval(),
		ErrorRetryInterval: cfg.ErrorRetryInterval(),
	}
}

// WorkerStatus is a point-in-time snapshot of a worker.
type WorkerStatus struct {
	Running       bool      `json:"running"`
	Workers       int       `json:"workers"`
	Busy          int       `json:"busy"`
	Processed     int64     `json:"processed"`
	Failed        int64     `json:"failed"`
	Poisoned      int64     `json:"poisoned"`
	LastError     string    `json:"last_error,omitempty"`
	LastMeetingID string    `json:"last_meeting_id,omitempty"`
	LastPollAt    time.Time `json:"last_poll_at"`
}

// QueueWorker leases queue messages and runs each decoded job on a worker slot.
type QueueWorker struct {
	queue        Queue
	handler      Handler
	metrics      *telemetry.Metrics
	logger       *slog.Logger
	maxBatch     int
	workers      int
	visibility   time.Duration
	pollInterval time.Duration
	retryAfter   time.Duration
	wait         func(context.Context, time.Duration)

	stopped atomic.Bool
	running atomic.Bool
	busy    atomic.Int32

	mu        sync.Mutex
	abortJobs context.CancelFunc
	processed int64
	failed    int64
	poisoned  int64
	lastErr   string
	lastJob   string
	lastPoll  time.Time
}

// NewQueueWorker validates opts and builds a worker.
func NewQueueWorker(opts WorkerOptions) (*QueueWorker, error) {
	if opts.Queue == nil || opts.Handler == nil {
		return nil, services.Wrap(services.ErrConfiguration, "worker", "init", "queue and handler are required", nil)
	}
	w := &QueueWorker{
		queue:        opts.Queue,
		handler:      opts.Handler,
		metrics:      opts.Metrics,
		logger:       logging.NewComponentLogger(opts.Logger, "worker"),
		maxBatch:     opts.MaxBatch,
		workers:      opts.Workers,
		visibility:   opts.Visibility,
		pollInterval: opts.PollInterval,
		retryAfter:   opts.ErrorRetryInterval,
		wait:         opts.Wait,
	}
	if w.maxBatch <= 0 {
		w.maxBatch = 16
	}
	if w.workers <= 0 {
		w.workers = 1
	}
	if w.visibility <= 0 {
		w.visibility = 300 * time.Second
	}
	if w.pollInterval <= 0 {
		w.pollInterval = 2 * time.Second
	}
	if w.retryAfter <= 0 {
		w.retryAfter = 10 * time.Second
	}
	if w.wait == nil {
		w.wait = sleepContext
	}
	return w, nil
}

// Run polls until ctx is done or Stop is called, then waits for in-flight
// jobs. Each slot runs one job at a time; the polling loop never runs a job
// itself and only leases as many messages as there are idle slots.
//
// Jobs do not inherit ctx's cancellation: canceling ctx only ends polling.
// Abort is the one way to interrupt a running job.
func (w *QueueWorker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return errors.New("queue worker already running")
	}
	defer w.running.Store(false)

	jobCtx, abort := context.WithCancel(context.WithoutCancel(ctx))
	w.record(func() { w.abortJobs = abort })
	defer func() {
		w.record(func() { w.abortJobs = nil })
		abort()
	}()

	w.logger.Info("queue worker started",
		logging.Int("workers", w.workers),
		logging.Int("max_batch", w.maxBatch),
		logging.Duration("visibility_timeout", w.visibility),
		logging.Duration("poll_interval", w.pollInterval),
		logging.String(logging.FieldEventType, "worker_started"),
	)

	idle := make(chan int, w.workers)
	for slot := 1; slot <= w.workers; slot++ {
		idle <- slot
	}
	var group errgroup.Group
	defer func() {
		_ = group.Wait()
		w.logger.Info("queue worker stopped", logging.String(logging.FieldEventType, "worker_stopped"))
	}()

	for !w.stopped.Load() && ctx.Err() == nil {
		slots := w.claimSlots(ctx, idle)
		if len(slots) == 0 {
			return nil
		}
		if w.stopped.Load() {
			releaseSlots(idle, slots)
			return nil
		}

		messages, err := w.queue.Receive(ctx, len(slots), w.visibility)
		w.markPoll()
		if err != nil {
			releaseSlots(idle, slots)
			if ctx.Err() != nil {
				return nil
			}
			w.handleReceiveError(ctx, err)
			continue
		}
		releaseSlots(idle, slots[len(messages):])
		if len(messages) == 0 {
			w.wait(ctx, w.pollInterval)
			continue
		}

		for i, msg := range messages {
			slot := slots[i]
			w.busy.Add(1)
			group.Go(func() error {
				defer func() {
					w.busy.Add(-1)
					idle <- slot
				}()
				w.process(jobCtx, slot, msg)
				return nil
			})
		}
	}
	return nil
}

// Stop asks Run to return after the current poll. Jobs already handed to a
// slot run to completion.
func (w *QueueWorker) Stop() {
	w.stopped.Store(true)
}

// Abort stops polling and cancels jobs that are still running. Their messages
// stay leased and come back after the visibility timeout.
func (w *QueueWorker) Abort() {
	w.Stop()
	w.mu.Lock()
	abort := w.abortJobs
	w.mu.Unlock()
	if abort != nil {
		abort()
	}
}

// Status returns the latest worker counters.
func (w *QueueWorker) Status() WorkerStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WorkerStatus{
		Running:       w.running.Load(),
		Workers:       w.workers,
		Busy:          int(w.busy.Load()),
		Processed:     w.processed,
		Failed:        w.failed,
		Poisoned:      w.poisoned,
		LastError:     w.lastErr,
		LastMeetingID: w.lastJob,
		LastPollAt:    w.lastPoll,
	}
}

// claimSlots blocks for one idle slot, then takes any others that are idle,
// up to the batch size.
func (w *QueueWorker) claimSlots(ctx context.Context, idle chan int) []int {
	var slots []int
	select {
	case slot := <-idle:
		slots = append(slots, slot)
	case <-ctx.Done():
		return nil
	}
	for len(slots) < w.maxBatch {
		select {
		case slot := <-idle:
			slots = append(slots, slot)
			continue
		default:
		}
		break
	}
	return slots
}

func releaseSlots(idle chan int, slots []int) {
	for _, slot := range slots {
		idle <- slot
	}
}

func (w *QueueWorker) process(ctx context.Context, slot int, msg queue.Message) {
	ctx = services.WithWorkerSlot(services.WithMessageID(ctx, msg.ID), slot)
	logger := logging.WithContext(ctx, w.logger)

	job, err := jobs.Unmarshal(msg.Body)
	if err != nil {
		logging.WarnWithContext(logger, "deleting undecodable queue message", "poison_message",
			logging.Error(err),
			logging.Int("dequeue_count", msg.DequeueCount),
			logging.String(logging.FieldImpact, "message dropped without processing"),
			logging.String(logging.FieldErrorHint, "inspect the producer that enqueued this payload"),
		)
		w.metrics.ObservePoison()
		w.record(func() { w.poisoned++ })
		w.delete(ctx, logger, msg)
		return
	}

	ctx = services.WithMeetingID(ctx, job.MeetingID)
	logger = logging.WithContext(ctx, w.logger)
	logger.Debug("job received",
		logging.Int("dequeue_count", msg.DequeueCount),
		logging.String(logging.FieldEventType, "job_received"),
	)

	if err := w.handler(ctx, job); err != nil {
		logging.ErrorWithContext(logger, "job failed; message left for redelivery", "job_failed",
			logging.Error(err),
			logging.String("error_class", services.Classify(err)),
			logging.Int("dequeue_count", msg.DequeueCount),
			logging.String(logging.FieldErrorHint, "the message is retried after the visibility timeout"),
		)
		w.record(func() {
			w.failed++
			w.lastErr = err.Error()
			w.lastJob = job.MeetingID
		})
		return
	}

	w.record(func() {
		w.processed++
		w.lastJob = job.MeetingID
	})
	w.delete(ctx, logger, msg)
}

func (w *QueueWorker) delete(ctx context.Context, logger *slog.Logger, msg queue.Message) {
	err := w.queue.Delete(ctx, msg.ID, msg.Receipt)
	switch {
	case err == nil:
	case errors.Is(err, queue.ErrLeaseLost):
		logging.WarnWithContext(logger, "lease expired before delete; message will be redelivered", "lease_lost",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the job may run again"),
			logging.String(logging.FieldErrorHint, "raise queue.visibility_timeout above the longest job"),
		)
	case errors.Is(err, queue.ErrMessageNotFound):
		logger.Debug("message already deleted", logging.Error(err))
	default:
		logging.ErrorWithContext(logger, "failed to delete queue message", "queue_delete_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
	}
}

func (w *QueueWorker) handleReceiveError(ctx context.Context, err error) {
	w.record(func() { w.lastErr = err.Error() })
	logging.ErrorWithContext(w.logger, "failed to receive queue messages", "queue_fetch_failed",
		logging.Error(err),
		logging.Duration("retry_in", w.retryAfter),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	w.wait(ctx, w.retryAfter)
}

func (w *QueueWorker) markPoll() {
	w.record(func() { w.lastPoll = time.Now() })
}

func (w *QueueWorker) record(fn func()) {
	w.mu.Lock()
	fn()
	w.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
