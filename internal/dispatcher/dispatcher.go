package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/cexll/gamegen/internal/executor"
	"github.com/cexll/gamegen/internal/taskstore"
)

var (
	// ErrQueueFull is returned when the task queue has no free slot.
	ErrQueueFull = errors.New("task queue is full")
	// ErrQueueClosed is returned after Shutdown.
	ErrQueueClosed = errors.New("task queue is closed")
)

// TaskExecutor runs a build task
type TaskExecutor interface {
	Execute(ctx context.Context, task *taskstore.Task) error
}

// Journal records task progress visible to users.
type Journal interface {
	AddLog(id, level, message string)
}

// Config controls dispatcher behaviour
type Config struct {
	Workers           int
	QueueSize         int
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration
	// TaskTimeout bounds a single attempt; zero leaves it unbounded.
	TaskTimeout time.Duration
	// Journal, when set, receives retry and give-up notes per task.
	Journal Journal
}

// Stats is a point-in-time view of the dispatcher.
type Stats struct {
	Workers  int `json:"workers"`
	Queued   int `json:"queued"`
	Running  int `json:"running"`
	Retrying int `json:"retrying"`
}

// Dispatcher runs tasks on a worker pool and retries retryable failures with backoff
type Dispatcher struct {
	executor TaskExecutor
	cfg      Config

	queue chan *queueItem

	ctx    context.Context
	cancel context.CancelFunc
	stopCh chan struct{}
	wg     sync.WaitGroup

	once sync.Once

	running  atomic.Int64
	retrying atomic.Int64
}

type queueItem struct {
	task    *taskstore.Task
	attempt int
}

// New creates a dispatcher with the provided configuration
func New(executor TaskExecutor, cfg Config) *Dispatcher {
	normalized := normalizeConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		executor: executor,
		cfg:      normalized,
		queue:    make(chan *queueItem, normalized.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		stopCh:   make(chan struct{}),
	}
	d.startWorkers()
	return d
}

func normalizeConfig(cfg Config) Config {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.Workers * 8
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 15 * time.Second
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = 2
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 5 * time.Minute
	}
	return cfg
}

func (d *Dispatcher) startWorkers() {
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
}

// Enqueue queues a new task for execution
func (d *Dispatcher) Enqueue(task *taskstore.Task) error {
	if task == nil {
		return errors.New("dispatcher enqueue: task is nil")
	}

	select {
	case <-d.stopCh:
		return ErrQueueClosed
	default:
	}

	select {
	case d.queue <- &queueItem{task: task, attempt: 1}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.stopCh:
			return
		case item, ok := <-d.queue:
			if !ok {
				return
			}
			d.process(item)
		}
	}
}

func (d *Dispatcher) process(item *queueItem) {
	task := *item.task
	task.Attempt = item.attempt
	logger := zap.L().With(zap.String("task_id", task.ID), zap.Int("attempt", item.attempt))

	ctx := d.ctx
	if d.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.TaskTimeout)
		defer cancel()
	}

	d.running.Add(1)
	err := d.executor.Execute(ctx, &task)
	d.running.Add(-1)
	if err != nil {
		logger.Warn("task attempt failed", zap.Error(err))
		if executor.IsNonRetryable(err) {
			logger.Info("task marked non-retryable; no further attempts")
			return
		}
		d.handleRetry(item, err)
		return
	}

	logger.Info("task attempt succeeded")
}

func (d *Dispatcher) handleRetry(item *queueItem, execErr error) {
	if item.attempt >= d.cfg.MaxAttempts {
		zap.L().Warn("task exceeded max attempts",
			zap.String("task_id", item.task.ID),
			zap.Int("max_attempts", d.cfg.MaxAttempts),
			zap.Error(execErr))
		if d.cfg.MaxAttempts > 1 {
			d.note(item.task.ID, "error", fmt.Sprintf("Giving up after %d attempts", d.cfg.MaxAttempts))
		}
		return
	}

	nextAttempt := item.attempt + 1
	delay := d.backoffDuration(nextAttempt)
	zap.L().Info("scheduling retry",
		zap.String("task_id", item.task.ID),
		zap.Int("attempt", nextAttempt),
		zap.Duration("delay", delay))
	d.note(item.task.ID, "info", fmt.Sprintf("Retrying in %s (attempt %d/%d)", delay, nextAttempt, d.cfg.MaxAttempts))

	d.retrying.Add(1)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.retrying.Add(-1)
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-d.stopCh:
			return
		}

		// Block until a slot frees up; retries are never dropped for a full queue.
		select {
		case d.queue <- &queueItem{task: item.task, attempt: nextAttempt}:
		case <-d.stopCh:
		}
	}()
}

func (d *Dispatcher) note(id, level, message string) {
	if d.cfg.Journal != nil {
		d.cfg.Journal.AddLog(id, level, message)
	}
}

// Stats reports queue depth and in-flight work.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Workers:  d.cfg.Workers,
		Queued:   len(d.queue),
		Running:  int(d.running.Load()),
		Retrying: int(d.retrying.Load()),
	}
}

func (d *Dispatcher) backoffDuration(attempt int) time.Duration {
	backoff := float64(d.cfg.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= d.cfg.BackoffMultiplier
		if backoff >= float64(d.cfg.MaxBackoff) {
			return d.cfg.MaxBackoff
		}
	}
	return time.Duration(backoff)
}

// Shutdown stops accepting tasks, cancels running executions and waits for
// workers to exit or ctx to expire.
func (d *Dispatcher) Shutdown(ctx context.Context) {
	d.once.Do(func() {
		close(d.stopCh)
		d.cancel()
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		d.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return
	case <-done:
		return
	}
}
