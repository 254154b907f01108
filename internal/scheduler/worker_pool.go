package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// DefaultWorkers is the pool size used when none is configured
const DefaultWorkers = 4

// Task is a unit of work run by the pool
type Task func(ctx context.Context)

// WorkerPool runs job executions in parallel, bounded by a semaphore.
// Submit never blocks the caller.
type WorkerPool struct {
	numWorkers int
	sem        *semaphore.Weighted
	logger     *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// State
	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup

	// Statistics (atomic)
	tasksSubmitted atomic.Int64
	tasksCompleted atomic.Int64
	tasksPanicked  atomic.Int64
	tasksDropped   atomic.Int64
	tasksRunning   atomic.Int64
}

// WorkerPoolStats contains worker pool statistics
type WorkerPoolStats struct {
	TasksSubmitted int64
	TasksCompleted int64
	TasksPanicked  int64
	TasksDropped   int64
	TasksRunning   int64
	TasksWaiting   int64
	NumWorkers     int
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(numWorkers int, logger *zap.Logger) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		numWorkers: numWorkers,
		sem:        semaphore.NewWeighted(int64(numWorkers)),
		logger:     logger.With(zap.String("component", "worker-pool")),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Submit queues task. It returns false if the pool is stopped. dropped,
// when not nil, is called instead of task if the pool stops before the
// task got a worker.
func (wp *WorkerPool) Submit(name string, task Task, dropped func()) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return false
	}

	wp.tasksSubmitted.Add(1)
	wp.wg.Add(1)
	go wp.run(name, task, dropped)
	return true
}

func (wp *WorkerPool) run(name string, task Task, dropped func()) {
	defer wp.wg.Done()

	err := wp.sem.Acquire(wp.ctx, 1)
	if err == nil && wp.ctx.Err() != nil {
		// acquired while the pool was being cancelled
		wp.sem.Release(1)
		err = wp.ctx.Err()
	}
	if err != nil {
		wp.tasksDropped.Add(1)
		wp.logger.Warn("task dropped, pool stopping", zap.String("task", name))
		if dropped != nil {
			dropped()
		}
		return
	}
	defer wp.sem.Release(1)

	wp.tasksRunning.Add(1)
	defer func() {
		wp.tasksRunning.Add(-1)
		wp.tasksCompleted.Add(1)
		if r := recover(); r != nil {
			wp.tasksPanicked.Add(1)
			wp.logger.Error("task panicked",
				zap.String("task", name),
				zap.String("panic", fmt.Sprint(r)),
				zap.Stack("stack"))
		}
	}()

	wp.logger.Debug("task started", zap.String("task", name))
	task(wp.ctx)
}

// Stop refuses new tasks and waits for running ones. When ctx ends first,
// the tasks' context is cancelled and Stop waits for them to return.
func (wp *WorkerPool) Stop(ctx context.Context) error {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return nil
	}
	wp.stopped = true
	wp.mu.Unlock()

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		wp.logger.Warn("worker pool stop timed out, cancelling tasks")
		wp.cancel()
		<-done
	}
	wp.cancel()

	stats := wp.GetStats()
	wp.logger.Info("worker pool stopped",
		zap.Int64("tasks_submitted", stats.TasksSubmitted),
		zap.Int64("tasks_completed", stats.TasksCompleted),
		zap.Int64("tasks_panicked", stats.TasksPanicked),
		zap.Int64("tasks_dropped", stats.TasksDropped),
	)
	return err
}

// GetStats returns current worker pool statistics
func (wp *WorkerPool) GetStats() WorkerPoolStats {
	submitted := wp.tasksSubmitted.Load()
	completed := wp.tasksCompleted.Load()
	dropped := wp.tasksDropped.Load()
	running := wp.tasksRunning.Load()
	waiting := submitted - completed - dropped - running
	if waiting < 0 {
		waiting = 0
	}
	return WorkerPoolStats{
		TasksSubmitted: submitted,
		TasksCompleted: completed,
		TasksPanicked:  wp.tasksPanicked.Load(),
		TasksDropped:   dropped,
		TasksRunning:   running,
		TasksWaiting:   waiting,
		NumWorkers:     wp.numWorkers,
	}
}
