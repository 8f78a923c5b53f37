package core

/*
rxurls — URL discovery and aggregation for target domains
Copyright (C) 2025  Pepijn van der Stap <rxtls@vanderstap.info>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/x-stp/rxurls/internal/logging"
	"github.com/x-stp/rxurls/internal/metrics"
)

// WorkItem is one unit of work (a full domain pipeline) routed to a worker.
// Items are pooled; callers never hold on to them.
type WorkItem struct {
	Key       string                          // Sharding key; equal keys land on the same worker.
	Ctx       context.Context                 // Context the callback runs under.
	Attempt   int                             // Submission attempts before the item was queued.
	Callback  func(ctx context.Context) error // The work.
	Done      func(err error)                 // Called exactly once with the outcome.
	CreatedAt time.Time
}

// Scheduler runs WorkItems on a fixed pool of workers, each with its own
// queue. Items are routed by hashing their key, so work for one key is
// serialized on one worker.
type Scheduler struct {
	numWorkers   int
	workers      []*worker
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.RWMutex // Guards queue sends against Shutdown closing them.
	shutdown     atomic.Bool
	workItemPool sync.Pool
	activeWork   sync.WaitGroup // Submitted but not yet completed items.
	workersDone  sync.WaitGroup
}

type worker struct {
	id        int
	queue     chan *WorkItem
	scheduler *Scheduler
	processed atomic.Int64
}

// NewScheduler starts numWorkers workers with queues of queueCapacity items.
// numWorkers is clamped to [1, MaxWorkers].
func NewScheduler(parentCtx context.Context, numWorkers, queueCapacity int) *Scheduler {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if numWorkers > MaxWorkers {
		numWorkers = MaxWorkers
	}
	if queueCapacity <= 0 {
		queueCapacity = 1
	}

	sctx, cancel := context.WithCancel(parentCtx)
	s := &Scheduler{
		numWorkers: numWorkers,
		workers:    make([]*worker, numWorkers),
		ctx:        sctx,
		cancel:     cancel,
		workItemPool: sync.Pool{
			New: func() interface{} {
				return &WorkItem{}
			},
		},
	}

	for i := 0; i < numWorkers; i++ {
		w := &worker{
			id:        i,
			queue:     make(chan *WorkItem, queueCapacity),
			scheduler: s,
		}
		s.workers[i] = w
		s.workersDone.Add(1)
		go w.run()
	}

	logging.Logger.Debugf("Scheduler initialized with %d workers", numWorkers)
	return s
}

// NumWorkers returns the size of the pool.
func (s *Scheduler) NumWorkers() int { return s.numWorkers }

func (w *worker) run() {
	defer w.scheduler.workersDone.Done()
	for item := range w.queue {
		w.process(item)
		metrics.GetMetrics().UpdateQueueSize(w.id, len(w.queue))
	}
}

func (w *worker) process(item *WorkItem) {
	s := w.scheduler
	m := metrics.GetMetrics()

	var err error
	if cause := firstErr(s.ctx.Err(), item.Ctx.Err()); cause != nil {
		// Canceled before it started: report instead of running.
		err = fmt.Errorf("%w: %v", ErrWorkerShutdown, cause)
	} else {
		m.SetWorkerBusy(w.id, true)
		err = w.call(item)
		m.SetWorkerBusy(w.id, false)
		w.processed.Add(1)
		if metrics.IsMetricsEnabled() {
			m.WorkerProcessed.WithLabelValues(strconv.Itoa(w.id)).Inc()
		}
	}

	if item.Done != nil {
		item.Done(err)
	}
	s.activeWork.Done()

	item.Key = ""
	item.Ctx = nil
	item.Callback = nil
	item.Done = nil
	item.Attempt = 0
	s.workItemPool.Put(item)
}

// call runs the callback, converting a panic into a *PanicError.
func (w *worker) call(item *WorkItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logging.Logger.WithField("worker", w.id).Errorf("Panic recovered processing %s: %v", item.Key, r)
			if metrics.IsMetricsEnabled() {
				metrics.GetMetrics().WorkerPanics.WithLabelValues(strconv.Itoa(w.id)).Inc()
			}
			err = &PanicError{Value: r}
		}
	}()
	return item.Callback(item.Ctx)
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// Submit routes work to the worker owning key without blocking. It returns
// ErrQueueFull when that worker's queue is at capacity and ErrWorkerShutdown
// after Shutdown. done, if non-nil, is called exactly once when the item
// finishes, including when it is dropped because ctx was canceled.
func (s *Scheduler) Submit(ctx context.Context, key string, callback func(ctx context.Context) error, done func(err error)) error {
	return s.submit(ctx, key, callback, done, 0)
}

func (s *Scheduler) submit(ctx context.Context, key string, callback func(ctx context.Context) error, done func(err error), attempt int) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.shutdown.Load() {
		return ErrWorkerShutdown
	}

	target := s.workers[int(xxh3.HashString(key)%uint64(s.numWorkers))]

	item := s.workItemPool.Get().(*WorkItem)
	item.Key = key
	item.Ctx = ctx
	item.Attempt = attempt
	item.Callback = callback
	item.Done = done
	item.CreatedAt = time.Now()
	s.activeWork.Add(1)

	select {
	case target.queue <- item:
		metrics.GetMetrics().UpdateQueueSize(target.id, len(target.queue))
		return nil
	default:
		s.activeWork.Done()
		item.Callback = nil
		item.Done = nil
		item.Ctx = nil
		s.workItemPool.Put(item)
		return fmt.Errorf("worker %d for %s: %w", target.id, key, ErrQueueFull)
	}
}

// SubmitWait is Submit with backpressure handling: a full queue is retried
// every SubmitRetryDelay, up to MaxSubmitRetries times or until ctx ends.
func (s *Scheduler) SubmitWait(ctx context.Context, key string, callback func(ctx context.Context) error, done func(err error)) error {
	for attempt := 0; ; attempt++ {
		err := s.submit(ctx, key, callback, done, attempt)
		if err == nil || !IsRetryable(err) || attempt >= MaxSubmitRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(SubmitRetryDelay):
		}
	}
}

// Wait blocks until every submitted item has completed.
func (s *Scheduler) Wait() {
	s.activeWork.Wait()
}

// Shutdown stops accepting work, lets the workers drain their queues and
// waits for them to exit. Queued items whose context is already canceled are
// reported to their done callback with ErrWorkerShutdown. Safe to call twice.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	if !s.shutdown.CompareAndSwap(false, true) {
		s.mu.Unlock()
		s.workersDone.Wait()
		return
	}
	for _, w := range s.workers {
		close(w.queue)
	}
	s.mu.Unlock()

	s.workersDone.Wait()
	s.cancel()
	logging.Logger.Debug("Scheduler shut down")
}

// Stop cancels work that has not started yet and shuts the pool down.
func (s *Scheduler) Stop() {
	s.cancel()
	s.Shutdown()
}
