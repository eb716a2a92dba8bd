// Package worker runs blocking jobs on a bounded, elastic pool of goroutines,
// taking turns between keys so one busy client cannot starve the rest.
package worker

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"kisanmitra/internal/logger"
	"kisanmitra/internal/metrics"
)

// DispatcherConfig sizes the pool and its queue.
type DispatcherConfig struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
}

type keyQueue struct {
	jobs     []Job
	enqueued bool
}

type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Job // entry point for outer jobs
	capacity int64
	pending  atomic.Int64
	log      *logger.Logger

	mu        sync.Mutex
	queues    map[string]*keyQueue // job queue for each key
	ready     *list.List           // round-robin order of keys with queued jobs
	positions map[string]*list.Element

	quit     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

func NewDispatcher(cfg DispatcherConfig, log *logger.Logger) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	d := &Dispatcher{
		pool:      newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.WorkerIdleTimeout),
		jobQueue:  make(chan Job, cfg.QueueSize),
		capacity:  int64(cfg.QueueSize),
		log:       logger.OrNop(log).Named("dispatcher"),
		queues:    make(map[string]*keyQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}

	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Do queues fn under key and waits until it has run. It fails fast with
// ErrDispatcherBusy when the queue is full, and returns ctx.Err() if ctx ends
// first; fn is then skipped if it had not started yet.
func (d *Dispatcher) Do(ctx context.Context, key string, fn func(ctx context.Context)) error {
	done := make(chan error, 1)
	if err := d.Submit(Job{Key: key, Ctx: ctx, Run: fn, done: done}); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues job without waiting for it.
func (d *Dispatcher) Submit(job Job) error {
	select {
	case <-d.quit:
		return ErrDispatcherStopped
	default:
	}
	if job.Ctx == nil {
		job.Ctx = context.Background()
	}
	if d.pending.Add(1) > d.capacity {
		d.pending.Add(-1)
		metrics.WorkerRejections.Inc()
		d.log.Warn("queue full, rejecting job", zap.String("key", job.Key))
		return ErrDispatcherBusy
	}
	// pending never exceeds the channel capacity, so this send does not block.
	d.jobQueue <- job
	return nil
}

// Pending reports jobs accepted but not yet handed to a worker.
func (d *Dispatcher) Pending() int {
	return int(d.pending.Load())
}

// Workers reports the current pool size.
func (d *Dispatcher) Workers() int {
	return d.pool.size()
}

// Stop halts dispatching. Running jobs finish; queued jobs fail with ErrDispatcherStopped.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		close(d.quit)
		d.pool.close()
		<-d.stopped
		d.drain()
	})
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for {
		d.drainIncoming()
		job, ok := d.next()
		if !ok {
			select {
			case job := <-d.jobQueue:
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}
		if !d.dispatch(job) {
			job.finish(ErrDispatcherStopped)
			return
		}
	}
}

// drainIncoming moves everything waiting on the channel into the per-key queues.
func (d *Dispatcher) drainIncoming() {
	for {
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		default:
			return
		}
	}
}

// dispatch blocks until a worker takes job. The job counts as pending until then.
func (d *Dispatcher) dispatch(job Job) bool {
	defer d.pending.Add(-1)
	workerChan, workerID := d.pool.acquire()
	if workerChan == nil {
		return false
	}
	d.log.Debug("assign job", zap.String("key", job.Key), zap.Int("worker", workerID))
	select {
	case workerChan <- job:
		return true
	case <-d.quit:
		return false
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.Key]
	if q == nil {
		q = &keyQueue{}
		d.queues[job.Key] = q
	}
	q.jobs = append(q.jobs, job)
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[job.Key] = d.ready.PushBack(job.Key)
}

// next pops one job from the key at the front of the round-robin and moves
// that key to the back.
func (d *Dispatcher) next() (Job, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	elem := d.ready.Front()
	if elem == nil {
		return Job{}, false
	}
	key := elem.Value.(string)
	q := d.queues[key]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, key)
		delete(d.queues, key)
	} else {
		d.ready.MoveToBack(elem)
	}
	return job, true
}

func (d *Dispatcher) drain() {
	d.drainIncoming()
	for {
		job, ok := d.next()
		if !ok {
			return
		}
		d.pending.Add(-1)
		job.finish(ErrDispatcherStopped)
	}
}
