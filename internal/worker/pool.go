package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrPoolClosed is returned when submitting to a pool that is draining
var ErrPoolClosed = errors.New("worker pool is closed")

// Job is one unit of work executed by the pool
type Job struct {
	ID       string
	Name     string
	Run      func(ctx context.Context) error
	Created  time.Time
	Started  time.Time
	Finished time.Time
}

// PoolStats holds pool counters
type PoolStats struct {
	TotalJobs     int64     `json:"total_jobs"`
	CompletedJobs int64     `json:"completed_jobs"`
	FailedJobs    int64     `json:"failed_jobs"`
	ActiveWorkers int32     `json:"active_workers"`
	QueueSize     int       `json:"queue_size"`
	Workers       int       `json:"workers"`
	StartTime     time.Time `json:"start_time"`
}

// Pool runs jobs on a fixed number of workers
type Pool struct {
	workers  []*Worker
	jobQueue chan *Job
	logger   *logrus.Logger

	stats PoolStats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// Worker is one pool goroutine
type Worker struct {
	ID            int
	pool          *Pool
	isActive      int32
	jobsProcessed int64
}

// NewPool creates a pool with workerCount workers (at least one)
func NewPool(workerCount int, logger *logrus.Logger) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	pool := &Pool{
		workers:  make([]*Worker, workerCount),
		jobQueue: make(chan *Job, workerCount*2),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		stats: PoolStats{
			StartTime: time.Now(),
		},
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = &Worker{ID: i, pool: pool}
	}

	return pool
}

// Start launches the workers
func (p *Pool) Start() {
	for _, worker := range p.workers {
		p.wg.Add(1)
		go worker.start()
	}

	p.logger.WithField("workers", len(p.workers)).Debug("Worker pool started")
}

// Submit queues a job, blocking while the queue is full
func (p *Pool) Submit(ctx context.Context, name string, run func(ctx context.Context) error) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	job := &Job{
		ID:      uuid.New().String(),
		Name:    name,
		Run:     run,
		Created: time.Now(),
	}

	select {
	case p.jobQueue <- job:
		atomic.AddInt64(&p.stats.TotalJobs, 1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-p.ctx.Done():
		return ErrPoolClosed
	}
}

// Wait stops accepting jobs and blocks until every queued job has finished
func (p *Pool) Wait() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobQueue)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.logger.WithFields(logrus.Fields{
		"completed": atomic.LoadInt64(&p.stats.CompletedJobs),
		"failed":    atomic.LoadInt64(&p.stats.FailedJobs),
	}).Debug("Worker pool drained")
}

// Stop cancels running jobs, drops queued ones and waits for the workers
func (p *Pool) Stop() {
	p.cancel()
	p.Wait()
}

// GetStats returns pool statistics
func (p *Pool) GetStats() PoolStats {
	return PoolStats{
		TotalJobs:     atomic.LoadInt64(&p.stats.TotalJobs),
		CompletedJobs: atomic.LoadInt64(&p.stats.CompletedJobs),
		FailedJobs:    atomic.LoadInt64(&p.stats.FailedJobs),
		ActiveWorkers: atomic.LoadInt32(&p.stats.ActiveWorkers),
		QueueSize:     len(p.jobQueue),
		Workers:       len(p.workers),
		StartTime:     p.stats.StartTime,
	}
}

// start runs the worker loop
func (w *Worker) start() {
	defer w.pool.wg.Done()

	for {
		select {
		case job, ok := <-w.pool.jobQueue:
			if !ok {
				return
			}
			if w.pool.ctx.Err() != nil {
				atomic.AddInt64(&w.pool.stats.FailedJobs, 1)
				continue
			}
			w.processJob(job)

		case <-w.pool.ctx.Done():
			return
		}
	}
}

// processJob runs one job, converting a panic into a failure
func (w *Worker) processJob(job *Job) {
	atomic.StoreInt32(&w.isActive, 1)
	atomic.AddInt32(&w.pool.stats.ActiveWorkers, 1)
	defer func() {
		atomic.StoreInt32(&w.isActive, 0)
		atomic.AddInt32(&w.pool.stats.ActiveWorkers, -1)
		atomic.AddInt64(&w.jobsProcessed, 1)
	}()

	job.Started = time.Now()
	err := w.run(job)
	job.Finished = time.Now()

	fields := logrus.Fields{
		"worker_id": w.ID,
		"job_id":    job.ID,
		"job":       job.Name,
		"duration":  job.Finished.Sub(job.Started).String(),
	}

	if err != nil {
		atomic.AddInt64(&w.pool.stats.FailedJobs, 1)
		fields["error"] = err.Error()
		w.pool.logger.WithFields(fields).Debug("Job failed")
		return
	}

	atomic.AddInt64(&w.pool.stats.CompletedJobs, 1)
	w.pool.logger.WithFields(fields).Debug("Job completed")
}

func (w *Worker) run(job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Run(w.pool.ctx)
}
