package jobs

import (
	"sync"
	"time"

	"github.com/gitfolio/gitfolio/pkg/observability"
	"github.com/gitfolio/gitfolio/pkg/observability/metrics"
)

// transientIdle is how long an over-core worker waits for more work before
// exiting.
const transientIdle = 30 * time.Second

// Pool executes tasks on a bounded set of goroutines backed by a bounded
// queue. coreSize workers run for the pool's lifetime; when the queue is
// full, transient workers are started up to maxSize; when the pool and the
// queue are both full, Submit runs the task on the caller's goroutine. Tasks
// are never dropped.
type Pool struct {
	queue    chan func()
	coreSize int
	maxSize  int

	mu      sync.Mutex
	workers int

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPool starts a pool with coreSize resident workers, at most maxSize
// total workers, and a queue of queueCapacity tasks.
func NewPool(coreSize, maxSize, queueCapacity int) *Pool {
	p := &Pool{
		queue:    make(chan func(), queueCapacity),
		coreSize: coreSize,
		maxSize:  maxSize,
		stopCh:   make(chan struct{}),
		workers:  coreSize,
	}
	for i := 0; i < coreSize; i++ {
		p.wg.Add(1)
		go p.coreWorker()
	}
	return p
}

// Submit schedules task for execution. It only blocks the caller when the
// saturation policy kicks in, in which case the task runs inline before
// Submit returns.
func (p *Pool) Submit(task func()) {
	select {
	case p.queue <- task:
		metrics.PoolQueueDepth.Inc()
		return
	default:
	}

	// Queue full: try to grow past coreSize.
	p.mu.Lock()
	if p.workers < p.maxSize {
		p.workers++
		p.mu.Unlock()
		p.wg.Add(1)
		go p.transientWorker(task)
		return
	}
	p.mu.Unlock()

	// Pool and queue both full: caller-runs.
	metrics.PoolCallerRuns.Inc()
	observability.Warnf("worker pool saturated, running task on submitter goroutine")
	p.run(task)
}

// Stop prevents new work from being picked up and waits for in-flight tasks
// to finish. Queued tasks that no worker has claimed yet are abandoned.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Pool) coreWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.stopCh:
			return
		case task := <-p.queue:
			metrics.PoolQueueDepth.Dec()
			p.run(task)
		}
	}
}

// transientWorker runs its seed task, then keeps draining the queue until it
// sits idle for transientIdle.
func (p *Pool) transientWorker(seed func()) {
	defer p.wg.Done()
	defer func() {
		p.mu.Lock()
		p.workers--
		p.mu.Unlock()
	}()

	p.run(seed)
	idle := time.NewTimer(transientIdle)
	defer idle.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case task := <-p.queue:
			metrics.PoolQueueDepth.Dec()
			p.run(task)
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(transientIdle)
		case <-idle.C:
			return
		}
	}
}

// run shields the pool from panicking tasks.
func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			observability.Errorf("worker pool task panicked: %v", r)
		}
	}()
	task()
}
