package worker

import (
	"log/slog"
	"sync"

	"github.com/baharkarakas/qrcharge-backend/internal/metrics"
)

type job struct {
	name string
	fn   func()
}

// Pool runs fire-and-forget jobs on a fixed number of goroutines. A job that
// panics is logged and does not take its worker down.
type Pool struct {
	wg     sync.WaitGroup
	jobs   chan job
	log    *slog.Logger
	mu     sync.RWMutex
	closed bool
}

func NewPool(n int, log *slog.Logger) *Pool {
	if n <= 0 {
		n = 1
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Pool{jobs: make(chan job, 1024), log: log}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				metrics.WorkerQueueDepth.Dec()
				p.run(j)
			}
		}()
	}
	return p
}

func (p *Pool) run(j job) {
	defer func() {
		if rec := recover(); rec != nil {
			p.log.Error("worker job panicked", "job", j.name, "err", rec)
		}
	}()
	j.fn()
}

// Submit queues fn. It reports false when the pool is stopped.
func (p *Pool) Submit(name string, fn func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.log.Warn("worker pool stopped, job dropped", "job", name)
		return false
	}
	metrics.WorkerQueueDepth.Inc()
	p.jobs <- job{name: name, fn: fn}
	return true
}

// Stop drains queued jobs and waits for workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
