package recorder

import (
	"sync"

	"go.uber.org/zap"
)

// JobRegistry tracks which configuration ids currently own a slot. It backs
// both the recurring-job registry (one job per configuration) and the
// in-flight tick guard (no two ticks of the same configuration overlap).
type JobRegistry struct {
	mu   sync.Mutex
	cond *sync.Cond
	ids  map[string]struct{}
}

func NewJobRegistry() *JobRegistry {
	r := &JobRegistry{
		ids: make(map[string]struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Acquire claims the slot for id. It returns false when the slot is already
// held.
func (r *JobRegistry) Acquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.ids[id]; exists {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

// Release frees the slot for id and wakes any waiter.
func (r *JobRegistry) Release(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ids, id)
	r.cond.Broadcast()
}

// Wait blocks until id holds no slot.
func (r *JobRegistry) Wait(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if _, held := r.ids[id]; !held {
			return
		}
		r.cond.Wait()
	}
}

// Contains reports whether id currently holds a slot.
func (r *JobRegistry) Contains(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.ids[id]
	return exists
}

// Len returns the number of held slots.
func (r *JobRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// workerPool executes tick bodies on a fixed set of goroutines so a slow
// probe for one configuration cannot delay another configuration's ticks.
type workerPool struct {
	jobs     chan tickJob
	logger   *zap.SugaredLogger
	wg       sync.WaitGroup
	stopOnce sync.Once
}

type tickJob struct {
	run func()
	id  string
}

func newWorkerPool(workers int, logger *zap.SugaredLogger) *workerPool {
	if workers < 1 {
		workers = 1
	}
	pool := &workerPool{
		jobs:   make(chan tickJob, workers*4),
		logger: logger,
	}
	pool.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer pool.wg.Done()
			for job := range pool.jobs {
				job.run()
			}
		}()
	}
	return pool
}

// Submit queues one tick body. Returns false if the queue is saturated and
// the tick was dropped.
func (p *workerPool) Submit(job tickJob) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		p.logger.Warnf("tick queue full, dropping tick for configuration %s", job.id)
		return false
	}
}

// Stop drains the queue and waits for in-flight ticks.
func (p *workerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.jobs)
		p.wg.Wait()
	})
}
