package parallel

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned when work is submitted to a closed pool.
var ErrClosed = errors.New("parallel: pool closed")

// chunk is a contiguous range of indices handed to one worker.
type chunk struct {
	lo, hi int
	fn     func(i int)
	job    *job
}

// job tracks one For call: outstanding chunks and the first panic.
type job struct {
	wg    sync.WaitGroup
	fault atomic.Pointer[string]
}

func (c chunk) run() {
	defer c.job.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			c.job.fault.CompareAndSwap(nil, &msg)
		}
	}()
	for i := c.lo; i < c.hi; i++ {
		c.fn(i)
	}
}

// WorkerPool runs index-space jobs across a fixed set of goroutines.
//
// Each worker owns a queue and steals from its neighbours when the queue is
// empty, so uneven chunks still keep every worker busy.
//
// WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int
	queues  []chan chunk
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	// submit is held shared while For enqueues and exclusively while Close
	// stops the workers, so no chunk lands in a queue nobody drains.
	submit sync.RWMutex
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	depth := max(workers*4, 8)

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan chunk, workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan chunk, depth)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.loop(i)
	}
	return p
}

func (p *WorkerPool) loop(id int) {
	defer p.wg.Done()
	own := p.queues[id]

	for {
		select {
		case c := <-own:
			c.run()
			continue
		default:
		}

		if c, ok := p.steal(id); ok {
			c.run()
			continue
		}

		select {
		case c := <-own:
			c.run()
		case <-p.done:
			for {
				select {
				case c := <-own:
					c.run()
				default:
					return
				}
			}
		}
	}
}

func (p *WorkerPool) steal(id int) (chunk, bool) {
	for off := 1; off < p.workers; off++ {
		select {
		case c := <-p.queues[(id+off)%p.workers]:
			return c, true
		default:
		}
	}
	return chunk{}, false
}

// For calls fn(i) for every i in [0, n) and blocks until all calls return.
// Indices are split into chunks of grain consecutive values; a grain below 1
// picks one chunk per worker. A panic inside fn is recovered and returned as
// an error after the remaining chunks finish. For returns ErrClosed once
// Close has begun.
func (p *WorkerPool) For(n, grain int, fn func(i int)) error {
	if n <= 0 {
		return nil
	}
	p.submit.RLock()
	if !p.running.Load() {
		p.submit.RUnlock()
		return ErrClosed
	}
	if grain < 1 {
		grain = max((n+p.workers-1)/p.workers, 1)
	}

	j := &job{}
	next := 0
	for lo := 0; lo < n; lo += grain {
		c := chunk{lo: lo, hi: min(lo+grain, n), fn: fn, job: j}
		j.wg.Add(1)
		p.queues[next] <- c
		next = (next + 1) % p.workers
	}
	p.submit.RUnlock()
	j.wg.Wait()

	if msg := j.fault.Load(); msg != nil {
		return fmt.Errorf("parallel: worker panic: %s", *msg)
	}
	return nil
}

// Close stops the workers after queued chunks finish. Safe to call more than once.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	p.submit.Lock()
	close(p.done)
	p.submit.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool accepts work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}
