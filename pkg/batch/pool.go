package batch

import (
	"runtime"
	"sync"
)

// Pool runs independent units on a fixed number of workers. Each worker
// knows its own index, which callers use to address per-worker state
// without locking.
type Pool struct {
	size int
}

// NewPool creates a pool with size workers; size < 1 means one worker per CPU
func NewPool(size int) *Pool {
	if size < 1 {
		size = runtime.NumCPU()
	}
	return &Pool{size: size}
}

// Size returns the number of workers
func (p *Pool) Size() int {
	return p.size
}

// Run calls fn(worker, i) once for every i in [0, n) and returns when all
// calls have finished. worker is in [0, Size()).
func (p *Pool) Run(n int, fn func(worker, i int)) {
	if n <= 0 {
		return
	}
	workers := min(p.size, n)

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(worker int) {
			defer wg.Done()
			for i := range jobs {
				fn(worker, i)
			}
		}(w)
	}
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
}
