package keyscript

import (
	"sync"

	"go.starlark.net/starlark"
)

// maxSteps bounds a single key() evaluation.
const maxSteps = 1_000_000

// threadPool recycles Starlark threads between key evaluations.
type threadPool struct {
	mu      sync.Mutex
	threads []*starlark.Thread
	maxSize int
}

func newThreadPool(maxSize int) *threadPool {
	if maxSize <= 0 {
		maxSize = 16
	}
	return &threadPool{
		threads: make([]*starlark.Thread, 0, maxSize),
		maxSize: maxSize,
	}
}

func (p *threadPool) get(name string) *starlark.Thread {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.threads); n > 0 {
		thread := p.threads[n-1]
		p.threads = p.threads[:n-1]
		thread.Name = name
		return thread
	}

	thread := &starlark.Thread{
		Name:  name,
		Print: func(_ *starlark.Thread, _ string) {},
	}
	thread.SetMaxExecutionSteps(maxSteps)
	return thread
}

func (p *threadPool) put(thread *starlark.Thread) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Step counts accumulate over a thread's lifetime; retire threads
	// before the limit starts cancelling otherwise well-behaved calls.
	if len(p.threads) < p.maxSize && thread.ExecutionSteps() < maxSteps/2 {
		thread.Name = ""
		p.threads = append(p.threads, thread)
	}
}
