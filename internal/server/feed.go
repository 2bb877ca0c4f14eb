package server

import "sync"

// runFeed fans out "run history changed" signals to /runs/updates streams.
// A signal carries no payload; subscribers reload the latest runs from the
// store. Signals that arrive while one is still pending are merged.
type runFeed struct {
	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func newRunFeed() *runFeed {
	return &runFeed{subs: make(map[chan struct{}]struct{})}
}

// subscribe registers a stream. The returned cancel func must be called once
// the stream ends; it is safe to call more than once.
func (f *runFeed) subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, ch)
			f.mu.Unlock()
		})
	}
}

// runChanged signals every stream without blocking the sorting path.
func (f *runFeed) runChanged() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (f *runFeed) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
