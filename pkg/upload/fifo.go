package upload

import "sync"

// fifoMutex serializes flushes in arrival order. Each acquirer chains a
// fresh completion channel onto the tail and waits for its predecessor's
// channel to close, so waiters wake strictly FIFO. Release is idempotent
// and must always run, or one failed flush would wedge every later one.
type fifoMutex struct {
	mu   sync.Mutex
	tail chan struct{}
}

// acquire blocks until all earlier acquirers have released, then returns
// the release function for this turn.
func (f *fifoMutex) acquire() (release func()) {
	done := make(chan struct{})

	f.mu.Lock()
	prev := f.tail
	f.tail = done
	f.mu.Unlock()

	if prev != nil {
		<-prev
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
		})
	}
}
