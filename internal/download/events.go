package download

import (
	"sync"

	"github.com/ytget/yt-mp3/internal/model"
)

// eventStream is an unbounded FIFO between producers (worker goroutine,
// Cancel callers, cleanup timers) and a single consumer channel. push never
// blocks, so producers can emit while holding their own locks. The pump
// goroutine starts with the first push or close.
type eventStream struct {
	mu      sync.Mutex
	queue   []model.Event
	closed  bool
	wake    chan struct{}
	out     chan model.Event
	started sync.Once
}

func newEventStream() *eventStream {
	return &eventStream{
		wake: make(chan struct{}, 1),
		out:  make(chan model.Event),
	}
}

// push enqueues ev. It returns false once the stream is closed.
func (s *eventStream) push(ev model.Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, ev)
	s.mu.Unlock()

	s.signal()
	return true
}

// close stops accepting events; queued events are still delivered before the
// output channel closes.
func (s *eventStream) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.signal()
}

func (s *eventStream) signal() {
	s.started.Do(func() { go s.pump() })

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *eventStream) pump() {
	defer close(s.out)

	for {
		s.mu.Lock()
		batch := s.queue
		s.queue = nil
		closed := s.closed
		s.mu.Unlock()

		for _, ev := range batch {
			s.out <- ev
		}

		if len(batch) == 0 {
			if closed {
				return
			}
			<-s.wake
		}
	}
}
