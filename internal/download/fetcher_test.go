package download

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-mp3/internal/fetch"
	"github.com/ytget/yt-mp3/internal/model"
)

// fakeFetcher replays a fixed list of progress snapshots. Snapshots that name
// a file create it first, like yt-dlp would. With block set it then waits for
// cancellation.
type fakeFetcher struct {
	steps []model.Progress
	block bool
	err   error
	files []string

	mu         sync.Mutex
	cancel     context.CancelCauseFunc
	terminated int
	progressed chan struct{}
	once       sync.Once
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{progressed: make(chan struct{})}
}

func (f *fakeFetcher) Fetch(ctx context.Context, req fetch.Request) (*fetch.Result, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	f.mu.Lock()
	if f.cancel != nil {
		f.mu.Unlock()
		return nil, fetch.ErrBusy
	}
	f.cancel = cancel
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.cancel = nil
		f.mu.Unlock()
	}()

	for _, step := range f.steps {
		if step.Filename != "" {
			if err := os.WriteFile(step.Filename, []byte("partial"), 0o644); err != nil {
				return nil, err
			}
		}
		if err := req.Progress(step); err != nil {
			return nil, fmt.Errorf("%w: %w", fetch.ErrAborted, err)
		}
		f.once.Do(func() { close(f.progressed) })
	}

	if f.block {
		<-ctx.Done()
		return nil, context.Cause(ctx)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Result{Files: f.files}, nil
}

func (f *fakeFetcher) Terminate() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancel == nil {
		return fetch.ErrAlreadyStopped
	}
	f.terminated++
	f.cancel(fetch.ErrTerminated)
	return nil
}

func (f *fakeFetcher) Terminated() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.terminated
}

// collect drains ch until it closes
func collect(t *testing.T, ch <-chan model.Event) []model.Event {
	t.Helper()

	var events []model.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("event channel not closed, got %d events", len(events))
			return nil
		}
	}
}

// waitFor reads ch until an event satisfies match
func waitFor(t *testing.T, ch <-chan model.Event, match func(model.Event) bool) []model.Event {
	t.Helper()

	var events []model.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			require.True(t, ok, "event channel closed early")
			events = append(events, ev)
			if match(ev) {
				return events
			}
		case <-timeout:
			t.Fatalf("expected event not seen, got %d events", len(events))
			return nil
		}
	}
}

func kinds(events []model.Event) []model.EventKind {
	out := make([]model.EventKind, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Kind)
	}
	return out
}

func messages(events []model.Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Kind == model.EventLog {
			out = append(out, ev.Message)
		}
	}
	return out
}
