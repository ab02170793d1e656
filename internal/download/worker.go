package download

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ytget/yt-mp3/internal/fetch"
	"github.com/ytget/yt-mp3/internal/model"
	"github.com/ytget/yt-mp3/internal/platform"
)

var (
	ErrAlreadyStarted = errors.New("worker already started")
	ErrDirNotWritable = errors.New("destination directory is not writable")

	// ErrCanceled is returned from the progress callback once Cancel was called
	ErrCanceled = errors.New("download was canceled, preparing to clean up files")
)

// Log lines delivered to the caller
const (
	msgStarting       = "Starting download for: %s"
	msgFinished       = "Download finished successfully."
	msgError          = "Error: %s"
	msgCancelError    = "Error during cancellation: %s"
	msgCanceled       = "Download was canceled."
	msgCleanupFailed  = "Failed to delete partial files: %s"
	msgDeletedPartial = "Deleted partial file: %s"
	msgCleanupGaveUp  = "Partial files left behind: %s"
)

const templatePlaceholder = "%("

// Worker runs exactly one DownloadJob to completion or cancellation. Events
// must be drained by the caller; the channel closes after the terminal event.
type Worker struct {
	job     model.DownloadJob
	fetcher fetch.Fetcher
	cleaner *Cleaner
	reqOpts []fetch.RequestOption
	logger  zerolog.Logger

	// running is read by the progress callback without taking mu
	running atomic.Bool

	mu         sync.Mutex
	state      model.WorkerState
	req        fetch.Request
	cancelCtx  context.CancelFunc
	outputPath string // transcoded file, once known
	rawPath    string // file the fetch service is writing

	events *eventStream
	done   chan struct{}
}

// WorkerOption configures a Worker
type WorkerOption func(*Worker)

// WithCleaner sets the cleaner used for eager cleanup
func WithCleaner(c *Cleaner) WorkerOption {
	return func(w *Worker) {
		if c != nil {
			w.cleaner = c
		}
	}
}

// WithRequestOptions customizes the request handed to the fetcher
func WithRequestOptions(opts ...fetch.RequestOption) WorkerOption {
	return func(w *Worker) {
		w.reqOpts = append(w.reqOpts, opts...)
	}
}

// WithWorkerLogger sets the diagnostic logger
func WithWorkerLogger(logger zerolog.Logger) WorkerOption {
	return func(w *Worker) {
		w.logger = logger
	}
}

// NewWorker creates an idle worker for job
func NewWorker(job model.DownloadJob, fetcher fetch.Fetcher, opts ...WorkerOption) *Worker {
	w := &Worker{
		job:     job,
		fetcher: fetcher,
		state:   model.WorkerStateIdle,
		logger:  zerolog.Nop(),
		events:  newEventStream(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.cleaner == nil {
		w.cleaner = NewCleaner(platform.NewProcessScanner(), WithCleanerLogger(w.logger))
	}
	w.logger = w.logger.With().Str("job_id", job.ID).Logger()
	return w
}

// Start creates a worker for job and starts it
func Start(job model.DownloadJob, fetcher fetch.Fetcher, opts ...WorkerOption) (*Worker, error) {
	w := NewWorker(job, fetcher, opts...)
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}

// Start validates the job and launches the fetch on its own goroutine. An
// invalid job is rejected before any event is emitted; the worker is then
// unusable.
func (w *Worker) Start() error {
	if err := w.validate(); err != nil {
		w.mu.Lock()
		if w.state == model.WorkerStateIdle {
			w.events.close()
		}
		w.mu.Unlock()
		return err
	}

	w.mu.Lock()
	if !w.transition(model.WorkerStateRunning) {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancelCtx = cancel
	w.req = fetch.NewRequest(w.job, w.progressHook, w.reqOpts...)
	w.running.Store(true)
	w.events.push(model.NewLogEvent(w.job.ID, fmt.Sprintf(msgStarting, w.job.URL)))
	w.mu.Unlock()

	w.logger.Info().Str("url", w.job.URL).Str("bitrate", w.job.Bitrate.String()).Msg("download started")

	go w.run(ctx)
	return nil
}

// Cancel stops the fetch, removes partial artifacts and emits the canceled
// event. It is a no-op unless the worker is running.
func (w *Worker) Cancel() {
	w.mu.Lock()
	if !w.transition(model.WorkerStateCanceling) {
		w.mu.Unlock()
		return
	}
	w.running.Store(false)
	cancel := w.cancelCtx
	paths := w.knownPaths()
	w.mu.Unlock()

	w.logger.Info().Msg("cancel requested")
	cancel()

	if err := w.fetcher.Terminate(); err != nil {
		if errors.Is(err, fetch.ErrAlreadyStopped) {
			w.logger.Debug().Err(err).Msg("fetcher already stopped")
		} else {
			w.logger.Warn().Err(err).Msg("terminate failed")
			w.events.push(model.NewLogEvent(w.job.ID, fmt.Sprintf(msgCancelError, err)))
		}
	}

	removed, err := w.cleaner.Eager(w.job.Dir(), paths...)
	for _, path := range removed {
		w.logger.Debug().Str("path", path).Msg("removed partial file")
	}
	if err != nil {
		w.logger.Warn().Err(err).Msg("eager cleanup incomplete")
		w.events.push(model.NewLogEvent(w.job.ID, fmt.Sprintf(msgCleanupFailed, err)))
	}

	w.mu.Lock()
	w.transition(model.WorkerStateCanceled)
	w.events.push(model.NewLogEvent(w.job.ID, msgCanceled))
	w.events.push(model.NewTerminalEvent(w.job.ID, model.EventCanceled))
	w.events.close()
	w.mu.Unlock()
}

// Events returns the ordered event channel of this job
func (w *Worker) Events() <-chan model.Event {
	return w.events.out
}

// Done is closed once the fetch goroutine has returned
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// State returns the current state
func (w *Worker) State() model.WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Job returns the job this worker processes
func (w *Worker) Job() model.DownloadJob {
	return w.job
}

// OutputPath returns the transcoded file path once the fetch service revealed it
func (w *Worker) OutputPath() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.outputPath
}

func (w *Worker) validate() error {
	if err := w.job.Validate(); err != nil {
		return err
	}
	if err := platform.IsWritableDir(w.job.Dir()); err != nil {
		return fmt.Errorf("%w: %w", ErrDirNotWritable, err)
	}
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.cancelCtx()

	if !w.running.Load() {
		return
	}

	res, err := w.fetcher.Fetch(ctx, w.req)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.transition(model.WorkerStateCompleted) {
		w.logger.Debug().Err(err).Msg("fetch returned after cancellation")
		return
	}
	w.running.Store(false)

	switch {
	case err != nil && fetch.IsAbort(err):
		// stopped by something other than Cancel, e.g. the fetcher's own Terminate
		w.logger.Warn().Err(err).Msg("download aborted")
		w.events.push(model.NewLogEvent(w.job.ID, fmt.Sprintf(msgError, err)))
	case err != nil:
		w.logger.Warn().Err(err).Msg("download failed")
		w.events.push(model.NewLogEvent(w.job.ID, fmt.Sprintf(msgError, err)))
	default:
		if res != nil && len(res.Files) > 0 {
			w.outputPath = res.Files[0]
		}
		w.logger.Info().Str("output", w.outputPath).Msg("download finished")
		w.events.push(model.NewLogEvent(w.job.ID, msgFinished))
	}

	w.events.push(model.NewTerminalEvent(w.job.ID, model.EventCompleted))
	w.events.close()
}

// transition moves to next if the state machine allows it. Callers hold mu.
func (w *Worker) transition(next model.WorkerState) bool {
	if !w.state.CanTransition(next) {
		return false
	}
	w.state = next
	return true
}

// progressHook is invoked by the fetcher. It only observes the flag and
// records paths; deleting files here would race the fetcher's own handle.
func (w *Worker) progressHook(p model.Progress) error {
	if !w.running.Load() {
		return ErrCanceled
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state != model.WorkerStateRunning {
		return ErrCanceled
	}
	if p.Filename != "" {
		w.rawPath = p.Filename
		w.outputPath = platform.ReplaceExtension(p.Filename, w.req.AudioFormat)
	}
	w.events.push(model.NewProgressEvent(w.job.ID, p))
	return nil
}

// knownPaths lists files the eager cleanup should remove besides marker
// matches: the transcoded output and the raw download. Without progress
// information the template is used when it names a concrete file.
// Callers hold mu.
func (w *Worker) knownPaths() []string {
	var paths []string
	if w.outputPath != "" {
		paths = append(paths, w.outputPath)
	} else if static, ok := staticOutputPath(w.job.OutputTemplate, w.req.AudioFormat); ok {
		paths = append(paths, static)
	}
	if w.rawPath != "" {
		paths = append(paths, w.rawPath)
		for _, suffix := range platform.ScratchSuffixes {
			paths = append(paths, w.rawPath+suffix)
		}
	}
	return paths
}

// staticOutputPath resolves a template whose only placeholder is the extension
func staticOutputPath(template, audioFormat string) (string, bool) {
	resolved := strings.ReplaceAll(template, "%(ext)s", audioFormat)
	if strings.Contains(filepath.Base(resolved), templatePlaceholder) {
		return "", false
	}
	return resolved, true
}
