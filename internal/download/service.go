package download

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ytget/yt-mp3/internal/config"
	"github.com/ytget/yt-mp3/internal/fetch"
	"github.com/ytget/yt-mp3/internal/model"
	"github.com/ytget/yt-mp3/internal/platform"
)

var (
	ErrJobNotFound   = errors.New("job not found")
	ErrJobActive     = errors.New("job is still active")
	ErrDuplicateJob  = errors.New("job already running for URL")
	ErrTooManyActive = errors.New("too many active downloads")
	ErrDirBusy       = errors.New("destination directory is used by another job")
	ErrServiceClosed = errors.New("service is closed")
)

// FetcherFactory creates one fetcher per job
type FetcherFactory func() fetch.Fetcher

// Service handles download jobs for a front end
type Service struct {
	settings   *config.Settings
	newFetcher FetcherFactory
	cleaner    *Cleaner
	locks      platform.LockChecker
	logger     zerolog.Logger

	workers      map[string]*Worker
	workersMutex sync.RWMutex
	closed       bool

	// dirs counts active jobs and pending delayed cleanups per destination
	// directory. Cleanup scans the whole directory, so it is never shared.
	dirs map[string]int

	events  *eventStream
	ctx     context.Context
	stop    context.CancelFunc
	pending sync.WaitGroup
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithServiceLogger sets the diagnostic logger
func WithServiceLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithLockChecker replaces the process scanner used by the delayed cleanup
func WithLockChecker(locks platform.LockChecker) ServiceOption {
	return func(s *Service) {
		s.locks = locks
	}
}

// NewService creates a new download service
func NewService(settings *config.Settings, newFetcher FetcherFactory, opts ...ServiceOption) *Service {
	if settings == nil {
		settings = config.Default()
	}
	ctx, stop := context.WithCancel(context.Background())

	s := &Service{
		settings:   settings,
		newFetcher: newFetcher,
		logger:     zerolog.Nop(),
		workers:    make(map[string]*Worker),
		dirs:       make(map[string]int),
		events:     newEventStream(),
		ctx:        ctx,
		stop:       stop,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.locks == nil {
		s.locks = platform.NewProcessScanner()
	}

	s.cleaner = NewCleaner(s.locks,
		WithMarkers(settings.PartialMarkers),
		WithPollInterval(settings.LockPollInterval),
		WithMaxWait(settings.LockWaitTimeout),
		WithCleanerLogger(s.logger),
	)
	return s
}

// Start validates and starts a new job
func (s *Service) Start(url, destDir string, bitrate model.Bitrate) (model.DownloadJob, error) {
	job, err := model.NewDownloadJobWithTemplate(url, destDir, s.settings.FilenameTemplate, bitrate)
	if err != nil {
		return model.DownloadJob{}, err
	}

	s.workersMutex.Lock()
	defer s.workersMutex.Unlock()

	if s.closed {
		return model.DownloadJob{}, ErrServiceClosed
	}

	active := 0
	for _, w := range s.workers {
		if !w.State().IsActive() {
			continue
		}
		if w.Job().URL == job.URL {
			return model.DownloadJob{}, fmt.Errorf("%w: %s", ErrDuplicateJob, job.URL)
		}
		active++
	}
	if active >= s.settings.MaxParallel {
		return model.DownloadJob{}, fmt.Errorf("%w: limit is %d", ErrTooManyActive, s.settings.MaxParallel)
	}
	dir := dirKey(job.Dir())
	if s.dirs[dir] > 0 {
		return model.DownloadJob{}, fmt.Errorf("%w: %s", ErrDirBusy, job.Dir())
	}

	w := NewWorker(job, s.newFetcher(),
		WithCleaner(s.cleaner),
		WithWorkerLogger(s.logger),
		WithRequestOptions(
			fetch.WithAudioFormat(s.settings.AudioFormat),
			fetch.WithFFmpegLocation(s.settings.FFmpegLocation),
			fetch.WithEmbedding(s.settings.EmbedMetadata, s.settings.EmbedThumbnail),
		),
	)
	if err := w.Start(); err != nil {
		return model.DownloadJob{}, err
	}

	s.workers[job.ID] = w
	s.dirs[dir]++
	s.pending.Add(1)
	go s.forward(w)

	return job, nil
}

// Cancel cancels a job by ID. Canceling a finished job is a no-op.
func (s *Service) Cancel(jobID string) error {
	s.workersMutex.RLock()
	w, exists := s.workers[jobID]
	s.workersMutex.RUnlock()

	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	w.Cancel()
	return nil
}

// CancelAll cancels every active job
func (s *Service) CancelAll() {
	for _, w := range s.snapshot() {
		w.Cancel()
	}
}

// Remove forgets a finished job
func (s *Service) Remove(jobID string) error {
	s.workersMutex.Lock()
	defer s.workersMutex.Unlock()

	w, exists := s.workers[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if !w.State().IsFinished() {
		return fmt.Errorf("%w: %s", ErrJobActive, jobID)
	}
	delete(s.workers, jobID)
	return nil
}

// GetWorker returns the worker of a job
func (s *Service) GetWorker(jobID string) (*Worker, bool) {
	s.workersMutex.RLock()
	defer s.workersMutex.RUnlock()
	w, exists := s.workers[jobID]
	return w, exists
}

// ActiveCount returns the number of running or canceling jobs
func (s *Service) ActiveCount() int {
	count := 0
	for _, w := range s.snapshot() {
		if w.State().IsActive() {
			count++
		}
	}
	return count
}

// Events returns the merged event stream
func (s *Service) Events() <-chan model.Event {
	return s.events.out
}

// Close stops accepting jobs, cancels active ones and waits for delayed
// cleanups. When ctx ends first, pending cleanups are abandoned.
func (s *Service) Close(ctx context.Context) error {
	s.workersMutex.Lock()
	if s.closed {
		s.workersMutex.Unlock()
		return nil
	}
	s.closed = true
	s.workersMutex.Unlock()

	s.CancelAll()

	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = ctx.Err()
		s.stop()
		<-done
	}

	s.stop()
	s.events.close()
	return err
}

// forward relays worker events in order. A canceled job hands its directory
// to the delayed cleanup; otherwise the directory is released here.
func (s *Service) forward(w *Worker) {
	defer s.pending.Done()

	canceled := false
	for ev := range w.Events() {
		s.events.push(ev)
		if ev.Kind == model.EventCanceled {
			canceled = true
		}
	}

	if canceled {
		s.scheduleCleanup(w.Job())
		return
	}
	s.releaseDir(w.Job().Dir())
}

// scheduleCleanup runs the lock-aware cleanup after the configured delay,
// giving the terminated yt-dlp process time to exit
func (s *Service) scheduleCleanup(job model.DownloadJob) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer s.releaseDir(job.Dir())

		select {
		case <-time.After(s.settings.CleanupDelay):
		case <-s.ctx.Done():
			return
		}

		logger := s.logger.With().Str("job_id", job.ID).Logger()
		err := s.cleaner.Delayed(s.ctx, job.Dir(), func(name string) {
			logger.Info().Str("file", name).Msg("deleted partial file")
			s.events.push(model.NewLogEvent(job.ID, fmt.Sprintf(msgDeletedPartial, name)))
		})
		if err != nil {
			logger.Warn().Err(err).Msg("delayed cleanup incomplete")
			s.events.push(model.NewLogEvent(job.ID, fmt.Sprintf(msgCleanupGaveUp, err)))
		}
	}()
}

func (s *Service) releaseDir(dir string) {
	key := dirKey(dir)

	s.workersMutex.Lock()
	defer s.workersMutex.Unlock()
	if s.dirs[key] <= 1 {
		delete(s.dirs, key)
		return
	}
	s.dirs[key]--
}

func dirKey(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return filepath.Clean(dir)
}

func (s *Service) snapshot() []*Worker {
	s.workersMutex.RLock()
	defer s.workersMutex.RUnlock()

	workers := make([]*Worker, 0, len(s.workers))
	for _, w := range s.workers {
		workers = append(workers, w)
	}
	return workers
}
