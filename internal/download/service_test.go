package download

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ytget/yt-mp3/internal/config"
	"github.com/ytget/yt-mp3/internal/fetch"
	"github.com/ytget/yt-mp3/internal/model"
)

func newTestSettings(dir string) *config.Settings {
	s := config.Default()
	s.DownloadDir = dir
	s.SetFilenameTemplate("out.%(ext)s")
	s.CleanupDelay = 10 * time.Millisecond
	s.LockPollInterval = time.Millisecond
	return s
}

func blockingFactory() FetcherFactory {
	return func() fetch.Fetcher {
		f := newFakeFetcher()
		f.block = true
		return f
	}
}

func closeService(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Close(ctx))
}

func TestNewService(t *testing.T) {
	s := NewService(newTestSettings(t.TempDir()), blockingFactory(), WithLockChecker(unlocked))
	defer closeService(t, s)

	require.Equal(t, 0, s.ActiveCount())
	require.Empty(t, s.workers)
	require.NotNil(t, s.cleaner)
}

func TestServiceStartCompletes(t *testing.T) {
	dir := t.TempDir()
	factory := func() fetch.Fetcher {
		f := newFakeFetcher()
		f.files = []string{filepath.Join(dir, "out.mp3")}
		return f
	}
	s := NewService(newTestSettings(dir), factory, WithLockChecker(unlocked))

	job, err := s.Start("  https://example.com/watch?v=1  ", dir, model.Bitrate320)
	require.NoError(t, err)
	require.Equal(t, "https://example.com/watch?v=1", job.URL)
	require.Equal(t, filepath.Join(dir, "out.%(ext)s"), job.OutputTemplate)

	events := waitFor(t, s.Events(), func(ev model.Event) bool { return ev.IsTerminal() })
	require.Equal(t, model.EventCompleted, events[len(events)-1].Kind)

	w, ok := s.GetWorker(job.ID)
	require.True(t, ok)
	require.Equal(t, model.WorkerStateCompleted, w.State())
	require.Equal(t, 0, s.ActiveCount())

	closeService(t, s)
	_, open := <-s.Events()
	require.False(t, open)
}

func TestServiceStartRejects(t *testing.T) {
	dir := t.TempDir()
	s := NewService(newTestSettings(dir), blockingFactory(), WithLockChecker(unlocked))
	defer closeService(t, s)

	_, err := s.Start("", dir, model.Bitrate192)
	require.ErrorIs(t, err, model.ErrEmptyURL)

	_, err = s.Start("https://example.com/a", dir, model.Bitrate(64))
	require.ErrorIs(t, err, model.ErrInvalidBitrate)

	_, err = s.Start("https://example.com/a", filepath.Join(dir, "missing"), model.Bitrate192)
	require.ErrorIs(t, err, ErrDirNotWritable)

	_, err = s.Start("https://example.com/a", dir, model.Bitrate192)
	require.NoError(t, err)

	_, err = s.Start("https://example.com/a", dir, model.Bitrate192)
	require.ErrorIs(t, err, ErrDuplicateJob)

	_, err = s.Start("https://example.com/b", dir, model.Bitrate192)
	require.ErrorIs(t, err, ErrTooManyActive)

	require.Equal(t, 1, s.ActiveCount())
}

func TestServiceCancel(t *testing.T) {
	dir := t.TempDir()
	s := NewService(newTestSettings(dir), blockingFactory(), WithLockChecker(unlocked))
	defer closeService(t, s)

	require.ErrorIs(t, s.Cancel("job-unknown"), ErrJobNotFound)

	job, err := s.Start("https://example.com/a", dir, model.Bitrate192)
	require.NoError(t, err)
	require.ErrorIs(t, s.Remove(job.ID), ErrJobActive)

	require.NoError(t, s.Cancel(job.ID))
	events := waitFor(t, s.Events(), func(ev model.Event) bool { return ev.IsTerminal() })
	require.Equal(t, model.EventCanceled, events[len(events)-1].Kind)

	// canceling again is a no-op
	require.NoError(t, s.Cancel(job.ID))
	require.Equal(t, 0, s.ActiveCount())

	// the URL can be started again once the first job is done
	_, err = s.Start("https://example.com/a", t.TempDir(), model.Bitrate192)
	require.NoError(t, err)

	require.NoError(t, s.Remove(job.ID))
	_, ok := s.GetWorker(job.ID)
	require.False(t, ok)
}

func TestServiceDelayedCleanup(t *testing.T) {
	dir := t.TempDir()
	locks := newLockedFor(2)
	settings := newTestSettings(dir)
	settings.CleanupDelay = 100 * time.Millisecond

	s := NewService(settings, blockingFactory(), WithLockChecker(locks))

	job, err := s.Start("https://example.com/a", dir, model.Bitrate192)
	require.NoError(t, err)
	require.NoError(t, s.Cancel(job.ID))

	waitFor(t, s.Events(), func(ev model.Event) bool { return ev.Kind == model.EventCanceled })

	// a late write by the terminated process lands after the eager cleanup
	writeFiles(t, dir, "late.webm")

	events := waitFor(t, s.Events(), func(ev model.Event) bool {
		return ev.Kind == model.EventLog && ev.Message == "Deleted partial file: late.webm"
	})
	require.Equal(t, job.ID, events[len(events)-1].JobID)
	require.NoFileExists(t, filepath.Join(dir, "late.webm"))
	require.Equal(t, 3, locks.Calls("late.webm"))

	closeService(t, s)
}

func TestServiceCloseCancelsActive(t *testing.T) {
	dir := t.TempDir()
	settings := newTestSettings(dir)
	settings.SetMaxParallel(3)
	s := NewService(settings, blockingFactory(), WithLockChecker(unlocked))

	for _, url := range []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"} {
		_, err := s.Start(url, t.TempDir(), model.Bitrate192)
		require.NoError(t, err)
	}
	require.Equal(t, 3, s.ActiveCount())

	done := make(chan []model.Event)
	go func() {
		var events []model.Event
		for ev := range s.Events() {
			events = append(events, ev)
		}
		done <- events
	}()

	closeService(t, s)
	events := <-done

	canceled := 0
	for _, ev := range events {
		if ev.Kind == model.EventCanceled {
			canceled++
		}
	}
	require.Equal(t, 3, canceled)
	require.Equal(t, 0, s.ActiveCount())

	_, err := s.Start("https://example.com/d", dir, model.Bitrate192)
	require.ErrorIs(t, err, ErrServiceClosed)
	require.NoError(t, s.Close(context.Background()))
}

func TestServiceCloseAbandonsPendingCleanup(t *testing.T) {
	dir := t.TempDir()
	settings := newTestSettings(dir)
	settings.CleanupDelay = time.Hour
	s := NewService(settings, blockingFactory(), WithLockChecker(unlocked))

	job, err := s.Start("https://example.com/a", dir, model.Bitrate192)
	require.NoError(t, err)
	require.NoError(t, s.Cancel(job.ID))
	waitFor(t, s.Events(), func(ev model.Event) bool { return ev.Kind == model.EventCanceled })

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, s.Close(ctx), context.DeadlineExceeded)
}

func TestServiceSharedDirectory(t *testing.T) {
	dir := t.TempDir()
	otherDir := t.TempDir()

	// fetchers write a.webm into dir, b.webm into otherDir, then c.webm into dir
	targets := []string{
		filepath.Join(dir, "a.webm"),
		filepath.Join(otherDir, "b.webm"),
		filepath.Join(dir, "c.webm"),
	}
	var fetchers []*fakeFetcher
	factory := func() fetch.Fetcher {
		f := newFakeFetcher()
		f.block = true
		f.steps = []model.Progress{{Filename: targets[len(fetchers)]}}
		fetchers = append(fetchers, f)
		return f
	}

	settings := newTestSettings(dir)
	settings.SetMaxParallel(3)
	settings.CleanupDelay = 200 * time.Millisecond
	s := NewService(settings, factory, WithLockChecker(unlocked))
	defer closeService(t, s)

	jobA, err := s.Start("https://example.com/a", dir, model.Bitrate192)
	require.NoError(t, err)
	<-fetchers[0].progressed

	_, err = s.Start("https://example.com/b", dir, model.Bitrate192)
	require.ErrorIs(t, err, ErrDirBusy)

	jobB, err := s.Start("https://example.com/b", otherDir, model.Bitrate192)
	require.NoError(t, err)
	<-fetchers[1].progressed

	require.NoError(t, s.Cancel(jobA.ID))
	waitFor(t, s.Events(), func(ev model.Event) bool {
		return ev.Kind == model.EventCanceled && ev.JobID == jobA.ID
	})

	wb, ok := s.GetWorker(jobB.ID)
	require.True(t, ok)
	require.Equal(t, model.WorkerStateRunning, wb.State())
	require.FileExists(t, filepath.Join(otherDir, "b.webm"))
	require.NoFileExists(t, filepath.Join(dir, "a.webm"))

	// dir stays reserved until the delayed cleanup of A has run
	_, err = s.Start("https://example.com/c", dir, model.Bitrate192)
	require.ErrorIs(t, err, ErrDirBusy)

	require.Eventually(t, func() bool {
		s.workersMutex.RLock()
		defer s.workersMutex.RUnlock()
		return s.dirs[dirKey(dir)] == 0
	}, 5*time.Second, 10*time.Millisecond)

	_, err = s.Start("https://example.com/c", dir, model.Bitrate192)
	require.NoError(t, err)
}
