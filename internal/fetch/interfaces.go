package fetch

import (
	"context"
	"errors"

	"github.com/ytget/yt-mp3/internal/model"
)

var (
	// ErrAborted is returned by Fetch when the progress callback refused to continue
	ErrAborted = errors.New("fetch aborted by progress callback")

	// ErrTerminated is returned by Fetch when Terminate stopped the operation
	ErrTerminated = errors.New("fetch terminated")

	// ErrAlreadyStopped is returned by Terminate when nothing is in flight
	ErrAlreadyStopped = errors.New("no fetch in flight")

	// ErrBusy is returned by Fetch when the fetcher already runs an operation
	ErrBusy = errors.New("fetcher already running")
)

// ProgressFunc receives progress snapshots. Returning an error aborts the fetch.
type ProgressFunc func(model.Progress) error

// Request is the configuration bundle handed to the fetch service
type Request struct {
	URL            string
	OutputTemplate string
	Format         string // source format preference
	AudioFormat    string // post-processing target codec
	Bitrate        model.Bitrate
	FFmpegLocation string
	EmbedMetadata  bool
	EmbedThumbnail bool
	Progress       ProgressFunc
}

// Result lists files the fetch service reported as produced
type Result struct {
	Files []string
}

// Fetcher retrieves and transcodes media. One Fetcher runs one operation at a
// time; Terminate may be called from any goroutine.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Result, error)
	Terminate() error
}

// IsAbort reports whether err stems from cancellation rather than a failure
func IsAbort(err error) bool {
	return errors.Is(err, ErrAborted) ||
		errors.Is(err, ErrTerminated) ||
		errors.Is(err, context.Canceled)
}
