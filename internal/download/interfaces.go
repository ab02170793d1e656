package download

import (
	"context"

	"github.com/ytget/yt-mp3/internal/model"
)

// Downloader defines the interface for the download service.
type Downloader interface {
	Start(url, destDir string, bitrate model.Bitrate) (model.DownloadJob, error)
	Cancel(jobID string) error
	CancelAll()
	Remove(jobID string) error
	GetWorker(jobID string) (*Worker, bool)
	ActiveCount() int

	// Events delivers the events of every job, ordered per job
	Events() <-chan model.Event

	// Close cancels active jobs and waits for pending delayed cleanups
	Close(ctx context.Context) error
}

var _ Downloader = (*Service)(nil)
