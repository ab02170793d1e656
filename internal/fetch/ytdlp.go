package fetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/rs/zerolog"

	"github.com/ytget/yt-mp3/internal/model"
	"github.com/ytget/yt-mp3/internal/platform"
)

// DefaultProgressInterval is how often yt-dlp progress is forwarded
const DefaultProgressInterval = 500 * time.Millisecond

// YTDLP runs yt-dlp through go-ytdlp. Terminating cancels the context the
// yt-dlp process was started with, which kills the process.
type YTDLP struct {
	progressInterval time.Duration
	logger           zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelCauseFunc
}

// YTDLPOption configures a YTDLP fetcher
type YTDLPOption func(*YTDLP)

// WithProgressInterval sets the progress callback frequency
func WithProgressInterval(d time.Duration) YTDLPOption {
	return func(y *YTDLP) {
		if d > 0 {
			y.progressInterval = d
		}
	}
}

// WithLogger sets the diagnostic logger
func WithLogger(logger zerolog.Logger) YTDLPOption {
	return func(y *YTDLP) {
		y.logger = logger
	}
}

// NewYTDLP creates a fetcher backed by the yt-dlp executable
func NewYTDLP(opts ...YTDLPOption) *YTDLP {
	y := &YTDLP{
		progressInterval: DefaultProgressInterval,
		logger:           zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// Install makes sure a yt-dlp executable is available and returns its path
func Install(ctx context.Context) (string, error) {
	resolved, err := ytdlp.Install(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to install yt-dlp: %w", err)
	}
	return resolved.Executable, nil
}

// Fetch downloads req.URL and blocks until yt-dlp exits
func (y *YTDLP) Fetch(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	y.mu.Lock()
	if y.cancel != nil {
		y.mu.Unlock()
		return nil, ErrBusy
	}
	y.cancel = cancel
	y.mu.Unlock()

	defer func() {
		y.mu.Lock()
		y.cancel = nil
		y.mu.Unlock()
	}()

	dl := y.command(req)
	if req.Progress != nil {
		dl.ProgressFunc(y.progressInterval, func(update ytdlp.ProgressUpdate) {
			if err := req.Progress(toProgress(update)); err != nil {
				cancel(fmt.Errorf("%w: %w", ErrAborted, err))
			}
		})
	}

	y.logger.Debug().Str("url", req.URL).Str("output", req.OutputTemplate).Msg("starting yt-dlp")
	res, err := dl.Run(ctx, req.URL)

	if ctx.Err() != nil {
		return nil, context.Cause(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("yt-dlp: %w", err)
	}

	return &Result{Files: producedFiles(res, req.AudioFormat)}, nil
}

// Terminate stops the in-flight yt-dlp process
func (y *YTDLP) Terminate() error {
	y.mu.Lock()
	defer y.mu.Unlock()

	if y.cancel == nil {
		return ErrAlreadyStopped
	}
	y.cancel(ErrTerminated)
	return nil
}

// command builds the yt-dlp invocation for req
func (y *YTDLP) command(req Request) *ytdlp.Command {
	dl := ytdlp.New().
		Format(req.Format).
		ExtractAudio().
		AudioFormat(req.AudioFormat).
		AudioQuality(req.Bitrate.Quality()).
		Output(req.OutputTemplate).
		ForceOverwrites()

	if req.EmbedMetadata {
		dl.EmbedMetadata()
	}
	if req.EmbedThumbnail {
		dl.EmbedThumbnail()
	}
	if req.FFmpegLocation != "" {
		dl.FFmpegLocation(req.FFmpegLocation)
	}
	return dl
}

// toProgress converts a yt-dlp progress update into a model snapshot
func toProgress(update ytdlp.ProgressUpdate) model.Progress {
	p := model.NewProgress(int64(update.DownloadedBytes), int64(update.TotalBytes), update.Started, update.ETA())

	if update.Info != nil {
		if update.Info.Title != nil {
			p.Title = *update.Info.Title
		}
		if update.Info.Filename != nil {
			p.Filename = *update.Info.Filename
		}
	}
	return p
}

// producedFiles maps the filenames yt-dlp reports (pre-transcode) to the
// transcoded files on disk
func producedFiles(res *ytdlp.Result, audioFormat string) []string {
	if res == nil {
		return nil
	}
	info, err := res.GetExtractedInfo()
	if err != nil {
		return nil
	}

	var files []string
	for _, item := range info {
		if item == nil || item.Filename == nil {
			continue
		}
		path := platform.ReplaceExtension(*item.Filename, audioFormat)
		if found, err := platform.FindFileWithFallback(path); err == nil {
			path = found
		}
		files = append(files, path)
	}
	return files
}
