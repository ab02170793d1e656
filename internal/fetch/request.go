package fetch

import "github.com/ytget/yt-mp3/internal/model"

// Defaults for the configuration bundle
const (
	DefaultFormat      = "bestaudio/best"
	DefaultAudioFormat = "mp3"
)

// RequestOption customizes a Request built by NewRequest
type RequestOption func(*Request)

// WithAudioFormat sets the post-processing codec
func WithAudioFormat(format string) RequestOption {
	return func(r *Request) {
		if format != "" {
			r.AudioFormat = format
		}
	}
}

// WithFFmpegLocation points yt-dlp at a specific ffmpeg binary or directory
func WithFFmpegLocation(path string) RequestOption {
	return func(r *Request) {
		r.FFmpegLocation = path
	}
}

// WithEmbedding toggles metadata and thumbnail embedding
func WithEmbedding(metadata, thumbnail bool) RequestOption {
	return func(r *Request) {
		r.EmbedMetadata = metadata
		r.EmbedThumbnail = thumbnail
	}
}

// NewRequest builds the configuration bundle for a job: best available audio,
// transcoded to the job bitrate.
func NewRequest(job model.DownloadJob, progress ProgressFunc, opts ...RequestOption) Request {
	req := Request{
		URL:            job.URL,
		OutputTemplate: job.OutputTemplate,
		Format:         DefaultFormat,
		AudioFormat:    DefaultAudioFormat,
		Bitrate:        job.Bitrate,
		EmbedMetadata:  true,
		EmbedThumbnail: true,
		Progress:       progress,
	}
	for _, opt := range opts {
		opt(&req)
	}
	return req
}
