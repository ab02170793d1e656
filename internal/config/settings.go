package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/ytget/yt-mp3/internal/model"
	"github.com/ytget/yt-mp3/internal/platform"
)

// Environment keys. Every key is read with EnvPrefix prepended.
const (
	EnvPrefix = "YTMP3_"

	KeyDownloadDir      = "DOWNLOAD_DIR"
	KeyBitrate          = "BITRATE"
	KeyFilenameTemplate = "FILENAME_TEMPLATE"
	KeyAudioFormat      = "AUDIO_FORMAT"
	KeyFFmpegLocation   = "FFMPEG_LOCATION"
	KeyEmbedMetadata    = "EMBED_METADATA"
	KeyEmbedThumbnail   = "EMBED_THUMBNAIL"
	KeyCleanupDelay     = "CLEANUP_DELAY_MS"
	KeyLockPoll         = "LOCK_POLL_INTERVAL_MS"
	KeyLockWaitTimeout  = "LOCK_WAIT_TIMEOUT_MS"
	KeyPartialMarkers   = "PARTIAL_MARKERS"
	KeyMaxParallel      = "MAX_PARALLEL"
	KeyProgressInterval = "PROGRESS_INTERVAL_MS"
	KeyLogLevel         = "LOG_LEVEL"
	KeyAppEnv           = "APP_ENV"
)

// Default values
const (
	DefaultMaxParallel      = 1
	DefaultFilenameTemplate = model.DefaultOutputTemplate
	DefaultAudioFormat      = "mp3"
	DefaultCleanupDelay     = 3 * time.Second
	DefaultLockPollInterval = 500 * time.Millisecond
	DefaultProgressInterval = 500 * time.Millisecond
	DefaultLogLevel         = "info"
	DefaultAppEnv           = "production"
	FallbackDownloadDir     = "/tmp/downloads"

	MinParallel = 1
	MaxParallel = 10
)

// Settings holds the runtime configuration. It is read once at startup and
// never written back.
type Settings struct {
	DownloadDir      string
	Bitrate          model.Bitrate
	FilenameTemplate string
	AudioFormat      string
	FFmpegLocation   string
	EmbedMetadata    bool
	EmbedThumbnail   bool
	CleanupDelay     time.Duration
	LockPollInterval time.Duration
	LockWaitTimeout  time.Duration // 0 waits until the handle is released
	PartialMarkers   []string
	MaxParallel      int
	ProgressInterval time.Duration
	LogLevel         string
	AppEnv           string
}

// Default returns settings with every default applied
func Default() *Settings {
	dir, err := platform.GetHomeDownloadsDir()
	if err != nil {
		dir = FallbackDownloadDir
	}
	return &Settings{
		DownloadDir:      dir,
		Bitrate:          model.DefaultBitrate,
		FilenameTemplate: DefaultFilenameTemplate,
		AudioFormat:      DefaultAudioFormat,
		EmbedMetadata:    true,
		EmbedThumbnail:   true,
		CleanupDelay:     DefaultCleanupDelay,
		LockPollInterval: DefaultLockPollInterval,
		PartialMarkers:   append([]string(nil), platform.DefaultPartialMarkers...),
		MaxParallel:      DefaultMaxParallel,
		ProgressInterval: DefaultProgressInterval,
		LogLevel:         DefaultLogLevel,
		AppEnv:           DefaultAppEnv,
	}
}

// Load reads .env files (if present) and then the process environment.
// Invalid values fall back to defaults.
func Load() *Settings {
	_ = godotenv.Load(".env", ".env.local")

	s := Default()
	s.DownloadDir = getEnv(KeyDownloadDir, s.DownloadDir)
	if b, err := model.ParseBitrate(getEnv(KeyBitrate, s.Bitrate.String())); err == nil {
		s.Bitrate = b
	}
	s.SetFilenameTemplate(getEnv(KeyFilenameTemplate, s.FilenameTemplate))
	s.AudioFormat = getEnv(KeyAudioFormat, s.AudioFormat)
	s.FFmpegLocation = getEnv(KeyFFmpegLocation, "")
	s.EmbedMetadata = getEnvBool(KeyEmbedMetadata, s.EmbedMetadata)
	s.EmbedThumbnail = getEnvBool(KeyEmbedThumbnail, s.EmbedThumbnail)
	s.CleanupDelay = getEnvMillis(KeyCleanupDelay, s.CleanupDelay)
	s.LockPollInterval = getEnvMillis(KeyLockPoll, s.LockPollInterval)
	s.LockWaitTimeout = getEnvMillis(KeyLockWaitTimeout, s.LockWaitTimeout)
	s.ProgressInterval = getEnvMillis(KeyProgressInterval, s.ProgressInterval)
	if markers := getEnv(KeyPartialMarkers, ""); markers != "" {
		s.PartialMarkers = splitList(markers)
	}
	s.SetMaxParallel(getEnvInt(KeyMaxParallel, s.MaxParallel))
	s.LogLevel = strings.ToLower(getEnv(KeyLogLevel, s.LogLevel))
	s.AppEnv = getEnv(KeyAppEnv, s.AppEnv)

	if s.LockPollInterval <= 0 {
		s.LockPollInterval = DefaultLockPollInterval
	}
	return s
}

// SetMaxParallel sets the maximum number of parallel downloads
func (s *Settings) SetMaxParallel(count int) {
	if count < MinParallel {
		count = MinParallel
	}
	if count > MaxParallel {
		count = MaxParallel
	}
	s.MaxParallel = count
}

// SetFilenameTemplate sets the filename template
func (s *Settings) SetFilenameTemplate(template string) {
	if template == "" {
		template = DefaultFilenameTemplate
	}
	s.FilenameTemplate = template
}

// GetBitrateOptions returns available bitrate options
func (s *Settings) GetBitrateOptions() []model.Bitrate {
	return model.SupportedBitrates()
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvMillis(key string, fallback time.Duration) time.Duration {
	ms := getEnvInt(key, -1)
	if ms < 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
