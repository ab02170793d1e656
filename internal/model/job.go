package model

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultOutputTemplate names the output after the media title; the fetch
// service resolves both placeholders.
const DefaultOutputTemplate = "%(title)s.%(ext)s"

// JobIDPrefix prefixes every generated job ID
const JobIDPrefix = "job-"

var (
	ErrEmptyURL       = errors.New("url is empty")
	ErrEmptyTemplate  = errors.New("output path template is empty")
	ErrInvalidBitrate = errors.New("unsupported bitrate")
)

// DownloadJob describes one download request. It is never mutated after
// construction.
type DownloadJob struct {
	ID             string
	URL            string
	OutputTemplate string // destination dir joined with a yt-dlp template
	Bitrate        Bitrate
	CreatedAt      time.Time
}

// NewDownloadJob creates a job that writes into destDir using DefaultOutputTemplate
func NewDownloadJob(url, destDir string, bitrate Bitrate) (DownloadJob, error) {
	return NewDownloadJobWithTemplate(url, destDir, DefaultOutputTemplate, bitrate)
}

// NewDownloadJobWithTemplate creates and validates a job with a custom filename template
func NewDownloadJobWithTemplate(url, destDir, template string, bitrate Bitrate) (DownloadJob, error) {
	if strings.TrimSpace(destDir) == "" {
		return DownloadJob{}, fmt.Errorf("destination directory is empty")
	}
	if template == "" {
		template = DefaultOutputTemplate
	}

	job := DownloadJob{
		ID:             generateJobID(),
		URL:            strings.TrimSpace(url),
		OutputTemplate: filepath.Join(destDir, template),
		Bitrate:        bitrate,
		CreatedAt:      time.Now(),
	}
	if err := job.Validate(); err != nil {
		return DownloadJob{}, err
	}
	return job, nil
}

// Validate checks the fields that do not need filesystem access
func (j DownloadJob) Validate() error {
	if j.URL == "" {
		return ErrEmptyURL
	}
	if j.OutputTemplate == "" {
		return ErrEmptyTemplate
	}
	if !j.Bitrate.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidBitrate, int(j.Bitrate))
	}
	return nil
}

// Dir returns the destination directory of the job
func (j DownloadJob) Dir() string {
	return filepath.Dir(j.OutputTemplate)
}

// generateJobID generates a unique, time ordered job ID using UUID v7
func generateJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Sprintf(JobIDPrefix+"%d", time.Now().UnixNano())
	}
	return JobIDPrefix + id.String()
}
