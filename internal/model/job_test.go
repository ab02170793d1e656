package model

import (
	"errors"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewDownloadJob(t *testing.T) {
	job, err := NewDownloadJob("  https://youtube.com/watch?v=test  ", "/tmp/music", Bitrate192)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if job.URL != "https://youtube.com/watch?v=test" {
		t.Errorf("Expected trimmed URL, got '%s'", job.URL)
	}

	expectedTemplate := filepath.Join("/tmp/music", DefaultOutputTemplate)
	if job.OutputTemplate != expectedTemplate {
		t.Errorf("Expected template '%s', got '%s'", expectedTemplate, job.OutputTemplate)
	}

	if job.Dir() != "/tmp/music" {
		t.Errorf("Expected Dir '/tmp/music', got '%s'", job.Dir())
	}

	if !strings.HasPrefix(job.ID, JobIDPrefix) {
		t.Errorf("Expected ID to start with '%s', got: %s", JobIDPrefix, job.ID)
	}

	if job.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}
}

func TestNewDownloadJob_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		dir     string
		bitrate Bitrate
		wantErr error
	}{
		{"empty url", "", "/tmp", Bitrate192, ErrEmptyURL},
		{"blank url", "   ", "/tmp", Bitrate192, ErrEmptyURL},
		{"bad bitrate", "https://example.com/v", "/tmp", Bitrate(100), ErrInvalidBitrate},
		{"zero bitrate", "https://example.com/v", "/tmp", 0, ErrInvalidBitrate},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewDownloadJob(test.url, test.dir, test.bitrate)
			if !errors.Is(err, test.wantErr) {
				t.Errorf("Expected %v, got %v", test.wantErr, err)
			}
		})
	}
}

func TestNewDownloadJob_EmptyDir(t *testing.T) {
	if _, err := NewDownloadJob("https://example.com/v", "", Bitrate128); err == nil {
		t.Error("Expected error for empty destination, got nil")
	}
}

func TestNewDownloadJobWithTemplate(t *testing.T) {
	job, err := NewDownloadJobWithTemplate("https://example.com/v", "/data", "%(id)s.%(ext)s", Bitrate320)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if job.OutputTemplate != filepath.Join("/data", "%(id)s.%(ext)s") {
		t.Errorf("Unexpected template: %s", job.OutputTemplate)
	}

	job, err = NewDownloadJobWithTemplate("https://example.com/v", "/data", "", Bitrate320)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !strings.HasSuffix(job.OutputTemplate, DefaultOutputTemplate) {
		t.Errorf("Expected default template fallback, got %s", job.OutputTemplate)
	}
}

func TestGenerateJobID(t *testing.T) {
	id1 := generateJobID()
	id2 := generateJobID()

	if id1 == id2 {
		t.Error("Expected different job IDs")
	}

	if len(id1) != len(JobIDPrefix)+36 {
		t.Errorf("Expected ID length %d, got %d for ID: %s", len(JobIDPrefix)+36, len(id1), id1)
	}
}
