package model

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Progress is a snapshot reported by the fetch service while a job runs
type Progress struct {
	Fraction        float64 // 0.0 to 1.0
	Percent         int     // 0 to 100
	DownloadedBytes int64
	TotalBytes      int64
	Speed           string // human readable speed (e.g., "1.2 MB/s")
	ETASec          int    // ETA in seconds, -1 if unknown
	Title           string // media title
	Filename        string // file currently written by the fetch service
}

// NewProgress fills the derived fields from raw counters
func NewProgress(downloaded, total int64, started time.Time, eta time.Duration) Progress {
	p := Progress{
		DownloadedBytes: downloaded,
		TotalBytes:      total,
		ETASec:          -1,
	}

	if total > 0 {
		p.Fraction = float64(downloaded) / float64(total)
		if p.Fraction > 1 {
			p.Fraction = 1
		}
		p.Percent = int(p.Fraction * 100)
	}

	if !started.IsZero() {
		elapsed := time.Since(started)
		if elapsed.Seconds() > 0 && downloaded > 0 {
			bytesPerSecond := float64(downloaded) / elapsed.Seconds()
			p.Speed = humanize.Bytes(uint64(bytesPerSecond)) + "/s"
		}
	}

	if eta > 0 {
		p.ETASec = int(eta.Seconds())
	}

	return p
}

// GetETAString returns ETA formatted as hh:mm:ss, or "—" if unknown
func (p Progress) GetETAString() string {
	if p.ETASec <= 0 {
		return "—"
	}

	hours := p.ETASec / 3600
	minutes := (p.ETASec % 3600) / 60
	seconds := p.ETASec % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// GetDisplayTitle returns the title, or the filename without extension
func (p Progress) GetDisplayTitle() string {
	if p.Title != "" && !strings.HasPrefix(p.Title, "http") {
		return p.Title
	}
	if p.Filename != "" {
		name := filepath.Base(p.Filename)
		return strings.TrimSuffix(name, filepath.Ext(name))
	}
	return ""
}

// String renders a compact one-line summary for log output
func (p Progress) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%3d%%", p.Percent)
	if p.TotalBytes > 0 {
		fmt.Fprintf(&b, " of %s", humanize.Bytes(uint64(p.TotalBytes)))
	}
	if p.Speed != "" {
		fmt.Fprintf(&b, " at %s", p.Speed)
	}
	fmt.Fprintf(&b, " ETA %s", p.GetETAString())
	return b.String()
}
