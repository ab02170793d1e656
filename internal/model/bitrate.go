package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Bitrate is a target audio bitrate in kbps
type Bitrate int

const (
	Bitrate128 Bitrate = 128
	Bitrate192 Bitrate = 192
	Bitrate256 Bitrate = 256
	Bitrate320 Bitrate = 320
)

// DefaultBitrate is used when nothing else is configured
const DefaultBitrate = Bitrate192

// SupportedBitrates returns the bitrates a job may request, lowest first
func SupportedBitrates() []Bitrate {
	return []Bitrate{Bitrate128, Bitrate192, Bitrate256, Bitrate320}
}

// ParseBitrate parses values like "192" or "192k"
func ParseBitrate(s string) (Bitrate, error) {
	trimmed := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "k")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidBitrate, s)
	}
	b := Bitrate(n)
	if !b.IsValid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidBitrate, n)
	}
	return b, nil
}

// IsValid reports whether b is one of the supported bitrates
func (b Bitrate) IsValid() bool {
	for _, s := range SupportedBitrates() {
		if b == s {
			return true
		}
	}
	return false
}

func (b Bitrate) String() string {
	return strconv.Itoa(int(b))
}

// Quality returns the value yt-dlp expects for --audio-quality
func (b Bitrate) Quality() string {
	return b.String() + "K"
}
