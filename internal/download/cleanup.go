package download

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ytget/yt-mp3/internal/platform"
)

// DefaultLockPollInterval is the wait between two open-handle checks
const DefaultLockPollInterval = 500 * time.Millisecond

// Cleaner removes partial artifacts from a destination directory
type Cleaner struct {
	locks        platform.LockChecker
	markers      []string
	pollInterval time.Duration
	maxWait      time.Duration
	logger       zerolog.Logger
}

// CleanerOption configures a Cleaner
type CleanerOption func(*Cleaner)

// WithMarkers sets the name fragments identifying intermediate containers
func WithMarkers(markers []string) CleanerOption {
	return func(c *Cleaner) {
		c.markers = append([]string(nil), markers...)
	}
}

// WithPollInterval sets how long to wait between lock checks
func WithPollInterval(d time.Duration) CleanerOption {
	return func(c *Cleaner) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithMaxWait bounds how long a single file may stay locked before it is
// skipped. Zero waits until the handle is released or the context ends.
func WithMaxWait(d time.Duration) CleanerOption {
	return func(c *Cleaner) {
		c.maxWait = d
	}
}

// WithCleanerLogger sets the diagnostic logger
func WithCleanerLogger(logger zerolog.Logger) CleanerOption {
	return func(c *Cleaner) {
		c.logger = logger
	}
}

// NewCleaner creates a cleaner that consults locks before delayed deletions
func NewCleaner(locks platform.LockChecker, opts ...CleanerOption) *Cleaner {
	if locks == nil {
		locks = platform.NewProcessScanner()
	}
	c := &Cleaner{
		locks:        locks,
		markers:      append([]string(nil), platform.DefaultPartialMarkers...),
		pollInterval: DefaultLockPollInterval,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Eager deletes the given paths and every partial artifact in dir without
// waiting for handles to be released. Missing files are skipped silently.
// It returns the removed paths and the joined errors of failed deletions.
func (c *Cleaner) Eager(dir string, paths ...string) ([]string, error) {
	var removed []string
	var errs []error

	remove := func(path string) {
		ok, err := platform.RemoveIfExists(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", filepath.Base(path), err))
			return
		}
		if ok {
			removed = append(removed, path)
		}
	}

	for _, path := range paths {
		remove(path)
	}

	artifacts, err := platform.FindPartialArtifacts(dir, c.markers)
	if err != nil {
		errs = append(errs, err)
	}
	for _, path := range artifacts {
		remove(path)
	}

	return removed, errors.Join(errs...)
}

// Delayed deletes every partial artifact in dir, waiting for each one to be
// released by whatever process still holds it. onDeleted receives the base
// name of each file that was actually removed.
func (c *Cleaner) Delayed(ctx context.Context, dir string, onDeleted func(name string)) error {
	artifacts, err := platform.FindPartialArtifacts(dir, c.markers)
	if err != nil {
		return err
	}

	var errs []error
	for _, path := range artifacts {
		if err := c.waitUnlocked(ctx, path); err != nil {
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		removed, err := platform.RemoveIfExists(path)
		if err != nil {
			c.logger.Warn().Err(err).Str("path", path).Msg("failed to delete partial file")
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", filepath.Base(path), err))
			continue
		}
		if removed && onDeleted != nil {
			onDeleted(filepath.Base(path))
		}
	}

	return errors.Join(errs...)
}

// waitUnlocked polls the lock checker until path is no longer held
func (c *Cleaner) waitUnlocked(ctx context.Context, path string) error {
	if c.maxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.maxWait)
		defer cancel()
	}

	for attempt := 1; ; attempt++ {
		locked, err := c.locks.IsLocked(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("gave up waiting for %s: %w", filepath.Base(path), ctx.Err())
			}
			// Unknown lock state; the delete attempt decides.
			c.logger.Warn().Err(err).Str("path", path).Msg("lock check failed")
			return nil
		}
		if !locked {
			return nil
		}

		c.logger.Debug().Str("path", path).Int("attempt", attempt).Msg("partial file still open")

		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up waiting for %s: %w", filepath.Base(path), ctx.Err())
		case <-time.After(c.pollInterval):
		}
	}
}
