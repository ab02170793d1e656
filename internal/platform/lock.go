package platform

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/process"
)

// LockChecker reports whether a path is currently open by any process.
type LockChecker interface {
	IsLocked(ctx context.Context, path string) (bool, error)
}

// LockCheckerFunc adapts a function to the LockChecker interface
type LockCheckerFunc func(ctx context.Context, path string) (bool, error)

// IsLocked calls f(ctx, path)
func (f LockCheckerFunc) IsLocked(ctx context.Context, path string) (bool, error) {
	return f(ctx, path)
}

// ProcessScanner walks every process visible to the current user and inspects
// its open file handles. It is expensive; callers poll it at a coarse interval.
type ProcessScanner struct{}

// NewProcessScanner creates a scanner backed by gopsutil
func NewProcessScanner() *ProcessScanner {
	return &ProcessScanner{}
}

// IsLocked returns true if any process holds path open. Processes whose
// handles cannot be read (permissions, exited mid-scan) are skipped.
func (s *ProcessScanner) IsLocked(ctx context.Context, path string) (bool, error) {
	target, err := filepath.Abs(path)
	if err != nil {
		return false, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	target = filepath.Clean(target)

	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list processes: %w", err)
	}

	for _, p := range procs {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		files, err := p.OpenFilesWithContext(ctx)
		if err != nil {
			continue
		}
		for _, f := range files {
			if filepath.Clean(f.Path) == target {
				return true, nil
			}
		}
	}

	return false, nil
}
