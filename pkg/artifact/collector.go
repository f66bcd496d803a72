// Package artifact copies built packages out of build environments and
// reads their metadata.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/plamolinux/pkgbuild/pkg/category"
	"github.com/plamolinux/pkgbuild/pkg/logger"
	"github.com/plamolinux/pkgbuild/pkg/types"
)

// Extension is the archive extension of built packages
const Extension = "txz"

var (
	// ErrNoArtifacts is returned when a package stage left nothing to collect
	ErrNoArtifacts = errors.New("no artifacts found")

	// ErrCopyFailed is returned when at least one artifact could not be copied
	ErrCopyFailed = errors.New("artifact copy failed")
)

// Marker returns the build-marker character used by a release major
// version
func Marker(major int) string {
	if major >= category.ModernMajor {
		return "B"
	}
	return "P"
}

// Pattern returns the file name glob of name's packages
func Pattern(name string, major int) string {
	return fmt.Sprintf("%s-*-%s*.%s", name, Marker(major), Extension)
}

// Puller copies files out of an environment
type Puller interface {
	PullFiles(ctx context.Context, name, dir, pattern, destDir string) ([]types.FileTransfer, error)
}

// Collector gathers the packages produced by a job
type Collector struct {
	puller    Puller
	sourceDir string
	destDir   string
	major     int
	logger    logger.Logger
}

// NewCollector creates a Collector copying into destDir
func NewCollector(p Puller, sourceDir, destDir string, major int, log logger.Logger) *Collector {
	return &Collector{
		puller:    p,
		sourceDir: sourceDir,
		destDir:   destDir,
		major:     major,
		logger:    log,
	}
}

// Collect copies every package of job out of its environment. All
// transfers are attempted and returned, including failed ones. The error
// wraps ErrNoArtifacts when nothing matched and ErrCopyFailed when any
// copy failed.
func (c *Collector) Collect(ctx context.Context, job types.Job, h *types.ContainerHandle) ([]types.FileTransfer, error) {
	dir := path.Join(c.sourceDir, job.Package.Path)
	pattern := Pattern(job.Package.Name, c.major)
	log := c.logger.WithTarget(job.String())

	transfers, err := c.puller.PullFiles(ctx, h.Name, dir, pattern, c.destDir)
	if err != nil {
		return transfers, fmt.Errorf("collect %s: %w", job, err)
	}
	if len(transfers) == 0 {
		return transfers, fmt.Errorf("%w: %s/%s", ErrNoArtifacts, dir, pattern)
	}

	var errs []error
	for _, t := range transfers {
		if !t.OK() {
			log.Error(fmt.Sprintf("Failed to copy %s", path.Base(t.Source)), logger.WithError(t.Err))
			errs = append(errs, fmt.Errorf("%s: %w", path.Base(t.Source), t.Err))
			continue
		}
		log.Info(fmt.Sprintf("Collected %s", t.Dest))
	}

	if len(errs) > 0 {
		return transfers, fmt.Errorf("%w: %d of %d: %w", ErrCopyFailed, len(errs), len(transfers), errors.Join(errs...))
	}
	return transfers, nil
}

// Copied returns the destination paths of the successful transfers
func Copied(transfers []types.FileTransfer) []string {
	var out []string
	for _, t := range transfers {
		if t.OK() {
			out = append(out, t.Dest)
		}
	}
	return out
}
