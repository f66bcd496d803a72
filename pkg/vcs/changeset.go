package vcs

import (
	"context"
	"fmt"
	"strings"

	"github.com/plamolinux/pkgbuild/pkg/logger"
	"github.com/plamolinux/pkgbuild/pkg/types"
)

// ExcludedSegments name subtrees whose packages use a different build
// process and are never part of a change-set.
var ExcludedSegments = []string{"contrib", "admin"}

// DiffSource lists changed directories between two references
type DiffSource interface {
	ChangedDirectories(ctx context.Context, base, compare string) ([]string, error)
}

// ChangeSetResolver turns a directory diff into package change entries
type ChangeSetResolver struct {
	source DiffSource
	log    logger.Logger
}

// NewChangeSetResolver creates a resolver over source
func NewChangeSetResolver(source DiffSource, log logger.Logger) *ChangeSetResolver {
	return &ChangeSetResolver{source: source, log: log}
}

// Resolve returns the packages that differ between baseline and compare,
// in the order reported by the source and without duplicates. A diff
// failure wraps ErrSyncFailed.
func (r *ChangeSetResolver) Resolve(ctx context.Context, baseline, compare string) ([]types.ChangeEntry, error) {
	dirs, err := r.source.ChangedDirectories(ctx, baseline, compare)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSyncFailed, err)
	}

	entries := []types.ChangeEntry{}
	seen := make(map[string]bool)
	for _, dir := range dirs {
		if Excluded(dir) {
			r.log.Debug("Ignoring excluded path", logger.WithField("path", dir))
			continue
		}
		entry, err := types.ParseChangeEntry(dir)
		if err != nil {
			r.log.Debug("Ignoring non-package path", logger.WithField("path", dir))
			continue
		}
		if seen[entry.Path] {
			continue
		}
		seen[entry.Path] = true
		entries = append(entries, entry)
	}
	return entries, nil
}

// Excluded reports whether p lies under an excluded subtree
func Excluded(p string) bool {
	for _, seg := range strings.Split(strings.Trim(p, "/"), "/") {
		for _, ex := range ExcludedSegments {
			if seg == ex {
				return true
			}
		}
	}
	return false
}
