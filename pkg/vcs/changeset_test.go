package vcs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/plamolinux/pkgbuild/pkg/logger"
	"github.com/plamolinux/pkgbuild/pkg/vcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticDiff struct {
	dirs []string
	err  error
}

func (s staticDiff) ChangedDirectories(_ context.Context, _, _ string) ([]string, error) {
	return s.dirs, s.err
}

func TestChangeSetResolver_FiltersExcludedSubtrees(t *testing.T) {
	r := vcs.NewChangeSetResolver(staticDiff{
		dirs: []string{"plamo/00_base/foo", "contrib/bar", "admin/baz"},
	}, logger.Discard())

	entries, err := r.Resolve(context.Background(), "master", "updatepkg")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "plamo/00_base/foo", entries[0].Path)
	assert.Equal(t, "00_base", entries[0].Category)
	assert.Equal(t, "foo", entries[0].Name)
}

func TestChangeSetResolver_NestedExcludedSegment(t *testing.T) {
	r := vcs.NewChangeSetResolver(staticDiff{
		dirs: []string{"plamo/contrib/foo", "plamo/03_libs/admin", "plamo/03_libs/zlib"},
	}, logger.Discard())

	entries, err := r.Resolve(context.Background(), "master", "updatepkg")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "zlib", entries[0].Name)
}

func TestChangeSetResolver_DeduplicatesAndKeepsOrder(t *testing.T) {
	r := vcs.NewChangeSetResolver(staticDiff{
		dirs: []string{"plamo/03_libs/zlib", "plamo/00_base/bash", "plamo/03_libs/zlib/", "README"},
	}, logger.Discard())

	entries, err := r.Resolve(context.Background(), "master", "updatepkg")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "zlib", entries[0].Name)
	assert.Equal(t, "bash", entries[1].Name)
}

func TestChangeSetResolver_Empty(t *testing.T) {
	r := vcs.NewChangeSetResolver(staticDiff{}, logger.Discard())

	entries, err := r.Resolve(context.Background(), "master", "updatepkg")
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestChangeSetResolver_SourceFailure(t *testing.T) {
	r := vcs.NewChangeSetResolver(staticDiff{err: errors.New("boom")}, logger.Discard())

	_, err := r.Resolve(context.Background(), "master", "updatepkg")
	assert.ErrorIs(t, err, vcs.ErrSyncFailed)
}

func TestExcluded(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"contrib/bar", true},
		{"admin/baz", true},
		{"plamo/contrib/x", true},
		{"plamo/00_base/contribution", false},
		{"plamo/03_libs/zlib", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, vcs.Excluded(tt.path))
		})
	}
}
