package vcs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/plamolinux/pkgbuild/pkg/logger"
	"github.com/plamolinux/pkgbuild/pkg/vcs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sourceTree struct {
	dir  string
	repo *git.Repository
	wt   *git.Worktree
}

func newSourceTree(t *testing.T) *sourceTree {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &sourceTree{dir: dir, repo: repo, wt: wt}
}

func (s *sourceTree) write(t *testing.T, files ...string) {
	t.Helper()
	for _, f := range files {
		full := filepath.Join(s.dir, filepath.FromSlash(f))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(f+"\n"), 0o644))
		_, err := s.wt.Add(f)
		require.NoError(t, err)
	}
}

func (s *sourceTree) commit(t *testing.T, msg string) {
	t.Helper()
	_, err := s.wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "Test User", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

func (s *sourceTree) branch(t *testing.T, name string) {
	t.Helper()
	require.NoError(t, s.wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Create: true,
	}))
}

func setupChangedTree(t *testing.T) *sourceTree {
	t.Helper()

	s := newSourceTree(t)
	s.write(t,
		"README",
		"plamo/00_base/bash/PlamoBuild.bash",
		"plamo/03_libs/zlib/PlamoBuild.zlib",
	)
	s.commit(t, "initial")

	s.branch(t, "updatepkg")
	s.write(t,
		"plamo/03_libs/zlib/patches/fix.patch",
		"plamo/05_ext/newpkg/PlamoBuild.newpkg",
		"contrib/foo/PlamoBuild.foo",
	)
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "plamo/03_libs/zlib/PlamoBuild.zlib"), []byte("updated\n"), 0o644))
	_, err := s.wt.Add("plamo/03_libs/zlib/PlamoBuild.zlib")
	require.NoError(t, err)
	s.commit(t, "update zlib")
	return s
}

func TestRepository_ChangedDirectories(t *testing.T) {
	s := setupChangedTree(t)

	repo, err := vcs.Open(vcs.Options{Path: s.dir}, logger.Discard())
	require.NoError(t, err)

	dirs, err := repo.ChangedDirectories(context.Background(), "master", "updatepkg")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"contrib/foo",
		"plamo/03_libs/zlib",
		"plamo/05_ext/newpkg",
	}, dirs)
}

func TestRepository_ChangedDirectoriesFeedResolver(t *testing.T) {
	s := setupChangedTree(t)

	repo, err := vcs.Open(vcs.Options{Path: s.dir}, logger.Discard())
	require.NoError(t, err)

	entries, err := vcs.NewChangeSetResolver(repo, logger.Discard()).
		Resolve(context.Background(), "master", "updatepkg")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "zlib", entries[0].Name)
	assert.Equal(t, "05_ext", entries[1].Category)
}

func TestRepository_NoChanges(t *testing.T) {
	s := newSourceTree(t)
	s.write(t, "plamo/00_base/bash/PlamoBuild.bash")
	s.commit(t, "initial")
	s.branch(t, "updatepkg")

	repo, err := vcs.Open(vcs.Options{Path: s.dir}, logger.Discard())
	require.NoError(t, err)

	dirs, err := repo.ChangedDirectories(context.Background(), "master", "updatepkg")
	require.NoError(t, err)
	assert.Empty(t, dirs)
}

func TestRepository_UnknownRef(t *testing.T) {
	s := newSourceTree(t)
	s.write(t, "README")
	s.commit(t, "initial")

	repo, err := vcs.Open(vcs.Options{Path: s.dir}, logger.Discard())
	require.NoError(t, err)

	_, err = repo.ChangedDirectories(context.Background(), "master", "missing")
	assert.ErrorIs(t, err, vcs.ErrUnknownRef)
}

func TestOpen_NotARepository(t *testing.T) {
	_, err := vcs.Open(vcs.Options{Path: t.TempDir()}, logger.Discard())
	assert.ErrorIs(t, err, vcs.ErrSyncFailed)
}

func TestSync_MissingRemote(t *testing.T) {
	s := newSourceTree(t)
	s.write(t, "README")
	s.commit(t, "initial")

	_, err := vcs.Sync(context.Background(), vcs.Options{
		Path:     s.dir,
		Baseline: "master",
		Compare:  "updatepkg",
	}, logger.Discard())
	assert.ErrorIs(t, err, vcs.ErrSyncFailed)
}
