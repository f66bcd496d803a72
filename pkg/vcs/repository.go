// Package vcs keeps the host clone of the package source tree in sync and
// computes which package directories changed between two branches.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/plamolinux/pkgbuild/pkg/logger"
)

// RemoteName is the remote every sync fetches from
const RemoteName = "origin"

// RecipePrefix is the file name prefix of a package build recipe
const RecipePrefix = "PlamoBuild."

var (
	// ErrSyncFailed is returned when the host clone cannot be created or updated
	ErrSyncFailed = errors.New("repository sync failed")

	// ErrUnknownRef is returned when a branch cannot be resolved
	ErrUnknownRef = errors.New("unknown reference")
)

// Options configures the host repository
type Options struct {
	// Path is the host directory holding the clone
	Path      string
	RemoteURL string
	Baseline  string
	Compare   string
}

// Repository is the host clone of the package source tree
type Repository struct {
	repo *git.Repository
	opts Options
	log  logger.Logger
}

// Open opens an existing clone without touching the network
func Open(opts Options, log logger.Logger) (*Repository, error) {
	repo, err := git.PlainOpen(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrSyncFailed, opts.Path, err)
	}
	return &Repository{repo: repo, opts: opts, log: log}, nil
}

// Sync clones the repository if the host clone is missing, otherwise
// fetches and fast-forwards the baseline branch. The compare branch is
// always fetched so it can be diffed as origin/<compare>.
func Sync(ctx context.Context, opts Options, log logger.Logger) (*Repository, error) {
	if _, err := os.Stat(opts.Path); os.IsNotExist(err) {
		log.Info(fmt.Sprintf("Cloning %s into %s", opts.RemoteURL, opts.Path))
		repo, err := git.PlainCloneContext(ctx, opts.Path, false, &git.CloneOptions{
			URL:           opts.RemoteURL,
			RemoteName:    RemoteName,
			ReferenceName: plumbing.NewBranchReferenceName(opts.Baseline),
		})
		if err != nil {
			return nil, fmt.Errorf("%w: clone %s: %v", ErrSyncFailed, opts.RemoteURL, err)
		}
		r := &Repository{repo: repo, opts: opts, log: log}
		if err := r.fetch(ctx, opts.Compare); err != nil {
			return nil, err
		}
		return r, nil
	}

	r, err := Open(opts, log)
	if err != nil {
		return nil, err
	}
	if err := r.fetch(ctx, opts.Baseline, opts.Compare); err != nil {
		return nil, err
	}
	if err := r.fastForward(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) fetch(ctx context.Context, branches ...string) error {
	specs := make([]gitconfig.RefSpec, 0, len(branches))
	for _, b := range branches {
		specs = append(specs, gitconfig.RefSpec(
			fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", b, RemoteName, b)))
	}

	r.log.Debug("Fetching branches", logger.WithField("branches", strings.Join(branches, ",")))
	err := r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: RemoteName,
		RefSpecs:   specs,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("%w: fetch %s: %v", ErrSyncFailed, strings.Join(branches, ","), err)
	}
	return nil
}

// fastForward checks out the baseline branch and pulls it
func (r *Repository) fastForward(ctx context.Context) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("%w: worktree: %v", ErrSyncFailed, err)
	}

	branch := plumbing.NewBranchReferenceName(r.opts.Baseline)
	if head, err := r.repo.Head(); err != nil || head.Name() != branch {
		if err := wt.Checkout(&git.CheckoutOptions{Branch: branch}); err != nil {
			return fmt.Errorf("%w: checkout %s: %v", ErrSyncFailed, r.opts.Baseline, err)
		}
	}

	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    RemoteName,
		ReferenceName: branch,
		SingleBranch:  true,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("%w: pull %s: %v", ErrSyncFailed, r.opts.Baseline, err)
	}
	return nil
}

// ChangedDirectories returns the package directories touched between the
// two branches, sorted and without duplicates. A changed file is attributed
// to the nearest enclosing directory that holds a build recipe in the
// compare tree, or to its own directory when there is none.
func (r *Repository) ChangedDirectories(ctx context.Context, base, compare string) ([]string, error) {
	from, err := r.tree(base, false)
	if err != nil {
		return nil, err
	}
	to, err := r.tree(compare, true)
	if err != nil {
		return nil, err
	}

	changes, err := from.DiffContext(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("diff %s..%s: %w", base, compare, err)
	}

	seen := make(map[string]bool)
	var dirs []string
	for _, c := range changes {
		for _, name := range []string{c.From.Name, c.To.Name} {
			if name == "" {
				continue
			}
			dir := packageDir(to, path.Dir(name))
			if dir == "." || seen[dir] {
				continue
			}
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	sort.Strings(dirs)

	r.log.Debug("Computed changed directories",
		logger.WithField("base", base),
		logger.WithField("compare", compare),
		logger.WithField("count", len(dirs)))
	return dirs, nil
}

// tree resolves a branch to its root tree. Remote-tracking refs are
// preferred for the compare side, local branches for the baseline.
func (r *Repository) tree(branch string, preferRemote bool) (*object.Tree, error) {
	local := plumbing.NewBranchReferenceName(branch)
	remote := plumbing.NewRemoteReferenceName(RemoteName, branch)
	candidates := []plumbing.ReferenceName{local, remote}
	if preferRemote {
		candidates = []plumbing.ReferenceName{remote, local}
	}

	for _, name := range candidates {
		ref, err := r.repo.Reference(name, true)
		if err != nil {
			continue
		}
		commit, err := r.repo.CommitObject(ref.Hash())
		if err != nil {
			return nil, fmt.Errorf("commit for %s: %w", name, err)
		}
		return commit.Tree()
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownRef, branch)
}

// packageDir walks up from dir until it finds a directory with a recipe
func packageDir(root *object.Tree, dir string) string {
	for d := dir; d != "." && d != "/"; d = path.Dir(d) {
		sub, err := root.Tree(d)
		if err != nil {
			continue
		}
		if hasRecipe(sub) {
			return d
		}
	}
	return dir
}

func hasRecipe(t *object.Tree) bool {
	for _, e := range t.Entries {
		if e.Mode.IsFile() && e.Mode != filemode.Symlink && strings.HasPrefix(e.Name, RecipePrefix) {
			return true
		}
	}
	return false
}
