package engine

import (
	"sort"

	"github.com/plamolinux/pkgbuild/pkg/category"
	"github.com/plamolinux/pkgbuild/pkg/types"
)

// Plan expands a change-set into jobs, one per package and architecture.
// Packages are stably sorted by category priority so lower layers build
// first; architectures keep their requested order within a package.
func Plan(entries []types.ChangeEntry, archs []string, major int, baseline, compare string) []types.Job {
	table := category.TableFor(major)
	ordered := append([]types.ChangeEntry(nil), entries...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return rankOf(table, ordered[i].Category) < rankOf(table, ordered[j].Category)
	})

	jobs := make([]types.Job, 0, len(ordered)*len(archs))
	for _, entry := range ordered {
		for _, arch := range archs {
			jobs = append(jobs, types.Job{
				Package:     entry,
				Arch:        arch,
				BaselineRef: baseline,
				CompareRef:  compare,
			})
		}
	}
	return jobs
}

// unknown categories go last
func rankOf(t category.Table, c string) int {
	if r := t.Rank(c); r >= 0 {
		return r
	}
	return len(t.Ordered())
}
