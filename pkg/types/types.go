// Package types provides the data model shared by pkgbuild components
package types

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// ErrInvalidPath is returned when a repository path cannot name a package
var ErrInvalidPath = errors.New("path does not name a package directory")

// ErrInvalidRelease is returned when a release identifier has no major version
var ErrInvalidRelease = errors.New("invalid release identifier")

// ChangeEntry is a package directory that differs between two references.
// Category and Name are positional segments of Path.
type ChangeEntry struct {
	Path     string `json:"path" yaml:"path"`
	Category string `json:"category" yaml:"category"`
	Name     string `json:"name" yaml:"name"`
}

// ParseChangeEntry splits a repository-relative directory path such as
// "plamo/03_libs/zlib" into its category and package name.
func ParseChangeEntry(p string) (ChangeEntry, error) {
	clean := strings.Trim(path.Clean(strings.TrimSpace(p)), "/")
	if clean == "" || clean == "." {
		return ChangeEntry{}, fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}

	segments := strings.Split(clean, "/")
	if len(segments) < 2 {
		return ChangeEntry{}, fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}

	return ChangeEntry{
		Path:     clean,
		Category: segments[1],
		Name:     segments[len(segments)-1],
	}, nil
}

func (c ChangeEntry) String() string {
	return c.Path
}

// EnvironmentProfile describes what gets preinstalled into a build
// environment. Categories are unique and kept in priority order.
type EnvironmentProfile struct {
	Categories []string `json:"categories" yaml:"categories"`
	Addons     []string `json:"addons" yaml:"addons"`
	Ignore     []string `json:"ignore" yaml:"ignore"`
}

// Covers reports whether every category and addon of other is already part
// of p, i.e. an environment built from p can build a package needing other.
func (p EnvironmentProfile) Covers(other EnvironmentProfile) bool {
	return isSubset(other.Categories, p.Categories) && isSubset(other.Addons, p.Addons)
}

// Missing returns the categories of other that p does not provide
func (p EnvironmentProfile) Missing(other EnvironmentProfile) []string {
	have := toSet(p.Categories)
	var missing []string
	for _, c := range other.Categories {
		if !have[c] {
			missing = append(missing, c)
		}
	}
	return missing
}

func isSubset(sub, super []string) bool {
	set := toSet(super)
	for _, s := range sub {
		if !set[s] {
			return false
		}
	}
	return true
}

func toSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return set
}

// Release identifies the target OS release, e.g. "7.x" or "8.0"
type Release struct {
	ID    string
	Major int
}

// ParseRelease extracts the major version from a release identifier
func ParseRelease(id string) (Release, error) {
	id = strings.TrimSpace(id)
	major, _, _ := strings.Cut(id, ".")
	n, err := strconv.Atoi(major)
	if err != nil || n <= 0 {
		return Release{}, fmt.Errorf("%w: %q", ErrInvalidRelease, id)
	}
	return Release{ID: id, Major: n}, nil
}

func (r Release) String() string {
	return r.ID
}

// Job is one (package, architecture) unit of work
type Job struct {
	Package     ChangeEntry
	Arch        string
	BaselineRef string
	CompareRef  string
}

// String returns "<name>@<arch>", used to scope log output
func (j Job) String() string {
	return fmt.Sprintf("%s@%s", j.Package.Name, j.Arch)
}

// ContainerState represents the lifecycle state of a build environment
type ContainerState string

const (
	ContainerAbsent    ContainerState = "absent"
	ContainerCreated   ContainerState = "created"
	ContainerStopped   ContainerState = "stopped"
	ContainerRunning   ContainerState = "running"
	ContainerDestroyed ContainerState = "destroyed"
)

// ContainerHandle tracks one build environment per architecture
type ContainerHandle struct {
	Arch     string
	Name     string
	State    ContainerState
	LogLevel string

	// Profile is the profile the environment was created with. Nil when
	// the environment predates this run and no record of it was kept.
	Profile *EnvironmentProfile

	// Fresh is true when the environment was created during this run.
	Fresh bool

	// NetworkReady is set once the readiness probe has succeeded.
	NetworkReady bool
}

// OutcomeKind tags a PipelineOutcome
type OutcomeKind string

const (
	OutcomeSucceeded OutcomeKind = "succeeded"
	OutcomeSkipped   OutcomeKind = "skipped"
	OutcomeFatal     OutcomeKind = "fatal"
)

// PipelineOutcome is the result of running the build pipeline for one job
type PipelineOutcome struct {
	Kind   OutcomeKind
	Stage  string
	Reason string
	Err    error

	// Recipe is the recipe script the stages ran against.
	Recipe string

	// Artifacts holds the host paths of collected packages once the
	// orchestrator has collected them.
	Artifacts []string
}

// Succeeded returns an outcome for a job whose package stage completed
func Succeeded(recipe string) PipelineOutcome {
	return PipelineOutcome{Kind: OutcomeSucceeded, Recipe: recipe}
}

// Skipped returns an outcome that ends the current job only
func Skipped(stage, reason string) PipelineOutcome {
	return PipelineOutcome{Kind: OutcomeSkipped, Stage: stage, Reason: reason}
}

// Fatal returns an outcome that aborts the whole run
func Fatal(stage string, err error) PipelineOutcome {
	return PipelineOutcome{Kind: OutcomeFatal, Stage: stage, Err: err}
}

func (o PipelineOutcome) String() string {
	switch o.Kind {
	case OutcomeSkipped:
		return fmt.Sprintf("skipped at %s: %s", o.Stage, o.Reason)
	case OutcomeFatal:
		return fmt.Sprintf("fatal at %s: %v", o.Stage, o.Err)
	default:
		return string(o.Kind)
	}
}

// FileTransfer is the outcome of copying one file out of an environment
type FileTransfer struct {
	Source string
	Dest   string
	Err    error
}

// OK reports whether the copy succeeded
func (f FileTransfer) OK() bool {
	return f.Err == nil
}
