// Package container manages the isolated build environments, one per
// target architecture.
package container

import (
	"context"
	"errors"
	"io"

	"github.com/plamolinux/pkgbuild/pkg/executor"
	"github.com/plamolinux/pkgbuild/pkg/types"
)

//go:generate mockgen -destination=../mocks/runtime_mock.go -package=mocks github.com/plamolinux/pkgbuild/pkg/container Runtime

var (
	ErrCreateFailed      = errors.New("environment create failed")
	ErrStartFailed       = errors.New("environment start failed")
	ErrStopFailed        = errors.New("environment stop failed")
	ErrDestroyFailed     = errors.New("environment destroy failed")
	ErrNetworkTimeout    = errors.New("environment network not ready")
	ErrInvalidTransition = errors.New("invalid environment state transition")
)

// CreateSpec is everything the runtime needs to provision an environment
type CreateSpec struct {
	Arch           string
	Release        string
	FSType         string
	MirrorHost     string
	MirrorPath     string
	Profile        types.EnvironmentProfile
	DisableNetwork bool
}

// Runtime is the container runtime collaborator. Implementations do not
// check state; the Manager does that before every call.
type Runtime interface {
	Exists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, name string, spec CreateSpec) error
	Start(ctx context.Context, name, logLevel string) error
	IsRunning(ctx context.Context, name string) (bool, error)
	Stop(ctx context.Context, name string) error
	Destroy(ctx context.Context, name string) error

	// Exec runs argv inside the environment. out, when non-nil, receives
	// the command output as it is produced.
	Exec(ctx context.Context, name string, argv []string, out io.Writer) (*executor.Result, error)

	// PullFiles copies every file in dir matching pattern out of the
	// environment into destDir and reports one transfer per match.
	PullFiles(ctx context.Context, name, dir, pattern, destDir string) ([]types.FileTransfer, error)
}

// NameFor returns the fixed environment name for an architecture
func NameFor(arch string) string {
	return "pkgbuild_" + arch
}
