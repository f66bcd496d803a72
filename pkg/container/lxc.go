package container

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/plamolinux/pkgbuild/pkg/executor"
	"github.com/plamolinux/pkgbuild/pkg/logger"
	"github.com/plamolinux/pkgbuild/pkg/types"
)

// Template is the LXC template used to provision environments
const Template = "plamo"

// LXC drives environments through the lxc-* command line tools
type LXC struct {
	runner  executor.Runner
	lxcPath string
	home    string
	logger  logger.Logger
}

// NewLXC creates an LXC runtime storing containers under lxcPath. home is
// the host home directory whose .gnupg is shared with environments.
func NewLXC(runner executor.Runner, lxcPath, home string, log logger.Logger) *LXC {
	return &LXC{runner: runner, lxcPath: lxcPath, home: home, logger: log}
}

func (l *LXC) cmd(tool, name string, args ...string) executor.Command {
	return executor.Cmd(tool, append([]string{"-P", l.lxcPath, "-n", name}, args...)...)
}

// Exists reports whether the container is known to LXC
func (l *LXC) Exists(ctx context.Context, name string) (bool, error) {
	res, err := l.runner.Run(ctx, l.cmd("lxc-info", name))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, executor.ErrCommandFailed) && res != nil && res.ExitCode > 0 {
		return false, nil
	}
	return false, err
}

// Create provisions the container from the plamo template and applies the
// one-time configuration customization.
func (l *LXC) Create(ctx context.Context, name string, spec CreateSpec) error {
	cmd := l.cmd("lxc-create", name,
		"-B", spec.FSType,
		"-t", Template,
		"--",
		"-a", spec.Arch,
		"-r", spec.Release,
		"-c")
	cmd.Env = map[string]string{
		"CATEGORIES": strings.Join(spec.Profile.Categories, " "),
		"ADDONPKGS":  strings.Join(spec.Profile.Addons, " "),
		"IGNOREPKGS": strings.Join(spec.Profile.Ignore, " "),
		"MIRRORSRV":  spec.MirrorHost,
		"MIRRORPATH": spec.MirrorPath,
	}

	if _, err := l.runner.Run(ctx, cmd); err != nil {
		return err
	}
	return l.customize(name, spec.DisableNetwork)
}

func (l *LXC) customize(name string, disableNetwork bool) error {
	dir := filepath.Join(l.lxcPath, name)
	path := filepath.Join(dir, "config")

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read container config: %w", err)
	}

	out := CustomizeConfig(string(data), l.home, disableNetwork)
	if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
		return fmt.Errorf("write container config: %w", err)
	}

	if err := os.MkdirAll(filepath.Join(dir, "rootfs", "root", ".gnupg"), 0o700); err != nil {
		return fmt.Errorf("create gnupg mount point: %w", err)
	}

	l.logger.Debug("Customized container config", logger.WithField("path", path))
	return nil
}

// Start starts the container in the background
func (l *LXC) Start(ctx context.Context, name, logLevel string) error {
	args := []string{"-d"}
	if logLevel != "" {
		args = append(args, "-l", logLevel)
	}
	_, err := l.runner.Run(ctx, l.cmd("lxc-start", name, args...))
	return err
}

// IsRunning reports whether the container state is RUNNING
func (l *LXC) IsRunning(ctx context.Context, name string) (bool, error) {
	res, err := l.runner.Run(ctx, l.cmd("lxc-info", name, "-s", "-H"))
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(res.Stdout) == "RUNNING", nil
}

// Stop stops the container
func (l *LXC) Stop(ctx context.Context, name string) error {
	_, err := l.runner.Run(ctx, l.cmd("lxc-stop", name))
	return err
}

// Destroy removes the container and its root filesystem
func (l *LXC) Destroy(ctx context.Context, name string) error {
	_, err := l.runner.Run(ctx, l.cmd("lxc-destroy", name))
	return err
}

// Exec runs argv inside the container with lxc-attach
func (l *LXC) Exec(ctx context.Context, name string, argv []string, out io.Writer) (*executor.Result, error) {
	cmd := l.cmd("lxc-attach", name, append([]string{"--"}, argv...)...)
	cmd.Output = out
	return l.runner.Run(ctx, cmd)
}

// RootFS returns the host path of the container root filesystem
func (l *LXC) RootFS(name string) string {
	return filepath.Join(l.lxcPath, name, "rootfs")
}

// PullFiles copies matches from the container root filesystem
func (l *LXC) PullFiles(ctx context.Context, name, dir, pattern, destDir string) ([]types.FileTransfer, error) {
	src := filepath.Join(l.RootFS(name), filepath.FromSlash(dir))
	matches, err := filepath.Glob(filepath.Join(src, pattern))
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
	}
	sort.Strings(matches)

	transfers := make([]types.FileTransfer, 0, len(matches))
	for _, m := range matches {
		if err := ctx.Err(); err != nil {
			return transfers, err
		}
		dest := filepath.Join(destDir, filepath.Base(m))
		transfers = append(transfers, types.FileTransfer{
			Source: m,
			Dest:   dest,
			Err:    copyFile(m, dest),
		})
	}
	return transfers, nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
