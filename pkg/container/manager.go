package container

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/plamolinux/pkgbuild/pkg/executor"
	"github.com/plamolinux/pkgbuild/pkg/logger"
	"github.com/plamolinux/pkgbuild/pkg/types"
)

// Network readiness polling defaults
const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxAttempts  = 20
)

// transitions lists the legal state changes
var transitions = map[types.ContainerState][]types.ContainerState{
	types.ContainerAbsent:  {types.ContainerCreated},
	types.ContainerCreated: {types.ContainerRunning, types.ContainerStopped},
	types.ContainerStopped: {types.ContainerRunning, types.ContainerDestroyed},
	types.ContainerRunning: {types.ContainerStopped},
}

// ManagerConfig holds the run-wide environment settings
type ManagerConfig struct {
	Release        string
	FSType         string
	MirrorHost     string
	MirrorPath     string
	LogLevel       string
	DisableNetwork bool

	// ProbeHost is resolved inside the environment to decide whether its
	// network is usable.
	ProbeHost    string
	PollInterval time.Duration
	MaxAttempts  int
}

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Manager owns the environment of every architecture in a run and checks
// state before each runtime call.
type Manager struct {
	runtime Runtime
	config  ManagerConfig
	logger  logger.Logger
	sleep   SleepFunc
	handles map[string]*types.ContainerHandle
}

// NewManager creates a Manager
func NewManager(rt Runtime, cfg ManagerConfig, log logger.Logger) *Manager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	return &Manager{
		runtime: rt,
		config:  cfg,
		logger:  log,
		sleep:   sleepContext,
		handles: make(map[string]*types.ContainerHandle),
	}
}

// SetSleep replaces the wait used between network probes
func (m *Manager) SetSleep(fn SleepFunc) {
	m.sleep = fn
}

// Runtime returns the underlying runtime
func (m *Manager) Runtime() Runtime {
	return m.runtime
}

// Handle returns the tracked handle for arch, if any
func (m *Manager) Handle(arch string) (*types.ContainerHandle, bool) {
	h, ok := m.handles[arch]
	return h, ok
}

// Exec runs argv inside the environment of h
func (m *Manager) Exec(ctx context.Context, h *types.ContainerHandle, argv []string, out io.Writer) (*executor.Result, error) {
	if h.State != types.ContainerRunning {
		return nil, fmt.Errorf("%w: exec in %s environment %s", ErrInvalidTransition, h.State, h.Name)
	}
	return m.runtime.Exec(ctx, h.Name, argv, out)
}

// Exists reports whether the environment for arch exists in the runtime
func (m *Manager) Exists(ctx context.Context, arch string) (bool, error) {
	return m.runtime.Exists(ctx, NameFor(arch))
}

// Ensure returns a running environment for arch. The environment is
// created only when the runtime does not know it, in which case profile is
// called to obtain its EnvironmentProfile. It is started only when not
// already running. Failures wrap ErrCreateFailed or ErrStartFailed.
func (m *Manager) Ensure(ctx context.Context, arch string, profile func() types.EnvironmentProfile) (*types.ContainerHandle, error) {
	name := NameFor(arch)
	h, ok := m.handles[arch]
	if !ok {
		h = &types.ContainerHandle{
			Arch:     arch,
			Name:     name,
			State:    types.ContainerAbsent,
			LogLevel: m.config.LogLevel,
		}
	}

	exists, err := m.runtime.Exists(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCreateFailed, name, err)
	}

	if !exists {
		h.State = types.ContainerAbsent
		if err := m.create(ctx, h, profile()); err != nil {
			return nil, err
		}
	} else if h.State == types.ContainerAbsent {
		// Left over from an earlier run.
		h.State = types.ContainerStopped
	}
	m.handles[arch] = h

	if err := m.Start(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (m *Manager) create(ctx context.Context, h *types.ContainerHandle, p types.EnvironmentProfile) error {
	if err := transition(h, types.ContainerCreated); err != nil {
		return err
	}

	m.logger.Info(fmt.Sprintf("Creating environment %s", h.Name),
		logger.WithField("categories", p.Categories))

	err := m.runtime.Create(ctx, h.Name, CreateSpec{
		Arch:           h.Arch,
		Release:        m.config.Release,
		FSType:         m.config.FSType,
		MirrorHost:     m.config.MirrorHost,
		MirrorPath:     m.config.MirrorPath,
		Profile:        p,
		DisableNetwork: m.config.DisableNetwork,
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCreateFailed, h.Name, err)
	}

	h.State = types.ContainerCreated
	h.Profile = &p
	h.Fresh = true
	h.NetworkReady = false
	return nil
}

// Start starts the environment unless the runtime reports it running
func (m *Manager) Start(ctx context.Context, h *types.ContainerHandle) error {
	running, err := m.runtime.IsRunning(ctx, h.Name)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStartFailed, h.Name, err)
	}
	if running {
		h.State = types.ContainerRunning
		return nil
	}
	if h.State == types.ContainerRunning {
		h.State = types.ContainerStopped
	}

	if err := transition(h, types.ContainerRunning); err != nil {
		return err
	}
	if err := m.runtime.Start(ctx, h.Name, h.LogLevel); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStartFailed, h.Name, err)
	}
	h.State = types.ContainerRunning
	m.logger.Debug("Started environment", logger.WithField("name", h.Name))
	return nil
}

// Stop stops the environment if the runtime reports it running
func (m *Manager) Stop(ctx context.Context, h *types.ContainerHandle) error {
	running, err := m.runtime.IsRunning(ctx, h.Name)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStopFailed, h.Name, err)
	}
	if !running {
		if h.State == types.ContainerRunning || h.State == types.ContainerCreated {
			h.State = types.ContainerStopped
		}
		return nil
	}

	if err := transition(h, types.ContainerStopped); err != nil {
		return err
	}
	if err := m.runtime.Stop(ctx, h.Name); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrStopFailed, h.Name, err)
	}
	h.State = types.ContainerStopped
	return nil
}

// Destroy stops the environment if needed and removes it. The handle is
// forgotten; a later Ensure for the same architecture creates a new one.
func (m *Manager) Destroy(ctx context.Context, h *types.ContainerHandle) error {
	if err := m.Stop(ctx, h); err != nil {
		return err
	}
	if err := transition(h, types.ContainerDestroyed); err != nil {
		return err
	}
	if err := m.runtime.Destroy(ctx, h.Name); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDestroyFailed, h.Name, err)
	}

	h.State = types.ContainerDestroyed
	delete(m.handles, h.Arch)
	m.logger.Info(fmt.Sprintf("Destroyed environment %s", h.Name))
	return nil
}

// WaitNetwork polls a DNS lookup inside the environment until it
// succeeds. It probes at most MaxAttempts times with PollInterval between
// probes and returns ErrNetworkTimeout after the last failure. Once a
// probe has succeeded later calls return immediately.
func (m *Manager) WaitNetwork(ctx context.Context, h *types.ContainerHandle) error {
	if h.NetworkReady {
		return nil
	}

	argv := []string{"getent", "hosts", m.config.ProbeHost}
	for attempt := 1; attempt <= m.config.MaxAttempts; attempt++ {
		res, err := m.runtime.Exec(ctx, h.Name, argv, nil)
		if err == nil && res.Success() {
			h.NetworkReady = true
			m.logger.Debug("Environment network ready",
				logger.WithField("name", h.Name),
				logger.WithField("attempts", attempt))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == m.config.MaxAttempts {
			break
		}

		m.logger.Debug("Waiting for environment network",
			logger.WithField("name", h.Name),
			logger.WithField("attempt", attempt))
		if err := m.sleep(ctx, m.config.PollInterval); err != nil {
			return err
		}
	}

	return fmt.Errorf("%w: %s: %s unresolvable after %d attempts",
		ErrNetworkTimeout, h.Name, m.config.ProbeHost, m.config.MaxAttempts)
}

func transition(h *types.ContainerHandle, to types.ContainerState) error {
	for _, s := range transitions[h.State] {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, h.Name, h.State, to)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
