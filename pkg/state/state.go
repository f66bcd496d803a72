// Package state persists what pkgbuild knows about kept build environments
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/plamolinux/pkgbuild/pkg/logger"
	"github.com/plamolinux/pkgbuild/pkg/types"
)

// HeartbeatInterval is how often a running process refreshes its records
const HeartbeatInterval = 10 * time.Second

// staleAfter is how old a heartbeat may get before its owner is presumed dead
const staleAfter = 3 * HeartbeatInterval

// EnvironmentRecord is the persistent record of one build environment
type EnvironmentRecord struct {
	Arch       string                    `json:"arch"`
	Name       string                    `json:"name"`
	Release    string                    `json:"release"`
	Profile    *types.EnvironmentProfile `json:"profile,omitempty"`
	CreatedAt  time.Time                 `json:"createdAt"`
	LastJob    string                    `json:"lastJob,omitempty"`
	BuildCount int                       `json:"buildCount"`
	ProcessID  int                       `json:"processId"`
	Heartbeat  time.Time                 `json:"heartbeat"`
}

// StateManager handles the environment record files
type StateManager struct {
	stateDir       string
	logger         logger.Logger
	mu             sync.RWMutex
	records        map[string]*EnvironmentRecord
	heartbeatStop  chan struct{}
	heartbeatTimer *time.Ticker
}

// NewStateManager creates a state manager storing records in stateDir
func NewStateManager(stateDir string, log logger.Logger) *StateManager {
	if log == nil {
		log = logger.Discard()
	}
	return &StateManager{
		stateDir: stateDir,
		logger:   log,
		records:  make(map[string]*EnvironmentRecord),
	}
}

// Claim records that this process owns the environment of h. The creation
// profile of h is stored when known, otherwise a stored one is kept.
func (sm *StateManager) Claim(h *types.ContainerHandle, release string) (*EnvironmentRecord, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	rec := &EnvironmentRecord{
		Arch:      h.Arch,
		Name:      h.Name,
		Release:   release,
		Profile:   h.Profile,
		CreatedAt: time.Now(),
		ProcessID: os.Getpid(),
		Heartbeat: time.Now(),
	}

	if existing, err := sm.loadStateFile(h.Arch); err == nil && !h.Fresh {
		rec.CreatedAt = existing.CreatedAt
		rec.BuildCount = existing.BuildCount
		rec.LastJob = existing.LastJob
		if rec.Profile == nil {
			rec.Profile = existing.Profile
		}
	}

	if err := sm.saveStateFile(rec); err != nil {
		return nil, fmt.Errorf("failed to save environment record: %w", err)
	}
	sm.records[h.Arch] = rec
	return rec, nil
}

// RecordBuild notes that job was built in the environment of arch
func (sm *StateManager) RecordBuild(arch, job string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	rec, ok := sm.records[arch]
	if !ok {
		var err error
		rec, err = sm.loadStateFile(arch)
		if err != nil {
			return fmt.Errorf("environment record not found: %s", arch)
		}
		sm.records[arch] = rec
	}

	rec.LastJob = job
	rec.BuildCount++
	rec.Heartbeat = time.Now()
	return sm.saveStateFile(rec)
}

// Read returns the record for arch
func (sm *StateManager) Read(arch string) (*EnvironmentRecord, error) {
	sm.mu.RLock()
	if rec, ok := sm.records[arch]; ok {
		sm.mu.RUnlock()
		return rec, nil
	}
	sm.mu.RUnlock()

	return sm.loadStateFile(arch)
}

// Profile returns the stored creation profile for arch, if any
func (sm *StateManager) Profile(arch string) (*types.EnvironmentProfile, bool) {
	rec, err := sm.Read(arch)
	if err != nil || rec.Profile == nil {
		return nil, false
	}
	return rec.Profile, true
}

// Remove deletes the record for arch
func (sm *StateManager) Remove(arch string) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	delete(sm.records, arch)

	if err := os.Remove(sm.getStateFilePath(arch)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

// IsLocked reports whether another live process holds the record for arch
func (sm *StateManager) IsLocked(arch string) (bool, error) {
	rec, err := sm.loadStateFile(arch)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	if rec.ProcessID == 0 || rec.ProcessID == os.Getpid() {
		return false, nil
	}
	if time.Since(rec.Heartbeat) > staleAfter {
		return false, nil
	}

	process, err := os.FindProcess(rec.ProcessID)
	if err != nil {
		return false, nil
	}
	if err := process.Signal(syscall.Signal(0)); err != nil {
		return false, nil
	}
	return true, nil
}

// Discover returns every stored record keyed by architecture
func (sm *StateManager) Discover() (map[string]*EnvironmentRecord, error) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	records := make(map[string]*EnvironmentRecord)

	files, err := os.ReadDir(sm.stateDir)
	if err != nil {
		if os.IsNotExist(err) {
			return records, nil
		}
		return nil, fmt.Errorf("failed to read state directory: %w", err)
	}

	for _, file := range files {
		if filepath.Ext(file.Name()) != ".json" {
			continue
		}

		arch := strings.TrimSuffix(file.Name(), ".json")
		rec, err := sm.loadStateFile(arch)
		if err != nil {
			sm.logger.Warn("Failed to load state file",
				logger.WithField("arch", arch),
				logger.WithError(err))
			continue
		}
		records[arch] = rec
	}
	return records, nil
}

// Archs returns the architectures with a stored record, sorted
func (sm *StateManager) Archs() ([]string, error) {
	records, err := sm.Discover()
	if err != nil {
		return nil, err
	}
	archs := make([]string, 0, len(records))
	for a := range records {
		archs = append(archs, a)
	}
	sort.Strings(archs)
	return archs, nil
}

// StartHeartbeat refreshes the claimed records until ctx ends or
// StopHeartbeat is called
func (sm *StateManager) StartHeartbeat(ctx context.Context) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.heartbeatTimer != nil {
		return
	}

	stop := make(chan struct{})
	ticker := time.NewTicker(HeartbeatInterval)
	sm.heartbeatStop = stop
	sm.heartbeatTimer = ticker

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				sm.updateHeartbeats()
			}
		}
	}()
}

// StopHeartbeat stops the heartbeat updater
func (sm *StateManager) StopHeartbeat() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.heartbeatTimer != nil {
		sm.heartbeatTimer.Stop()
		sm.heartbeatTimer = nil
	}
	if sm.heartbeatStop != nil {
		close(sm.heartbeatStop)
		sm.heartbeatStop = nil
	}
}

// Release gives up ownership of every claimed record
func (sm *StateManager) Release() error {
	sm.StopHeartbeat()

	sm.mu.Lock()
	defer sm.mu.Unlock()

	for _, rec := range sm.records {
		rec.ProcessID = 0
		if err := sm.saveStateFile(rec); err != nil {
			sm.logger.Warn("Failed to save final state",
				logger.WithField("arch", rec.Arch),
				logger.WithError(err))
		}
	}
	return nil
}

func (sm *StateManager) getStateFilePath(arch string) string {
	return filepath.Join(sm.stateDir, arch+".json")
}

func (sm *StateManager) loadStateFile(arch string) (*EnvironmentRecord, error) {
	data, err := os.ReadFile(sm.getStateFilePath(arch))
	if err != nil {
		return nil, err
	}

	var rec EnvironmentRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse state file: %w", err)
	}
	return &rec, nil
}

func (sm *StateManager) saveStateFile(rec *EnvironmentRecord) error {
	if err := os.MkdirAll(sm.stateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	stateFile := sm.getStateFilePath(rec.Arch)
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	// Write atomically
	tempFile := stateFile + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tempFile, stateFile); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename state file: %w", err)
	}
	return nil
}

func (sm *StateManager) updateHeartbeats() {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	for _, rec := range sm.records {
		rec.Heartbeat = now
		if err := sm.saveStateFile(rec); err != nil {
			sm.logger.Debug("Failed to update heartbeat",
				logger.WithField("arch", rec.Arch),
				logger.WithError(err))
		}
	}
}
