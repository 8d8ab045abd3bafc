package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrSecondMaster is returned when an add/update would leave the config
// with more than one master entry.
var ErrSecondMaster = errors.New("config already has a master entry")

// ErrUnknownSetting is returned by UpdateSetting for keys it does not know.
var ErrUnknownSetting = errors.New("unknown setting key")

// Store is the single write path for the persisted configuration. Every
// mutation persists before returning, so the worker list rendered from a
// snapshot and the list on disk never diverge.
type Store struct {
	mu   sync.RWMutex
	path string
	cfg  Config
}

// NewStore creates a store persisting to path, seeded with cfg.
func NewStore(path string, cfg Config) *Store {
	applyDefaults(&cfg)
	return &Store{path: path, cfg: cfg}
}

// OpenStore loads the config at path, falling back to defaults when the
// file does not exist yet.
func OpenStore(path string) (*Store, error) {
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("open config store: %w", err)
		}
		cfg = GetDefaultConfig()
	}
	applyDefaults(&cfg)
	return &Store{path: path, cfg: cfg}, nil
}

// DefaultStorePath returns the persisted config location inside the user
// config directory.
func DefaultStorePath() (string, error) {
	dir, err := GetUserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configFileName), nil
}

// Snapshot returns a copy of the current configuration. The copy is safe to
// read from any goroutine; mutations must go through the store methods.
func (s *Store) Snapshot() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.cfg
	out.Workers = make([]WorkerDefinition, len(s.cfg.Workers))
	copy(out.Workers, s.cfg.Workers)
	return out
}

// UpdateSetting patches a single named setting and persists the result.
// Patching one field at a time keeps concurrent edits to different settings
// from clobbering each other.
func (s *Store) UpdateSetting(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch key {
	case "debug":
		b, err := asBool(value)
		if err != nil {
			return fmt.Errorf("setting %q: %w", key, err)
		}
		s.cfg.Settings.Debug = b
	case "auto_launch_workers":
		b, err := asBool(value)
		if err != nil {
			return fmt.Errorf("setting %q: %w", key, err)
		}
		s.cfg.Settings.AutoLaunchWorkers = b
	case "stop_workers_on_master_exit":
		b, err := asBool(value)
		if err != nil {
			return fmt.Errorf("setting %q: %w", key, err)
		}
		s.cfg.Settings.StopWorkersOnMasterExit = b
	case "worker_job_timeout":
		n, err := asInt(value)
		if err != nil {
			return fmt.Errorf("setting %q: %w", key, err)
		}
		s.cfg.Settings.WorkerJobTimeoutSec = n
	case "heartbeat_timeout":
		n, err := asInt(value)
		if err != nil {
			return fmt.Errorf("setting %q: %w", key, err)
		}
		s.cfg.Settings.HeartbeatTimeoutSec = n
	case "max_batch":
		n, err := asInt(value)
		if err != nil {
			return fmt.Errorf("setting %q: %w", key, err)
		}
		s.cfg.Settings.MaxBatch = n
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSetting, key)
	}

	return s.persistLocked()
}

// UpdateFarmDefaults persists the farm submission defaults changed from the
// panel (priority plus pool/group selection).
func (s *Store) UpdateFarmDefaults(priority int, pool, group string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if priority > 0 {
		s.cfg.Farm.DefaultPriority = priority
	}
	s.cfg.Farm.DefaultPool = pool
	s.cfg.Farm.DefaultGroup = group
	return s.persistLocked()
}

// AddWorker appends a worker entry. Adding a second master is rejected.
func (s *Store) AddWorker(w WorkerDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.Role == RoleMaster {
		if _, ok := s.cfg.Master(); ok {
			return ErrSecondMaster
		}
	}
	if w.Role == "" {
		w.Role = RoleWorker
	}
	if w.Source == "" {
		w.Source = SourceLocal
	}
	if s.cfg.FindWorker(w.ID) >= 0 {
		return fmt.Errorf("worker %q already exists", w.ID)
	}
	s.cfg.Workers = append(s.cfg.Workers, w)
	return s.persistLocked()
}

// UpsertWorker adds the entry or replaces the existing entry with the same
// id. Used when a farm worker re-registers after a job restart.
func (s *Store) UpsertWorker(w WorkerDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.Role == "" {
		w.Role = RoleWorker
	}
	if w.Role == RoleMaster {
		if m, ok := s.cfg.Master(); ok && m.ID != w.ID {
			return ErrSecondMaster
		}
	}
	if i := s.cfg.FindWorker(w.ID); i >= 0 {
		s.cfg.Workers[i] = w
	} else {
		s.cfg.Workers = append(s.cfg.Workers, w)
	}
	return s.persistLocked()
}

// SetWorkerEnabled toggles a worker's enabled flag.
func (s *Store) SetWorkerEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.cfg.FindWorker(id)
	if i < 0 {
		return fmt.Errorf("worker %q not found", id)
	}
	s.cfg.Workers[i].Enabled = enabled
	return s.persistLocked()
}

// SetMaster promotes the worker with the given id to master, demoting any
// current master to a plain worker so the single-master invariant holds.
func (s *Store) SetMaster(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.cfg.FindWorker(id)
	if i < 0 {
		return fmt.Errorf("worker %q not found", id)
	}
	for j := range s.cfg.Workers {
		if s.cfg.Workers[j].Role == RoleMaster {
			s.cfg.Workers[j].Role = RoleWorker
		}
	}
	s.cfg.Workers[i].Role = RoleMaster
	return s.persistLocked()
}

// RemoveWorker deletes a worker entry. Removing the master is rejected.
func (s *Store) RemoveWorker(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.cfg.FindWorker(id)
	if i < 0 {
		return fmt.Errorf("worker %q not found", id)
	}
	if s.cfg.Workers[i].Role == RoleMaster {
		return errors.New("cannot remove the master entry")
	}
	s.cfg.Workers = append(s.cfg.Workers[:i], s.cfg.Workers[i+1:]...)
	return s.persistLocked()
}

// RemoveFarmWorkers deletes all farm-sourced entries and returns how many
// were removed.
func (s *Store) RemoveFarmWorkers() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.cfg.Workers[:0]
	removed := 0
	for _, w := range s.cfg.Workers {
		if w.Source == SourceFarm && w.Role != RoleMaster {
			removed++
			continue
		}
		kept = append(kept, w)
	}
	s.cfg.Workers = kept
	if removed == 0 {
		return 0, nil
	}
	return removed, s.persistLocked()
}

// persistLocked writes the current config to disk. Callers hold s.mu.
func (s *Store) persistLocked() error {
	if s.path == "" {
		return nil // in-memory store, used by tests
	}
	data, err := yaml.Marshal(&s.cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace config: %w", err)
	}
	return nil
}

func asBool(v any) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		switch t {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
	}
	return false, fmt.Errorf("expected boolean, got %T(%v)", v, v)
}

func asInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case float64:
		return int(t), nil
	}
	return 0, fmt.Errorf("expected integer, got %T(%v)", v, v)
}
