package fleet

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"farmctl/internal/config"
	"farmctl/pkg/logging"
)

// ErrUnknownWorker is returned for heartbeats from workers that never
// registered (or were already pruned).
var ErrUnknownWorker = errors.New("worker not registered")

// Registry tracks registered farm workers and the probed status of every
// configured worker. Worker list membership is owned by the config store;
// the registry only mirrors it with runtime state on top.
type Registry struct {
	mu       sync.RWMutex
	store    *config.Store
	workers  map[string]*WorkerInfo
	statuses map[string]WorkerStatus

	// now is swapped in tests to control staleness pruning.
	now func() time.Time
}

// NewRegistry creates a registry backed by the given config store.
func NewRegistry(store *config.Store) *Registry {
	return &Registry{
		store:    store,
		workers:  make(map[string]*WorkerInfo),
		statuses: make(map[string]WorkerStatus),
		now:      time.Now,
	}
}

// RegisterWorker records a farm worker that announced itself and upserts the
// matching entry into the config store so the rendered list and the
// persisted list stay in sync.
func (r *Registry) RegisterWorker(id, host string, port int, jobID string) error {
	if id == "" {
		return errors.New("worker id is required")
	}

	def := config.WorkerDefinition{
		ID:      id,
		Name:    fmt.Sprintf("Farm Worker (%s)", host),
		Host:    host,
		Port:    port,
		Enabled: true,
		Role:    config.RoleWorker,
		Source:  config.SourceFarm,
		JobID:   jobID,
	}
	if err := r.store.UpsertWorker(def); err != nil {
		return fmt.Errorf("register worker %s: %w", id, err)
	}

	r.mu.Lock()
	r.workers[id] = &WorkerInfo{
		ID:       id,
		Host:     host,
		Port:     port,
		JobID:    jobID,
		LastSeen: r.now(),
	}
	r.statuses[id] = StatusOnline
	r.mu.Unlock()

	logging.Info("Registry", "Registered worker %s at %s:%d (job %s)", id, host, port, jobID)
	return nil
}

// Heartbeat refreshes a registered worker's last-seen timestamp.
func (r *Registry) Heartbeat(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return fmt.Errorf("heartbeat from %s: %w", id, ErrUnknownWorker)
	}
	w.LastSeen = r.now()
	return nil
}

// UnregisterWorker drops a worker from the registry and from the config
// store.
func (r *Registry) UnregisterWorker(id string) error {
	r.mu.Lock()
	_, ok := r.workers[id]
	delete(r.workers, id)
	delete(r.statuses, id)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("unregister %s: %w", id, ErrUnknownWorker)
	}
	if err := r.store.RemoveWorker(id); err != nil {
		// The registry entry is already gone; the config entry may have been
		// removed through another path.
		logging.Warn("Registry", "Could not remove worker %s from config: %v", id, err)
	}
	logging.Info("Registry", "Unregistered worker %s", id)
	return nil
}

// ActiveWorkers prunes workers whose heartbeat is older than the configured
// timeout and returns the remainder.
func (r *Registry) ActiveWorkers() []WorkerInfo {
	timeout := time.Duration(r.store.Snapshot().Settings.HeartbeatTimeoutSec) * time.Second

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-timeout)
	var active []WorkerInfo
	for id, w := range r.workers {
		if w.LastSeen.Before(cutoff) {
			delete(r.workers, id)
			delete(r.statuses, id)
			logging.Debug("Registry", "Removed stale worker %s (last seen %s)", id, w.LastSeen.Format(time.RFC3339))
			continue
		}
		active = append(active, *w)
	}
	return active
}

// SetStatus records a probe result. Last write wins; the statuses are a
// derived view, not a source of truth.
func (r *Registry) SetStatus(id string, status WorkerStatus) {
	r.mu.Lock()
	r.statuses[id] = status
	r.mu.Unlock()
}

// StatusOf returns the last probed status for a worker, StatusUnknown if it
// was never probed.
func (r *Registry) StatusOf(id string) WorkerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if s, ok := r.statuses[id]; ok {
		return s
	}
	return StatusUnknown
}

// Statuses returns a copy of all probed statuses keyed by worker id.
func (r *Registry) Statuses() map[string]WorkerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]WorkerStatus, len(r.statuses))
	for id, s := range r.statuses {
		out[id] = s
	}
	return out
}
