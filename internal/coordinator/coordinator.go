// Package coordinator glues the config store, worker registry, prober, and
// farm provider together. It is the single owner of farm job state: claims
// are single-flight, releases drop only the jobs the provider confirms, and
// removal of farm worker entries is refused while their jobs are still live.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"farmctl/internal/config"
	"farmctl/internal/farm"
	"farmctl/internal/fleet"
	"farmctl/internal/probe"
	"farmctl/pkg/logging"
)

// ErrClaimInFlight is returned when a claim is requested while a previous
// claim has not resolved yet. This closes the duplicate-submission window a
// double-clicked claim button would otherwise open.
var ErrClaimInFlight = errors.New("a claim operation is already in flight")

// ErrJobsStillActive is returned by RemoveFarmWorkers when claimed farm
// jobs are still live; releasing first prevents orphaned farm jobs.
var ErrJobsStillActive = errors.New("farm jobs still active; release workers first")

// activeJob tracks one claimed farm job.
type activeJob struct {
	Count       int
	MasterAddr  string
	SubmittedAt time.Time
}

// Status is the coordinator summary the panel and API render.
type Status struct {
	Available      bool               `json:"available"`
	Backend        string             `json:"backend,omitempty"`
	Error          string             `json:"error,omitempty"`
	TotalWorkers   int                `json:"total_workers"`
	ClaimedWorkers int                `json:"claimed_workers"`
	ActiveJobs     int                `json:"active_jobs"`
	ActiveWorkers  []fleet.WorkerInfo `json:"active_workers,omitempty"`
}

// Coordinator drives the worker fleet on behalf of the panel, CLI, HTTP
// API, and MCP tools.
type Coordinator struct {
	store    *config.Store
	registry *fleet.Registry
	prober   *probe.Prober
	provider farm.Provider

	mu         sync.Mutex
	claiming   bool
	activeJobs map[string]activeJob

	events     []chan<- Event
	eventsMu   sync.RWMutex
	httpClient *http.Client
}

// New creates a coordinator. provider may be nil when no farm backend is
// configured; claim and release then fail with farm.ErrFarmUnavailable.
func New(store *config.Store, registry *fleet.Registry, prober *probe.Prober, provider farm.Provider) *Coordinator {
	return &Coordinator{
		store:      store,
		registry:   registry,
		prober:     prober,
		provider:   provider,
		activeJobs: make(map[string]activeJob),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Store exposes the config store for read paths (panel, API).
func (c *Coordinator) Store() *config.Store { return c.store }

// Registry exposes the worker registry for read paths.
func (c *Coordinator) Registry() *fleet.Registry { return c.registry }

// Prober exposes the status prober.
func (c *Coordinator) Prober() *probe.Prober { return c.prober }

// ClaimWorkers submits a claim to the farm provider. At most one claim may
// be in flight at a time; concurrent calls fail fast with ErrClaimInFlight
// rather than double-submitting.
func (c *Coordinator) ClaimWorkers(ctx context.Context, req farm.ClaimRequest) (farm.ClaimResult, error) {
	if c.provider == nil {
		return farm.ClaimResult{}, farm.ErrFarmUnavailable
	}

	if req.MasterAddr == "" {
		if master, ok := c.store.Snapshot().Master(); ok {
			req.MasterAddr = master.Address()
		}
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return farm.ClaimResult{}, err
	}

	c.mu.Lock()
	if c.claiming {
		c.mu.Unlock()
		return farm.ClaimResult{}, ErrClaimInFlight
	}
	c.claiming = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.claiming = false
		c.mu.Unlock()
	}()

	result, err := c.provider.ClaimWorkers(ctx, req)
	if err != nil {
		c.publish(Event{Kind: EventClaimFailed, Err: err})
		return farm.ClaimResult{}, fmt.Errorf("claim %d worker(s): %w", req.Count, err)
	}

	c.mu.Lock()
	c.activeJobs[result.JobID] = activeJob{
		Count:       result.Count,
		MasterAddr:  req.MasterAddr,
		SubmittedAt: result.SubmittedAt,
	}
	c.mu.Unlock()

	c.publish(Event{Kind: EventClaimed, JobID: result.JobID, Count: result.Count})
	return result, nil
}

// ReleaseWorkers recalls every claimed farm job. Local workers are
// untouched; only jobs this coordinator submitted are deleted.
func (c *Coordinator) ReleaseWorkers(ctx context.Context) (int, error) {
	if c.provider == nil {
		return 0, farm.ErrFarmUnavailable
	}

	c.mu.Lock()
	jobIDs := make([]string, 0, len(c.activeJobs))
	for id := range c.activeJobs {
		jobIDs = append(jobIDs, id)
	}
	c.mu.Unlock()

	if len(jobIDs) == 0 {
		return 0, nil
	}

	released, err := c.provider.ReleaseWorkers(ctx, jobIDs)

	// Forget only the jobs the provider actually released. Backends fail
	// soft per job, so a nil error can still leave jobs running; those
	// stay in the table and keep the remove-workers guard armed.
	c.mu.Lock()
	for _, id := range released {
		delete(c.activeJobs, id)
	}
	remaining := len(c.activeJobs)
	c.mu.Unlock()

	if err != nil {
		return len(released), fmt.Errorf("release workers: %w", err)
	}

	if len(released) > 0 {
		c.publish(Event{Kind: EventReleased, Count: len(released)})
	}
	if remaining > 0 {
		logging.Warn("Coordinator", "Released %d farm job(s), %d still live", len(released), remaining)
	} else {
		logging.Info("Coordinator", "Released %d farm job(s)", len(released))
	}
	return len(released), nil
}

// RemoveFarmWorkers deletes farm-sourced entries from the config store.
// While claimed jobs are still live this is refused unless force is set,
// because dropping the entries first would orphan running farm jobs.
func (c *Coordinator) RemoveFarmWorkers(force bool) (int, error) {
	c.mu.Lock()
	live := len(c.activeJobs)
	c.mu.Unlock()

	if live > 0 && !force {
		return 0, fmt.Errorf("%w (%d job(s))", ErrJobsStillActive, live)
	}

	removed, err := c.store.RemoveFarmWorkers()
	if err != nil {
		return 0, fmt.Errorf("remove farm workers: %w", err)
	}
	logging.Info("Coordinator", "Removed %d farm worker entr(ies) from config", removed)
	return removed, nil
}

// ActiveJobIDs returns the ids of all claimed farm jobs.
func (c *Coordinator) ActiveJobIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]string, 0, len(c.activeJobs))
	for id := range c.activeJobs {
		ids = append(ids, id)
	}
	return ids
}

// FarmStatus assembles the farm summary: backend availability, claimed
// worker counts, and the currently active (non-stale) registered workers.
func (c *Coordinator) FarmStatus() Status {
	status := Status{}
	if c.provider != nil {
		status.Backend = c.provider.Name()
		status.Available = c.provider.Available()
		if !status.Available {
			status.Error = farm.ErrFarmUnavailable.Error()
		}
	} else {
		status.Error = farm.ErrFarmUnavailable.Error()
	}

	active := c.registry.ActiveWorkers()
	status.ActiveWorkers = active

	c.mu.Lock()
	status.ActiveJobs = len(c.activeJobs)
	claimed := 0
	for _, job := range c.activeJobs {
		claimed += job.Count
	}
	c.mu.Unlock()

	status.ClaimedWorkers = claimed
	status.TotalWorkers = len(c.store.Snapshot().Workers)
	return status
}

// ListPools enumerates farm pools, soft-failing into the {status, pools}
// shape the panel expects.
func (c *Coordinator) ListPools(ctx context.Context) farm.PoolList {
	if c.provider == nil {
		return farm.PoolList{Status: "error"}
	}
	pools, err := c.provider.ListPools(ctx)
	if err != nil {
		logging.Warn("Coordinator", "Could not fetch farm pools: %v", err)
		return farm.PoolList{Status: "error"}
	}
	return farm.PoolList{Status: "success", Pools: pools}
}

// ListGroups enumerates farm groups, soft-failing like ListPools.
func (c *Coordinator) ListGroups(ctx context.Context) farm.GroupList {
	if c.provider == nil {
		return farm.GroupList{Status: "error"}
	}
	groups, err := c.provider.ListGroups(ctx)
	if err != nil {
		logging.Warn("Coordinator", "Could not fetch farm groups: %v", err)
		return farm.GroupList{Status: "error"}
	}
	return farm.GroupList{Status: "success", Groups: groups}
}

// Run starts the background loops: status probing and stale-worker
// pruning. It blocks until ctx is cancelled, then honors the
// stop-workers-on-master-exit setting.
func (c *Coordinator) Run(ctx context.Context) error {
	go c.prober.Monitor(ctx, probe.DefaultInterval, func(id string, status fleet.WorkerStatus) {
		c.publish(Event{Kind: EventStatusChanged, WorkerID: id, WorkerStatus: status})
	})

	pruneTicker := time.NewTicker(30 * time.Second)
	defer pruneTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return c.shutdown()
		case <-pruneTicker.C:
			c.registry.ActiveWorkers() // prunes stale entries as a side effect
		}
	}
}

// shutdown releases claimed workers when configured to do so. A fresh
// context is used because the run context is already cancelled.
func (c *Coordinator) shutdown() error {
	if !c.store.Snapshot().Settings.StopWorkersOnMasterExit {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if _, err := c.ReleaseWorkers(ctx); err != nil && !errors.Is(err, farm.ErrFarmUnavailable) {
		return fmt.Errorf("release workers on shutdown: %w", err)
	}
	return nil
}
