// Package probe implements the worker status prober: periodic, parallel
// liveness checks against every enabled worker's stats endpoint.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"farmctl/internal/config"
	"farmctl/internal/fleet"
	"farmctl/pkg/logging"
)

const (
	// DefaultInterval matches the status check cadence of the worker runtime.
	DefaultInterval = 5 * time.Second
	probeTimeout    = 3 * time.Second
)

// ResultFunc receives one probe result. Called from probe goroutines; no
// ordering is guaranteed between workers.
type ResultFunc func(workerID string, status fleet.WorkerStatus)

// Prober checks worker liveness without ever blocking the render path:
// callers fire ProbeAll and results arrive opportunistically via callback.
type Prober struct {
	store    *config.Store
	registry *fleet.Registry
	client   *http.Client

	// baseURL is swapped in tests to point at an httptest server.
	baseURL func(w config.WorkerDefinition) string
}

// New creates a prober over the given store and registry.
func New(store *config.Store, registry *fleet.Registry) *Prober {
	return &Prober{
		store:    store,
		registry: registry,
		client:   &http.Client{Timeout: probeTimeout},
		baseURL: func(w config.WorkerDefinition) string {
			return fmt.Sprintf("http://%s", w.Address())
		},
	}
}

// statsResponse is the subset of the worker stats payload the prober reads.
type statsResponse struct {
	QueueRemaining int `json:"queue_remaining"`
}

// ProbeWorker checks a single worker and returns its status.
func (p *Prober) ProbeWorker(ctx context.Context, w config.WorkerDefinition) fleet.WorkerStatus {
	url := p.baseURL(w) + "/system_stats"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fleet.StatusOffline
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fleet.StatusOffline
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fleet.StatusOffline
	}

	var stats statsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		// Reachable but speaking something unexpected; treat as online so a
		// newer worker build does not show as down.
		logging.Debug("Prober", "Worker %s returned undecodable stats: %v", w.ID, err)
		return fleet.StatusOnline
	}
	if stats.QueueRemaining > 0 {
		return fleet.StatusBusy
	}
	return fleet.StatusOnline
}

// ProbeAll probes every enabled worker concurrently. Each worker is marked
// StatusChecking up front; results land via the registry and the optional
// callback as they arrive.
func (p *Prober) ProbeAll(ctx context.Context, onResult ResultFunc) {
	cfg := p.store.Snapshot()

	var wg sync.WaitGroup
	for _, w := range cfg.Workers {
		if !w.Enabled || w.Role == config.RoleMaster {
			continue
		}
		p.registry.SetStatus(w.ID, fleet.StatusChecking)

		wg.Add(1)
		go func(w config.WorkerDefinition) {
			defer wg.Done()
			status := p.ProbeWorker(ctx, w)
			p.registry.SetStatus(w.ID, status)
			if onResult != nil {
				onResult(w.ID, status)
			}
		}(w)
	}
	wg.Wait()
}

// Monitor probes all workers on a fixed interval until the context is
// cancelled. One immediate pass runs before the first tick.
func (p *Prober) Monitor(ctx context.Context, interval time.Duration, onResult ResultFunc) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	p.ProbeAll(ctx, onResult)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProbeAll(ctx, onResult)
		}
	}
}
