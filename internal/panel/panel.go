package panel

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"

	"farmctl/internal/config"
	"farmctl/internal/farm"
	"farmctl/internal/fleet"
	"farmctl/pkg/logging"
)

// Dispatcher is the narrow command surface the panel drives. The
// coordinator implements it in production; tests substitute mocks.
type Dispatcher interface {
	ClaimWorkers(ctx context.Context, req farm.ClaimRequest) (farm.ClaimResult, error)
	ReleaseWorkers(ctx context.Context) (int, error)
	RemoveFarmWorkers(force bool) (int, error)
	ClearVRAM(ctx context.Context) int
	InterruptAll(ctx context.Context) int
	ListPools(ctx context.Context) farm.PoolList
	ListGroups(ctx context.Context) farm.GroupList
	ActiveJobIDs() []string
}

// SettingsWriter persists single-setting patches.
type SettingsWriter interface {
	UpdateSetting(key string, value any) error
}

// ConfigReader provides the panel's read path.
type ConfigReader interface {
	Snapshot() config.Config
}

// StatusReader provides probed worker statuses.
type StatusReader interface {
	Statuses() map[string]fleet.WorkerStatus
}

// Renderer consumes a built view model. The TUI implements this.
type Renderer interface {
	RenderPanel(vm ViewModel)
}

// Panel observes fleet state and translates user intents into collaborator
// calls. Renders are single-flight: a render requested while one is in
// flight is dropped, not queued.
type Panel struct {
	dispatcher Dispatcher
	settings   SettingsWriter
	cfg        ConfigReader
	statuses   StatusReader
	renderer   Renderer

	rendering atomic.Bool

	// Previous dropdown contents, retained when a pool/group fetch fails.
	pools  []string
	groups []string
}

// New creates a panel over its collaborators.
func New(dispatcher Dispatcher, settings SettingsWriter, cfg ConfigReader, statuses StatusReader, renderer Renderer) *Panel {
	return &Panel{
		dispatcher: dispatcher,
		settings:   settings,
		cfg:        cfg,
		statuses:   statuses,
		renderer:   renderer,
	}
}

// Render rebuilds the view model and hands it to the renderer. A second
// call while a render is in flight is a silent no-op. The in-flight latch
// is always released, including when the renderer panics.
func (p *Panel) Render(ctx context.Context) {
	if !p.rendering.CompareAndSwap(false, true) {
		logging.Debug("Panel", "Render already in flight, dropping request")
		return
	}
	defer p.rendering.Store(false)

	if p.renderer == nil {
		logging.Debug("Panel", "No renderer attached, aborting render")
		return
	}

	cfg := p.cfg.Snapshot()
	statuses := p.statuses.Statuses()

	farmView := p.buildFarmView(ctx, cfg)
	vm := BuildViewModel(cfg, statuses, farmView)
	p.renderer.RenderPanel(vm)
}

// Rendering reports whether a render is currently in flight.
func (p *Panel) Rendering() bool { return p.rendering.Load() }

// buildFarmView fetches pool/group lists, keeping the previous contents on
// a soft failure.
func (p *Panel) buildFarmView(ctx context.Context, cfg config.Config) FarmView {
	view := FarmView{
		Backend:    cfg.Farm.Backend,
		Priority:   cfg.Farm.DefaultPriority,
		Pool:       cfg.Farm.DefaultPool,
		Group:      cfg.Farm.DefaultGroup,
		ActiveJobs: len(p.dispatcher.ActiveJobIDs()),
	}

	if pools := p.dispatcher.ListPools(ctx); pools.Status == "success" {
		p.pools = pools.Pools
		view.Available = true
	} else {
		logging.Warn("Panel", "Pool fetch failed, keeping previous list")
	}
	if groups := p.dispatcher.ListGroups(ctx); groups.Status == "success" {
		p.groups = groups.Groups
	} else {
		logging.Warn("Panel", "Group fetch failed, keeping previous list")
	}

	view.Pools = p.pools
	view.Groups = p.groups
	return view
}

// ToggleSetting flips one boolean setting, sending exactly the changed key
// and its new value to the settings writer.
func (p *Panel) ToggleSetting(key string, value bool) error {
	if err := p.settings.UpdateSetting(key, value); err != nil {
		return fmt.Errorf("toggle %s: %w", key, err)
	}
	return nil
}

// ParseWorkerCount interprets the claim-count field. An empty or
// non-numeric field falls back to the default claim size.
func ParseWorkerCount(field string) int {
	n, err := strconv.Atoi(field)
	if err != nil || n < 1 {
		return farm.DefaultClaimCount
	}
	return n
}

// Claim submits a claim for the count shown in the panel's count field.
func (p *Panel) Claim(ctx context.Context, countField string, priority int, pool, group string) error {
	req := farm.ClaimRequest{
		Count:    ParseWorkerCount(countField),
		Priority: priority,
		Pool:     pool,
		Group:    group,
	}
	if _, err := p.dispatcher.ClaimWorkers(ctx, req); err != nil {
		return err
	}
	return nil
}

// ReleaseAll recalls every farm-claimed worker. One dispatch per call, no
// arguments, regardless of the current worker count.
func (p *Panel) ReleaseAll(ctx context.Context) error {
	_, err := p.dispatcher.ReleaseWorkers(ctx)
	return err
}

// RemoveRemoteWorkers drops farm-sourced entries from the config.
func (p *Panel) RemoveRemoteWorkers() error {
	_, err := p.dispatcher.RemoveFarmWorkers(false)
	return err
}

// ClearVRAM and Interrupt forward the two fleet-wide bulk actions.
func (p *Panel) ClearVRAM(ctx context.Context) { p.dispatcher.ClearVRAM(ctx) }

// Interrupt aborts execution on all enabled workers.
func (p *Panel) Interrupt(ctx context.Context) { p.dispatcher.InterruptAll(ctx) }
