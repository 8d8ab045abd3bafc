// Package panel turns fleet state into a view model and forwards user
// intents to the coordinator. It is deliberately presentation-free: the TUI
// (or any other frontend) renders the view model, and every control maps to
// one Dispatcher call.
package panel

import (
	"farmctl/internal/config"
	"farmctl/internal/fleet"
)

// RowKind discriminates the entries of the rendered worker list.
type RowKind int

const (
	// RowWorker is a configured worker (or the master).
	RowWorker RowKind = iota
	// RowPlaceholder is shown when no workers are configured.
	RowPlaceholder
	// RowAddWorker is the trailing "add worker" affordance, present only
	// when the list is non-empty.
	RowAddWorker
)

// WorkerRow is one line of the worker list.
type WorkerRow struct {
	Kind    RowKind
	ID      string
	Name    string
	Address string
	Role    config.WorkerRole
	Source  config.WorkerSource
	Enabled bool
	Status  fleet.WorkerStatus
}

// SettingRow is one toggleable setting with its persisted key.
type SettingRow struct {
	Key   string
	Label string
	Value bool
}

// FarmView is the claim-controls section of the panel.
type FarmView struct {
	Available  bool
	Backend    string
	Pools      []string
	Groups     []string
	Priority   int
	Pool       string
	Group      string
	ActiveJobs int
}

// ViewModel is the complete, render-ready panel state.
type ViewModel struct {
	Workers    []WorkerRow
	Settings   []SettingRow
	Farm       FarmView
	MasterAddr string
}

// BuildViewModel derives the panel view model from a config snapshot and
// the probed statuses. Pure: no I/O, no mutation of inputs.
func BuildViewModel(cfg config.Config, statuses map[string]fleet.WorkerStatus, farmView FarmView) ViewModel {
	vm := ViewModel{Farm: farmView}

	if master, ok := cfg.Master(); ok {
		vm.MasterAddr = master.Address()
	}

	var workers []config.WorkerDefinition
	for _, w := range cfg.Workers {
		if w.Role != config.RoleMaster {
			workers = append(workers, w)
		}
	}

	if len(workers) == 0 {
		vm.Workers = []WorkerRow{{Kind: RowPlaceholder, Name: "No workers configured"}}
	} else {
		for _, w := range workers {
			status, ok := statuses[w.ID]
			if !ok {
				status = fleet.StatusUnknown
			}
			vm.Workers = append(vm.Workers, WorkerRow{
				Kind:    RowWorker,
				ID:      w.ID,
				Name:    w.Name,
				Address: w.Address(),
				Role:    w.Role,
				Source:  w.Source,
				Enabled: w.Enabled,
				Status:  status,
			})
		}
		vm.Workers = append(vm.Workers, WorkerRow{Kind: RowAddWorker, Name: "Add worker"})
	}

	vm.Settings = []SettingRow{
		{Key: "debug", Label: "Debug logging", Value: cfg.Settings.Debug},
		{Key: "auto_launch_workers", Label: "Auto-launch local workers", Value: cfg.Settings.AutoLaunchWorkers},
		{Key: "stop_workers_on_master_exit", Label: "Stop workers on master exit", Value: cfg.Settings.StopWorkersOnMasterExit},
	}

	return vm
}
