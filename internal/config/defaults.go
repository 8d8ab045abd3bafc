package config

import (
	"fmt"
	"net"
	"strconv"
)

// Defaults mirrored from the worker runtime; overridable per install.
const (
	DefaultWorkerJobTimeoutSec = 60
	DefaultHeartbeatTimeoutSec = 60
	DefaultMaxBatch            = 20
	DefaultFarmPriority        = 50
	DefaultMasterPort          = 8188
)

// GetDefaultConfig returns the configuration used when no config file exists:
// a single local master entry and conservative timeouts.
func GetDefaultConfig() Config {
	return Config{
		Settings: Settings{
			Debug:                   false,
			AutoLaunchWorkers:       false,
			StopWorkersOnMasterExit: true,
			WorkerJobTimeoutSec:     DefaultWorkerJobTimeoutSec,
			HeartbeatTimeoutSec:     DefaultHeartbeatTimeoutSec,
			MaxBatch:                DefaultMaxBatch,
		},
		Farm: FarmConfig{
			Backend:         "deadline",
			DefaultPriority: DefaultFarmPriority,
		},
		Workers: []WorkerDefinition{
			{
				ID:      "master",
				Name:    "Master",
				Host:    "localhost",
				Port:    DefaultMasterPort,
				Enabled: true,
				Role:    RoleMaster,
				Source:  SourceLocal,
			},
		},
	}
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// applyDefaults fills zero-valued tunables after unmarshalling so partial
// config files behave like the documented defaults.
func applyDefaults(c *Config) {
	if c.Settings.WorkerJobTimeoutSec <= 0 {
		c.Settings.WorkerJobTimeoutSec = DefaultWorkerJobTimeoutSec
	}
	if c.Settings.HeartbeatTimeoutSec <= 0 {
		c.Settings.HeartbeatTimeoutSec = DefaultHeartbeatTimeoutSec
	}
	if c.Settings.MaxBatch <= 0 {
		c.Settings.MaxBatch = DefaultMaxBatch
	}
	if c.Farm.DefaultPriority <= 0 {
		c.Farm.DefaultPriority = DefaultFarmPriority
	}
	for i := range c.Workers {
		if c.Workers[i].Role == "" {
			c.Workers[i].Role = RoleWorker
		}
		if c.Workers[i].Source == "" {
			c.Workers[i].Source = SourceLocal
		}
		if c.Workers[i].ID == "" {
			c.Workers[i].ID = fmt.Sprintf("%s-%d", c.Workers[i].Host, c.Workers[i].Port)
		}
	}
}
