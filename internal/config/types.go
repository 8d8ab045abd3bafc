package config

// WorkerRole distinguishes the single orchestrating master entry from
// compute workers.
type WorkerRole string

const (
	RoleMaster WorkerRole = "master"
	RoleWorker WorkerRole = "worker"
)

// WorkerSource records how a worker entry came into existence.
type WorkerSource string

const (
	// SourceLocal workers were configured by hand (local or remote machines).
	SourceLocal WorkerSource = "local"
	// SourceFarm workers were claimed through the render-farm scheduler and
	// registered themselves once the farm scheduled their job.
	SourceFarm WorkerSource = "farm"
)

// WorkerDefinition is one entry in the persisted worker list.
type WorkerDefinition struct {
	ID         string       `yaml:"id" json:"id"`
	Name       string       `yaml:"name,omitempty" json:"name,omitempty"`
	Host       string       `yaml:"host" json:"host"`
	Port       int          `yaml:"port" json:"port"`
	CUDADevice int          `yaml:"cudaDevice,omitempty" json:"cuda_device,omitempty"`
	Enabled    bool         `yaml:"enabled" json:"enabled"`
	Role       WorkerRole   `yaml:"role,omitempty" json:"role,omitempty"`
	Source     WorkerSource `yaml:"source,omitempty" json:"source,omitempty"`
	// JobID is the farm job that spawned this worker, empty for local entries.
	JobID string `yaml:"jobId,omitempty" json:"job_id,omitempty"`
	// ExtraArgs are passed through to auto-launched worker processes.
	ExtraArgs string `yaml:"extraArgs,omitempty" json:"extra_args,omitempty"`
}

// Address returns the host:port string used to reach the worker.
func (w WorkerDefinition) Address() string {
	if w.Port == 0 {
		return w.Host
	}
	return joinHostPort(w.Host, w.Port)
}

// Settings holds the process-wide configuration toggles and tunables.
type Settings struct {
	Debug                   bool `yaml:"debug" json:"debug"`
	AutoLaunchWorkers       bool `yaml:"autoLaunchWorkers" json:"auto_launch_workers"`
	StopWorkersOnMasterExit bool `yaml:"stopWorkersOnMasterExit" json:"stop_workers_on_master_exit"`
	// WorkerJobTimeoutSec bounds how long a dispatched job may run on a worker.
	WorkerJobTimeoutSec int `yaml:"workerJobTimeoutSec,omitempty" json:"worker_job_timeout,omitempty"`
	// HeartbeatTimeoutSec is the staleness bound for farm worker heartbeats.
	HeartbeatTimeoutSec int `yaml:"heartbeatTimeoutSec,omitempty" json:"heartbeat_timeout,omitempty"`
	// MaxBatch caps items per batch sent to a worker.
	MaxBatch int `yaml:"maxBatch,omitempty" json:"max_batch,omitempty"`
}

// FarmConfig selects and configures the render-farm backend.
type FarmConfig struct {
	// Backend is "deadline" or "kubernetes". Empty disables farm integration.
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"`
	// DefaultPriority is used when a claim request carries no priority.
	DefaultPriority int `yaml:"defaultPriority,omitempty" json:"default_priority,omitempty"`
	// DefaultPool and DefaultGroup preselect the farm targeting; "none"
	// (or empty) leaves the job untargeted.
	DefaultPool  string `yaml:"defaultPool,omitempty" json:"default_pool,omitempty"`
	DefaultGroup string `yaml:"defaultGroup,omitempty" json:"default_group,omitempty"`
	// Kubernetes backend fields.
	KubeContext   string `yaml:"kubeContext,omitempty" json:"kube_context,omitempty"`
	KubeNamespace string `yaml:"kubeNamespace,omitempty" json:"kube_namespace,omitempty"`
	WorkerImage   string `yaml:"workerImage,omitempty" json:"worker_image,omitempty"`
}

// Config is the top-level persisted configuration.
type Config struct {
	Settings Settings           `yaml:"settings" json:"settings"`
	Farm     FarmConfig         `yaml:"farm,omitempty" json:"farm,omitempty"`
	Workers  []WorkerDefinition `yaml:"workers" json:"workers"`
}

// Master returns the master entry and whether one exists.
func (c Config) Master() (WorkerDefinition, bool) {
	for _, w := range c.Workers {
		if w.Role == RoleMaster {
			return w, true
		}
	}
	return WorkerDefinition{}, false
}

// EnabledWorkers returns the enabled non-master entries.
func (c Config) EnabledWorkers() []WorkerDefinition {
	var out []WorkerDefinition
	for _, w := range c.Workers {
		if w.Enabled && w.Role != RoleMaster {
			out = append(out, w)
		}
	}
	return out
}

// FindWorker returns the index of the worker with the given id, or -1.
func (c Config) FindWorker(id string) int {
	for i, w := range c.Workers {
		if w.ID == id {
			return i
		}
	}
	return -1
}
