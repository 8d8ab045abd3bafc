package cmd

import (
	"fmt"

	"farmctl/internal/config"
	"farmctl/internal/coordinator"
	"farmctl/internal/farm"
	"farmctl/internal/farm/deadline"
	"farmctl/internal/farm/kubernetes"
	"farmctl/internal/fleet"
	"farmctl/internal/probe"
)

// buildCoordinator wires the store, registry, prober, and the configured
// farm backend together. configPath selects an explicit config file; when
// empty the layered user/project lookup applies.
func buildCoordinator(configPath string) (*coordinator.Coordinator, error) {
	store, err := openStore(configPath)
	if err != nil {
		return nil, err
	}

	provider, err := buildProvider(store.Snapshot().Farm)
	if err != nil {
		return nil, err
	}

	registry := fleet.NewRegistry(store)
	prober := probe.New(store, registry)
	return coordinator.New(store, registry, prober, provider), nil
}

func openStore(configPath string) (*config.Store, error) {
	if configPath != "" {
		cfg, err := config.LoadConfigFromPath(configPath)
		if err != nil {
			return nil, err
		}
		return config.NewStore(configPath, cfg), nil
	}

	path, err := config.DefaultStorePath()
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	store, err := config.OpenStore(path)
	if err != nil {
		return nil, err
	}
	return store, nil
}

// buildProvider selects the farm backend. An empty backend means no farm;
// claim and release then fail with a clear error instead of guessing.
func buildProvider(cfg config.FarmConfig) (farm.Provider, error) {
	switch cfg.Backend {
	case "deadline":
		return deadline.New(), nil
	case "kubernetes":
		return kubernetes.New(cfg), nil
	case "":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown farm backend %q", cfg.Backend)
	}
}
