package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfigFile(t *testing.T, path string, content Config) {
	t.Helper()
	data, err := yaml.Marshal(&content)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

// mockConfigPaths points the layered lookup at tempDir and restores the
// real lookup on cleanup.
func mockConfigPaths(t *testing.T, tempDir string) (userPath, projectPath string) {
	t.Helper()
	originalUser := getUserConfigPath
	originalProject := getProjectConfigPath
	t.Cleanup(func() {
		getUserConfigPath = originalUser
		getProjectConfigPath = originalProject
	})

	userPath = filepath.Join(tempDir, "user", configFileName)
	projectPath = filepath.Join(tempDir, "project", configFileName)
	getUserConfigPath = func() (string, error) { return userPath, nil }
	getProjectConfigPath = func() (string, error) { return projectPath, nil }
	return userPath, projectPath
}

func TestLoadConfigDefaultsOnly(t *testing.T) {
	mockConfigPaths(t, t.TempDir())

	cfg, err := LoadConfig()
	require.NoError(t, err)

	want := GetDefaultConfig()
	assert.Equal(t, want.Settings, cfg.Settings)
	assert.Equal(t, want.Farm.Backend, cfg.Farm.Backend)
	master, ok := cfg.Master()
	require.True(t, ok)
	assert.Equal(t, DefaultMasterPort, master.Port)
}

func TestLoadConfigUserOverride(t *testing.T) {
	userPath, _ := mockConfigPaths(t, t.TempDir())

	writeConfigFile(t, userPath, Config{
		Farm: FarmConfig{Backend: "kubernetes", DefaultPriority: 75},
	})

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "kubernetes", cfg.Farm.Backend)
	assert.Equal(t, 75, cfg.Farm.DefaultPriority)
	// Untouched layers keep their defaults.
	assert.Equal(t, DefaultHeartbeatTimeoutSec, cfg.Settings.HeartbeatTimeoutSec)
}

func TestLoadConfigProjectOverridesUser(t *testing.T) {
	userPath, projectPath := mockConfigPaths(t, t.TempDir())

	writeConfigFile(t, userPath, Config{
		Farm: FarmConfig{DefaultPool: "gpu-a", DefaultPriority: 30},
	})
	writeConfigFile(t, projectPath, Config{
		Farm: FarmConfig{DefaultPool: "gpu-b"},
	})

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "gpu-b", cfg.Farm.DefaultPool)
	// User-layer value survives where the project layer is silent.
	assert.Equal(t, 30, cfg.Farm.DefaultPriority)
}

func TestLoadConfigMergesWorkersByID(t *testing.T) {
	userPath, projectPath := mockConfigPaths(t, t.TempDir())

	writeConfigFile(t, userPath, Config{
		Workers: []WorkerDefinition{
			{ID: "w1", Name: "User box", Host: "10.0.0.5", Port: 8188, Enabled: true},
		},
	})
	writeConfigFile(t, projectPath, Config{
		Workers: []WorkerDefinition{
			{ID: "w1", Name: "Project box", Host: "10.0.0.5", Port: 8188, Enabled: false},
			{ID: "w2", Name: "Extra box", Host: "10.0.0.6", Port: 8188, Enabled: true},
		},
	})

	cfg, err := LoadConfig()
	require.NoError(t, err)

	i := cfg.FindWorker("w1")
	require.GreaterOrEqual(t, i, 0)
	assert.Equal(t, "Project box", cfg.Workers[i].Name)
	assert.False(t, cfg.Workers[i].Enabled)
	assert.GreaterOrEqual(t, cfg.FindWorker("w2"), 0)
}

func TestLoadConfigMalformedFileFails(t *testing.T) {
	userPath, _ := mockConfigPaths(t, t.TempDir())
	require.NoError(t, os.MkdirAll(filepath.Dir(userPath), 0o755))
	require.NoError(t, os.WriteFile(userPath, []byte("workers: [not: valid"), 0o644))

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "explicit.yaml")
	writeConfigFile(t, path, Config{
		Farm: FarmConfig{Backend: "deadline"},
	})

	cfg, err := LoadConfigFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "deadline", cfg.Farm.Backend)
	// applyDefaults still fills the gaps.
	assert.Equal(t, DefaultMaxBatch, cfg.Settings.MaxBatch)

	_, err = LoadConfigFromPath(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
