package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// For mocking in tests
var osUserHomeDir = os.UserHomeDir
var osGetwd = os.Getwd

const (
	userConfigDir    = ".config/farmctl"
	projectConfigDir = ".farmctl"
	configFileName   = "config.yaml"
)

// LoadConfig loads the farmctl configuration by layering default, user, and
// project settings. Missing files are not an error; malformed files are.
func LoadConfig() (Config, error) {
	config := GetDefaultConfig()

	userConfigPath, err := getUserConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine user config path: %v\n", err)
	} else {
		if _, err := os.Stat(userConfigPath); !os.IsNotExist(err) {
			userConfig, err := loadConfigFromFile(userConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading user config from %s: %w", userConfigPath, err)
			}
			config = mergeConfigs(config, userConfig)
		}
	}

	projectConfigPath, err := getProjectConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not determine project config path: %v\n", err)
	} else {
		if _, err := os.Stat(projectConfigPath); !os.IsNotExist(err) {
			projectConfig, err := loadConfigFromFile(projectConfigPath)
			if err != nil {
				return Config{}, fmt.Errorf("error loading project config from %s: %w", projectConfigPath, err)
			}
			config = mergeConfigs(config, projectConfig)
		}
	}

	applyDefaults(&config)
	return config, nil
}

// LoadConfigFromPath loads the configuration from a single explicit file,
// skipping the layered lookup. Used by --config.
func LoadConfigFromPath(path string) (Config, error) {
	config, err := loadConfigFromFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("error loading config from %s: %w", path, err)
	}
	applyDefaults(&config)
	return config, nil
}

var getUserConfigPath = func() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir, configFileName), nil
}

var getProjectConfigPath = func() (string, error) {
	wd, err := osGetwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, projectConfigDir, configFileName), nil
}

// loadConfigFromFile loads a Config from a YAML file.
func loadConfigFromFile(filePath string) (Config, error) {
	var config Config
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Config{}, err
	}
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return Config{}, err
	}
	return config, nil
}

// mergeConfigs merges 'overlay' config into 'base' config. Workers are
// merged by id so an overlay can adjust a single entry without restating
// the whole list.
func mergeConfigs(base, overlay Config) Config {
	merged := base

	if overlay.Settings != (Settings{}) {
		merged.Settings = overlay.Settings
	}
	if overlay.Farm.Backend != "" {
		merged.Farm.Backend = overlay.Farm.Backend
	}
	if overlay.Farm.DefaultPriority != 0 {
		merged.Farm.DefaultPriority = overlay.Farm.DefaultPriority
	}
	if overlay.Farm.DefaultPool != "" {
		merged.Farm.DefaultPool = overlay.Farm.DefaultPool
	}
	if overlay.Farm.DefaultGroup != "" {
		merged.Farm.DefaultGroup = overlay.Farm.DefaultGroup
	}
	if overlay.Farm.KubeContext != "" {
		merged.Farm.KubeContext = overlay.Farm.KubeContext
	}
	if overlay.Farm.KubeNamespace != "" {
		merged.Farm.KubeNamespace = overlay.Farm.KubeNamespace
	}
	if overlay.Farm.WorkerImage != "" {
		merged.Farm.WorkerImage = overlay.Farm.WorkerImage
	}

	if len(overlay.Workers) > 0 {
		byID := make(map[string]int, len(merged.Workers))
		for i, w := range merged.Workers {
			byID[w.ID] = i
		}
		for _, w := range overlay.Workers {
			if i, ok := byID[w.ID]; ok {
				merged.Workers[i] = w
			} else {
				merged.Workers = append(merged.Workers, w)
			}
		}
	}

	return merged
}

// GetUserConfigDir returns the user configuration directory path.
func GetUserConfigDir() (string, error) {
	homeDir, err := osUserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, userConfigDir), nil
}
