package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/dataq/errors"
)

var (
	globalConfig  *Config
	viperInstance *viper.Viper
	loadMu        sync.Mutex
)

// ConfigFileName is the project and user config file name
const ConfigFileName = "am.toml"

// Load reads the dataq configuration using Viper.
// Precedence (lowest to highest): defaults < system < user < project < env vars
func Load() (*Config, error) {
	loadMu.Lock()
	defer loadMu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, err
	}

	globalConfig = config
	return globalConfig, nil
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path on top of the defaults
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// Defaults only; environment is deliberately not consulted for explicit files
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	return LoadWithViper(v)
}

// Reset clears the cached configuration (useful for testing and reload)
func Reset() {
	loadMu.Lock()
	defer loadMu.Unlock()
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("DATAQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	BindSensitiveEnvVars(v)
	SetDefaults(v)
	mergeConfigFiles(v, configSearchPaths())

	viperInstance = v
	return v
}

// FindProjectConfig searches for am.toml by walking up from the working directory.
// Returns "" if none is found.
func FindProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		candidate := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// UserConfigPath returns ~/.dataq/am.toml, or "" without a home directory
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".dataq", ConfigFileName)
}

func configSearchPaths() []string {
	paths := []string{filepath.Join("/etc/dataq", ConfigFileName)}
	if user := UserConfigPath(); user != "" {
		paths = append(paths, user)
	}
	if project := FindProjectConfig(); project != "" {
		paths = append(paths, project)
	}
	return paths
}

// mergeConfigFiles merges existing files into v in order, later files winning.
// Unreadable files are skipped so a broken system config cannot block startup.
func mergeConfigFiles(v *viper.Viper, paths []string) {
	for _, configPath := range paths {
		if _, err := os.Stat(configPath); err != nil {
			continue
		}

		tempViper := viper.New()
		tempViper.SetConfigFile(configPath)
		tempViper.SetConfigType("toml")

		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}
		_ = v.MergeConfigMap(tempViper.AllSettings())
	}
}
