package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/dataq/errors"
	"github.com/teranos/dataq/logger"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to delete old config backup", "file", back3, "error", err)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// WriteConfig writes cfg as TOML to configPath, keeping rotating backups of
// the previous file.
func WriteConfig(configPath string, cfg *Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	return writeWithBackup(configPath, data)
}

// SetValue sets a single dotted key (e.g. "llm.provider") in the TOML file at
// configPath, creating the file and intermediate tables as needed. The value
// is stored as given; callers parse numbers and booleans first.
func SetValue(configPath, key string, value interface{}) error {
	parts := strings.Split(key, ".")
	for _, p := range parts {
		if p == "" {
			return errors.Newf("invalid config key %q", key)
		}
	}

	doc := make(map[string]interface{})
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, &doc); err != nil {
			return errors.Wrapf(err, "failed to parse %s", configPath)
		}
	} else if !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to read %s", configPath)
	}

	table := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := table[p].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			table[p] = next
		}
		table = next
	}
	table[parts[len(parts)-1]] = value

	data, err := toml.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}
	return writeWithBackup(configPath, data)
}

func writeWithBackup(configPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(configPath), DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	globalWatcherMu.Lock()
	if globalWatcher != nil {
		globalWatcher.MarkOwnWrite()
	}
	globalWatcherMu.Unlock()

	if err := os.WriteFile(configPath, data, DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", configPath)
	}
	return nil
}
