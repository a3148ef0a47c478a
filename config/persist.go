package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/vitrina/pulso/errors"
)

// Save writes configuration values to the user config file with a rotating backup.
// Values are merged into the existing file so hand-edited settings are preserved.
func Save(values map[string]interface{}) error {
	return SaveTo(UserConfigPath(), values)
}

// SaveTo writes configuration values to a specific config file with a rotating
// backup. Section maps are merged key by key so siblings in the same section
// survive a single-setting update.
func SaveTo(configPath string, values map[string]interface{}) error {
	if err := os.MkdirAll(filepath.Dir(configPath), DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	// Load existing config to merge into
	existing := make(map[string]interface{})
	if data, err := os.ReadFile(configPath); err == nil {
		if err := toml.Unmarshal(data, &existing); err != nil {
			return errors.Wrap(err, "failed to parse existing config")
		}
	}

	for key, value := range values {
		if section, ok := value.(map[string]interface{}); ok {
			if existingSection, ok := existing[key].(map[string]interface{}); ok {
				for k, v := range section {
					existingSection[k] = v
				}
				continue
			}
		}
		existing[key] = value
	}

	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	data, err := toml.Marshal(existing)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return errors.Wrap(err, "failed to write config")
	}

	return nil
}

// SetValue persists a single dotted-key setting, e.g. "scheduler.max_attempts",
// into the given config file. The key nests into TOML sections.
func SetValue(configPath, key string, value interface{}) error {
	parts := strings.Split(key, ".")
	values := make(map[string]interface{})
	current := values
	for i, part := range parts {
		if part == "" {
			return errors.Newf("invalid configuration key %q", key)
		}
		if i == len(parts)-1 {
			current[part] = value
			break
		}
		next := make(map[string]interface{})
		current[part] = next
		current = next
	}
	return SaveTo(configPath, values)
}

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil // No file to backup
	}

	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	// Delete oldest backup, rotate the rest
	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to delete oldest backup")
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
	if err := os.WriteFile(back1, content, 0o644); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}
