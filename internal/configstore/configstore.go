// Package configstore persists the agent's identity and cloud settings as a
// trivial JSON document at a platform-specific path: load, save, and clear,
// with no interactive setup of its own — callers (CLI flags, the
// setRestaurantId command) own collecting the values it stores.
//
// No third-party path-resolution library is used: the only platform
// concern here is os.UserConfigDir, a single stdlib call with no parsing or
// format complexity a library would meaningfully replace.
package configstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/printbridge/agent/internal/model"
)

const (
	appDirName  = "printbridge"
	configFile  = "config.json"
)

// Path returns the platform-specific path to the config document.
func Path() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, appDirName, configFile), nil
}

// Load reads the config document. A missing or corrupt file yields an
// empty StoredConfig and no error — load never fails.
func Load() model.StoredConfig {
	path, err := Path()
	if err != nil {
		return model.StoredConfig{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return model.StoredConfig{}
	}
	var cfg model.StoredConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return model.StoredConfig{}
	}
	return cfg
}

// Save persists cfg, creating parent directories as needed and stamping
// UpdatedAt on every write.
func Save(cfg model.StoredConfig) error {
	path, err := Path()
	if err != nil {
		return model.NewTransportError(model.KindConfigWriteError, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return model.NewTransportError(model.KindConfigWriteError, fmt.Errorf("create config dir: %w", err))
	}

	cfg.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return model.NewTransportError(model.KindConfigWriteError, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return model.NewTransportError(model.KindConfigWriteError, err)
	}
	return nil
}

// Clear best-effort deletes the config document.
func Clear() {
	path, err := Path()
	if err != nil {
		return
	}
	_ = os.Remove(path)
}
