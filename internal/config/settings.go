package config

import (
	"context"
	"fmt"
)

// LoadSyncSettings overlays persisted sync settings onto the configuration.
// Values stored in the settings table win over environment defaults, since
// they reflect explicit user actions (account link, mode change).
func LoadSyncSettings(ctx context.Context, cfg *Config, repo SettingsRepository) error {
	settings, err := repo.GetSettings(ctx, "sync.")
	if err != nil {
		return fmt.Errorf("loading sync settings: %w", err)
	}

	if v, ok := settings[KeyServerURL]; ok && v != "" {
		cfg.Server.URL = v
	}
	if v, ok := settings[KeyServerToken]; ok && v != "" {
		cfg.Server.Token = v
	}
	if v, ok := settings[KeyClientName]; ok && v != "" {
		cfg.Server.ClientName = v
	}
	if v, ok := settings[KeySyncMode]; ok && v != "" {
		cfg.Sync.Mode = v
	}

	return nil
}

// SaveSyncSettings persists the current sync configuration to the database
func SaveSyncSettings(ctx context.Context, cfg *Config, repo SettingsRepository) error {
	pairs := map[string]string{
		KeyServerURL:   cfg.Server.URL,
		KeyServerToken: cfg.Server.Token,
		KeyClientName:  cfg.Server.ClientName,
		KeySyncMode:    cfg.Sync.Mode,
	}

	for key, value := range pairs {
		if err := repo.SetSetting(ctx, key, value); err != nil {
			return fmt.Errorf("saving setting %s: %w", key, err)
		}
	}

	enabled := "false"
	if cfg.Server.Token != "" && cfg.Server.URL != "" {
		enabled = "true"
	}
	if err := repo.SetSetting(ctx, KeySyncEnabled, enabled); err != nil {
		return fmt.Errorf("saving setting %s: %w", KeySyncEnabled, err)
	}

	return nil
}
