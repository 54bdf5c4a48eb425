package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DISCORD_BOT_TOKEN", "token")
	t.Setenv("TRAKT_CLIENT_ID", "id")
	t.Setenv("TRAKT_CLIENT_SECRET", "secret")
}

func TestParseDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.StateBackend != BackendSQLite || cfg.DatabasePath != "./data/noko.db" {
		t.Fatalf("unexpected storage defaults: %+v", cfg)
	}
	if cfg.RotationInterval != time.Minute || cfg.ChallengeDuration != 24*time.Hour || cfg.WeekLength != 7*24*time.Hour {
		t.Fatalf("unexpected timing defaults: %+v", cfg)
	}
	opts := cfg.ArenaOptions()
	if opts.HistoryLimit != 50 || opts.CompletedHistoryLimit != 50 || opts.ValidationTimeout != 15*time.Second {
		t.Fatalf("unexpected arena options: %+v", opts)
	}
}

func TestParseOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("STATE_BACKEND", " Redis ")
	t.Setenv("ROTATION_INTERVAL", "30s")
	t.Setenv("ADMIN_USER_IDS", "1, 2,3")

	cfg, err := Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.StateBackend != BackendRedis || cfg.RotationInterval != 30*time.Second {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if !cfg.IsAdmin("2") || !cfg.IsAdmin("3") || cfg.IsAdmin("4") {
		t.Fatalf("unexpected admins %v", cfg.AdminUserIDs)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"missing token", map[string]string{"DISCORD_BOT_TOKEN": ""}, "DISCORD_BOT_TOKEN is required"},
		{"missing trakt secret", map[string]string{"TRAKT_CLIENT_SECRET": ""}, "TRAKT_CLIENT_SECRET is required"},
		{"bad backend", map[string]string{"STATE_BACKEND": "postgres"}, "STATE_BACKEND"},
		{"bad duration", map[string]string{"CHALLENGE_DURATION": "soon"}, "parse env:"},
		{"history limit", map[string]string{"HISTORY_LIMIT": "500"}, "HISTORY_LIMIT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Parse()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("want error containing %q, got %v", tt.want, err)
			}
		})
	}
}
