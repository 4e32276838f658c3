package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Path != "data/mirage.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.API.ListenAddr != ":8070" {
		t.Errorf("API.ListenAddr = %q", cfg.API.ListenAddr)
	}
	if cfg.Deception.EventBufferSize != 256 {
		t.Errorf("EventBufferSize = %d, want 256", cfg.Deception.EventBufferSize)
	}
	if len(cfg.Deception.Honeypots) != 5 {
		t.Errorf("default catalog has %d honeypots, want 5", len(cfg.Deception.Honeypots))
	}
	if ssh, ok := cfg.Deception.Honeypots["fake_ssh"]; !ok || ssh.Port != 2222 {
		t.Errorf("fake_ssh = %+v, want port 2222", ssh)
	}
	if got := cfg.Deception.PostureTable["PARANOID"]; len(got) != 5 {
		t.Errorf("PARANOID runs %d honeypots, want all 5", len(got))
	}
	if cfg.Scoring.BaseScores["deception_trap_triggered"] != 0.6 {
		t.Errorf("trap base score = %v, want 0.6", cfg.Scoring.BaseScores["deception_trap_triggered"])
	}
	if cfg.Response.ActionTimeoutSeconds != 30 {
		t.Errorf("ActionTimeoutSeconds = %d, want 30", cfg.Response.ActionTimeoutSeconds)
	}
	if !cfg.Notifications.Rules.AlertOnHigh || cfg.Notifications.Rules.AlertOnLow {
		t.Error("default rules should alert on medium and above only")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"system": {"log_dir": "/var/log/mirage", "log_level": "debug"},
		"database": {"path": "/var/lib/mirage/mirage.db"},
		"deception": {
			"honeypots": {
				"fake_ssh": {"name": "SSH", "protocol": "ssh", "port": 2322, "sensitivity": "high"}
			},
			"posture_table": {"LOW": ["fake_ssh"]}
		},
		"response": {"workers": 2, "action_timeout_seconds": 10}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.System.LogDir != "/var/log/mirage" {
		t.Errorf("LogDir = %q", cfg.System.LogDir)
	}
	if cfg.Deception.Honeypots["fake_ssh"].Port != 2322 {
		t.Errorf("port = %d, want 2322", cfg.Deception.Honeypots["fake_ssh"].Port)
	}
	if cfg.Response.Workers != 2 {
		t.Errorf("Workers = %d, want 2", cfg.Response.Workers)
	}

	// Unset sections still get defaults.
	if cfg.Response.IncidentLogCapacity != 200 {
		t.Errorf("IncidentLogCapacity = %d, want default 200", cfg.Response.IncidentLogCapacity)
	}
	if len(cfg.Scoring.BaseScores) == 0 {
		t.Error("scoring defaults not applied")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/config.json"); err == nil {
		t.Error("expected error for explicit missing path")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("MIRAGE_DATA_DIR", "/srv/mirage")
	t.Setenv("MIRAGE_WEBHOOK_TOKEN", "s3cret")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{
		"database": {"path": "${MIRAGE_DATA_DIR}/mirage.db"},
		"notifications": {
			"webhooks": {
				"enabled": true,
				"endpoints": [{"url": "https://siem.example.com/hook", "auth_token": "${MIRAGE_WEBHOOK_TOKEN}"}]
			}
		}
	}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Path != "/srv/mirage/mirage.db" {
		t.Errorf("Database.Path = %q, env not expanded", cfg.Database.Path)
	}
	if got := cfg.Notifications.Webhooks.Endpoints[0].AuthToken; got != "s3cret" {
		t.Errorf("AuthToken = %q, env not expanded", got)
	}
}

func TestLoadInvalidJSONFallsBack(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Database.Path != "data/mirage.db" {
		t.Error("invalid JSON did not fall back to defaults")
	}
}
