package config

import (
	"testing"

	"github.com/spf13/pflag"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Port != 9631 {
		t.Errorf("expected default Port 9631, got %d", cfg.Port)
	}
	if cfg.TrackerPort != 9630 {
		t.Errorf("expected default TrackerPort 9630, got %d", cfg.TrackerPort)
	}
	if cfg.ReplicationLevel != 3 {
		t.Errorf("expected default ReplicationLevel 3, got %d", cfg.ReplicationLevel)
	}
	if cfg.Password == "" {
		t.Error("expected a non-empty default password")
	}
}

func TestBindFlags_OverridesDefault(t *testing.T) {
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)

	if err := fs.Parse([]string{"--port", "7000", "--password", "swordfish"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Port != 7000 {
		t.Errorf("expected Port 7000 after flag parse, got %d", cfg.Port)
	}
	if cfg.Password != "swordfish" {
		t.Errorf("expected Password swordfish after flag parse, got %q", cfg.Password)
	}
}

func TestApplyEnv_OverridesFlags(t *testing.T) {
	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.BindFlags(fs)
	if err := fs.Parse([]string{"--password", "flag-secret", "--tracker-port", "5000"}); err != nil {
		t.Fatalf("Parse: %v", err)
	}
	t.Setenv("DFS_PASSWORD", "env-secret")
	t.Setenv("DFS_TRACKER_PORT", "4242")

	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Password != "env-secret" {
		t.Errorf("expected Password env-secret, got %q", cfg.Password)
	}
	if cfg.TrackerPort != 4242 {
		t.Errorf("expected TrackerPort 4242, got %d", cfg.TrackerPort)
	}
}

func TestApplyEnv_BadPortIsRejected(t *testing.T) {
	cfg := Default()
	t.Setenv("DFS_TRACKER_PORT", "not-a-port")
	if err := cfg.ApplyEnv(); err == nil {
		t.Fatal("expected an error for a malformed DFS_TRACKER_PORT")
	}
}
