package config

import (
	"testing"
	"time"
)

func TestDefaultConfigHasSaneZeroValueFreeDefaults(t *testing.T) {
	cfg, err := DefaultConfig()
	if err != nil {
		t.Fatalf("DefaultConfig: %v", err)
	}
	if len(cfg.AuthTokenKey) != 32 {
		t.Fatalf("AuthTokenKey len = %d, want 32", len(cfg.AuthTokenKey))
	}
	if cfg.ListenAddr == "" || cfg.InternalBaseURL == "" {
		t.Fatal("expected non-empty ListenAddr and InternalBaseURL")
	}
	if cfg.FetchRunBudget != time.Hour {
		t.Fatalf("FetchRunBudget = %v, want 1h", cfg.FetchRunBudget)
	}
}

func TestFromEnvOverlaysStorageRootDerivedPaths(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MOKU_WST_STORAGE_ROOT", dir)
	t.Setenv("MOKU_WST_DB_PATH", "")
	t.Setenv("MOKU_WST_BLOB_ROOT", "")
	t.Setenv("MOKU_WST_LEASE_DIR", "")
	t.Setenv("MOKU_WST_AUTH_KEY", "")
	t.Setenv("MOKU_WST_LISTEN_ADDR", "")
	t.Setenv("MOKU_WST_INTERNAL_BASE_URL", "")
	t.Setenv("MOKU_WST_FETCH_BUDGET_SECONDS", "")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.StorageRoot != dir {
		t.Fatalf("StorageRoot = %q, want %q", cfg.StorageRoot, dir)
	}
	if cfg.DBPath != dir+"/moku-wst.db" {
		t.Fatalf("DBPath = %q, want derived from StorageRoot", cfg.DBPath)
	}
}

func TestFromEnvExplicitDBPathOverridesStorageRootDerivation(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MOKU_WST_STORAGE_ROOT", dir)
	t.Setenv("MOKU_WST_DB_PATH", "/custom/path.db")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.DBPath != "/custom/path.db" {
		t.Fatalf("DBPath = %q, want explicit override to win", cfg.DBPath)
	}
}

func TestFromEnvRejectsInvalidAuthKeyLength(t *testing.T) {
	t.Setenv("MOKU_WST_AUTH_KEY", "too-short")
	if _, err := FromEnv(); err == nil {
		t.Fatal("expected an error for a non-16/24/32-byte auth key")
	}
}

func TestFromEnvParsesFetchBudgetSeconds(t *testing.T) {
	t.Setenv("MOKU_WST_FETCH_BUDGET_SECONDS", "120")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.FetchRunBudget != 120*time.Second {
		t.Fatalf("FetchRunBudget = %v, want 120s", cfg.FetchRunBudget)
	}
}
