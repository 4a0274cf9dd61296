// Package config gathers the runtime configuration for every pipeline
// component into one struct, populated from environment variables with
// sensible development defaults — the same shape the teacher's
// internal/app.Config followed, generalized to this core's components.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/raysh454/moku-wst/internal/browser"
)

// Config is the fully resolved runtime configuration for all five CLI
// jobs and the admin `serve` mode.
type Config struct {
	// StorageRoot is the base directory for the SQLite database, the
	// lease directory, and (when BlobRoot is unset) the filesystem blob
	// store.
	StorageRoot string

	// DBPath is the SQLite database file path.
	DBPath string

	// BlobRoot is the filesystem blob store's root directory.
	BlobRoot string

	// LeaseDir holds the advisory lease lock files.
	LeaseDir string

	// AuthTokenKey is the AES key (16/24/32 bytes) used to mint and
	// verify the diff-render endpoint's deadline tokens and encrypted ids.
	AuthTokenKey []byte

	// ListenAddr is the address `serve` binds the internal webapi to.
	ListenAddr string

	// InternalBaseURL is the renderer's self-addressed base URL for the
	// authenticated diff-HTML endpoint.
	InternalBaseURL string

	Browser browser.Options

	FetchRunBudget  time.Duration
	RenderRunBudget time.Duration
	MatchRunBudget  time.Duration
	MatchTimeout    time.Duration
}

// DefaultConfig returns a Config populated with development defaults
// rooted at ~/.config/moku-wst.
func DefaultConfig() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("config: resolve home directory: %w", err)
	}
	root := filepath.Join(home, ".config", "moku-wst")

	return &Config{
		StorageRoot:     root,
		DBPath:          filepath.Join(root, "moku-wst.db"),
		BlobRoot:        filepath.Join(root, "blobs"),
		LeaseDir:        filepath.Join(root, "leases"),
		AuthTokenKey:    make([]byte, 32),
		ListenAddr:      "127.0.0.1:8080",
		InternalBaseURL: "http://127.0.0.1:8080",
		Browser:         browser.DefaultOptions(),
		FetchRunBudget:  time.Hour,
		RenderRunBudget: 2 * time.Hour,
		MatchRunBudget:  5 * time.Minute,
		MatchTimeout:    300 * time.Second,
	}, nil
}

// FromEnv overlays environment variables onto DefaultConfig. Unset
// variables leave the default in place.
func FromEnv() (*Config, error) {
	cfg, err := DefaultConfig()
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("MOKU_WST_STORAGE_ROOT"); v != "" {
		cfg.StorageRoot = v
		cfg.DBPath = filepath.Join(v, "moku-wst.db")
		cfg.BlobRoot = filepath.Join(v, "blobs")
		cfg.LeaseDir = filepath.Join(v, "leases")
	}
	if v := os.Getenv("MOKU_WST_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("MOKU_WST_BLOB_ROOT"); v != "" {
		cfg.BlobRoot = v
	}
	if v := os.Getenv("MOKU_WST_LEASE_DIR"); v != "" {
		cfg.LeaseDir = v
	}
	if v := os.Getenv("MOKU_WST_AUTH_KEY"); v != "" {
		if len(v) != 16 && len(v) != 24 && len(v) != 32 {
			return nil, fmt.Errorf("config: MOKU_WST_AUTH_KEY must be 16, 24, or 32 bytes, got %d", len(v))
		}
		cfg.AuthTokenKey = []byte(v)
	}
	if v := os.Getenv("MOKU_WST_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("MOKU_WST_INTERNAL_BASE_URL"); v != "" {
		cfg.InternalBaseURL = v
	}
	if v := os.Getenv("MOKU_WST_FETCH_BUDGET_SECONDS"); v != "" {
		d, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid MOKU_WST_FETCH_BUDGET_SECONDS: %w", err)
		}
		cfg.FetchRunBudget = time.Duration(d) * time.Second
	}

	return cfg, nil
}
