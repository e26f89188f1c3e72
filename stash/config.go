package stash

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/octabyte/stash-go/enums"
	"github.com/octabyte/stash-go/storage"
)

// Config holds the configuration for a Stash client.
type Config struct {
	// URL: The backend project URL (Project Settings > API).
	URL string `validate:"required,url"`
	// AnonKey: The public anon key (Project Settings > API).
	AnonKey string `validate:"required"`
	// Source: Which client captured the saves. Defaults to SaveSourceGo.
	Source enums.SaveSource
	// Store: Durable storage for the session record. Defaults to a
	// FileStore under the user config directory.
	Store storage.Store
	// Timeout: Per-request timeout for all backend calls.
	Timeout time.Duration
}

func (cfg *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(cfg)
}

func defaultStore() (storage.Store, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return nil, err
	}
	return storage.NewFileStore(filepath.Join(base, "stash"))
}
