package main

import (
	"errors"
	"fmt"
	"log/slog"

	bolterrors "go.etcd.io/bbolt/errors"

	"github.com/kalambet/calcdeck/internal/calculator"
	"github.com/kalambet/calcdeck/internal/config"
	"github.com/kalambet/calcdeck/internal/history"
	"github.com/kalambet/calcdeck/internal/storage"
)

// localStore bundles the substrate, history store and calculator service
// for commands that run in-process.
type localStore struct {
	kv      storage.KV
	history *history.Store
	service *calculator.Service
}

var openLocal = func(cfg config.Config, obs history.Observer) (*localStore, error) {
	kv, err := storage.Open(cfg.Storage.Backend, cfg.Storage.DataDir)
	if err != nil {
		if errors.Is(err, bolterrors.ErrTimeout) {
			return nil, fmt.Errorf("%w; the server holds the database, retry with --remote", err)
		}
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	store := history.New(kv, history.Options{
		Cap:      cfg.History.Cap,
		Key:      cfg.History.Key,
		Logger:   slog.Default(),
		Observer: obs,
	})
	return &localStore{
		kv:      kv,
		history: store,
		service: calculator.NewService(calculator.Default(), store, slog.Default()),
	}, nil
}

func (l *localStore) Close() {
	if err := l.kv.Close(); err != nil {
		printWarning("closing storage: %v", err)
	}
}

// lastSaved reports when the history key was last written, if the
// backend tracks it.
func lastSaved(kv storage.KV, key string) string {
	ts, ok := kv.(storage.Timestamped)
	if !ok {
		return "unknown"
	}
	t, err := ts.UpdatedAt(key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return "never"
	case err != nil:
		return "unknown"
	}
	return ago(t)
}

// loadConfig reads config and installs logging for commands.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}
	setupLogging(cfg.Log.Level)
	return cfg, nil
}
