// Package backend assembles the local store, the remote collaborator and
// their supporting infrastructure from configuration.
package backend

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"famledger/internal/amqp"
	"famledger/internal/config"
	"famledger/internal/core"
	"famledger/internal/log"
	"famledger/internal/persist"
	"famledger/internal/remote"
	"famledger/internal/replication"
	"famledger/internal/sheets"
	"famledger/internal/state"
)

// CleanupFunc releases a resource opened by the factory.
type CleanupFunc func() error

// Collaborator is a remote store that can also be told about changes made
// by other processes.
type Collaborator interface {
	remote.Collaborator
	remote.Notifier
}

// Backend is everything a binary needs to serve the state layer.
type Backend struct {
	Store     *state.Store
	Persister *persist.Persister
	Queue     *replication.Queue
	// Remote is the collaborator the queue writes through; it publishes on
	// the change feed when one is configured.
	Remote remote.Collaborator
	// Notifier refreshes live queries for changes seen on the change feed.
	Notifier remote.Notifier
	Feed     *amqp.Client
	Exporter *sheets.Exporter
	// Origin identifies this process on the change feed.
	Origin string

	cleanups []CleanupFunc
}

// Close releases resources in reverse order of creation.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		if err := b.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Backend) addCleanup(fn CleanupFunc) {
	if fn != nil {
		b.cleanups = append(b.cleanups, fn)
	}
}

// Factory creates backends from the application configuration.
type Factory struct {
	logger *log.Logger
}

func NewFactory(logger *log.Logger) *Factory {
	if logger == nil {
		logger = log.Default()
	}
	return &Factory{logger: logger.WithComponent(log.ComponentBackend)}
}

// Build opens every configured component. Optional components (change feed,
// Sheets export) that fail to start are logged and left disabled.
func (f *Factory) Build(ctx context.Context, cfg *config.Config) (*Backend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app config is nil")
	}
	b := &Backend{Origin: origin()}

	kv, cleanup, err := f.createKV(cfg)
	if err != nil {
		return nil, err
	}
	b.addCleanup(cleanup)

	categories, err := f.defaultCategories(cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Persister = persist.New(kv, persist.Options{
		Key:                  cfg.StoreKey,
		MaxTransactionAmount: cfg.MaxTransactionAmount,
		DefaultCategories:    categories,
		Logger:               f.logger,
	})
	if cfg.NuclearReset {
		if _, err := b.Persister.NuclearReset(ctx); err != nil {
			f.logger.WarnContext(ctx, "Nuclear reset failed", log.FieldError, err)
		}
	}

	inner, cleanup, err := f.createRemote(cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.addCleanup(cleanup)
	b.Notifier = inner
	b.Remote = f.withChangeFeed(ctx, cfg, b, inner)

	queueCfg := replication.DefaultConfig()
	queueCfg.Capacity = cfg.WriteQueueCapacity
	queueCfg.MaxRetries = cfg.WriteQueueMaxRetries
	b.Queue = replication.New(b.Remote, queueCfg, f.logger)

	b.Store = state.New(state.Options{
		Remote:    b.Remote,
		Queue:     b.Queue,
		Persister: b.Persister,
		Logger:    f.logger,
	})
	b.Store.Hydrate(ctx)

	b.Exporter = sheets.NewExporter(b.Store, f.createSheetsWriter(ctx, cfg), f.logger)

	f.logger.InfoContext(ctx, "Backend initialized",
		"store_backend", cfg.StoreBackend,
		"remote_backend", cfg.RemoteBackend,
		"change_feed", b.Feed != nil,
		"sheets_export", b.Exporter.Enabled(),
		"origin", b.Origin)
	return b, nil
}

func (f *Factory) defaultCategories(cfg *config.Config) ([]core.Category, error) {
	if cfg.DefaultCategoriesFile == "" {
		return nil, nil
	}
	cats, err := persist.LoadCategories(cfg.DefaultCategoriesFile)
	if err != nil {
		return nil, fmt.Errorf("load default categories: %w", err)
	}
	return cats, nil
}

// origin names this process as host-pid-random so two replicas on one host
// still differ.
func origin() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "famledger"
	}
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.NewString()[:8])
}
