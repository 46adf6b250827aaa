package backend

import (
	"context"
	"fmt"

	"famledger/internal/adapters"
	"famledger/internal/amqp"
	"famledger/internal/config"
	"famledger/internal/log"
	"famledger/internal/remote"
	"famledger/internal/remote/memory"
	"famledger/internal/remote/postgres"
	"famledger/internal/sheets"
	gsheet "famledger/internal/sheets/google"
	"famledger/internal/storage"
)

func (f *Factory) createKV(cfg *config.Config) (storage.KV, CleanupFunc, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		f.logger.Info("Initialized memory store backend")
		return storage.NewMemoryKV(), nil, nil
	case config.BackendSQLite:
		repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite store backend", "db_path", cfg.SQLiteDBPath)
		return repo, repo.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store backend: %s", cfg.StoreBackend)
	}
}

func (f *Factory) createRemote(cfg *config.Config) (Collaborator, CleanupFunc, error) {
	switch cfg.RemoteBackend {
	case config.BackendMemory:
		f.logger.Info("Initialized memory remote backend")
		return memory.New(f.logger), nil, nil
	case config.BackendPostgres:
		store, err := postgres.Open(cfg.DatabaseURL, f.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize postgres remote: %w", err)
		}
		f.logger.Info("Initialized postgres remote backend")
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported remote backend: %s", cfg.RemoteBackend)
	}
}

// withChangeFeed wraps inner so writes are announced on AMQP. Without a
// reachable broker inner is returned unchanged.
func (f *Factory) withChangeFeed(ctx context.Context, cfg *config.Config, b *Backend, inner remote.Collaborator) remote.Collaborator {
	if cfg.AMQPURL == "" {
		return inner
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, f.logger)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize AMQP client, continuing without change feed", log.FieldError, err)
		return inner
	}
	f.logger.InfoContext(ctx, "Initialized AMQP client",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)
	b.Feed = client
	b.addCleanup(client.Close)
	return adapters.NewPublishingCollaborator(inner, client, b.Origin, f.logger)
}

func (f *Factory) createSheetsWriter(ctx context.Context, cfg *config.Config) sheets.SummaryWriter {
	if !cfg.SheetsEnabled() {
		return nil
	}
	creds := gsheet.Credentials{
		ClientFile: cfg.GoogleOAuthClientFile,
		ClientJSON: cfg.GoogleOAuthClientJSON,
		TokenFile:  cfg.GoogleOAuthTokenFile,
		TokenJSON:  cfg.GoogleOAuthTokenJSON,
	}
	client, err := gsheet.New(ctx, creds, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, f.logger)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to initialize Google Sheets client, export disabled", log.FieldError, err)
		return nil
	}
	f.logger.InfoContext(ctx, "Initialized Google Sheets export", "sheet", cfg.GoogleSheetName)
	return client
}
