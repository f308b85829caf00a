package main

import (
	"context"
	"fmt"

	firestorestore "github.com/PabloGalante/farum-chats/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/farum-chats/internal/adapters/storage/memory"
	sqlitestore "github.com/PabloGalante/farum-chats/internal/adapters/storage/sqlite"
	"github.com/PabloGalante/farum-chats/internal/config"
	"github.com/PabloGalante/farum-chats/internal/domain"
	"github.com/PabloGalante/farum-chats/internal/observability"
)

// openStores picks the message log and persona directory for cfg.
// Closing the returned MessageStore releases both.
func openStores(ctx context.Context, cfg *config.Config) (domain.MessageStore, domain.PersonaDirectory, error) {
	log := observability.WithFields("backend", cfg.StorageBackend)

	switch cfg.StorageBackend {
	case config.BackendFirestore:
		log.Info("using firestore storage", "project", cfg.GCPProjectID)
		fsStore, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing Firestore store: %w", err)
		}
		// 1 store, implements 2 interfaces
		return fsStore, fsStore, nil

	case config.BackendSQLite:
		log.Info("using sqlite storage", "path", cfg.SQLitePath)
		sqlStore, err := sqlitestore.NewStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing SQLite store: %w", err)
		}
		if cfg.PersonasFile != "" {
			n, err := seedPersonas(ctx, sqlStore, cfg.PersonasFile)
			if err != nil {
				_ = sqlStore.Close()
				return nil, nil, err
			}
			log.Info("personas seeded", "file", cfg.PersonasFile, "count", n)
		}
		return sqlStore, sqlStore, nil

	default:
		log.Info("using in-memory storage")
		personas := memstore.NewPersonaDirectory()
		if cfg.PersonasFile != "" {
			loaded, err := memstore.LoadPersonaDirectory(cfg.PersonasFile)
			if err != nil {
				return nil, nil, err
			}
			personas = loaded
		}
		return memstore.NewMessageStore(), personas, nil
	}
}

// seedPersonas upserts every persona of the YAML file into the sqlite table.
func seedPersonas(ctx context.Context, store *sqlitestore.Store, path string) (int, error) {
	personas, err := memstore.ReadPersonaFile(path)
	if err != nil {
		return 0, err
	}
	for _, p := range personas {
		if err := store.UpsertPersona(ctx, p); err != nil {
			return 0, fmt.Errorf("seeding persona %q: %w", p.ID, err)
		}
	}
	return len(personas), nil
}
