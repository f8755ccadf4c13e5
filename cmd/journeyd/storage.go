package main

import (
	"fmt"

	"github.com/folio-labs/journey/internal/config"
	"github.com/folio-labs/journey/internal/database"
	"github.com/folio-labs/journey/internal/storage"
	gormstorage "github.com/folio-labs/journey/internal/storage/gorm"
	"github.com/folio-labs/journey/internal/storage/memory"
	reststorage "github.com/folio-labs/journey/internal/storage/rest"
)

func initStorage() (storage.Store, error) {
	storageCfg := config.GetStorageConfig()

	store, err := createStore(storageCfg)
	if err != nil {
		Logger.Error("Failed to create content store", "error", err)
		return nil, err
	}
	if err := store.Init(); err != nil {
		Logger.Error("Failed to initialize content store", "type", storageCfg.Type, "error", err)
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func createStore(storageCfg config.StorageConfig) (storage.Store, error) {
	switch storageCfg.Type {
	case "gorm", "postgres", "sqlite":
		DBManager = database.NewManager(componentLogger("database"), storageCfg.Gorm)
		connect := DBManager.Connect
		if storageCfg.Type == "sqlite" {
			connect = DBManager.ConnectLocal
		}
		if err := connect(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := DBManager.Setup(); err != nil {
			return nil, fmt.Errorf("failed to set up database: %w", err)
		}
		Logger.Info("GORM content store initialized",
			"dialect", DBManager.DB.Dialector.Name(),
			"local", DBManager.ShouldSaveLocal)
		return gormstorage.New(gormstorage.Dependencies{
			DB:              DBManager.DB,
			Logger:          DBManager.Logger,
			IsDatabaseValid: func() bool { return DBManager.IsValid },
		}, storageCfg.Gorm), nil

	case "rest":
		Logger.Info("REST content store initialized", "url", storageCfg.Rest.BaseURL)
		return reststorage.New(storageCfg.Rest), nil

	case "", "memory":
		Logger.Info("Memory content store initialized", "path", storageCfg.Memory.Path)
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

func closeStorage(store storage.Store) {
	if store != nil {
		if err := store.Close(); err != nil {
			Logger.Warn("Failed to close content store", "error", err)
		}
	}
	if DBManager != nil {
		if err := DBManager.Close(); err != nil {
			Logger.Warn("Failed to close database", "error", err)
		}
		DBManager = nil
	}
}
