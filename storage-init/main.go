package main

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"board-service/config"
	"board-service/storage"
)

func main() {
	cfg := config.Default()
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	if cfg.Storage.ConnectionString == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}

	tables, err := storage.NewTables(cfg.Storage.ConnectionString, cfg.Storage.Tables)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := tables.CreateTables(ctx); err != nil {
		log.Fatalf("create tables: %v", err)
	}

	log.WithField("tables", cfg.Storage.Tables.All()).Info("storage init complete")
}
