package main

import (
	"context"
	"delivery-dispatch-service/internal/adapters/repositories"
	"delivery-dispatch-service/internal/config"
	"delivery-dispatch-service/internal/platform/db"
	"delivery-dispatch-service/internal/platform/obs"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// dbtool initializes the schema and loads the seed file into the configured database.
func main() {
	configPath := flag.String("config", config.Get("CONFIG_PATH", "config.yaml"), "path to the YAML config file")
	flag.Parse()

	envErr := godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	log, err := obs.NewLogger(cfg.Log.Level, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	obs.SetLogger(log)

	if envErr != nil {
		log.Info("no .env file found (using environment variables)")
	}

	database, err := db.Open(cfg.Database.Driver, cfg.DSN())
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer database.Close()

	if err := initAndSeed(context.Background(), database, cfg.SeedPath); err != nil {
		log.Fatal("dbtool failed", zap.Error(err))
	}
}

func initAndSeed(ctx context.Context, d *db.DB, seedPath string) error {
	log := obs.L()

	log.Info("initializing database schema", zap.String("driver", d.Driver))
	if err := repositories.InitSchema(ctx, d); err != nil {
		return fmt.Errorf("schema initialization failed: %w", err)
	}
	log.Info("schema ready")

	log.Info("seeding database", zap.String("path", seedPath))
	if err := repositories.SeedFromJSON(ctx, d, seedPath); err != nil {
		return fmt.Errorf("seeding failed: %w", err)
	}
	log.Info("seeding complete")

	return nil
}
