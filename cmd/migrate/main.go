package main

import (
	"flag"
	"fmt"
	"os"

	"clubdesk/internal/pkg/logger"
	"clubdesk/internal/platform/config"
	"clubdesk/internal/platform/database"

	"github.com/rs/zerolog/log"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down (one step)")
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	dir := flag.String("dir", "", "Migrations directory (defaults to database.migrations_path)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging)

	path := *dir
	if path == "" {
		path = cfg.Database.MigrationsPath
	}

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := database.Migrate(db, path, *direction); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Str("direction", *direction).Msg("migration completed")
}
