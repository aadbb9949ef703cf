//cmd/seeder/main.go
package main

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/unclebandit/garage-campaigns/internal/config"
	"github.com/unclebandit/garage-campaigns/internal/db"
	"github.com/unclebandit/garage-campaigns/internal/logger"
)

// Applies migrations/*.sql then seed/*.sql in file name order. Every file is
// idempotent, so the seeder can be re-run against an existing database.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(context.Background())
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}
	log := logger.New(cfg.App)

	conn, err := db.Connect(context.Background(), cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("database unavailable")
	}
	defer conn.Close()

	var files []string
	for _, dir := range []string{"migrations", "seed"} {
		matches, err := filepath.Glob(filepath.Join(dir, "*.sql"))
		if err != nil {
			log.Fatal().Err(err).Str("dir", dir).Msg("failed to list sql files")
		}
		sort.Strings(matches)
		files = append(files, matches...)
	}

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			log.Fatal().Err(err).Str("file", file).Msg("failed to read")
		}
		if _, err := conn.Exec(string(content)); err != nil {
			log.Fatal().Err(err).Str("file", file).Msg("failed to execute")
		}
		log.Info().Str("file", file).Msg("applied")
	}

	log.Info().Int("files", len(files)).Msg("database seeding completed successfully")
}
