package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/brototype/portal-backend/internal/config"
	"github.com/brototype/portal-backend/internal/database"
	"github.com/brototype/portal-backend/internal/logger"
	"github.com/brototype/portal-backend/internal/repository"
	"github.com/brototype/portal-backend/internal/service"
)

func main() {
	count := flag.Int("n", 50, "Number of passcodes to issue")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	passcodeService := service.NewPasscodeService(repository.NewPasscodeRepository(pool), log)

	fmt.Printf("=== Issuing %d Passcodes ===\n", *count)

	issued, err := passcodeService.Issue(ctx, *count)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue passcodes")
	}

	for _, p := range issued {
		fmt.Println(p.Code)
	}

	fmt.Printf("\nSeed completed! Issued %d/%d passcodes.\n", len(issued), *count)
}
