// Loads the case catalog from a YAML file without starting the server.
//
// Cases are upserted by id; sections missing from the file are removed.
//
// Usage: go run scripts/seed_cases.go -file configs/cases.example.yaml

package main

import (
	"caseprep_backend/internal/config"
	"caseprep_backend/internal/repository"
	"caseprep_backend/internal/service"
	"caseprep_backend/pkg/database"
	"caseprep_backend/pkg/logger"
	"context"
	"flag"
	"log"
)

func main() {
	file := flag.String("file", "configs/cases.example.yaml", "case seed file")
	configDir := flag.String("config", "configs", "directory containing config.yaml")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.InitLogger(cfg)
	defer logger.Log.Sync()

	db, err := database.InitDB(&cfg.Database, cfg.Server.Mode, true)
	if err != nil {
		log.Fatalf("Database connection failed: %v", err)
	}

	// no redis here; the running server's cache expires on its own TTL
	cases := service.NewCaseService(repository.NewCaseRepository(db), nil, 0)

	n, err := cases.Seed(context.Background(), *file)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seeded %d cases from %s", n, *file)
}
