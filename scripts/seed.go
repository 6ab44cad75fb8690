// Seed script that fills the artifact store with demo events.
// Run with: go run ./scripts/seed.go
//
// The offline demo analyst is used, so no LLM credentials are needed. When
// DATABASE_URL is set the analyses are also recorded in Postgres.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Harshitk-cp/dissent/internal/analyst"
	"github.com/Harshitk-cp/dissent/internal/artifact"
	"github.com/Harshitk-cp/dissent/internal/config"
	"github.com/Harshitk-cp/dissent/internal/convergence"
	"github.com/Harshitk-cp/dissent/internal/domain"
	"github.com/Harshitk-cp/dissent/internal/llm"
	"github.com/Harshitk-cp/dissent/internal/metrics"
	"github.com/Harshitk-cp/dissent/internal/service"
	"github.com/Harshitk-cp/dissent/internal/store"
)

var incidents = []string{
	"Host web-01 ran powershell.exe -enc AAAA and connected to 203.0.113.7 over 443.",
	"Scheduled backup job on db-02 copied 40GB to 10.0.4.12 during the maintenance window.",
	"User jdoe logged in to vpn-03 from 198.51.100.23, then ran mimikatz.exe on ws-117.",
	"Patch rollout restarted svc-09 and app-04; health checks recovered within two minutes.",
}

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	ctx := context.Background()

	artifacts, err := artifact.NewStore(config.ArtifactDir())
	if err != nil {
		log.Fatalf("Failed to open artifact store: %v", err)
	}

	var recorder domain.AnalysisRecorder
	if dbURL := config.DatabaseURL(); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			log.Fatalf("Failed to ping database: %v", err)
		}
		fmt.Println("Connected to database")
		recorder = store.NewAnalysisStore(pool)
	}

	catalog, err := analyst.DefaultCatalog()
	if err != nil {
		log.Fatalf("Failed to load roles: %v", err)
	}
	roster, err := catalog.Roster(nil)
	if err != nil {
		log.Fatalf("Failed to build roster: %v", err)
	}

	logger := zap.NewNop()
	panel := analyst.NewPanel(roster, llm.NewDemoClient(), rate.NewLimiter(rate.Inf, 1), analyst.DefaultOptions(), logger)
	engine := convergence.New(config.ConvergenceThresholds())
	svc := service.NewAnalysisService(panel, engine, artifacts, recorder, metrics.New(), logger, service.AnalysisOptions{})

	for _, text := range incidents {
		result, err := svc.Analyze(ctx, text, nil)
		if err != nil {
			log.Printf("Warning: analysis failed: %v", err)
			continue
		}
		fmt.Printf("Created event %s [%s %.2f]: %s\n",
			result.EventID, result.Decision.Label, result.Decision.Confidence, service.Preview(text, 50))
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("\nArtifacts written to %s\n", artifacts.Root())
	fmt.Println("\nTo inspect them, use:")
	fmt.Println("go run ./cmd/dissent events")
	fmt.Println("go run ./cmd/dissent batch")
}
