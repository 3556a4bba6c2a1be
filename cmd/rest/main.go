package main

import (
	"context"
	"log"
	"time"

	"github.com/meownm/ai-rag-sub000/internal/bootstrap"
	"github.com/meownm/ai-rag-sub000/internal/config"
	"github.com/meownm/ai-rag-sub000/internal/server"
	"github.com/meownm/ai-rag-sub000/internal/tracer"
	"github.com/meownm/ai-rag-sub000/pkg/database"
)

func main() {
	// 0. Initialize Tracer (no-op unless OTEL_ENABLED=true)
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	// 1. Load Configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// 2. Initialize Database
	gormDB, err := database.NewGormDBFromDSN(cfg.Database.Connection)
	if err != nil {
		log.Panicf("Unable to connect to GORM DB: %v", err)
	}

	// 3. Bootstrap Dependencies (Container)
	container := bootstrap.NewContainer(gormDB, cfg)
	defer container.Logger.Sync()

	// 4. Start Background Services
	go func() {
		log.Println("Background: Starting Trace Consumer...")
		if err := container.ConsumerService.Consume(context.Background()); err != nil {
			log.Printf("Background Consumer Error: %v", err)
		}
	}()

	// Hourly sweep archiving conversations idle for a week.
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			n, err := container.QueryService.ArchiveIdleConversations(context.Background(), 7*24*time.Hour)
			if err != nil {
				log.Printf("Background Archiver Error: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("Background: archived %d idle conversations", n)
			}
		}
	}()

	// 5. Initialize Server
	srv := server.New(cfg, container)

	// 6. Run Server
	log.Fatal(srv.Run())
}
