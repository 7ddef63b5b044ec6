package main

import (
	"context"
	"log"
	"os"

	"github.com/safar/axon-pharmacy/internal/config"
	"github.com/safar/axon-pharmacy/internal/database"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("Usage: go run ./cmd/migrate [up|down|status|reset|version|redo|up-to V|down-to V]")
	}
	command, args := os.Args[1], os.Args[2:]

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	ctx := context.Background()
	db, err := database.NewConnection(ctx, &cfg.Database)
	if err != nil {
		log.Fatalf("Connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db, command, args...); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Printf("Migration %s completed", command)
}
