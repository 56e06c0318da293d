package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/aquamarinepk/aqm"

	"github.com/appetiteclub/orderflow/services/order/cmd/utils/internal/commands"
)

const (
	appName    = "orderflow-utils"
	appVersion = "0.1.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	// project accepts an optional order id before the flags
	var orderID string
	if command == "project" && len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		orderID, args = args[0], args[1:]
	}

	config, err := aqm.LoadConfig("UTILS", args)
	if err != nil {
		log.Fatalf("Cannot load config: %v", err)
	}

	logLevel := config.GetStringOrDef("log.level", "info")
	logger := aqm.NewLogger(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch command {
	case "migrate":
		if err := commands.Migrate(ctx, config, logger); err != nil {
			log.Fatalf("❌ Migration failed: %v", err)
		}
		logger.Info("✅ Migration completed successfully")

	case "seed-demo":
		if err := commands.SeedDemo(ctx, config, logger); err != nil {
			log.Fatalf("❌ Demo seeding failed: %v", err)
		}
		logger.Info("✅ Demo seeding completed successfully")

	case "clear-demo":
		if err := commands.ClearDemo(ctx, config, logger); err != nil {
			log.Fatalf("❌ Clear demo data failed: %v", err)
		}
		logger.Info("✅ Demo data cleared successfully")

	case "project":
		if err := commands.Project(ctx, config, logger, orderID); err != nil {
			log.Fatalf("❌ Projection failed: %v", err)
		}
		logger.Info("✅ Projection completed successfully")

	case "tickets":
		if err := commands.Tickets(ctx, config, logger, os.Stdout); err != nil {
			log.Fatalf("❌ Ticket dump failed: %v", err)
		}

	case "reset-db":
		if err := commands.ResetDB(ctx, config, logger); err != nil {
			log.Fatalf("❌ Database reset failed: %v", err)
		}
		logger.Info("✅ Database reset completed successfully")

	case "version":
		fmt.Printf("%s version %s\n", appName, appVersion)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`%s - Orderflow utility commands

Usage:
  %s <command> [options]

Commands:
  migrate             Apply the SQL schema for the configured driver
  seed-demo           Create demo orders, project them and route their tickets
  clear-demo          Remove demo orders with their items, tickets and events
  project [order-id]  Project one order, or run a single reconciliation pass
  tickets             Print ticket events retained in the JetStream stream
  reset-db            Delete every order and event (USE WITH CAUTION)
  version             Print version information
  help                Show this help message

Environment Variables:
  UTILS_DB_DRIVER       sqlite or postgres (default: sqlite)
  UTILS_DB_SQLITE_PATH  SQLite file (default: data/orderflow.db)
  UTILS_DB_POSTGRES_DSN PostgreSQL connection string
  UTILS_EVENTS_SOURCE   sql or mongo (default: sql)
  UTILS_NATS_URL        NATS server (default: nats://localhost:4222)
  UTILS_LOG_LEVEL       Log level: debug, info, error (default: info)

Examples:
  %s seed-demo
  %s project 0f8b8a52-8f0e-4c6c-9a3a-2f1d5e7c9b10
  UTILS_DB_DRIVER=postgres UTILS_DB_POSTGRES_DSN=postgres://localhost/orderflow %s reset-db

`, appName, appName, appName, appName, appName)
}
