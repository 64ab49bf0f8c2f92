package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"creatorpay/cmd"
	"creatorpay/database"

	log "github.com/sirupsen/logrus"
)

const usage = `usage: creatorpay [command]

commands:
  serve                       run the API, event consumers and workers (default)
  migrate up|down [n]|status  manage the database schema
  batch [period]              sweep one period (YYYY-MM), defaults to the previous month
  retry-failed                run one pass of the payout retry scheduler`

func main() {
	// Check for migration subcommands
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := handleMigrationCommand(); err != nil {
			log.Fatal("Migration error: ", err)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal, shutting down gracefully...")
		cancel()
	}()

	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	var err error
	switch command {
	case "serve":
		err = cmd.Run(ctx)
	case "batch":
		period := ""
		if len(os.Args) > 2 {
			period = os.Args[2]
		}
		err = cmd.RunBatch(ctx, period)
	case "retry-failed":
		err = cmd.RunRetries(ctx)
	case "help", "-h", "--help":
		fmt.Println(usage)
		return
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		log.Fatal("Application error: ", err)
	}
}

func handleMigrationCommand() error {
	if len(os.Args) < 3 {
		return fmt.Errorf("usage: creatorpay migrate [up|down|status] [args...]")
	}

	command := os.Args[2]
	switch command {
	case "up":
		return database.MigrateUp()
	case "down":
		steps := "1"
		if len(os.Args) > 3 {
			steps = os.Args[3]
		}
		return database.MigrateDown(steps)
	case "status":
		return database.MigrateStatus()
	default:
		return fmt.Errorf("unknown migration command: %s", command)
	}
}
