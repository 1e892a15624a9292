package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"brokerage-sim-go/internal/broker"
	"brokerage-sim-go/internal/config"
	"brokerage-sim-go/internal/database"
	"brokerage-sim-go/internal/logger"
	"brokerage-sim-go/internal/quote"
	"brokerage-sim-go/internal/server"
	"brokerage-sim-go/internal/session"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Initialize session token store
	sessions, err := session.NewStore(&cfg.Redis, log.Named("session"))
	if err != nil {
		log.Fatal("Failed to connect to redis", zap.Error(err))
	}

	initialCash, err := decimal.NewFromString(cfg.Broker.InitialCash)
	if err != nil {
		log.Fatal("Invalid initial cash setting", zap.Error(err))
	}

	// Initialize the quote provider client and the brokerage core
	quotes := quote.NewClient(&cfg.Quotes, log.Named("quotes"))
	accounts := broker.NewAccountService(db, log.Named("accounts"), initialCash)
	ledger := broker.NewLedger(db)
	projector := broker.NewProjector(accounts, ledger, quotes, log.Named("portfolio"))
	orders := broker.NewOrderProcessor(db, accounts, ledger, quotes, log.Named("orders"))

	srv := server.NewServer(&cfg, log, accounts, orders, projector, ledger, quotes, sessions)
	srv.Start()

	// Wait for a shutdown signal
	sigchan := make(chan os.Signal, 1)
	signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
	<-sigchan
	log.Info("Shutdown signal received, gracefully shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(ctx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}

	log.Info("Server has been shut down.")
}
