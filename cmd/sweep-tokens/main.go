package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/subosito/gotenv"

	"github.com/opsdeck/approvalflow/internal/application/service"
	"github.com/opsdeck/approvalflow/internal/config"
	"github.com/opsdeck/approvalflow/internal/container"
	"github.com/opsdeck/approvalflow/pkg/utils"
)

// One-shot cleanup of expired and stale action tokens. Intended for
// cron-style invocation on deployments that do not run the background
// sweeper, and for manual cleanup after incidents.

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	timeout := flag.Duration("timeout", 60*time.Second, "overall timeout for the sweep")
	flag.Parse()

	_ = gotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: "stdout",
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	dbBundle, err := container.ProvideDatabase(&cfg.Database, logger)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer dbBundle.SqlDB.Close()

	repos, err := container.ProvideRepositories(dbBundle.SqlDB, logger)
	if err != nil {
		log.Fatalf("Failed to create repositories: %v", err)
	}

	tokens := service.NewTokenService(repos.Token, cfg.Token.SigningKey, stdLogger{})

	removed, err := tokens.CleanupExpired(ctx)
	if err != nil {
		log.Fatalf("Token sweep failed: %v", err)
	}

	fmt.Printf("Token sweep complete: %d tokens removed\n", removed)
	os.Exit(0)
}

// stdLogger satisfies the service logging contract with plain stdlib output,
// which reads better for a short-lived CLI than structured JSON.
type stdLogger struct{}

func (stdLogger) Info(msg string, keysAndValues ...interface{}) {
	log.Println(append([]interface{}{"INFO", msg}, keysAndValues...)...)
}

func (stdLogger) Error(msg string, keysAndValues ...interface{}) {
	log.Println(append([]interface{}{"ERROR", msg}, keysAndValues...)...)
}
