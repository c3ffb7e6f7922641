package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wesm/collabhub/config"
	"github.com/wesm/collabhub/internal/app"
)

func main() {
	// Define command-line flags
	configPath := flag.String("config", "config.json", "Path to configuration file")
	createConfig := flag.Bool("init", false, "Create a default configuration file if it doesn't exist")
	flag.Parse()

	// Create default configuration if requested
	if *createConfig {
		if err := config.CreateDefaultConfig(*configPath); err != nil {
			log.Fatalf("Failed to create default configuration: %v", err)
		}
		log.Printf("Created default configuration at %s", *configPath)
		return
	}

	if _, err := os.Stat(*configPath); os.IsNotExist(err) {
		fmt.Println("CollabHub - GitHub collaboration dashboard")
		fmt.Println("------------------------------------------")
		fmt.Println("Use -init to create a default configuration file")
		fmt.Println("Use -config path/to/config.json to specify a custom configuration file")
		fmt.Println()
		fmt.Printf("Secrets can be provided via %s, %s, %s, %s, %s and %s\n",
			config.EnvJWTSecret, config.EnvGitHubClientSecret, config.EnvOpenAIAPIKey,
			config.EnvWebhookSecret, config.EnvSMTPPassword, config.EnvDatabaseURL)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	select {
	case <-ctx.Done():
	case err := <-application.Done():
		if err != nil {
			log.Printf("HTTP server error: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	log.Printf("Stopped")
}
