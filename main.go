package main

import (
	"log"

	"github.com/arunvm123/concerttrack/config"
	"github.com/arunvm123/concerttrack/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// A .env file is optional
	_ = godotenv.Load()

	// Try to load from config.yaml first, fallback to environment variables
	cfg, err := config.Initialise("config.yaml", false)
	if err != nil {
		log.Printf("Config file not found or invalid, using environment variables: %v", err)
		cfg, err = config.Initialise("", true)
		if err != nil {
			log.Fatal("Failed to load configuration:", err)
		}
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Setup router with all dependencies
	router, cleanup := SetupRouter(cfg)
	defer cleanup()

	logger.Info("Starting Concert Service API", zap.String("port", cfg.Port))
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}
