package main

import (
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/luchaneitor/tecnoacceso-web/internal/bridge"
	"github.com/luchaneitor/tecnoacceso-web/internal/server/api"
	"github.com/luchaneitor/tecnoacceso-web/internal/server/config"
	"github.com/luchaneitor/tecnoacceso-web/internal/server/crypto"
	"github.com/luchaneitor/tecnoacceso-web/internal/server/database"
	"github.com/luchaneitor/tecnoacceso-web/pkg/logger"
)

func main() {
	cfg, err := config.Load(config.Overrides{})
	if err != nil {
		logger.Errorf("Failed to load config: %v", err)
		os.Exit(1)
	}

	if cfg.Debug {
		logger.SetLevel(logger.LevelDebug)
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	logger.Infof("Opening database: %s", cfg.DatabasePath)
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		logger.Errorf("Failed to open database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	jwtManager, err := crypto.NewJWTManager(cfg.MasterSecret)
	if err != nil {
		logger.Errorf("Failed to create JWT manager: %v", err)
		os.Exit(1)
	}

	deviceName := os.Getenv("TECNOACCESO_BRIDGE_DEVICE")
	if deviceName == "" {
		deviceName = "TecnoAcceso"
	}
	sim := bridge.NewSimulator(uuid.NewString(), deviceName)

	router := api.NewRouter(cfg, db.DB, jwtManager, sim)

	logger.Infof("TecnoAcceso panel server starting on http://localhost%s", cfg.Addr)
	logger.Infof("Bridge device: %s", deviceName)

	if err := router.Run(cfg.Addr); err != nil {
		logger.Errorf("Failed to start server: %v", err)
		os.Exit(1)
	}
}
