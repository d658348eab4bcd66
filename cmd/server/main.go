package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/planarnexus/nexus-server/internal/config"
	"github.com/planarnexus/nexus-server/internal/game"
	"github.com/planarnexus/nexus-server/internal/game/autosave"
	"github.com/planarnexus/nexus-server/internal/game/mana"
	"github.com/planarnexus/nexus-server/internal/game/replay"
	"github.com/planarnexus/nexus-server/internal/game/rules"
	"github.com/planarnexus/nexus-server/internal/server"
	"github.com/planarnexus/nexus-server/internal/storage"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting nexus server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	db, err := storage.NewStore(ctx, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	var (
		replayStore replay.Store
		saveStore   autosave.Store
	)
	if db != nil {
		replayStore, saveStore = db, db
		logger.Info("using postgres storage")
	} else {
		replayStore, saveStore = fileStores(cfg.Storage)
		logger.Info("using file storage",
			zap.String("replay_dir", dirOr(cfg.Storage.ReplayDir, replay.DefaultDir())),
			zap.String("autosave_dir", dirOr(cfg.Storage.AutoSaveDir, autosave.DefaultDir())),
		)
	}

	lands, err := db.LoadLandTable(ctx)
	if err != nil {
		logger.Fatal("failed to load land table", zap.Error(err))
	}

	hub := server.NewHub(cfg.Server, newSessionFactory(cfg, lands, replayStore, saveStore, logger), logger)
	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: hub.Handler(),
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("address", cfg.Server.Address))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(serveErr))
			sigChan <- syscall.SIGTERM
		}
	}()

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	hub.Shutdown(shutdownCtx)

	logger.Info("nexus server stopped")
}

// newSessionFactory builds sessions from the game settings, with replays
// and auto-saves going to the configured stores.
func newSessionFactory(cfg *config.Config, lands mana.LandTable, replayStore replay.Store, saveStore autosave.Store, logger *zap.Logger) server.SessionFactory {
	return func(gameID string, players []string) (*game.Session, error) {
		if len(players) < 2 {
			return nil, fmt.Errorf("a game needs at least 2 players, got %d", len(players))
		}
		session := game.NewSession(game.Config{
			GameID:        gameID,
			Format:        cfg.Game.Format,
			Players:       players,
			TurnOrderType: rules.TurnOrderType(cfg.Game.TurnOrderType),
			StartingLife:  cfg.Game.StartingLife,
			LandTable:     lands,
			Replay:        cfg.Replay,
		}, nil, replay.NewRecorder(logger, replayStore), logger)

		// The server has no local player, so only the end of the game
		// clears auto-saves.
		if cfg.AutoSave.Enabled {
			session.EnableAutoSave(cfg.AutoSave, saveStore, "")
		}
		return session, nil
	}
}

func fileStores(cfg config.StorageConfig) (*replay.FileStore, *autosave.FileStore) {
	return replay.NewFileStore(dirOr(cfg.ReplayDir, replay.DefaultDir())),
		autosave.NewFileStore(dirOr(cfg.AutoSaveDir, autosave.DefaultDir()))
}

func dirOr(dir, fallback string) string {
	if dir == "" {
		return fallback
	}
	return dir
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
