package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/0tSystemsPublicRepos/mirage/internal/api"
	"github.com/0tSystemsPublicRepos/mirage/internal/config"
	"github.com/0tSystemsPublicRepos/mirage/internal/database"
	"github.com/0tSystemsPublicRepos/mirage/internal/deception"
	"github.com/0tSystemsPublicRepos/mirage/internal/logging"
	"github.com/0tSystemsPublicRepos/mirage/internal/notifications"
	"github.com/0tSystemsPublicRepos/mirage/internal/pipeline"
	"github.com/0tSystemsPublicRepos/mirage/internal/response"
	"github.com/0tSystemsPublicRepos/mirage/internal/scoring"
)

const version = "0.2.0"

var (
	configPath       string
	deceptionPosture string
	responsePosture  string
	activateResponse bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mirage",
		Short: "Deception and autonomous response pipeline",
		Long:  "Mirage runs honeypot listeners, scores the connections they attract and executes posture gated containment actions.",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the deception pipeline",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&deceptionPosture, "deception", "MEDIUM", "initial deception posture (OFF, LOW, MEDIUM, HIGH, PARANOID)")
	serveCmd.Flags().StringVar(&responsePosture, "response", "MODERATE", "response posture (CONSERVATIVE, MODERATE, AGGRESSIVE)")
	serveCmd.Flags().BoolVar(&activateResponse, "activate", true, "activate autonomous response on start")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mirage %s\n", version)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logging.Init(cfg.System.LogDir, &cfg.LogRotation, cfg.System.LogLevel, cfg.System.Debug); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Close()

	logging.Info("[SYSTEM] Mirage %s starting", version)

	// The pipeline keeps running without persistence, so a database
	// failure at startup degrades instead of aborting.
	var (
		db         *database.SQLiteDB
		incStore   response.IncidentStore
		eventStore pipeline.EventStore
	)
	db, err = database.NewSQLiteDB(cfg.Database.Path)
	if err != nil {
		logging.Error("[SYSTEM] Database unavailable, running without persistence: %v", err)
		db = nil
	} else {
		incStore = db
		eventStore = db
	}

	notifier := notifications.NewManager(&cfg.Notifications)
	scorer := scoring.NewHeuristicScorer(&cfg.Scoring)
	controller := response.NewController(&cfg.Response, scorer, incStore, notifier)
	manager := deception.NewManager(&cfg.Deception)
	coordinator := pipeline.NewCoordinator(manager, controller, eventStore, cfg.Response.Workers)
	coordinator.Start()

	dp, err := deception.ParsePosture(deceptionPosture)
	if err != nil {
		return err
	}
	rp, err := response.ParsePosture(responsePosture)
	if err != nil {
		return err
	}

	report := coordinator.SetDeceptionPosture(dp)
	logging.Info("[SYSTEM] Deception posture %s: %s", dp, report.Summary())
	if activateResponse {
		coordinator.ActivateResponse(rp)
	}

	var apiServer *api.APIServer
	if cfg.API.Enabled {
		apiServer = api.NewAPIServer(cfg.API.ListenAddr, coordinator, db)
		go func() {
			if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
				logging.Error("[API] Server error: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Info("[SYSTEM] Received %s, shutting down", sig)

	if apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := apiServer.Shutdown(ctx); err != nil {
			logging.Error("[API] Shutdown error: %v", err)
		}
		cancel()
	}
	coordinator.Stop()
	if db != nil {
		if err := db.Close(); err != nil {
			logging.Error("[DATABASE] Close error: %v", err)
		}
	}
	logging.Info("[SYSTEM] Shutdown complete")
	return nil
}
