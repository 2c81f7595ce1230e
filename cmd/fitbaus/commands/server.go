package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/fitbaus/fitbaus/am"
	"github.com/fitbaus/fitbaus/errors"
	"github.com/fitbaus/fitbaus/fetch/async"
	"github.com/fitbaus/fitbaus/logger"
	"github.com/fitbaus/fitbaus/profile"
	"github.com/fitbaus/fitbaus/server"
)

// ServerCmd starts the fitbaus fetch orchestration server
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the fetch orchestration server",
	Long: `Launch the fitbaus server: the dashboard, the job API and the WebSocket
job stream. Fetch and authorization scripts run as supervised background
jobs with live progress.`,
	RunE: runServer,
}

var (
	serverPort        int
	serverDBPath      string
	serverProfilesDir string
	serverNoWatch     bool
	serverNoArchive   bool
)

func init() {
	ServerCmd.Flags().IntVar(&serverPort, "port", 0, "HTTP port (overrides config and PORT env)")
	ServerCmd.Flags().StringVar(&serverDBPath, "db-path", "", "Job archive database path (overrides config)")
	ServerCmd.Flags().StringVar(&serverProfilesDir, "profiles-dir", "", "Profiles directory (overrides config)")
	ServerCmd.Flags().BoolVar(&serverNoWatch, "no-watch", false, "Disable config file watching")
	ServerCmd.Flags().BoolVar(&serverNoArchive, "no-archive", false, "Run without the job archive database")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}

	if serverProfilesDir != "" {
		cfg.Paths.ProfilesDir = serverProfilesDir
	}

	port := serverPort
	if port == 0 {
		port = am.GetServerPort()
	}

	// Job archive database. --no-archive keeps everything in memory, which
	// still serves every endpoint except fetch-history.
	var archive *async.Store
	dbPath := ""
	if !serverNoArchive {
		database, path, err := openDatabase(serverDBPath)
		if err != nil {
			return errors.Wrap(err, "failed to open database")
		}
		defer database.Close()
		archive = async.NewStore(database)
		dbPath = path
	}

	printStartupBanner(cfg, port, dbPath)

	profiles := profile.NewStore(cfg.Paths.ProfilesDir, logger.Logger)
	controller := async.NewController(cfg, profiles, archive, logger.Logger)
	srv := server.New(cfg, controller, profiles, archive, logger.Logger)

	if !serverNoWatch {
		setupConfigWatcher(srv)
	}

	// Start server in background
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(port)
	}()

	// Wait for shutdown signal (Ctrl+C)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		// Server failed to start or stopped unexpectedly
		return errors.Wrap(err, "server failed to start")
	case <-sigChan:
		// First Ctrl+C - graceful shutdown
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Stop()
		}()

		// Wait for either shutdown completion or second Ctrl+C
		select {
		case err := <-shutdownDone:
			if err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			// Second Ctrl+C - force immediate exit
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil // unreachable
		}
	}
}

// setupConfigWatcher wires config file watching so origin and path changes
// apply without a restart.
func setupConfigWatcher(srv *server.Server) {
	configPath := am.ConfigFilePath()
	if configPath == "" {
		logger.Infow("No config file found, using defaults (config watching disabled)")
		return
	}

	watcher, err := am.NewConfigWatcher(configPath)
	if err != nil {
		logger.Warnw("Failed to create config watcher, manual restart required for config changes", "error", err)
		return
	}

	// Set global watcher so settings writes do not trigger reload loops
	am.SetGlobalWatcher(watcher)
	srv.SetConfigWatcher(watcher)

	watcher.OnReload(func(newCfg *am.Config) error {
		logger.Infow("Config reloaded",
			"profiles_dir", newCfg.Paths.ProfilesDir,
			"allowed_origins", newCfg.GetServerAllowedOrigins(),
		)
		return nil
	})

	watcher.Start()
	logger.Infow("Config watcher started", "path", configPath)
}
