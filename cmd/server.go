package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/opsdash/internal/audit"
	"github.com/ziadkadry99/opsdash/internal/config"
	"github.com/ziadkadry99/opsdash/internal/dashboard"
	"github.com/ziadkadry99/opsdash/internal/db"
	"github.com/ziadkadry99/opsdash/internal/logging"
	"github.com/ziadkadry99/opsdash/internal/runs"
	"github.com/ziadkadry99/opsdash/internal/server"
	"github.com/ziadkadry99/opsdash/internal/session"
	"github.com/ziadkadry99/opsdash/internal/views"
)

const sessionJanitorInterval = 10 * time.Minute

var serverPort int

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the dashboard server",
	Long:  `Starts the opsdash web dashboard: login, views, agent management and live run logs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serverPort > 0 {
			cfg.Listen = fmt.Sprintf(":%d", serverPort)
		}
		logging.Init(logging.Config{Level: logLevel(cfg), Format: cfg.Log.Format})

		// Open database.
		dbPath := filepath.Join(cfg.DataDir, "opsdash.db")
		database, err := db.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening database: %w", err)
		}
		defer database.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sessions := session.NewStore(database, cfg.SessionTTL())
		go sessions.RunJanitor(ctx, sessionJanitorInterval)

		dash, err := newDashboard(cfg, database, sessions)
		if err != nil {
			return err
		}

		srv := server.New(server.Config{
			Listen:         cfg.Listen,
			AllowAll:       cfg.CORS.AllowAll,
			RequestTimeout: cfg.RouteTimeout(),
		}, database, dash)

		// Graceful shutdown.
		go func() {
			<-ctx.Done()
			log.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()

		log.Info().
			Str("version", Version).
			Str("listen", cfg.Listen).
			Str("backend", cfg.BackendURL).
			Str("grafana", cfg.GrafanaURL).
			Str("database", dbPath).
			Msg("opsdash server starting")

		if err := srv.Start(); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

// newDashboard wires the dashboard feature from configuration.
func newDashboard(cfg *config.Config, database *db.DB, sessions *session.Store) (*dashboard.Dashboard, error) {
	renderer, err := views.NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	auditStore := audit.NewStore(database)
	registry := views.Standard(views.Deps{
		Audit:        auditStore,
		Agents:       chainConfig(cfg),
		NetronURL:    cfg.NetronURL,
		InstallBase:  cfg.InstallBase(),
		InstallToken: cfg.Agents.InstallToken,
	})

	return dashboard.New(dashboard.Options{
		Backend:        newClient(cfg),
		Sessions:       sessions,
		Audit:          auditStore,
		Views:          registry,
		Renderer:       renderer,
		Follower:       &runs.Follower{Interval: cfg.FollowInterval()},
		GrafanaURL:     cfg.GrafanaURL,
		CookieName:     cfg.Session.CookieName,
		SecureCookie:   cfg.Session.SecureCookie,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	}), nil
}

func init() {
	serverCmd.Flags().IntVar(&serverPort, "port", 0, "Port to listen on (overrides listen in the config)")
	rootCmd.AddCommand(serverCmd)
}
