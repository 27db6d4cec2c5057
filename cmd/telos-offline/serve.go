package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/telos-app/telos-offline/cmd/telos-offline/handlers"
	"github.com/telos-app/telos-offline/internal/db"
	"github.com/telos-app/telos-offline/internal/gateway"
	"github.com/telos-app/telos-offline/internal/logging"
	"github.com/telos-app/telos-offline/internal/offline"
	"github.com/telos-app/telos-offline/internal/remote"
	syncpkg "github.com/telos-app/telos-offline/internal/sync"
	"github.com/telos-app/telos-offline/internal/sync/netmon"
	"github.com/telos-app/telos-offline/internal/ws"
)

// drainTimeout bounds one automatic drain pass.
const drainTimeout = 5 * time.Minute

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the offline gateway and sync daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		database, err := db.Open(cfg.DataDir)
		if err != nil {
			return err
		}
		defer database.Close()

		if err := db.Migrate(database.DB); err != nil {
			return err
		}

		repo := db.NewRepository(database.DB)
		client := remote.NewClient(cfg.APIBaseURL, cfg.SessionToken)

		if exp, ok := client.TokenExpiry(); ok && time.Now().After(exp) {
			logging.Warn("Session token is expired; remote calls will be rejected",
				map[string]interface{}{"expired_at": exp.Format(time.RFC3339)})
		}

		monitor := netmon.New(cfg.APIBaseURL+"/api/health", cfg.ProbeInterval)
		engine := syncpkg.NewEngine(repo, client, monitor.IsOnline)
		saver := offline.NewSaver(repo, client)
		hub := ws.NewHub()

		engine.SubscribeStatus(func(s syncpkg.Status) {
			hub.BroadcastSyncStatus(string(s))
		})

		gw, err := gateway.New(gateway.Config{
			Origin:      cfg.Origin,
			Version:     cfg.CacheVersion,
			CacheDir:    cfg.DataDir + "/gateway-cache",
			APIPrefix:   "/api/",
			SkipWaiting: true,
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := gw.Install(ctx); err != nil {
			// Offline start: the shell cannot be precached yet. Install is
			// retried on the next online transition.
			logging.Warn("Gateway install deferred", map[string]interface{}{"error": err.Error()})
		}

		// Reconnection is the sole automatic sync trigger.
		monitor.OnTransition(
			func() {
				hub.BroadcastNetworkStatus(true)
				if gw.State() != gateway.StateActivated {
					if err := gw.Install(ctx); err != nil {
						logging.Warn("Gateway install retry failed",
							map[string]interface{}{"error": err.Error()})
					}
				}
				go func() {
					drainCtx, cancel := context.WithTimeout(ctx, drainTimeout)
					defer cancel()
					engine.Drain(drainCtx)
				}()
			},
			func() {
				hub.BroadcastNetworkStatus(false)
			},
		)
		monitor.Start()
		defer monitor.Stop()

		h := handlers.New(repo, engine, saver, hub)

		r := chi.NewRouter()
		r.Get("/_offline/ws", hub.ServeWS)
		r.Route("/_offline", h.Routes)
		r.Mount("/", gw.Handler())

		server := &http.Server{Addr: cfg.ListenAddr, Handler: r}

		errCh := make(chan error, 1)
		go func() {
			logging.Info("telos-offline listening", map[string]interface{}{"addr": cfg.ListenAddr})
			errCh <- server.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case err := <-errCh:
			return err
		}
	},
}
