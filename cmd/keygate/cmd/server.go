package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/tgrimes/keygate/api"
	"github.com/tgrimes/keygate/config"
	"github.com/tgrimes/keygate/session"
	"github.com/tgrimes/keygate/session/kv"
	pgstore "github.com/tgrimes/keygate/session/postgres"
	redisstore "github.com/tgrimes/keygate/session/redis"
	bboltstorage "github.com/tgrimes/keygate/storage/bbolt"
	"github.com/tgrimes/keygate/token"
	"github.com/tgrimes/keygate/transport"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the authentication token service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		log := newLogger(cfg.Log)

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		// The account registry always lives in bbolt, next to the
		// session data when that backend is selected.
		if err := os.MkdirAll(filepath.Dir(cfg.Session.BboltPath), 0o700); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
		repo, err := bboltstorage.NewRepositoryFromFile(cfg.Session.BboltPath, nil)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer repo.Close()

		var store session.Store
		switch cfg.Session.Backend {
		case config.BackendPostgres:
			pg, err := pgstore.NewStoreFromDSN(ctx, cfg.Session.PostgresDSN)
			if err != nil {
				return fmt.Errorf("opening postgres session store: %w", err)
			}
			defer pg.Close()
			store = pg
		default:
			store = kv.NewStore(repo)
		}

		var flags session.FlagStore
		if cfg.Redis.Enabled {
			client, err := redisstore.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
			if err != nil {
				return fmt.Errorf("connecting to redis: %w", err)
			}
			defer client.Close()
			flags = redisstore.NewFlagStore(client)
		} else {
			flags = kv.NewFlagStore(repo)
		}

		keys, err := token.NewKeyring([]byte(cfg.Token.MasterSecret), []byte(cfg.Token.NonceHashSecret))
		if err != nil {
			return fmt.Errorf("deriving keys: %w", err)
		}

		protocol := token.New(keys, store, token.Config{
			CookiePrefix:  cfg.Cookie.Prefix,
			HeaderName:    cfg.Token.HeaderName,
			RequireSecure: cfg.Token.RequireSecure,
			DefaultTTL:    cfg.Token.DefaultTTL,
		}, token.WithLogger(log))

		apiOpts := []api.Option{
			api.WithLogger(log),
			api.WithTokenTTL(cfg.Token.DefaultTTL),
			api.WithCookiePolicy(transport.Policy{
				Path:     cfg.Cookie.Path,
				Secure:   cfg.Token.RequireSecure,
				SameSite: cfg.Cookie.SameSiteMode(),
			}),
		}
		if cfg.Token.RequireHeader {
			apiOpts = append(apiOpts, api.WithRequiredHeader())
		}
		a := api.New(protocol, repo, apiOpts...)

		sweeper := session.NewSweeper(store, flags, cfg.Session.SweepInterval, log)
		go sweeper.Run(ctx, cfg.Session.SweepInterval)

		r := chi.NewRouter()
		r.Use(middleware.Logger)
		r.Use(middleware.Recoverer)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("OK"))
		})
		r.Handle("/metrics", promhttp.Handler())
		r.Mount("/api/v1", a.Router())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		// Graceful shutdown on SIGINT/SIGTERM.
		done := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				done <- fmt.Errorf("server failed: %w", err)
				return
			}
			done <- nil
		}()

		printBanner()
		log.Info("server started",
			slog.Int("port", cfg.Port),
			slog.String("backend", cfg.Session.Backend),
			slog.String("version", Version))

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			log.Info("shutting down", slog.String("signal", sig.String()))
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server shutdown failed: %w", err)
			}
			return nil
		case err := <-done:
			return err
		}
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
