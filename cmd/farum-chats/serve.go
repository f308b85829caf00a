package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/farum-chats/internal/adapters/auth"
	httpadapter "github.com/PabloGalante/farum-chats/internal/adapters/http"
	"github.com/PabloGalante/farum-chats/internal/app/chats"
	"github.com/PabloGalante/farum-chats/internal/config"
	"github.com/PabloGalante/farum-chats/internal/observability"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		observability.Configure(os.Stdout, cfg.LogLevel)
		log := observability.Logger()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, personas, err := openStores(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Error("closing store", "error", err)
			}
		}()

		identity, err := auth.NewJWTProvider(cfg.JWTSecret)
		if err != nil {
			return err
		}

		svc := chats.NewService(store, personas)
		handler := httpadapter.NewServer(svc, identity, httpadapter.ServerConfig{
			RateLimit: cfg.RateLimit,
			RateBurst: cfg.RateBurst,
		})

		srv := &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info("Farum chats API listening", "port", cfg.Port, "backend", cfg.StorageBackend)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
