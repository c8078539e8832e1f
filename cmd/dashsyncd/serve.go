package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/solidSpoon/DashChat/syncserver"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync API server",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return viper.BindPFlags(cmd.Flags())
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger()

		addr := viper.GetString("addr")
		dsn := viper.GetString("dsn")
		secret := viper.GetString("jwt-secret")
		if dsn == "" {
			return fmt.Errorf("database DSN is required (--dsn or DASHSYNC_DSN)")
		}
		if secret == "" {
			return fmt.Errorf("JWT secret is required (--jwt-secret or DASHSYNC_JWT_SECRET)")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := syncserver.Migrate(ctx, dsn); err != nil {
			return err
		}

		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return fmt.Errorf("failed to create connection pool: %w", err)
		}
		defer pool.Close()
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}

		store := syncserver.NewPGStore(pool, logger)
		auth := syncserver.NewJWTAuth(secret)
		handlers := syncserver.NewHTTPHandlers(store, auth, logger)

		mux := http.NewServeMux()
		handlers.Register(mux)

		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("sync server listening", "addr", addr)
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return fmt.Errorf("server failed: %w", err)
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", ":8080", "listen address")
	serveCmd.Flags().String("dsn", "", "Postgres DSN")
	serveCmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens")

	rootCmd.AddCommand(serveCmd)
}
