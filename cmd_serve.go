package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"braintacle/config"
	"braintacle/database"
	"braintacle/operator"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	db, err := openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	cfg := config.GetConfig()
	n, err := database.CountOperators(db)
	if err != nil {
		return err
	}
	if n == 0 {
		logger.Warn(`No operator accounts exist. Create one with "braintacle operator add".`)
	}

	sessions := operator.NewSessionStore(cfg.SessionLifetime())
	mux := http.NewServeMux()
	SetupRoutes(mux, db, sessions, logger)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           operator.Middleware(sessions, logger, "/api/login")(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := sessions.Purge(); n > 0 {
					logger.Debug("Purged expired sessions", zap.Int("count", n))
				}
			}
		}
	}()

	errc := make(chan error, 1)
	go func() {
		logger.Info("Starting server", zap.String("listen", cfg.Listen))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
