package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/whop-crm-go/internal/handler"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		// --- Router ---
		router := handler.NewRouter(a.services, a.metrics, a.logger)

		// --- Server ---
		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", a.cfg.Port),
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		// --- Graceful shutdown ---
		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("server starting", zap.Int("port", a.cfg.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case err := <-errCh:
			return fmt.Errorf("server failed: %w", err)
		}

		a.logger.Info("server shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("server forced shutdown: %w", err)
		}
		if err := a.services.Webhooks.Drain(ctx); err != nil {
			a.logger.Warn("webhook deliveries still in flight at shutdown", zap.Error(err))
		}

		a.logger.Info("server stopped")
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull memberships of the configured company from Whop",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		company, err := a.services.Tenants.Configured(ctx)
		if err != nil {
			return err
		}
		result, err := a.services.Sync.Sync(ctx, company)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "synced %d members for %s\n", result.Synced, company.WhopCompanyID)
		return nil
	},
}

var rescoreCmd = &cobra.Command{
	Use:   "rescore",
	Short: "Recompute engagement, churn risk and LTV for every member",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		ctx := cmd.Context()
		company, err := a.services.Tenants.Configured(ctx)
		if err != nil {
			return err
		}
		result, err := a.services.Scoring.UpdateAllMemberInsights(ctx, company.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "rescored %d of %d members\n", result.Updated, result.Total)
		return nil
	},
}
