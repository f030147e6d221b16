package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KaramelBytes/riskloom-cli/internal/dashboard"
	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pricing dashboard",
	Long: `Loads the model bundle once and serves the assessment form on /, the JSON API
on /api/assess, /healthz and Prometheus metrics on /metrics. Without models the
dashboard still starts and shows how to train them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		addr := c.DashboardAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
		defer stop()

		store, err := openStore(ctx, c)
		if err != nil {
			return err
		}
		app, err := dashboard.Load(ctx, store, c, logger)
		if err != nil {
			return err
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           app.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe()
		}()
		logger.Info("dashboard listening", slog.String("addr", addr), slog.Bool("models_loaded", app.Ready()))
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Dashboard on http://%s\n", displayAddr(addr))

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return fmt.Errorf("serve: %w", err)
		case <-ctx.Done():
		}
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	},
}

func displayAddr(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "localhost" + addr
	}
	return addr
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides dashboard_addr)")
}
