package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"dualauth-server/src/api"
	"dualauth-server/src/config"
)

const shutdownTimeout = 15 * time.Second

func serveCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("port", "", "listen port (default 8080)")
	cmd.Flags().String("store", "", "store driver (postgres, memory)")
	_ = v.BindPFlag("PORT", cmd.Flags().Lookup("port"))
	_ = v.BindPFlag("STORE_DRIVER", cmd.Flags().Lookup("store"))
	return cmd
}

func runServe(ctx context.Context, cfg config.Config) error {
	// Money goes over the wire as JSON numbers.
	decimal.MarshalJSONWithoutQuotes = true

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	router := api.NewRouter(a.services, api.Options{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.AllowedOrigins,
		DemoMode:       cfg.DemoMode,
		Sessions:       a.sessions,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server running", "port", cfg.Port, "store", cfg.StoreDriver, "demo", cfg.DemoMode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
