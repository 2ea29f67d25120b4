package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/navikt/liveroom/internal/api"
	"github.com/navikt/liveroom/internal/config"
	"github.com/navikt/liveroom/internal/metrics"
	"github.com/navikt/liveroom/internal/push"
	"github.com/navikt/liveroom/internal/registry"
	"github.com/navikt/liveroom/internal/repository"
	"github.com/navikt/liveroom/internal/web"
	"github.com/spf13/cobra"
)

func newServeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, a.cfg)
		},
	}

	cmd.Flags().String("port", "", "port to listen on")
	cobra.CheckErr(a.v.BindPFlag(config.KeyServerPort, cmd.Flags().Lookup("port")))
	return cmd
}

// serve runs the server until ctx is cancelled
func serve(ctx context.Context, cfg config.Config) error {
	repo, err := repository.NewRepository(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}

	// Close the Redis connection on exit
	if closer, ok := repo.(interface{ Close() error }); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				log.Printf("Error closing Redis connection: %v", err)
			}
		}()
	}

	pushService, err := push.NewService(cfg.Push.VAPIDPublicKey)
	if err != nil {
		return fmt.Errorf("invalid push configuration: %w", err)
	}

	m := metrics.Default()
	client := registry.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout)
	client.SetMetrics(m)

	webHandler, err := web.NewHandler(web.Options{
		Client:       client,
		Repo:         repo,
		Jitsi:        cfg.Jitsi,
		Push:         pushService,
		Metrics:      m,
		CookieSecure: cfg.Server.CookieSecure,
		CallTimeout:  cfg.Backend.Timeout,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize web handler: %w", err)
	}

	mux := http.NewServeMux()
	api.SetupRoutes(mux, repo, client, m)
	webHandler.SetupRoutes(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      web.WrapMuxWithMiddleware(mux),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: 0, // Disable write timeout for SSE connections
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("Starting liveroom server on port %s (backend %s)", cfg.Server.Port, cfg.Backend.BaseURL)
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		webHandler.Shutdown()
		return fmt.Errorf("error starting server: %w", err)

	case <-ctx.Done():
		log.Println("Shutting down server...")

		// First, tear down live rooms and close SSE connections
		webHandler.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			server.Close()
			return fmt.Errorf("error shutting down server: %w", err)
		}

		log.Println("Server gracefully stopped")
		return nil
	}
}
