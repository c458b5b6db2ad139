package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"site-gateway/internal/apiclient"
	"site-gateway/internal/config"
	"site-gateway/internal/handler"
	"site-gateway/internal/middleware"
	"site-gateway/internal/runtimeconfig"
	"site-gateway/internal/server"
	"site-gateway/internal/service"
	"site-gateway/internal/utils"
	"site-gateway/pkg/logger"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := setup()
	if err != nil {
		return err
	}

	// Server execution context: resolved once from the process environment.
	provider := runtimeconfig.NewProvider(runtimeconfig.EnvSource{})
	rc := provider.Get()
	logger.Infof("API base %s, chat base %s", rc.APIBaseURL, rc.ChatBaseURL)

	gin.SetMode(gin.ReleaseMode)
	srv, limiter, err := newServer(cfg, provider)
	if err != nil {
		return err
	}

	stop := make(chan struct{})
	if limiter != nil {
		go limiter.Run(stop)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on port %d", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		close(stop)
		return err
	case <-quit:
	}

	logger.Info("shutting down")
	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Relay.Timeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// newServer builds the HTTP server for one server execution context. The
// returned limiter is nil when rate limiting is disabled.
func newServer(cfg *config.Config, provider *runtimeconfig.Provider) (*http.Server, *middleware.RateLimiter, error) {
	// No client-level timeout for the relay: its own bound decides.
	relay := service.NewChatRelay(provider, utils.NewHTTPClient(0), cfg.Relay.Timeout)
	backend := apiclient.New("", provider, utils.NewHTTPClient(cfg.Relay.Timeout))

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMinute, time.Minute)
	}

	router, err := server.NewRouter(cfg, server.Handlers{
		Chat:   handler.NewChatHandler(relay, cfg.Relay.MaxBodyBytes),
		Config: handler.NewConfigHandler(provider, backend),
	}, limiter)
	if err != nil {
		return nil, nil, err
	}

	return &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}, limiter, nil
}

func newConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the runtime configuration resolved from the environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := setup(); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(runtimeconfig.NewProvider(runtimeconfig.EnvSource{}).Get())
		},
	}
}
