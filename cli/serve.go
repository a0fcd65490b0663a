package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stevemurr/simple-items-server/config"
	"github.com/stevemurr/simple-items-server/handler"
	"github.com/stevemurr/simple-items-server/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Backend string
	Port    string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Start the items HTTP server.

Settings come from the built-in defaults, then the --config file, then the
environment, then the flags below.

Example:
  itemsd serve --backend sqlite --port 9090
  STORE_BACKEND=mongo MONGODB_URI=mongodb://db:27017/items itemsd serve`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return Serve(ctx, cfg, NewLogger(cmd.ErrOrStderr(), cfg.Log))
		},
	}

	cmd.Flags().StringVarP(&opts.Backend, "backend", "b", "", "store backend (memory|file|sqlite|mongo|redis|dynamodb)")
	cmd.Flags().StringVarP(&opts.Port, "port", "p", "", "HTTP listen port")

	return cmd
}

// loadConfig layers the flags over config.Read and validates the result.
func loadConfig(opts *ServeOptions) (config.Config, error) {
	cfg, err := config.Read(opts.ConfigPath)
	if err != nil {
		return config.Config{}, err
	}
	if opts.Backend != "" {
		cfg.Store.Backend = opts.Backend
	}
	if opts.Port != "" {
		cfg.Port = opts.Port
	}
	return cfg, cfg.Validate()
}

// NewHTTPHandler wraps the item routes in the request logging and CORS
// middleware.
func NewHTTPHandler(s store.Store, cfg config.Config, logger *slog.Logger) http.Handler {
	h := handler.New(s, logger)
	return handler.WithCORS(handler.WithRequestLogging(h, logger), cfg.AllowedOrigins)
}

// Serve runs the server until ctx is cancelled, then drains in-flight
// requests and closes the store.
func Serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}
	return serveListener(ctx, ln, cfg, logger)
}

func serveListener(ctx context.Context, ln net.Listener, cfg config.Config, logger *slog.Logger) error {
	s, err := store.New(ctx, cfg, store.WithLogger(logger))
	if err != nil {
		ln.Close()
		return fmt.Errorf("failed to create store (backend=%s): %w", cfg.Store.Backend, err)
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Error("error closing store", "error", err)
		}
	}()

	server := &http.Server{
		Handler:      NewHTTPHandler(s, cfg, logger),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Simple Items Server starting",
			"addr", ln.Addr().String(),
			"store", cfg.Store.Backend,
			"data", cfg.Store.DataDir,
		)
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("server is shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
