package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"productrag/internal/adapter/prompt"
	"productrag/internal/api"
	"productrag/internal/logger"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API over HTTP",
	Long: `Start the HTTP query API.

Endpoints:
  GET  /health
  GET  /metrics
  POST /api/v1/search      {"question": "...", "k": 5}
  POST /api/v1/query       {"question": "...", "k": 5}
  GET  /api/v1/collection

The engine initializes in the background; /health reports its state.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	root := GetRootDir()
	log := logger.Get()

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	rt, err := buildRuntime(cfg, root)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := api.NewHandler(rt.engine, log)
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewRouter(handler, api.RouterOptions{
			RatePerMinute: cfg.Server.RatePerMinute,
			RateBurst:     cfg.Server.RateBurst,
			Logger:        log,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := rt.engine.Init(gctx); err != nil {
			// Health reports the failure; keep serving it.
			log.Error("engine unavailable", zap.Error(err))
		}
		return nil
	})

	if cfg.Prompts.Watch {
		g.Go(func() error {
			if err := prompt.Watch(gctx, rt.prompts, 500*time.Millisecond); err != nil {
				log.Warn("prompt watcher stopped", zap.Error(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		log.Info("query API listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down query API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
