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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"rag-chat/internal/app"
	"rag-chat/internal/config"
	"rag-chat/internal/integrations/paramstore"
	"rag-chat/internal/logging"
	"rag-chat/internal/repository"
	"rag-chat/internal/usecase"
	"rag-chat/internal/workflow"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backend API over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log, err := logging.New(cfg.Log.Level)
		if err != nil {
			return err
		}
		defer func() { _ = log.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	var (
		state  usecase.StateStore
		params *paramstore.Client
	)
	switch cfg.Store.Driver {
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return fmt.Errorf("load AWS config: %w", err)
		}
		if state, err = repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.AWS.StateTable); err != nil {
			return err
		}
		if params, err = paramstore.New(awsssm.NewFromConfig(awsCfg), cfg.AWS.ParamPrefix); err != nil {
			return err
		}
	default:
		if err := os.MkdirAll(cfg.Store.PebblePath, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
		pebbleStore, err := repository.OpenPebble(cfg.Store.PebblePath, nil)
		if err != nil {
			return err
		}
		defer func() { _ = pebbleStore.Close() }()
		state = pebbleStore
	}

	provider, err := app.NewProvider(ctx, cfg, params)
	if err != nil {
		return err
	}

	runner := app.NewRunner(cfg, log.Named("workflow"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a, err := app.New(cfg, app.Options{State: state, Provider: provider, Runner: runner, Registry: reg, Log: log})
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()
	// In-flight generations finish before the stores close.
	if async, ok := runner.(*workflow.Async); ok {
		defer func() {
			cctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := async.Close(cctx); err != nil {
				log.Warn("workflow jobs cancelled at shutdown", zap.Error(err))
			}
		}()
	}

	router := a.Handler.Router()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.Server.Addr), zap.String("store", cfg.Store.Driver), zap.String("provider", cfg.LLM.Provider))
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
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(sctx)
}
