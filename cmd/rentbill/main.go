package main

import (
	"context"
	"errors"
	"image/color"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"rentbill/internal/backend"
	"rentbill/internal/billstore"
	"rentbill/internal/cache"
	"rentbill/internal/cli"
	"rentbill/internal/export"
	apphttp "rentbill/internal/http"
	applog "rentbill/internal/log"
	"rentbill/internal/metrics"
	"rentbill/internal/view"
)

const (
	shutdownTimeout   = 30 * time.Second
	cacheSweepEvery   = time.Minute
	startupLoadBudget = 10 * time.Second
)

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	logger.Info("Starting rentbill", "port", cfg.Port, applog.FieldBackend, cfg.DataBackend)

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	be, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendConfig)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, applog.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	opts := []billstore.Option{billstore.WithMetrics(m), billstore.WithLogger(logger)}
	if be.Publisher != nil {
		opts = append(opts, billstore.WithPublisher(be.Publisher))
	}
	store := billstore.New(be.Store, opts...)

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), startupLoadBudget)
	bills, err := store.Load(loadCtx)
	cancelLoad()
	if err != nil {
		logger.Error("Failed to load saved bills", "error", err)
		os.Exit(1)
	}
	logger.Info("Loaded saved bills", applog.FieldCount, len(bills))

	letterhead := export.Letterhead{
		LandlordName:    cfg.LandlordName,
		LandlordAddress: cfg.LandlordAddress,
		PaymentNote:     cfg.PaymentNote,
		CurrencyLabel:   cfg.CurrencyLabel,
	}
	renderer := export.NewRenderer(export.Options{
		Scale:      cfg.ExportScale,
		Background: color.White,
		Letterhead: letterhead,
	})
	pngCache := cache.NewLRUCache[[]byte](cfg.ExportCacheSize, cfg.ExportCacheTTL)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(pngCache)

	ready := func(ctx context.Context) error {
		if p, ok := be.Store.(pinger); ok {
			return p.Ping(ctx)
		}
		return nil
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Controller: view.NewController(store, logger),
		Exporter:   export.NewExporter(renderer, pngCache, m, logger),
		Letterhead: letterhead,
		Ready:      ready,
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Logger:     logger,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server", "error", err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return cacheManager.Run(gctx, cacheSweepEvery)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		_ = be.Cleanup()
		os.Exit(1)
	}

	<-done
	logger.Info("Server stopped gracefully")
}
