package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/baharkarakas/qrcharge-backend/internal/api"
	"github.com/baharkarakas/qrcharge-backend/internal/auth"
	"github.com/baharkarakas/qrcharge-backend/internal/config"
	"github.com/baharkarakas/qrcharge-backend/internal/db"
	"github.com/baharkarakas/qrcharge-backend/internal/gateway"
	"github.com/baharkarakas/qrcharge-backend/internal/logger"
	"github.com/baharkarakas/qrcharge-backend/internal/metrics"
	"github.com/baharkarakas/qrcharge-backend/internal/models"
	"github.com/baharkarakas/qrcharge-backend/internal/notify"
	"github.com/baharkarakas/qrcharge-backend/internal/repository"
	"github.com/baharkarakas/qrcharge-backend/internal/repository/memory"
	"github.com/baharkarakas/qrcharge-backend/internal/repository/postgres"
	"github.com/baharkarakas/qrcharge-backend/internal/services"
	"github.com/baharkarakas/qrcharge-backend/internal/worker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Env)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store repository.Store
		ready func(*http.Request) error
	)
	switch cfg.StoreDriver {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		if cfg.Migrate {
			if err := db.RunMigrations(ctx, pool); err != nil {
				return err
			}
		}
		store = postgres.New(pool)
		ready = func(r *http.Request) error { return pool.Ping(r.Context()) }
	case "memory":
		mem := memory.New()
		mem.AddConnector(models.Connector{
			ID:           "demo-connector",
			Token:        "demo",
			StationID:    "demo-station",
			MerchantID:   "demo-merchant",
			PricePerUnit: decimal.RequireFromString("1.00"),
			Capacity:     2,
		})
		store = mem
		log.Warn("using in-memory store, state is lost on exit")
	}

	var gw gateway.Gateway
	if cfg.GatewayDriver == "http" {
		gw = gateway.NewHTTPClient(cfg.GatewayURL, cfg.GatewayAPIKey, cfg.GatewayTimeout)
	} else {
		gw = gateway.NewSandbox("http://localhost:" + cfg.HTTPPort + "/sandbox")
	}

	wp := worker.NewPool(cfg.Workers, log)
	svc := services.New(store, gw, notify.LogNotifier{Log: log}, wp, services.Settings{
		SessionTTL:      cfg.SessionTTL,
		Currency:        cfg.Currency,
		OperatorID:      cfg.OperatorID,
		GatewayAttempts: cfg.GatewayAttempts,
	}, log)

	metrics.Init()
	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterDeps{
			Cfg:   cfg,
			Svc:   svc,
			TM:    auth.NewTokenManager(cfg.JWTIssuer, cfg.JWTSecret, cfg.JWTRefresh, cfg.AccessTTL, cfg.RefreshTTL),
			Log:   log,
			Ready: ready,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server starting", "port", cfg.HTTPPort, "store", cfg.StoreDriver, "gateway", cfg.GatewayDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return svc.Sessions.RunSweeper(gctx, cfg.SweepInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	wp.Stop()
	return err
}
