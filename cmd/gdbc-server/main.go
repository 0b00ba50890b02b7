// Command gdbc-server serves the compile-and-run API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"gdbc/internal/admin"
	"gdbc/internal/handler"
	"gdbc/internal/httpx"
	"gdbc/internal/procmgr"
	"gdbc/internal/server"
	"gdbc/internal/workspace"
	"gdbc/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultConfigPath = "configs/gdbc_server.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "gdbc-server stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()

	ws, err := workspace.New(appCfg.Runner.TempDir, appCfg.Runner.BinDir)
	if err != nil {
		return err
	}
	launcher, err := procmgr.NewHelperLauncher(appCfg.Runner.HelperPath)
	if err != nil {
		return fmt.Errorf("init runner helper failed: %w", err)
	}
	metrics := procmgr.NewPrometheusMetricsCollector(appCfg.MetricsPrefix)
	mgr, err := procmgr.NewManager(appCfg.Runner.managerConfig(), ws,
		procmgr.WithLauncher(launcher),
		procmgr.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("init process manager failed: %w", err)
	}

	var routes httpx.RouteTable
	if err := handler.New(mgr, ws).Register(&routes); err != nil {
		return fmt.Errorf("register routes failed: %w", err)
	}
	srv, err := server.New(appCfg.Server, &routes)
	if err != nil {
		return fmt.Errorf("init dispatcher failed: %w", err)
	}

	logger.Info(ctx, "gdbc-server starting",
		zap.String("addr", appCfg.Server.Addr),
		zap.Int("max_processes", mgr.Capacity()),
		zap.String("temp_dir", ws.TempDir()),
		zap.String("bin_dir", ws.BinDir()),
		zap.String("argv_mode", appCfg.Runner.ArgvMode),
	)

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(sigCtx)

	g.Go(srv.ListenAndServe)

	var adminSrv *http.Server
	if appCfg.Admin.IsEnabled() {
		adminSrv = admin.NewServer(appCfg.Admin, mgr, metrics.Registry())
		g.Go(func() error {
			logger.Info(ctx, "admin http server started", zap.String("addr", adminSrv.Addr))
			if err := adminSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("admin server: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error(ctx, "dispatcher shutdown failed", zap.Error(err))
		}
		if adminSrv != nil {
			if err := adminSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error(ctx, "admin server shutdown failed", zap.Error(err))
			}
		}
		if *appCfg.Runner.KillOnShutdown {
			mgr.Shutdown(shutdownCtx)
		}
		return nil
	})

	return g.Wait()
}
