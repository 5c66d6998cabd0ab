package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/QuantaEx/qfinex/internal/common"
	"github.com/QuantaEx/qfinex/internal/config"
	"github.com/QuantaEx/qfinex/internal/worker"
)

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting back-office workers")

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	collector := worker.NewCollector(services.Deposits, services.Custody, services.Currencies, cfg.Worker.CollectionInterval)
	dispatcher := worker.NewDispatcher(services.Withdraws, services.Custody, services.Currencies, cfg.Worker.DispatchInterval)

	collector.Start(ctx)
	dispatcher.Start(ctx)

	zap.L().Info("Back-office workers running",
		zap.Duration("collection_interval", cfg.Worker.CollectionInterval),
		zap.Duration("dispatch_interval", cfg.Worker.DispatchInterval))
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping workers...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for _, stop := range []func(){collector.Stop, dispatcher.Stop} {
			wg.Add(1)
			go func(stop func()) {
				defer wg.Done()
				stop()
			}(stop)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("All workers stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
