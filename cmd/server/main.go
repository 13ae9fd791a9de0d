package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/tageampi/vintohub/internal/config"
	"github.com/tageampi/vintohub/internal/routes"
	"github.com/tageampi/vintohub/internal/services"
	chatws "github.com/tageampi/vintohub/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load Config
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open the message store
	stores, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer stores.close()

	// 3. Chat runtime
	chatService := services.NewChatService(stores.messages, stores.users)
	registry := chatws.NewRegistry(log)
	router := chatws.NewRouter(registry, chatService, log)
	go registry.Run(ctx, cfg.HeartbeatInterval)

	// 4. Setup Fiber
	app := routes.NewApp(cfg, routes.Dependencies{
		Chat:   chatService,
		Router: router,
		Users:  stores.users,
		Log:    log,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server starting", "port", cfg.Port, "store", cfg.StoreDriver, "env", cfg.AppEnv)
		errCh <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		registry.Close()
		return fmt.Errorf("server failed to start: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down", "open_connections", registry.Len())
	registry.Close()
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
