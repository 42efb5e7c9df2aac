package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"groupbuy/config"
	"groupbuy/gateway"
	"groupbuy/observability/logging"
	"groupbuy/rpc"
	"groupbuy/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the daemon configuration file")
	flag.Parse()

	env := os.Getenv("GROUPBUY_ENV")
	if env == "" {
		env = "local"
	}
	logger := logging.Setup("groupbuyd", env)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "path", *configPath, "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if cfg.RPCAuthToken == "" {
		logger.Warn("RPC auth token is empty; mutation endpoint is unauthenticated")
	}

	rpcServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           rpc.NewServer(db, cfg.RPCAuthToken, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	gatewayServer := &http.Server{
		Addr:              cfg.GatewayAddress,
		Handler:           gateway.NewServer(db, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("rpc server listening", "address", cfg.RPCAddress, "network", cfg.NetworkName)
		if err := rpcServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		logger.Info("gateway listening", "address", cfg.GatewayAddress)
		if err := gatewayServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		logger.Error("server failed", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rpcServer.Shutdown(ctx); err != nil {
		logger.Error("rpc shutdown failed", "error", err)
	}
	if err := gatewayServer.Shutdown(ctx); err != nil {
		logger.Error("gateway shutdown failed", "error", err)
	}
}
