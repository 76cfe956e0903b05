package main

import (
	"context"
	"dm-core/client"
	dmgrpc "dm-core/grpc"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	config, err := client.LoadConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := dmgrpc.Dial(config.Addr, config.Token)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	app := client.NewApp(log, client.GrpcBackend{Client: conn}, os.Stdout, config)
	go func() {
		if err := app.ReadCommands(ctx, os.Stdin); err != nil {
			log.Error("Reading commands failed", "error", err)
		}
	}()

	log.Info("Connected, type @user message to send (Ctrl+C to quit)", "address", config.Addr)
	if err := app.Run(ctx); err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}
