package main

import (
	"context"
	"dm-core/auth"
	"dm-core/contract"
	dmgrpc "dm-core/grpc"
	dmhttp "dm-core/infrastructure/http"
	"dm-core/infrastructure/postgres"
	"dm-core/infrastructure/redisbus"
	"dm-core/infrastructure/search"
	"dm-core/internal"
	"dm-core/moderation"
	"dm-core/observability"
	"dm-core/repositories"
	"dm-core/runtime"
	"dm-core/runtime/workers"
	"dm-core/services"
	"dm-core/subscription"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"google.golang.org/grpc"
)

// Exit codes for the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const shutdownTimeout = 10 * time.Second

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run keeps every defer reachable: main only turns the result into an exit code.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	monitor := observability.NewMonitor()

	// 2. Persistence
	var (
		gateway repositories.IGateway
		db      *badger.DB
	)
	switch config.StorageDriver {
	case "postgres":
		pool, err := postgres.Connect(ctx, config.DbURL, postgres.WithMaxConns(int32(config.DbMaxConns)))
		if err != nil {
			return exitRuntime, err
		}
		defer pool.Close()
		if err := postgres.Migrate(ctx, pool); err != nil {
			return exitRuntime, err
		}
		gateway = postgres.NewGateway(log, pool)
	default:
		var err error
		db, err = badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
		if err != nil {
			return exitRuntime, fmt.Errorf("database opening failed: %w", err)
		}
		defer func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}()
		index, err := search.OpenUserIndex(log, config.BlugeFilepath)
		if err != nil {
			return exitRuntime, fmt.Errorf("user index opening failed: %w", err)
		}
		defer index.Close()
		badgerGateway := repositories.NewGateway(db, log, index)
		if err := reindexUsers(ctx, badgerGateway, index); err != nil {
			return exitRuntime, err
		}
		gateway = badgerGateway
	}

	// 3. Channel provider & supervision
	supervisor := workers.NewSupervisor(log, config.RestartInterval)
	local := runtime.NewLocalProvider(log, runtime.NewRegistry())
	var provider contract.IChannelProvider = local
	var relay *redisbus.Relay
	if config.ChannelProvider == "redis" {
		client, err := redisbus.NewClient(ctx, config.RedisURL)
		if err != nil {
			return exitRuntime, err
		}
		defer client.Close()
		relay = redisbus.NewRelay(log, client, local)
		supervisor.Add(relay)
		provider = redisbus.NewBus(log, client, local)
	}
	publisher := workers.NewFanoutPublisher(log, provider, monitor,
		config.FanoutWorkers, config.FanoutBufferSize, config.PublishTimeout)
	supervisor.Add(publisher.Workers()...)
	supervisor.Add(observability.NewReporter(log, monitor, config.MetricInterval))

	supervisorDone := make(chan struct{})
	go func() {
		defer close(supervisorDone)
		supervisor.Run(ctx)
	}()
	defer func() {
		supervisor.Stop()
		<-supervisorDone
	}()
	if relay != nil {
		select {
		case <-relay.Ready():
		case <-ctx.Done():
			return exitOK, nil
		}
	}

	// 4. Services
	var messageOpts []services.MessageOption
	if config.ModerationEnabled {
		moderator, err := newModerator(log, config)
		if err != nil {
			return exitConfig, err
		}
		messageOpts = append(messageOpts, services.WithCensor(moderator))
	}
	if config.SendRatePerSecond > 0 {
		messageOpts = append(messageOpts, services.WithSendLimiter(services.NewSendLimiter(config.SendRatePerSecond, config.SendBurst)))
	}
	users := services.NewUserService(log, gateway)
	conversations := services.NewConversationService(log, gateway, monitor)
	messages := services.NewMessageService(log, gateway, publisher, monitor, config.MaxContentLength, messageOpts...)
	if config.SeedDemo {
		if err := services.Seed(ctx, log, users, conversations, messages); err != nil {
			return exitRuntime, fmt.Errorf("seed failed: %w", err)
		}
	}

	issuer := auth.NewIssuer(config.JwtSecret, config.AuthTokenDuration)
	authenticator := auth.NewAuthenticator(issuer, users)
	sessions := subscription.NewGateway(log, provider, monitor, config.SubscribeTimeout, config.ConnectionBufferSize)

	// 5. Transports
	errChan := make(chan error, 3)

	grpcAddress := fmt.Sprintf("%s:%d", config.Host, config.GrpcPort)
	listener, err := net.Listen("tcp", grpcAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", grpcAddress, err)
	}
	grpcServer := dmgrpc.NewGRPCServer(log, authenticator,
		dmgrpc.NewServer(log, conversations, messages, users, sessions))
	go func() {
		log.Info("Starting gRPC server", "address", grpcAddress)
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	httpServer := dmhttp.NewServer(log, authenticator,
		dmhttp.NewHandler(log, conversations, messages, users, sessions, dmhttp.SocketConfig{}))
	httpAddress := fmt.Sprintf("%s:%d", config.Host, config.HttpPort)
	go func() {
		log.Info("Starting HTTP server", "address", httpAddress)
		if err := httpServer.Start(httpAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	var debugServer *http.Server
	if config.DebugPort > 0 {
		debugServer = internal.NewDebugServer(config.DebugPort, db, func() any { return monitor.Snapshot() })
		go func() {
			log.Info("Starting debug server", "address", debugServer.Addr)
			if err := debugServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("debug server error: %w", err)
			}
		}()
	}

	// 6. Wait for Stop or Error
	code := exitOK
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err = <-errChan:
		log.Error("Server failure, shutting down", "error", err)
		code = exitRuntime
	}

	// 7. Cleanup, live sessions first: their streams would hold the servers open
	sessions.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	if debugServer != nil {
		_ = debugServer.Shutdown(shutdownCtx)
	}
	if !dmgrpc.Stop(grpcServer, sessions, shutdownTimeout) {
		log.Warn("gRPC drain timed out, connections forced closed")
	}
	log.Info("Server stopped cleanly")
	return code, err
}

func newModerator(log *slog.Logger, config internal.Config) (*moderation.Moderator, error) {
	replacement, err := internal.CharacterRune(config.ModerationCharReplacement)
	if err != nil {
		return nil, err
	}
	dictionary, err := moderation.LoadEmbedded()
	if err != nil {
		return nil, fmt.Errorf("censored words: %w", err)
	}
	log.Info("Moderation enabled", "words", len(dictionary.Words), "languages", dictionary.Languages)
	return moderation.NewModerator(dictionary.Words, replacement, log)
}

// reindexUsers fills the fuzzy index from the directory at boot.
func reindexUsers(ctx context.Context, gateway repositories.Gateway, index repositories.IUserIndex) error {
	users, err := gateway.ListUsers(ctx)
	if err != nil {
		return err
	}
	for _, user := range users {
		if err := index.Index(user); err != nil {
			return fmt.Errorf("index user %s: %w", user.ID, err)
		}
	}
	return nil
}
