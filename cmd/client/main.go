package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/docopt/docopt-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iudanet/docsync/internal/client/api"
	"github.com/iudanet/docsync/internal/client/cli"
	"github.com/iudanet/docsync/internal/client/connectivity"
	"github.com/iudanet/docsync/internal/client/iocli"
	"github.com/iudanet/docsync/internal/client/queue"
	"github.com/iudanet/docsync/internal/client/session"
	"github.com/iudanet/docsync/internal/client/storage/boltdb"
	"github.com/iudanet/docsync/internal/client/sync"
	"github.com/iudanet/docsync/internal/client/transport"
	"github.com/iudanet/docsync/internal/clock"
	"github.com/iudanet/docsync/internal/config"
	"github.com/iudanet/docsync/internal/logger"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

var commands = []string{"open", "update", "resolve", "sync", "status", "queue", "drain", "run"}

func main() {
	opts, err := docopt.ParseArgs(cli.Usage, os.Args[1:], versionString())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts docopt.Opts) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	stdio := iocli.NewStdio()

	passphraseFile, _ := opts.String("--passphrase-file")
	askPassphrase, _ := opts.Bool("--ask-passphrase")
	passphrase, err := cli.ReadPassphrase(stdio, cli.Passphrases{
		FromConfig: cfg.Passphrase,
		FromFile:   passphraseFile,
		Prompt:     askPassphrase,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Открываем BoltDB storage
	store := boltdb.New(cfg.DBPath, boltdb.WithPassphrase(passphrase))
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close database", zap.Error(err))
		}
	}()
	if err := store.Open(); err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	nodeID, err := store.NodeID(ctx)
	if err != nil {
		return fmt.Errorf("failed to load node id: %w", err)
	}

	clk := clock.New()
	apiClient := api.NewClient(cfg.UserID, cfg.HealthURL)
	q := queue.New(store, store, apiClient, clk, log)
	sessions := session.NewManager(store, q, clk, nodeID, session.Options{
		UserID:   cfg.UserID,
		Endpoint: cfg.APIEndpoint,
		Debounce: cfg.Debounce,
	}, log)
	defer func() {
		if err := sessions.CloseAll(); err != nil {
			log.Error("failed to close sessions", zap.Error(err))
		}
	}()

	probe := connectivity.ProbeFunc(apiClient.Health)
	command := selectCommand(opts)

	// Монитор и транспорт нужны только долгоживущему клиенту
	var (
		monitor *connectivity.Monitor
		tr      *transport.Manager
	)
	if command == "run" {
		monitor = connectivity.New(probe, q, clk, cfg.ProbeInterval, log)
		tr = newTransport(cfg, apiClient, clk, log)
	}

	syncService := sync.NewService(sessions, q, monitor, tr, clk, sync.Options{
		Endpoint: cfg.APIEndpoint,
		Interval: cfg.AutoSyncInterval,
		AutoSync: cfg.AutoSync,
	}, log)

	c := cli.New(stdio, sessions, q, syncService, store, probe, &cfg)

	ids, _ := opts["<id>"].([]string)
	if id, ok := opts["<id>"].(string); ok {
		ids = []string{id}
	}
	fields, _ := opts["<field>"].([]string)

	return c.Run(ctx, command, cli.Args{IDs: ids, Fields: fields})
}

// loadConfig: defaults -> YAML -> env -> флаги
func loadConfig(opts docopt.Opts) (config.Config, error) {
	path, _ := opts.String("--config")
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if v, _ := opts.String("--db"); v != "" {
		cfg.DBPath = v
	}
	if v, _ := opts.String("--endpoint"); v != "" {
		cfg.APIEndpoint = v
	}
	if v, _ := opts.String("--user"); v != "" {
		cfg.UserID = v
	}
	if v, _ := opts.String("--log-level"); v != "" {
		cfg.LogLevel = v
	}
	if v, _ := opts.Bool("--no-auto-sync"); v {
		cfg.AutoSync = false
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func selectCommand(opts docopt.Opts) string {
	for _, name := range commands {
		if ok, _ := opts.Bool(name); ok {
			return name
		}
	}
	return ""
}

func newTransport(cfg config.Config, apiClient *api.Client, clk clock.Clock, log *zap.Logger) *transport.Manager {
	t := cfg.Transport
	clientID := uuid.NewString()

	return transport.NewManager(transport.Dialers{
		WebSocket: &transport.WebSocketDialer{
			URL:      t.WSURL,
			ClientID: clientID,
		},
		Stream: &transport.StreamDialer{
			Client:     apiClient,
			Clock:      clk,
			StreamURL:  t.StreamURL,
			MessageURL: t.MessageURL,
			ClientID:   clientID,
		},
		Polling: &transport.PollDialer{
			Client:     apiClient,
			Clock:      clk,
			PollURL:    t.PollURL,
			MessageURL: t.MessageURL,
			ClientID:   clientID,
			Interval:   t.PollInterval,
		},
	}, transport.Options{
		BaseDelay:         t.BaseDelay,
		MaxDelay:          t.MaxDelay,
		HeartbeatInterval: t.HeartbeatInterval,
		HeartbeatTimeout:  t.HeartbeatTimeout,
		Multiplier:        t.Multiplier,
		MaxAttempts:       t.MaxAttempts,
	}, clk, log.Named("transport"))
}

func versionString() string {
	return fmt.Sprintf("docsync client\nVersion:    %s\nBuild Date: %s\nGit Commit: %s", Version, BuildDate, GitCommit)
}
