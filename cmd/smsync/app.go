package main

import (
	"fmt"
	"log/slog"

	"github.com/BarnBuilder412/smsync/pkg/api"
	"github.com/BarnBuilder412/smsync/pkg/config"
	"github.com/BarnBuilder412/smsync/pkg/ledger"
	"github.com/BarnBuilder412/smsync/pkg/logging"
	"github.com/BarnBuilder412/smsync/pkg/notify"
	"github.com/BarnBuilder412/smsync/pkg/parser"
	"github.com/BarnBuilder412/smsync/pkg/scheduler"
	"github.com/BarnBuilder412/smsync/pkg/source/backupxml"
	"github.com/BarnBuilder412/smsync/pkg/source/mbox"
	"github.com/BarnBuilder412/smsync/pkg/state"
	"github.com/BarnBuilder412/smsync/pkg/syncer"
)

// app wires the configured components together for one command invocation.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  *state.SQLite
	sched  *scheduler.Scheduler
}

func buildApp(opts *rootOptions) (*app, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}

	logger := logging.Setup(logging.Config{
		Level: logging.ParseLevel(cfg.LogLevel),
		JSON:  cfg.LogJSON,
	})

	store, err := state.Open(cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	var (
		src  api.MessageSource
		gate api.PermissionGate
	)
	switch cfg.Source {
	case "backupxml":
		src = backupxml.New(cfg.SourcePath)
		gate = backupxml.NewGate(cfg.SourcePath)
	case "mbox":
		src = mbox.New(cfg.SourcePath)
		gate = mbox.NewGate(cfg.SourcePath)
	}

	var notifier api.Notifier = api.NopNotifier{}
	if cfg.NotifyURL != "" {
		notifier = notify.NewWebhook(cfg.NotifyURL, logger.With("component", "notify"))
	}

	led := ledger.New(ledger.Config{
		BaseURL: cfg.LedgerURL,
		Token:   cfg.LedgerToken,
	}, logger.With("component", "ledger"))

	sy, err := syncer.New(src, led, parser.New(cfg.Senders, cfg.Categories),
		store, notifier, syncer.Config{}, logger.With("component", "syncer"))
	if err != nil {
		store.Close()
		return nil, err
	}

	sched := scheduler.New(sy, src, gate, store, cfg.PollInterval(), nil,
		logger.With("component", "scheduler"))

	return &app{cfg: cfg, logger: logger, store: store, sched: sched}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing state store failed", "error", err)
	}
}
