package main

import (
	"context"
	"fmt"

	"github.com/zulandar/coinchat/internal/billing"
	"github.com/zulandar/coinchat/internal/chat"
	"github.com/zulandar/coinchat/internal/completion"
	"github.com/zulandar/coinchat/internal/config"
	"github.com/zulandar/coinchat/internal/db"
	"github.com/zulandar/coinchat/internal/kvstore"
	"github.com/zulandar/coinchat/internal/logging"
	"github.com/zulandar/coinchat/internal/session"
	"github.com/zulandar/coinchat/internal/wallet"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// app holds everything a command needs, opened from one config file.
type app struct {
	cfg    *config.Config
	db     *gorm.DB
	log    *zap.Logger
	ledger *wallet.Ledger
}

// openApp loads the config, opens and migrates the database and builds the
// logger and the wallet ledger.
func openApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}
	gormDB, err := db.Open(cfg.Storage)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		db.Close(gormDB)
		return nil, err
	}
	ledger, err := wallet.NewLedger(wallet.LedgerOpts{DB: gormDB, UserID: cfg.UserID, Logger: log})
	if err != nil {
		db.Close(gormDB)
		return nil, err
	}
	return &app{cfg: cfg, db: gormDB, log: log, ledger: ledger}, nil
}

// openSession opens the user's chat session on top of the app.
func (a *app) openSession(ctx context.Context) (*chat.Session, error) {
	completer, err := completion.FromConfig(a.cfg.AI, a.log)
	if err != nil {
		return nil, err
	}
	kv, err := kvstore.NewGormStore(a.db)
	if err != nil {
		return nil, err
	}
	return chat.Open(ctx, chat.Opts{
		UserID:         a.cfg.UserID,
		KV:             kv,
		Ledger:         a.ledger,
		Completer:      completer,
		Currency:       a.cfg.Billing.Currency,
		CostPerMessage: a.cfg.Billing.CostPerMessage,
		Bounds:         session.Bounds{Min: a.cfg.Messages.MinLength, Max: a.cfg.Messages.MaxLength},
		WelcomeMessage: a.cfg.AI.WelcomeMessage,
		PurchasePrompt: billing.PurchasePrompt,
		Logger:         a.log,
	})
}

func (a *app) Close() {
	a.log.Sync()
	db.Close(a.db)
}
