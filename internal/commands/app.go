package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/cleared-dev/ledgerd/internal/accounts"
	"github.com/cleared-dev/ledgerd/internal/auditlog"
	"github.com/cleared-dev/ledgerd/internal/balance"
	"github.com/cleared-dev/ledgerd/internal/config"
	"github.com/cleared-dev/ledgerd/internal/dedup"
	"github.com/cleared-dev/ledgerd/internal/ingest"
	"github.com/cleared-dev/ledgerd/internal/logger"
	"github.com/cleared-dev/ledgerd/internal/model"
	"github.com/cleared-dev/ledgerd/internal/payee"
	"github.com/cleared-dev/ledgerd/internal/settings"
	"github.com/cleared-dev/ledgerd/internal/store"
)

const dateLayout = "2006-01-02"

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
	bold   = color.New(color.Bold)
)

// app is the state shared by subcommands: config, logger and the loaded
// store. It is filled lazily by open.
type app struct {
	cfgPath  string
	cfg      *config.Config
	log      zerolog.Logger
	store    *store.Store
	settings *settings.Service
}

// run opens the ledger, calls fn and, when write is set and fn succeeded,
// saves the ledger back to disk.
func (a *app) run(ctx context.Context, write bool, fn func(ctx context.Context) error) error {
	if err := a.open(ctx); err != nil {
		return err
	}
	defer a.close()

	ctx = logger.WithContext(ctx, a.log)
	if err := fn(ctx); err != nil {
		return err
	}
	if !write {
		return nil
	}
	if err := a.store.Persist(ctx, a.path(a.cfg.Storage.Path)); err != nil {
		return fmt.Errorf("saving ledger: %w", err)
	}
	return nil
}

// open loads config, logger and store. A missing config file means
// defaults relative to the working directory.
func (a *app) open(ctx context.Context) error {
	cfg, err := config.Load(a.cfgPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = config.Default()
	case err != nil:
		return err
	}
	if err := config.ApplyEnv(cfg, filepath.Join(a.baseDir(), ".env")); err != nil {
		return err
	}
	a.cfg = cfg

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	a.log = log

	st, err := store.Open(ctx, a.path(cfg.Storage.Path))
	if err != nil {
		return fmt.Errorf("opening ledger: %w", err)
	}
	a.store = st

	svc, err := settings.New(a.path(cfg.Icons.Path), log)
	if err != nil {
		return err
	}
	a.settings = svc
	return nil
}

func (a *app) close() {
	if a.settings != nil {
		a.settings.Close()
	}
	a.store = nil
	a.settings = nil
}

func (a *app) baseDir() string {
	return filepath.Dir(a.cfgPath)
}

// path resolves p relative to the config file's directory.
func (a *app) path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(a.baseDir(), p)
}

func (a *app) user() int64 {
	return a.cfg.UserID
}

func (a *app) accounts() *accounts.Service {
	return accounts.NewService(a.store)
}

func (a *app) balances() *balance.Calculator {
	return balance.NewCalculator(a.store, a.log)
}

func (a *app) resolver() *payee.Resolver {
	return payee.NewResolver(a.store, a.cfg.Payees.Resolver(), a.log, payee.WithIcons(a.settings))
}

func (a *app) ingest() (*ingest.Service, error) {
	var sink auditlog.Sink = auditlog.Discard
	if a.cfg.Import.AuditLog != "" {
		sink = auditlog.NewFile(a.path(a.cfg.Import.AuditLog))
	}
	return ingest.NewService(ingest.Deps{
		Store:    a.store,
		Resolver: a.resolver(),
		Detector: dedup.New(a.cfg.Dedup.Detector()),
		Icons:    a.settings,
		Audit:    sink,
		Log:      a.log,
	}, ingest.Options{
		RetainOriginal: a.cfg.Import.RetainOriginal,
		SkipDuplicates: a.cfg.Import.SkipDuplicates,
		LearnPayees:    a.cfg.Import.LearnPayees,
	})
}

// account finds an account by ID or name.
func (a *app) account(ctx context.Context, key string) (model.Account, error) {
	return a.accounts().Find(ctx, a.user(), key)
}

func parseDate(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("date %q: want YYYY-MM-DD", s)
	}
	return &d, nil
}

func parseMoney(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("amount %q: %w", s, err)
	}
	return d, nil
}
