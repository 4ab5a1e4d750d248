package app

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"funding-intel/internal/alerting"
	"funding-intel/internal/config"
	"funding-intel/internal/exchange"
	"funding-intel/internal/httpx"
	"funding-intel/internal/storage"
)

// errNoDatabase is returned by commands that cannot run without
// persistence.
var errNoDatabase = errors.New("database.dsn not configured")

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newHTTPClient() *httpx.Client {
	cfg := a.Config.Ingest
	return httpx.New(httpx.Options{
		MaxRetries:  cfg.MaxRetries,
		BackoffBase: cfg.BackoffBase,
		Timeout:     cfg.RequestTimeout,
		UserAgent:   cfg.UserAgent,
	}, a.Logger)
}

// newAdapters wires every supported venue. Registration order is the
// ingestion order.
func (a *App) newAdapters() []exchange.Adapter {
	client := a.newHTTPClient()
	cfg := a.Config.Ingest

	return []exchange.Adapter{
		exchange.NewBinance(client, exchange.Proxy{BaseURL: cfg.BinanceProxy.BaseURL, Key: cfg.BinanceProxy.Key}),
		exchange.NewBybit(client, exchange.Proxy{BaseURL: cfg.BybitProxy.BaseURL, Key: cfg.BybitProxy.Key}),
		exchange.NewOKX(client),
		exchange.NewDeribit(client),
		exchange.NewBitget(client),
		exchange.NewHTX(client),
		exchange.NewDydX(client),
		exchange.NewGate(client),
	}
}

func (a *App) newNotifiers() (email, messaging alerting.Notifier) {
	sg := a.Config.Alerting.SendGrid
	email = alerting.NewSendGridNotifier(sg.APIKey, sg.FromEmail, sg.DefaultEmail, sg.APIBase, 10*time.Second, a.Logger)

	tg := a.Config.Alerting.Telegram
	messaging = alerting.NewTelegramNotifier(tg.BotToken, tg.DefaultChatID, tg.APIBase, 10*time.Second, a.Logger)
	return email, messaging
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, errNoDatabase
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting funding-rate history.
type ExportOptions struct {
	Exchange  string
	Pair      string
	From      *time.Time
	To        *time.Time
	CSVPath   string
	PNGPath   string
	MaxPoints int
}
