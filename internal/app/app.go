package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"deribit-hedge-bot/internal/alerts"
	"deribit-hedge-bot/internal/config"
	"deribit-hedge-bot/internal/connection"
	"deribit-hedge-bot/internal/deribit/rpc"
	"deribit-hedge-bot/internal/exec"
	"deribit-hedge-bot/internal/feed"
	"deribit-hedge-bot/internal/hedge"
	"deribit-hedge-bot/internal/metrics"
	"deribit-hedge-bot/internal/persist"
	"deribit-hedge-bot/internal/state/sqlite"
	"deribit-hedge-bot/internal/timescale"
)

const commandQueueSize = 8

// session is the part of the connection manager the app drives.
type session interface {
	Run(ctx context.Context) error
	ForceReconnect() bool
	Status() connection.Status
}

type App struct {
	cfg       *config.Config
	log       *zap.Logger
	store     *sqlite.Store
	timescale *timescale.Writer
	prom      *metrics.Prometheus
	metrics   *metrics.Metrics
	feed      *feed.Store
	manager   session
	engine    *hedge.Engine
	sink      *persist.Sink
	alerts    *alerts.Telegram
	console   io.Reader
	commands  chan hedge.Command
	now       func() time.Time

	operatorWarned bool
}

func New(cfg *config.Config, creds config.Credentials, log *zap.Logger) (*App, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return nil, err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return nil, err
	}
	series, err := timescale.New(cfg.Persist.Timescale, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("timescale: %w", err)
	}
	signer, err := rpc.NewSigner(creds.ClientID, creds.ClientSecret)
	if err != nil {
		return nil, multierr.Append(err, multierr.Combine(store.Close(), series.Close()))
	}

	var prom *metrics.Prometheus
	m := metrics.NewNoop()
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	book := feed.New(cfg.Venue.Perpetual, cfg.Hedge.ExpiryHour())
	telegram := alerts.NewTelegram(cfg.Telegram, log)

	// The engine needs the manager as its order path and the manager needs
	// the engine's wake-up, so the callback is bound after both exist.
	var engine *hedge.Engine
	manager := connection.New(connection.Options{
		WS:      cfg.WS,
		Venue:   cfg.Venue,
		Signer:  signer,
		Store:   book,
		Log:     log,
		Metrics: m,
		OnAccountChange: func() {
			engine.Notify()
		},
	})
	executor := exec.New(manager, store, log)
	engine = hedge.New(hedge.Options{
		Hedge:     cfg.Hedge,
		Perpetual: cfg.Venue.Perpetual,
		Store:     book,
		Placer:    executor,
		KV:        store,
		Alerts:    telegram,
		Log:       log,
		Metrics:   m,
	})
	sink := persist.New(book, store, series, engine, cfg.Persist.Interval, log, m)

	return &App{
		cfg:       cfg,
		log:       log,
		store:     store,
		timescale: series,
		prom:      prom,
		metrics:   m,
		feed:      book,
		manager:   manager,
		engine:    engine,
		sink:      sink,
		alerts:    telegram,
		console:   os.Stdin,
		commands:  make(chan hedge.Command, commandQueueSize),
		now:       time.Now,
	}, nil
}

// Run starts every execution and blocks until ctx ends or one of them fails.
func (a *App) Run(ctx context.Context) error {
	a.timescale.Start(ctx)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.manager.Run(ctx) })
	g.Go(func() error { return a.engine.Run(ctx, a.commands) })
	g.Go(func() error { return a.sink.Run(ctx) })
	if a.operatorEnabled() {
		g.Go(func() error { return a.runOperator(ctx) })
	}
	if a.cfg.Operator.Console && a.console != nil {
		g.Go(func() error { return a.runConsole(ctx, a.console) })
	}
	g.Go(func() error { return a.runScheduler(ctx) })
	if a.prom != nil {
		g.Go(func() error { return a.serveMetrics(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	return multierr.Append(err, a.Close())
}

// Close persists a final snapshot and releases storage.
func (a *App) Close() error {
	var err error
	if a.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err = a.sink.Persist(ctx)
		cancel()
	}
	return multierr.Combine(err, a.timescale.Close(), a.store.Close())
}

// submit queues an activation command for the hedge loop.
func (a *App) submit(ctx context.Context, cmd hedge.Command) error {
	select {
	case a.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *App) serveMetrics(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("metrics listening", zap.String("addr", srv.Addr), zap.String("path", a.cfg.Metrics.Path))
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	}
}

// statusText summarises connection, hedge and account state for operators.
func (a *App) statusText() string {
	status := a.manager.Status()
	optionDelta, perpDelta := a.engine.Deltas()
	top := a.feed.PerpTopOfBook()
	account := a.feed.Account()
	return strings.Join([]string{
		fmt.Sprintf("connection: %s", status.State),
		fmt.Sprintf("hedging active: %t", a.engine.Active()),
		fmt.Sprintf("option delta: %.2f", optionDelta),
		fmt.Sprintf("perp delta: %.2f", perpDelta),
		fmt.Sprintf("%s bid/ask: %.2f / %.2f", a.feed.Perpetual(), top.BestBid, top.BestAsk),
		fmt.Sprintf("positions: %d", len(a.feed.Positions())),
		fmt.Sprintf("open orders: %d", len(a.feed.OpenOrders())),
		fmt.Sprintf("equity: %.6f", account.Equity),
	}, "\n")
}
