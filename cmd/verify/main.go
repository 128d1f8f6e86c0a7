package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deribit-hedge-bot/internal/config"
	"deribit-hedge-bot/internal/connection"
	"deribit-hedge-bot/internal/deribit/rpc"
	"deribit-hedge-bot/internal/feed"
	"deribit-hedge-bot/internal/logging"
	"deribit-hedge-bot/internal/metrics"

	"go.uber.org/zap"
)

const defaultVerifyEnvFile = ".env"

type summary struct {
	State       string              `json:"state"`
	Instruments int                 `json:"instruments"`
	Books       int                 `json:"books"`
	PerpTop     feed.TopOfBook      `json:"perp_top"`
	Positions   []positionLine      `json:"positions"`
	OpenOrders  int                 `json:"open_orders"`
	Account     feed.AccountMetrics `json:"account"`
	Elapsed     string              `json:"elapsed"`
}

type positionLine struct {
	Instrument string  `json:"instrument"`
	Size       float64 `json:"size"`
	Average    float64 `json:"average_price"`
	Mark       float64 `json:"mark_price"`
}

func main() {
	configPath := flag.String("config", "", "optional config path")
	timeout := flag.Duration("timeout", time.Minute, "maximum time to reach ready")
	flag.Parse()

	if err := config.LoadEnv(defaultVerifyEnvFile); err != nil {
		fatal(err)
	}
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		cfg = loaded
	}
	log := logging.New(cfg.Log)

	creds, err := config.LoadCredentials()
	if err != nil {
		fatal(err)
	}
	signer, err := rpc.NewSigner(creds.ClientID, creds.ClientSecret)
	if err != nil {
		fatal(err)
	}

	store := feed.New(cfg.Venue.Perpetual, cfg.Hedge.ExpiryHour())
	manager := connection.New(connection.Options{
		WS:      cfg.WS,
		Venue:   cfg.Venue,
		Signer:  signer,
		Store:   store,
		Log:     log,
		Metrics: metrics.NewNoop(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	started := time.Now()
	runErr := make(chan error, 1)
	go func() { runErr <- manager.Run(ctx) }()

	if err := manager.WaitReady(ctx); err != nil {
		cancel()
		<-runErr
		fatal(fmt.Errorf("connection not ready (state %s): %w", manager.Status().State, err))
	}
	out := summarize(manager.Status(), store, time.Since(started))
	cancel()
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.Warn("shutdown failed", zap.Error(err))
	}

	pretty, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(pretty))
}

func summarize(status connection.Status, store *feed.Store, elapsed time.Duration) summary {
	snap := store.Snapshot()
	out := summary{
		State:       status.State.String(),
		Instruments: len(store.Instruments()),
		Books:       len(snap.Books),
		PerpTop:     snap.PerpTop,
		OpenOrders:  len(snap.Orders),
		Account:     snap.Account,
		Elapsed:     elapsed.Round(time.Millisecond).String(),
	}
	for _, pos := range snap.Positions {
		out.Positions = append(out.Positions, positionLine{
			Instrument: pos.Instrument.Name,
			Size:       pos.Signed(),
			Average:    pos.AveragePrice,
			Mark:       pos.MarkPrice,
		})
	}
	return out
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
