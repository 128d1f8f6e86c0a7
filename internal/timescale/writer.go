package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"deribit-hedge-bot/internal/config"
)

const writeTimeout = 3 * time.Second

// TopOfBook is one best-level sample of an option book.
type TopOfBook struct {
	Time         time.Time
	Instrument   string
	BidPrice     float64
	BidSize      float64
	AskPrice     float64
	AskSize      float64
	OpenInterest float64
	MarkPrice    float64
}

// HedgeDelta is one sample of the hedge state and the perpetual quote.
type HedgeDelta struct {
	Time        time.Time
	Active      bool
	OptionDelta float64
	PerpDelta   float64
	PerpBid     float64
	PerpAsk     float64
	Equity      float64
	DeltaTotal  float64
}

type Writer struct {
	db       *sql.DB
	log      *zap.Logger
	schema   string
	books    chan TopOfBook
	deltas   chan HedgeDelta
	started  atomic.Bool
	dropBook atomic.Uint64
	dropHdg  atomic.Uint64
}

// New returns a nil writer when timescale is disabled. A nil *Writer is
// safe to use and discards everything.
func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := newWriter(db, schema, cfg.QueueSize, log)
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWriter(db *sql.DB, schema string, queueSize int, log *zap.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:     db,
		log:    log,
		schema: schema,
		books:  make(chan TopOfBook, queueSize),
		deltas: make(chan HedgeDelta, queueSize),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueTopOfBook(row TopOfBook) {
	if w == nil {
		return
	}
	select {
	case w.books <- row:
	default:
		if w.dropBook.Add(1) == 1 {
			w.log.Warn("timescale top_of_book queue full")
		}
	}
}

func (w *Writer) EnqueueHedgeDelta(row HedgeDelta) {
	if w == nil {
		return
	}
	select {
	case w.deltas <- row:
	default:
		if w.dropHdg.Add(1) == 1 {
			w.log.Warn("timescale hedge_deltas queue full")
		}
	}
}

// Dropped reports rows discarded because a queue was full.
func (w *Writer) Dropped() uint64 {
	if w == nil {
		return 0
	}
	return w.dropBook.Load() + w.dropHdg.Load()
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row := <-w.books:
			w.writeTopOfBook(ctx, row)
		case row := <-w.deltas:
			w.writeHedgeDelta(ctx, row)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		instrument TEXT NOT NULL,
		bid_price DOUBLE PRECISION NOT NULL,
		bid_size DOUBLE PRECISION NOT NULL,
		ask_price DOUBLE PRECISION NOT NULL,
		ask_size DOUBLE PRECISION NOT NULL,
		open_interest DOUBLE PRECISION NOT NULL,
		mark_price DOUBLE PRECISION NOT NULL,
		PRIMARY KEY (ts, instrument)
	)`, w.table("top_of_book"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		active BOOLEAN NOT NULL,
		option_delta DOUBLE PRECISION NOT NULL,
		perp_delta DOUBLE PRECISION NOT NULL,
		perp_bid DOUBLE PRECISION NOT NULL,
		perp_ask DOUBLE PRECISION NOT NULL,
		equity DOUBLE PRECISION NOT NULL,
		delta_total DOUBLE PRECISION NOT NULL
	)`, w.table("hedge_deltas"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	for _, name := range []string{"top_of_book", "hedge_deltas"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(name))); err != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeTopOfBook(ctx context.Context, row TopOfBook) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, instrument, bid_price, bid_size, ask_price, ask_size, open_interest, mark_price
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8
	)
	ON CONFLICT (ts, instrument) DO NOTHING`, w.table("top_of_book"))
	if _, err := w.db.ExecContext(ctx, query,
		row.Time,
		row.Instrument,
		row.BidPrice,
		row.BidSize,
		row.AskPrice,
		row.AskSize,
		row.OpenInterest,
		row.MarkPrice,
	); err != nil {
		w.log.Warn("timescale top_of_book insert failed", zap.Error(err))
	}
}

func (w *Writer) writeHedgeDelta(ctx context.Context, row HedgeDelta) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, active, option_delta, perp_delta, perp_bid, perp_ask, equity, delta_total
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8
	)`, w.table("hedge_deltas"))
	if _, err := w.db.ExecContext(ctx, query,
		row.Time,
		row.Active,
		row.OptionDelta,
		row.PerpDelta,
		row.PerpBid,
		row.PerpAsk,
		row.Equity,
		row.DeltaTotal,
	); err != nil {
		w.log.Warn("timescale hedge_deltas insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
