// Package persist periodically copies the state store into durable storage.
// It only reads; nothing flows back into the live state.
package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"deribit-hedge-bot/internal/feed"
	"deribit-hedge-bot/internal/metrics"
	"deribit-hedge-bot/internal/state"
	"deribit-hedge-bot/internal/timescale"
)

type Source interface {
	Snapshot() feed.Snapshot
}

type HedgeView interface {
	Active() bool
	Deltas() (float64, float64)
}

type Series interface {
	EnqueueTopOfBook(row timescale.TopOfBook)
	EnqueueHedgeDelta(row timescale.HedgeDelta)
}

type Sink struct {
	source   Source
	blobs    state.BlobStore
	series   Series
	hedge    HedgeView
	interval time.Duration
	log      *zap.Logger
	metrics  *metrics.Metrics
}

// New builds a sink. series and hedge may be nil.
func New(source Source, blobs state.BlobStore, series Series, hedge HedgeView, interval time.Duration, log *zap.Logger, m *metrics.Metrics) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Sink{
		source:   source,
		blobs:    blobs,
		series:   series,
		hedge:    hedge,
		interval: interval,
		log:      log.Named("persist"),
		metrics:  m,
	}
}

func (s *Sink) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.Persist(ctx); err != nil {
				s.log.Warn("snapshot persist failed", zap.Error(err))
			}
		}
	}
}

// Persist writes one snapshot.
func (s *Sink) Persist(ctx context.Context) error {
	snap := s.source.Snapshot()
	if s.blobs != nil {
		data, err := Encode(snap)
		if err != nil {
			return err
		}
		if err := s.blobs.PutBlob(ctx, state.FeedSnapshotKey, data, snap.TakenAt); err != nil {
			return fmt.Errorf("store snapshot: %w", err)
		}
		s.metrics.SnapshotsPersisted.Inc()
	}
	if s.series != nil {
		s.enqueueSeries(snap)
	}
	return nil
}

func (s *Sink) enqueueSeries(snap feed.Snapshot) {
	for _, book := range snap.Books {
		s.series.EnqueueTopOfBook(timescale.TopOfBook{
			Time:         snap.TakenAt,
			Instrument:   book.Instrument,
			BidPrice:     book.Best.BidPrice,
			BidSize:      book.Best.BidSize,
			AskPrice:     book.Best.AskPrice,
			AskSize:      book.Best.AskSize,
			OpenInterest: book.OpenInterest,
			MarkPrice:    book.MarkPrice,
		})
	}
	row := timescale.HedgeDelta{
		Time:       snap.TakenAt,
		PerpBid:    snap.PerpTop.BestBid,
		PerpAsk:    snap.PerpTop.BestAsk,
		Equity:     snap.Account.Equity,
		DeltaTotal: snap.Account.DeltaTotal,
	}
	if s.hedge != nil {
		row.Active = s.hedge.Active()
		row.OptionDelta, row.PerpDelta = s.hedge.Deltas()
	}
	s.series.EnqueueHedgeDelta(row)
}

func Encode(snap feed.Snapshot) ([]byte, error) {
	data, err := msgpack.Marshal(&snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

func Decode(data []byte) (feed.Snapshot, error) {
	var snap feed.Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return feed.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Load reads the last persisted snapshot.
func Load(ctx context.Context, blobs state.BlobStore) (feed.Snapshot, bool, error) {
	data, _, ok, err := blobs.GetBlob(ctx, state.FeedSnapshotKey)
	if err != nil || !ok {
		return feed.Snapshot{}, false, err
	}
	snap, err := Decode(data)
	if err != nil {
		return feed.Snapshot{}, false, err
	}
	return snap, true, nil
}
