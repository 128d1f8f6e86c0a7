package timescale

import (
	"testing"
	"time"

	"deribit-hedge-bot/internal/config"
)

func TestNewDisabledReturnsNil(t *testing.T) {
	w, err := New(config.TimescaleConfig{}, nil)
	if err != nil || w != nil {
		t.Fatalf("expected nil writer, got %v (err %v)", w, err)
	}
	w.EnqueueTopOfBook(TopOfBook{})
	w.EnqueueHedgeDelta(HedgeDelta{})
	if w.Dropped() != 0 || w.Close() != nil {
		t.Fatalf("nil writer must be inert")
	}
}

func TestNewRequiresDSN(t *testing.T) {
	if _, err := New(config.TimescaleConfig{Enabled: true}, nil); err == nil {
		t.Fatalf("expected dsn error")
	}
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	w := newWriter(nil, "public", 1, nil)
	w.EnqueueTopOfBook(TopOfBook{Time: time.Now(), Instrument: "BTC-27DEC30-60000-C"})
	w.EnqueueTopOfBook(TopOfBook{Time: time.Now(), Instrument: "BTC-27DEC30-60000-C"})
	w.EnqueueHedgeDelta(HedgeDelta{Time: time.Now()})
	w.EnqueueHedgeDelta(HedgeDelta{Time: time.Now()})
	if got := w.Dropped(); got != 2 {
		t.Fatalf("expected 2 dropped rows, got %d", got)
	}
	if w.table("top_of_book") != "public.top_of_book" {
		t.Fatalf("unexpected table name %s", w.table("top_of_book"))
	}
}
