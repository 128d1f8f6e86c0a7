package state

import (
	"context"
	"encoding/json"
	"strings"
)

const (
	HedgeSnapshotKey = "hedge:last_snapshot"
	LastOrderKey     = "exec:last_order"
	FeedSnapshotKey  = "feed:last_snapshot"
)

// HedgeSnapshot is the outcome of the most recent hedge evaluation.
type HedgeSnapshot struct {
	Active      bool    `json:"active"`
	OptionDelta float64 `json:"option_delta"`
	PerpDelta   float64 `json:"perp_delta"`
	Ratio       float64 `json:"ratio"`
	Hedged      bool    `json:"hedged"`
	UpdatedAtMS int64   `json:"updated_at_ms"`
}

// OrderRecord describes the last order written to the venue.
type OrderRecord struct {
	RequestID  int64   `json:"request_id"`
	Method     string  `json:"method"`
	Instrument string  `json:"instrument"`
	Amount     float64 `json:"amount"`
	Price      float64 `json:"price"`
	Label      string  `json:"label"`
	SentAtMS   int64   `json:"sent_at_ms"`
}

func LoadHedgeSnapshot(ctx context.Context, store Store) (HedgeSnapshot, bool, error) {
	var snapshot HedgeSnapshot
	ok, err := loadJSON(ctx, store, HedgeSnapshotKey, &snapshot)
	return snapshot, ok, err
}

func SaveHedgeSnapshot(ctx context.Context, store Store, snapshot HedgeSnapshot) error {
	return saveJSON(ctx, store, HedgeSnapshotKey, snapshot)
}

func LoadLastOrder(ctx context.Context, store Store) (OrderRecord, bool, error) {
	var record OrderRecord
	ok, err := loadJSON(ctx, store, LastOrderKey, &record)
	return record, ok, err
}

func SaveLastOrder(ctx context.Context, store Store, record OrderRecord) error {
	return saveJSON(ctx, store, LastOrderKey, record)
}

func loadJSON(ctx context.Context, store Store, key string, out any) (bool, error) {
	if store == nil {
		return false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, err
	}
	return true, nil
}

func saveJSON(ctx context.Context, store Store, key string, v any) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return store.Set(ctx, key, string(payload))
}
