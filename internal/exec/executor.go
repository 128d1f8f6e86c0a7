package exec

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"deribit-hedge-bot/internal/deribit/rpc"
	"deribit-hedge-bot/internal/state"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

const orderTypeLimit = "limit"

// Order is a limit order on one instrument.
type Order struct {
	Instrument string
	Side       Side
	Amount     float64
	Price      float64
	Label      string
}

func (o Order) method() (string, error) {
	switch o.Side {
	case SideBuy:
		return rpc.MethodBuy, nil
	case SideSell:
		return rpc.MethodSell, nil
	}
	return "", fmt.Errorf("unknown side %q", o.Side)
}

func (o Order) validate() error {
	if o.Instrument == "" {
		return errors.New("order instrument is required")
	}
	if !(o.Amount > 0) || math.IsInf(o.Amount, 0) {
		return fmt.Errorf("order amount must be positive, got %v", o.Amount)
	}
	if !(o.Price > 0) || math.IsInf(o.Price, 0) {
		return fmt.Errorf("order price must be positive, got %v", o.Price)
	}
	return nil
}

// Sender writes one request to the venue and returns its correlation id.
type Sender interface {
	Send(ctx context.Context, method string, params any) (int64, error)
}

type Executor struct {
	sender Sender
	store  state.Store
	log    *zap.Logger
	now    func() time.Time
}

func New(sender Sender, store state.Store, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{sender: sender, store: store, log: log, now: time.Now}
}

// PlaceOrder sends the order without waiting for the venue's answer; the
// response and any order updates arrive through dispatch.
func (e *Executor) PlaceOrder(ctx context.Context, order Order) (int64, error) {
	if err := order.validate(); err != nil {
		return 0, err
	}
	method, err := order.method()
	if err != nil {
		return 0, err
	}
	params := map[string]any{
		"instrument_name": order.Instrument,
		"amount":          order.Amount,
		"type":            orderTypeLimit,
		"price":           order.Price,
	}
	if order.Label != "" {
		params["label"] = order.Label
	}
	id, err := e.sender.Send(ctx, method, params)
	if err != nil {
		return 0, fmt.Errorf("send %s: %w", method, err)
	}
	e.log.Info("order sent",
		zap.Int64("id", id),
		zap.String("method", method),
		zap.String("instrument", order.Instrument),
		zap.Float64("amount", order.Amount),
		zap.Float64("price", order.Price),
	)
	record := state.OrderRecord{
		RequestID:  id,
		Method:     method,
		Instrument: order.Instrument,
		Amount:     order.Amount,
		Price:      order.Price,
		Label:      order.Label,
		SentAtMS:   e.now().UnixMilli(),
	}
	if err := state.SaveLastOrder(ctx, e.store, record); err != nil {
		e.log.Warn("failed to persist order record", zap.Error(err))
	}
	return id, nil
}
