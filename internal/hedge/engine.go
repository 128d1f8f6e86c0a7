// Package hedge keeps the option book delta-neutral against the perpetual.
//
// An evaluation prices every held option with Black-Scholes-Merton (zero
// rate, zero carry) at the volatility implied by its mark, sums the dollar
// deltas, and compares the result with the perpetual position. When the
// configured trigger fires it sends one limit order on the perpetual sized to
// remove the residual mismatch.
package hedge

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"deribit-hedge-bot/internal/config"
	"deribit-hedge-bot/internal/exec"
	"deribit-hedge-bot/internal/feed"
	"deribit-hedge-bot/internal/instrument"
	"deribit-hedge-bot/internal/metrics"
	"deribit-hedge-bot/internal/pricing"
	"deribit-hedge-bot/internal/state"
)

var (
	ErrNoUnderlyingPrice = errors.New("no underlying mid price")
	ErrPricing           = errors.New("option pricing failed")
)

type Command int

const (
	CommandActivate Command = iota + 1
	CommandDeactivate
	CommandToggle
)

func (c Command) String() string {
	switch c {
	case CommandActivate:
		return "activate"
	case CommandDeactivate:
		return "deactivate"
	case CommandToggle:
		return "toggle"
	}
	return "unknown"
}

type Placer interface {
	PlaceOrder(ctx context.Context, order exec.Order) (int64, error)
}

type Notifier interface {
	Send(ctx context.Context, message string) error
}

type Options struct {
	Hedge     config.HedgeConfig
	Perpetual string
	Store     *feed.Store
	Placer    Placer
	KV        state.Store
	Alerts    Notifier
	Log       *zap.Logger
	Metrics   *metrics.Metrics
}

// Result describes one evaluation. Order is set when a rehedge was sent.
type Result struct {
	Evaluated   bool
	OptionDelta float64
	PerpDelta   float64
	Ratio       float64
	Hedged      bool
	Order       *exec.Order
}

type Engine struct {
	cfg       config.HedgeConfig
	perpetual string
	store     *feed.Store
	placer    Placer
	kv        state.Store
	alerts    Notifier
	log       *zap.Logger
	metrics   *metrics.Metrics
	now       func() time.Time
	wake      chan struct{}

	evalMu sync.Mutex

	mu          sync.Mutex
	active      bool
	optionDelta float64
	perpDelta   float64
}

func New(opts Options) *Engine {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Engine{
		cfg:       opts.Hedge,
		perpetual: opts.Perpetual,
		store:     opts.Store,
		placer:    opts.Placer,
		kv:        opts.KV,
		alerts:    opts.Alerts,
		log:       log.Named("hedge"),
		metrics:   m,
		now:       time.Now,
		wake:      make(chan struct{}, 1),
	}
}

// Notify schedules an evaluation on the Run loop. It never blocks.
func (e *Engine) Notify() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Deltas returns the last computed option and perpetual deltas.
func (e *Engine) Deltas() (float64, float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.optionDelta, e.perpDelta
}

// Run applies activation commands and evaluates after account changes until
// ctx ends.
func (e *Engine) Run(ctx context.Context, commands <-chan Command) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd := <-commands:
			if _, err := e.Apply(ctx, cmd); err != nil {
				e.log.Warn("hedge evaluation failed", zap.String("command", cmd.String()), zap.Error(err))
			}
		case <-e.wake:
			if _, err := e.Evaluate(ctx); err != nil {
				e.log.Warn("hedge evaluation failed", zap.Error(err))
			}
		}
	}
}

// Apply changes the activation flag. Turning hedging on runs one evaluation.
func (e *Engine) Apply(ctx context.Context, cmd Command) (Result, error) {
	e.mu.Lock()
	was := e.active
	switch cmd {
	case CommandActivate:
		e.active = true
	case CommandDeactivate:
		e.active = false
	case CommandToggle:
		e.active = !e.active
	default:
		e.mu.Unlock()
		return Result{}, fmt.Errorf("unknown hedge command %d", cmd)
	}
	active := e.active
	e.mu.Unlock()

	if active != was {
		e.log.Info("delta hedging", zap.Bool("active", active))
		e.notify(ctx, fmt.Sprintf("delta hedging active: %v", active))
	}
	if active && !was {
		return e.Evaluate(ctx)
	}
	e.saveSnapshot(ctx, Result{})
	return Result{}, nil
}

// Evaluate recomputes deltas and rehedges when active and the trigger fires.
// Evaluations are serialised; the order is sent without holding the state
// lock, so Active and Deltas never wait on the venue.
func (e *Engine) Evaluate(ctx context.Context) (Result, error) {
	e.evalMu.Lock()
	defer e.evalMu.Unlock()

	res, order, err := e.prepare()
	if err != nil || !res.Evaluated {
		return res, err
	}
	if order == nil {
		e.saveSnapshot(ctx, res)
		return res, nil
	}
	if _, err := e.placer.PlaceOrder(ctx, *order); err != nil {
		e.saveSnapshot(ctx, res)
		return res, fmt.Errorf("rehedge: %w", err)
	}
	e.metrics.HedgeOrders.Inc()
	res.Hedged = true
	res.Order = order
	e.saveSnapshot(ctx, res)
	e.log.Info("rehedged",
		zap.String("side", string(order.Side)),
		zap.Float64("amount", order.Amount),
		zap.Float64("price", order.Price),
		zap.Float64("option_delta", res.OptionDelta),
		zap.Float64("perp_delta", res.PerpDelta),
	)
	e.notify(ctx, fmt.Sprintf("rehedge %s %.2f %s @ %.2f (option delta %.2f, perp delta %.2f)",
		order.Side, order.Amount, order.Instrument, order.Price, res.OptionDelta, res.PerpDelta))
	return res, nil
}

// prepare measures under the state lock and returns the rehedge order, if any.
func (e *Engine) prepare() (Result, *exec.Order, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.active {
		return Result{}, nil, nil
	}
	optionDelta, perpDelta, err := e.measure(e.now())
	if err != nil {
		return Result{}, nil, err
	}
	e.optionDelta, e.perpDelta = optionDelta, perpDelta
	e.metrics.OptionDelta.Set(optionDelta)
	e.metrics.PerpDelta.Set(perpDelta)

	res := Result{Evaluated: true, OptionDelta: optionDelta, PerpDelta: perpDelta}
	ratio, fire := e.trigger(optionDelta, perpDelta)
	res.Ratio = ratio
	if !fire {
		return res, nil, nil
	}
	order, ok := e.rehedgeOrder(optionDelta, perpDelta)
	if !ok {
		return res, nil, nil
	}
	return res, &order, nil
}

// Measure computes the current deltas without acting on them.
func (e *Engine) Measure() (float64, float64, error) {
	return e.measure(e.now())
}

// measure returns the aggregate dollar delta of held options and the signed
// perpetual position. Expired options are skipped; any other option that
// cannot be priced fails the whole pass.
func (e *Engine) measure(now time.Time) (float64, float64, error) {
	var perpDelta float64
	var options []feed.Position
	for _, p := range e.store.Positions() {
		switch {
		case p.Instrument.Name == e.perpetual:
			perpDelta = p.Signed()
		case p.Instrument.IsOption() && p.Size != 0:
			if p.Instrument.YearsToExpiry(now) <= 0 {
				e.metrics.ExpiredOptions.Inc()
				e.log.Warn("skipping expired option", zap.String("instrument", p.Instrument.Name), zap.Float64("size", p.Signed()))
				continue
			}
			options = append(options, p)
		}
	}
	if len(options) == 0 {
		return 0, perpDelta, nil
	}
	mid, ok := e.store.PerpTopOfBook().Mid()
	if !ok {
		return 0, perpDelta, ErrNoUnderlyingPrice
	}

	var optionDelta float64
	for _, p := range options {
		delta, err := OptionDelta(p, mid, now)
		if err != nil {
			return 0, perpDelta, err
		}
		optionDelta += delta * p.Signed() * mid
	}
	return optionDelta, perpDelta, nil
}

// OptionDelta is the per-contract BSM delta at the volatility implied by the
// position's mark, quoted in underlying units and converted at mid.
func OptionDelta(p feed.Position, mid float64, now time.Time) (float64, error) {
	id := p.Instrument
	params := pricing.Params{
		Spot:   mid,
		Strike: id.Strike,
		Years:  id.YearsToExpiry(now),
		Call:   id.Kind == instrument.KindCall,
	}
	vol, err := pricing.ImpliedVol(p.MarkPrice*mid, params)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrPricing, id.Name, err)
	}
	params.Vol = vol
	delta := pricing.Delta(params)
	if math.IsNaN(delta) {
		return 0, fmt.Errorf("%w: %s: delta is NaN", ErrPricing, id.Name)
	}
	return delta, nil
}

// trigger returns the hedge ratio -perp/option and whether to rehedge.
func (e *Engine) trigger(optionDelta, perpDelta float64) (float64, bool) {
	if optionDelta == 0 {
		return 0, false
	}
	ratio := -perpDelta / optionDelta
	tol := e.cfg.Tolerance
	inside := 1-tol < ratio && ratio < 1+tol
	if e.cfg.Trigger == config.TriggerOutsideBand {
		return ratio, !inside
	}
	return ratio, inside
}

func (e *Engine) rehedgeOrder(optionDelta, perpDelta float64) (exec.Order, bool) {
	target := -optionDelta
	diff := perpDelta - target
	if diff == 0 {
		return exec.Order{}, false
	}
	top := e.store.PerpTopOfBook()
	order := exec.Order{
		Instrument: e.perpetual,
		Amount:     math.Abs(diff),
		Label:      e.cfg.Label,
	}
	if diff > 0 {
		order.Side = exec.SideSell
		order.Price = top.BestBid
	} else {
		order.Side = exec.SideBuy
		order.Price = top.BestAsk
	}
	return order, true
}

func (e *Engine) saveSnapshot(ctx context.Context, res Result) {
	e.mu.Lock()
	snapshot := state.HedgeSnapshot{
		Active:      e.active,
		OptionDelta: e.optionDelta,
		PerpDelta:   e.perpDelta,
		Ratio:       res.Ratio,
		Hedged:      res.Hedged,
		UpdatedAtMS: e.now().UnixMilli(),
	}
	e.mu.Unlock()
	if err := state.SaveHedgeSnapshot(ctx, e.kv, snapshot); err != nil {
		e.log.Warn("failed to persist hedge snapshot", zap.Error(err))
	}
}

func (e *Engine) notify(ctx context.Context, message string) {
	if e.alerts == nil {
		return
	}
	if err := e.alerts.Send(ctx, message); err != nil {
		e.log.Warn("alert failed", zap.Error(err))
	}
}
