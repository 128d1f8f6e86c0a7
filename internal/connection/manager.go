// Package connection owns the venue session: transport lifecycle,
// authentication, bootstrap sequencing, request correlation, inbound dispatch
// into the state store, and reconnection with tiered backoff.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"deribit-hedge-bot/internal/config"
	"deribit-hedge-bot/internal/deribit/rpc"
	"deribit-hedge-bot/internal/deribit/ws"
	"deribit-hedge-bot/internal/feed"
	"deribit-hedge-bot/internal/metrics"
)

var (
	ErrBootstrapTimeout = errors.New("bootstrap wait timed out")
	ErrClosed           = errors.New("connection closed")
	ErrForcedReconnect  = errors.New("forced reconnect")
	errSessionDone      = errors.New("session done")
)

// Call kinds key the pending request registry.
const (
	kindAuth        = "auth"
	kindInstruments = "instruments"
	kindPublicSub   = "public_subscribe"
	kindPrivateSub  = "private_subscribe"
	kindPositions   = "positions"
	kindOpenOrders  = "open_orders"
	kindOrder       = "order"
	kindOther       = "other"

	// Bootstrap listings; each is authoritative for its position kind.
	kindFuturePositions = "positions_future"
	kindOptionPositions = "positions_option"
)

func callKind(method string) string {
	switch method {
	case rpc.MethodAuth:
		return kindAuth
	case rpc.MethodGetInstruments:
		return kindInstruments
	case rpc.MethodPublicSub:
		return kindPublicSub
	case rpc.MethodPrivateSub:
		return kindPrivateSub
	case rpc.MethodGetPositions:
		return kindPositions
	case rpc.MethodGetOpenOrders:
		return kindOpenOrders
	case rpc.MethodBuy, rpc.MethodSell:
		return kindOrder
	}
	return kindOther
}

type Options struct {
	WS      config.WSConfig
	Venue   config.VenueConfig
	Signer  *rpc.Signer
	Store   *feed.Store
	Log     *zap.Logger
	Metrics *metrics.Metrics
	// OnAccountChange runs after portfolio and user trade pushes are applied.
	// It is called on the read loop and must not block.
	OnAccountChange func()
}

type Manager struct {
	ws      config.WSConfig
	venue   config.VenueConfig
	dialer  ws.Dialer
	signer  *rpc.Signer
	store   *feed.Store
	log     *zap.Logger
	metrics *metrics.Metrics
	onAcct  func()

	perpBook   string
	perpTrades string
	portfolio  string

	nextID   atomic.Int64
	registry *rpc.Registry
	status   *statusBox
	backoff  *Backoff
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error

	connMu sync.Mutex
	conn   *ws.Conn
	cancel context.CancelCauseFunc
}

func New(opts Options) *Manager {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	onAcct := opts.OnAccountChange
	if onAcct == nil {
		onAcct = func() {}
	}
	return &Manager{
		ws:         opts.WS,
		venue:      opts.Venue,
		dialer:     ws.Dialer{URL: opts.WS.URL, ReadLimit: opts.WS.ReadLimit, Log: log},
		signer:     opts.Signer,
		store:      opts.Store,
		log:        log.Named("connection"),
		metrics:    m,
		onAcct:     onAcct,
		perpBook:   perpBookChannel(opts.Venue.Perpetual, opts.Venue.PerpBookDepth, opts.Venue.PerpBookInterval),
		perpTrades: perpTradesChannel(opts.Venue.Perpetual),
		portfolio:  portfolioChannel(opts.Venue.Currency),
		registry:   rpc.NewRegistry(),
		status:     newStatusBox(),
		backoff:    NewBackoff(opts.WS.Backoff, opts.WS.QuietPeriod),
		now:        time.Now,
		sleep:      sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run keeps a session open until ctx is cancelled. Transport errors and
// bootstrap timeouts reconnect after a backoff; forced reconnects do not wait.
func (m *Manager) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return m.shutdown()
		}
		err := m.session(ctx)
		m.teardown()
		if ctx.Err() != nil {
			return m.shutdown()
		}
		m.metrics.Reconnects.Inc()
		if errors.Is(err, ErrForcedReconnect) {
			m.log.Info("forced reconnect")
			continue
		}
		m.metrics.TransportErrors.Inc()
		delay := m.backoff.Failure(m.now())
		m.log.Warn("transport error, reconnecting",
			zap.Error(err),
			zap.Int("errors", m.backoff.Count()),
			zap.Duration("backoff", delay),
		)
		if err := m.sleep(ctx, delay); err != nil {
			return m.shutdown()
		}
	}
}

func (m *Manager) shutdown() error {
	m.closeConn("shutdown")
	m.log.Info("connection shutting down", zap.Duration("settle", m.ws.SettleDelay))
	if m.ws.SettleDelay > 0 {
		time.Sleep(m.ws.SettleDelay)
	}
	return nil
}

func (m *Manager) session(ctx context.Context) error {
	m.setState(StateConnecting)
	conn, err := m.dialer.Dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	sessCtx, cancel := context.WithCancelCause(ctx)
	m.connMu.Lock()
	m.conn = conn
	m.cancel = cancel
	m.connMu.Unlock()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		cancel(m.readLoop(sessCtx, conn))
	}()
	go func() {
		defer wg.Done()
		if err := m.pingLoop(sessCtx, conn); err != nil {
			cancel(err)
		}
	}()
	defer func() {
		cancel(errSessionDone)
		_ = conn.Close("reconnect")
		wg.Wait()
	}()

	m.setState(StateConnected)
	if err := m.bootstrap(sessCtx); err != nil {
		if cause := context.Cause(sessCtx); cause != nil {
			return cause
		}
		return err
	}
	<-sessCtx.Done()
	return context.Cause(sessCtx)
}

// teardown clears everything scoped to the closed connection.
func (m *Manager) teardown() {
	m.connMu.Lock()
	m.conn = nil
	m.cancel = nil
	m.connMu.Unlock()
	m.registry.Reset()
	m.status.update(func(s *Status) {
		*s = Status{State: StateDisconnected}
	})
	m.metrics.Ready.Set(0)
}

func (m *Manager) closeConn(reason string) {
	m.connMu.Lock()
	conn := m.conn
	m.connMu.Unlock()
	if conn != nil {
		_ = conn.Close(reason)
	}
}

func (m *Manager) readLoop(ctx context.Context, conn *ws.Conn) error {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				ws.LogReadError(m.log, err)
			}
			return fmt.Errorf("read: %w", err)
		}
		m.dispatch(data)
	}
}

func (m *Manager) pingLoop(ctx context.Context, conn *ws.Conn) error {
	if m.ws.PingInterval <= 0 {
		return nil
	}
	ticker := time.NewTicker(m.ws.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := conn.Ping(ctx, m.ws.PingTimeout); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("ping: %w", err)
			}
			if m.ws.QuietPeriod > 0 && m.now().Sub(conn.OpenedAt()) > m.ws.QuietPeriod {
				m.backoff.Reset()
			}
		}
	}
}

// failSession ends the current session with err as the cause.
func (m *Manager) failSession(err error) {
	m.connMu.Lock()
	cancel := m.cancel
	m.connMu.Unlock()
	if cancel != nil {
		cancel(err)
	}
}

// ForceReconnect closes the current session and reopens it without backoff.
func (m *Manager) ForceReconnect() bool {
	m.connMu.Lock()
	cancel := m.cancel
	m.connMu.Unlock()
	if cancel == nil {
		return false
	}
	cancel(ErrForcedReconnect)
	return true
}

// Send writes one request and registers its id under the method's call kind.
// Responses are handled asynchronously by dispatch.
func (m *Manager) Send(ctx context.Context, method string, params any) (int64, error) {
	return m.send(ctx, callKind(method), method, params)
}

func (m *Manager) send(ctx context.Context, kind, method string, params any) (int64, error) {
	m.connMu.Lock()
	conn := m.conn
	m.connMu.Unlock()
	if conn == nil {
		return 0, ErrClosed
	}
	id := m.nextID.Add(1)
	m.registry.Add(kind, id)
	if err := conn.WriteJSON(ctx, rpc.NewRequest(id, method, params)); err != nil {
		m.registry.Remove(id)
		err = fmt.Errorf("write %s: %w", method, err)
		m.failSession(err)
		return 0, err
	}
	m.log.Debug("request sent", zap.Int64("id", id), zap.String("method", method))
	return id, nil
}

func (m *Manager) Status() Status {
	st, _ := m.status.load()
	return st
}

// WaitReady blocks until the session is ready or ctx ends.
func (m *Manager) WaitReady(ctx context.Context) error {
	return m.waitFor(ctx, 0, "ready", func(s Status) bool { return s.State == StateReady })
}

// waitFor blocks until pred holds, timeout elapses (when positive) or ctx ends.
func (m *Manager) waitFor(ctx context.Context, timeout time.Duration, what string, pred func(Status) bool) error {
	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}
	for {
		st, changed := m.status.load()
		if pred(st) {
			return nil
		}
		select {
		case <-changed:
		case <-expired:
			return fmt.Errorf("%w: %s", ErrBootstrapTimeout, what)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (m *Manager) setState(state State) {
	m.update(func(s *Status) { s.State = state })
}

func (m *Manager) update(fn func(*Status)) {
	before, after := m.status.update(fn)
	if before.State != after.State {
		m.log.Info("connection state", zap.String("from", before.State.String()), zap.String("to", after.State.String()))
		if after.State == StateReady {
			m.metrics.Ready.Set(1)
		}
	}
}
