package connection

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"deribit-hedge-bot/internal/deribit/rpc"
)

// bootstrap runs the ordered session setup. Each wait is bounded by the
// bootstrap timeout; a timeout fails the session like a transport error.
func (m *Manager) bootstrap(ctx context.Context) error {
	timeout := m.ws.BootstrapTimeout
	currency := strings.ToUpper(m.venue.Currency)

	m.setState(StateAuthenticating)
	if m.signer == nil {
		return fmt.Errorf("auth: no credentials")
	}
	auth, err := m.signer.AuthParams()
	if err != nil {
		return fmt.Errorf("auth params: %w", err)
	}
	if _, err := m.Send(ctx, rpc.MethodAuth, auth); err != nil {
		return err
	}
	if err := m.waitFor(ctx, timeout, "authentication", func(s Status) bool { return s.Authenticated }); err != nil {
		return err
	}

	if _, err := m.Send(ctx, rpc.MethodGetOpenOrders, map[string]any{"currency": currency, "type": "all"}); err != nil {
		return err
	}
	for _, kind := range []string{kindFuturePositions, kindOptionPositions} {
		params := map[string]any{"currency": currency, "kind": positionListing[kind]}
		if _, err := m.send(ctx, kind, rpc.MethodGetPositions, params); err != nil {
			return err
		}
	}

	if !m.Status().InstrumentsKnown {
		m.setState(StateFetchingReferenceData)
		params := map[string]any{"currency": currency, "kind": "option", "expired": false}
		if _, err := m.Send(ctx, rpc.MethodGetInstruments, params); err != nil {
			return err
		}
		if err := m.waitFor(ctx, timeout, "instruments", func(s Status) bool { return s.InstrumentsKnown }); err != nil {
			return err
		}
	}

	public := Batch(
		PublicChannels(m.store.Instruments(), m.venue.Perpetual, m.venue.PerpBookDepth, m.venue.PerpBookInterval),
		m.venue.SubscribeBatchSize,
	)
	private := [][]string{PrivateChannels(currency)}
	m.update(func(s *Status) {
		s.State = StateSubscribingPublic
		s.PublicBatches = len(public)
		s.PrivateBatches = len(private)
		s.PublicConfirmed = 0
		s.PrivateConfirmed = 0
	})
	for _, batch := range public {
		if _, err := m.Send(ctx, rpc.MethodPublicSub, map[string]any{"channels": batch}); err != nil {
			return err
		}
	}
	m.setState(StateSubscribingPrivate)
	for _, batch := range private {
		if _, err := m.Send(ctx, rpc.MethodPrivateSub, map[string]any{"channels": batch}); err != nil {
			return err
		}
	}
	if err := m.waitFor(ctx, timeout, "subscriptions", Status.SubscriptionsComplete); err != nil {
		return err
	}
	m.setState(StateReady)
	st := m.Status()
	m.log.Info("session ready",
		zap.Int("public_batches", st.PublicBatches),
		zap.Int("private_batches", st.PrivateBatches),
		zap.Int("instruments", len(m.store.Instruments())),
	)
	return nil
}
