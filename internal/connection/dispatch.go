package connection

import (
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"

	"deribit-hedge-bot/internal/deribit/rpc"
	"deribit-hedge-bot/internal/feed"
	"deribit-hedge-bot/internal/instrument"
)

// positionListing maps a positions call kind to the listing it answers. Ad hoc
// position requests merge.
var positionListing = map[string]string{
	kindPositions:       "",
	kindFuturePositions: feed.ListingFuture,
	kindOptionPositions: feed.ListingOption,
}

func (m *Manager) dispatch(data []byte) {
	in, err := rpc.Classify(data)
	if err != nil {
		m.drop("malformed frame", zap.Error(err))
		return
	}
	if in.Response != nil {
		m.handleResponse(in.Response)
		return
	}
	m.handleNotification(in.Notification)
}

func (m *Manager) drop(msg string, fields ...zap.Field) {
	m.metrics.MessagesDropped.Inc()
	m.log.Debug(msg, fields...)
}

// applied reports the outcome of a store mutation.
func (m *Manager) applied(channel string, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, feed.ErrDataModel):
		m.metrics.DataModelViolations.Inc()
		m.log.Error("data model violation", zap.String("channel", channel), zap.Error(err))
	case errors.Is(err, feed.ErrOrderRejected):
		m.metrics.RequestsRejected.Inc()
		m.log.Warn("order rejected", zap.String("channel", channel), zap.Error(err))
	default:
		m.drop("undecodable payload", zap.String("channel", channel), zap.Error(err))
	}
	return false
}

func (m *Manager) handleResponse(resp *rpc.Response) {
	kind, ok := m.registry.Resolve(resp.ID)
	if !ok {
		m.drop("response for unknown id", zap.Int64("id", resp.ID))
		return
	}
	if resp.Error != nil {
		m.metrics.RequestsRejected.Inc()
		m.log.Warn("request rejected",
			zap.String("kind", kind),
			zap.Int64("id", resp.ID),
			zap.Int("code", resp.Error.Code),
			zap.String("message", resp.Error.Message),
		)
		return
	}

	switch kind {
	case kindAuth:
		var res rpc.AuthResult
		if err := json.Unmarshal(resp.Result, &res); err != nil {
			m.drop("undecodable auth result", zap.Error(err))
			return
		}
		if !res.Authenticated() {
			m.log.Error("authentication not granted", zap.String("token_type", res.TokenType))
			return
		}
		m.update(func(s *Status) {
			s.Authenticated = true
			s.State = StateAuthenticated
		})
	case kindInstruments:
		var list []feed.InstrumentMessage
		if !m.applied(kind, json.Unmarshal(resp.Result, &list)) {
			return
		}
		ids := make([]instrument.ID, 0, len(list))
		for _, item := range list {
			id, err := m.store.ParseInstrument(item.InstrumentName)
			if !m.applied(kind, err) {
				return
			}
			if id.IsOption() {
				ids = append(ids, id)
			}
		}
		m.store.SetInstruments(ids)
		m.update(func(s *Status) { s.InstrumentsKnown = true })
	case kindPublicSub:
		m.update(func(s *Status) { s.PublicConfirmed++ })
	case kindPrivateSub:
		m.update(func(s *Status) { s.PrivateConfirmed++ })
	case kindPositions, kindFuturePositions, kindOptionPositions:
		var list []feed.PositionMessage
		if m.applied(kind, json.Unmarshal(resp.Result, &list)) {
			m.applied(kind, m.store.ReplacePositions(positionListing[kind], list))
		}
	case kindOpenOrders:
		var list []feed.OrderMessage
		if m.applied(kind, json.Unmarshal(resp.Result, &list)) {
			m.applied(kind, m.store.LoadOpenOrders(list))
		}
	case kindOrder:
		var res struct {
			Order feed.OrderMessage `json:"order"`
		}
		if m.applied(kind, json.Unmarshal(resp.Result, &res)) {
			m.log.Info("order accepted",
				zap.String("order_id", res.Order.OrderID),
				zap.String("instrument", res.Order.InstrumentName),
				zap.String("state", res.Order.OrderState),
			)
		}
	default:
		m.log.Debug("response", zap.String("kind", kind), zap.Int64("id", resp.ID))
	}
}

func (m *Manager) handleNotification(n *rpc.Notification) {
	ch := n.Channel
	switch {
	case ch == rpc.MethodHeartbeat:
	case ch == m.perpBook:
		var msg feed.GroupedBookMessage
		if m.applied(ch, json.Unmarshal(n.Data, &msg)) {
			m.store.SetPerpTopOfBook(msg)
		}
	case ch == m.perpTrades:
		var list []feed.TradeMessage
		if m.applied(ch, json.Unmarshal(n.Data, &list)) {
			m.store.RecordPerpTrades(list)
		}
	case ch == channelUserOrders:
		list, err := decodeOneOrMany[feed.OrderMessage](n.Data)
		if !m.applied(ch, err) {
			return
		}
		for _, o := range list {
			m.applied(ch, m.store.ApplyOrderUpdate(o))
		}
	case ch == m.portfolio:
		var msg feed.PortfolioMessage
		if m.applied(ch, json.Unmarshal(n.Data, &msg)) {
			m.store.SetAccount(msg)
			m.onAcct()
		}
	case ch == channelUserTrades:
		list, err := decodeOneOrMany[feed.TradeMessage](n.Data)
		if !m.applied(ch, err) {
			return
		}
		// A bad fill is reported and skipped; the rest of the batch still applies.
		for _, t := range list {
			m.applied(ch, m.store.ApplyFill(t))
		}
		m.onAcct()
	case strings.HasPrefix(ch, "book."):
		var msg feed.BookMessage
		if !m.applied(ch, json.Unmarshal(n.Data, &msg)) {
			return
		}
		switch msg.Type {
		case "snapshot":
			m.applied(ch, m.store.ApplyBookSnapshot(msg))
		case "change":
			m.applied(ch, m.store.ApplyBookChange(msg))
		default:
			m.drop("unknown book message type", zap.String("channel", ch), zap.String("type", msg.Type))
		}
	case strings.HasPrefix(ch, "ticker."):
		var msg feed.TickerMessage
		if m.applied(ch, json.Unmarshal(n.Data, &msg)) {
			m.applied(ch, m.store.SetTicker(msg))
		}
	default:
		m.drop("unroutable notification", zap.String("channel", ch))
	}
}

// decodeOneOrMany accepts either a single object or an array of them.
func decodeOneOrMany[T any](data json.RawMessage) ([]T, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var list []T
		err := json.Unmarshal(data, &list)
		return list, err
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}
