package feed

import "fmt"

const (
	orderStateRejected  = "rejected"
	orderStateCancelled = "cancelled"
	orderStateFilled    = "filled"
	orderTypeMarket     = "market"
)

type Order struct {
	Instrument   string  `msgpack:"instrument"`
	OrderID      string  `msgpack:"order_id"`
	Type         string  `msgpack:"type"`
	State        string  `msgpack:"state"`
	Direction    string  `msgpack:"direction"`
	Price        float64 `msgpack:"price"`
	Amount       float64 `msgpack:"amount"`
	FilledAmount float64 `msgpack:"filled_amount"`
	Label        string  `msgpack:"label"`
}

func orderFromMessage(msg OrderMessage) Order {
	return Order{
		Instrument:   msg.InstrumentName,
		OrderID:      msg.OrderID,
		Type:         msg.OrderType,
		State:        msg.OrderState,
		Direction:    msg.Direction,
		Price:        float64(msg.Price),
		Amount:       float64(msg.Amount),
		FilledAmount: float64(msg.FilledAmount),
		Label:        msg.Label,
	}
}

func (o Order) done() bool {
	if o.State == orderStateCancelled || o.State == orderStateFilled {
		return true
	}
	return o.Amount > 0 && o.FilledAmount >= o.Amount
}

// LoadOpenOrders stores the open orders returned at bootstrap.
func (s *Store) LoadOpenOrders(list []OrderMessage) error {
	for _, msg := range list {
		if _, err := s.ParseInstrument(msg.InstrumentName); err != nil {
			return err
		}
	}
	s.ordersMu.Lock()
	defer s.ordersMu.Unlock()
	for _, msg := range list {
		o := orderFromMessage(msg)
		if o.done() || o.State == orderStateRejected {
			continue
		}
		s.putOrderLocked(o)
	}
	return nil
}

// ApplyOrderUpdate applies one user.orders push. Rejected orders are never
// stored and are reported through ErrOrderRejected.
func (s *Store) ApplyOrderUpdate(msg OrderMessage) error {
	if _, err := s.ParseInstrument(msg.InstrumentName); err != nil {
		return err
	}
	if msg.OrderID == "" {
		return fmt.Errorf("%w: order update without id", ErrDataModel)
	}
	o := orderFromMessage(msg)
	if o.State == orderStateRejected {
		return fmt.Errorf("%w: %s %s", ErrOrderRejected, o.Instrument, o.OrderID)
	}

	s.ordersMu.Lock()
	defer s.ordersMu.Unlock()
	switch {
	case o.done():
		if byID := s.orders[o.Instrument]; byID != nil {
			delete(byID, o.OrderID)
			if len(byID) == 0 {
				delete(s.orders, o.Instrument)
			}
		}
	case o.Type == orderTypeMarket:
	default:
		s.putOrderLocked(o)
	}
	return nil
}

func (s *Store) putOrderLocked(o Order) {
	byID, ok := s.orders[o.Instrument]
	if !ok {
		byID = make(map[string]Order)
		s.orders[o.Instrument] = byID
	}
	byID[o.OrderID] = o
}

func (s *Store) Order(instrumentName, orderID string) (Order, bool) {
	s.ordersMu.RLock()
	defer s.ordersMu.RUnlock()
	o, ok := s.orders[instrumentName][orderID]
	return o, ok
}

func (s *Store) OpenOrders() []Order {
	s.ordersMu.RLock()
	defer s.ordersMu.RUnlock()
	var out []Order
	for _, byID := range s.orders {
		for _, o := range byID {
			out = append(out, o)
		}
	}
	return out
}
