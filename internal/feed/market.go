package feed

import "time"

// TopOfBook is the perpetual's best bid and ask from the grouped book channel.
type TopOfBook struct {
	BestBid   float64   `msgpack:"best_bid"`
	BestAsk   float64   `msgpack:"best_ask"`
	UpdatedAt time.Time `msgpack:"updated_at"`
}

// Mid is valid only when both sides are quoted.
func (t TopOfBook) Mid() (float64, bool) {
	if t.BestBid <= 0 || t.BestAsk <= 0 {
		return 0, false
	}
	return (t.BestBid + t.BestAsk) / 2, true
}

type Trade struct {
	TradeID   string    `msgpack:"trade_id"`
	Direction string    `msgpack:"direction"`
	Price     float64   `msgpack:"price"`
	Amount    float64   `msgpack:"amount"`
	Time      time.Time `msgpack:"time"`
}

type AccountMetrics struct {
	AvailableFunds    float64   `msgpack:"available_funds"`
	Balance           float64   `msgpack:"balance"`
	DeltaTotal        float64   `msgpack:"delta_total"`
	InitialMargin     float64   `msgpack:"initial_margin"`
	MaintenanceMargin float64   `msgpack:"maintenance_margin"`
	MarginBalance     float64   `msgpack:"margin_balance"`
	Equity            float64   `msgpack:"equity"`
	UpdatedAt         time.Time `msgpack:"updated_at"`
}

// SetPerpTopOfBook takes level [0] of each grouped side; an empty side keeps
// its previous value.
func (s *Store) SetPerpTopOfBook(msg GroupedBookMessage) {
	s.perpMu.Lock()
	defer s.perpMu.Unlock()
	if len(msg.Bids) > 0 {
		s.perpTop.BestBid = msg.Bids[0].Price
	}
	if len(msg.Asks) > 0 {
		s.perpTop.BestAsk = msg.Asks[0].Price
	}
	s.perpTop.UpdatedAt = s.now()
}

func (s *Store) PerpTopOfBook() TopOfBook {
	s.perpMu.RLock()
	defer s.perpMu.RUnlock()
	return s.perpTop
}

// RecordPerpTrades keeps the latest print of the perpetual tape.
func (s *Store) RecordPerpTrades(list []TradeMessage) {
	if len(list) == 0 {
		return
	}
	last := list[len(list)-1]
	s.perpMu.Lock()
	s.lastTrade = Trade{
		TradeID:   last.TradeID,
		Direction: last.Direction,
		Price:     last.Price,
		Amount:    last.Amount,
		Time:      time.UnixMilli(last.Timestamp).UTC(),
	}
	s.perpMu.Unlock()
}

func (s *Store) LastPerpTrade() Trade {
	s.perpMu.RLock()
	defer s.perpMu.RUnlock()
	return s.lastTrade
}

// SetTicker records open interest and mark price, and refreshes the mark of
// a held position in the same instrument.
func (s *Store) SetTicker(msg TickerMessage) error {
	if _, err := s.ParseInstrument(msg.InstrumentName); err != nil {
		return err
	}
	s.tickerMu.Lock()
	s.openInterest[msg.InstrumentName] = msg.OpenInterest
	if msg.MarkPrice != 0 {
		s.marks[msg.InstrumentName] = msg.MarkPrice
	}
	s.tickerMu.Unlock()

	if msg.MarkPrice != 0 {
		s.setMark(msg.InstrumentName, msg.MarkPrice)
	}
	return nil
}

func (s *Store) OpenInterest(name string) (float64, bool) {
	s.tickerMu.RLock()
	defer s.tickerMu.RUnlock()
	oi, ok := s.openInterest[name]
	return oi, ok
}

func (s *Store) MarkPrice(name string) (float64, bool) {
	s.tickerMu.RLock()
	defer s.tickerMu.RUnlock()
	m, ok := s.marks[name]
	return m, ok
}

// SetAccount overwrites the account metrics wholesale.
func (s *Store) SetAccount(msg PortfolioMessage) {
	s.accountMu.Lock()
	s.account = AccountMetrics{
		AvailableFunds:    msg.AvailableFunds,
		Balance:           msg.Balance,
		DeltaTotal:        msg.DeltaTotal,
		InitialMargin:     msg.InitialMargin,
		MaintenanceMargin: msg.MaintenanceMargin,
		MarginBalance:     msg.MarginBalance,
		Equity:            msg.Equity,
		UpdatedAt:         s.now(),
	}
	s.accountMu.Unlock()
}

func (s *Store) Account() AccountMetrics {
	s.accountMu.RLock()
	defer s.accountMu.RUnlock()
	return s.account
}
