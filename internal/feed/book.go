package feed

import (
	"fmt"
	"sort"
)

// Side maps price to resting amount.
type Side map[float64]float64

type Book struct {
	Bids Side
	Asks Side
}

func newBook() *Book {
	return &Book{Bids: make(Side), Asks: make(Side)}
}

func (b *Book) clone() Book {
	out := Book{Bids: make(Side, len(b.Bids)), Asks: make(Side, len(b.Asks))}
	for p, a := range b.Bids {
		out.Bids[p] = a
	}
	for p, a := range b.Asks {
		out.Asks[p] = a
	}
	return out
}

func applyOps(side Side, ops []BookOp) {
	for _, op := range ops {
		switch op.Action {
		case OpDelete:
			delete(side, op.Price)
		case OpNew, OpChange:
			side[op.Price] = op.Amount
		}
	}
}

// ApplyBookSnapshot replaces the book for the message's instrument.
func (s *Store) ApplyBookSnapshot(msg BookMessage) error {
	if _, err := s.ParseInstrument(msg.InstrumentName); err != nil {
		return err
	}
	book := newBook()
	applyOps(book.Bids, msg.Bids)
	applyOps(book.Asks, msg.Asks)

	s.booksMu.Lock()
	s.books[msg.InstrumentName] = book
	s.booksMu.Unlock()
	return nil
}

// ApplyBookChange applies incremental ops in order. A change for an
// instrument that never received a snapshot is a data model violation.
func (s *Store) ApplyBookChange(msg BookMessage) error {
	if _, err := s.ParseInstrument(msg.InstrumentName); err != nil {
		return err
	}
	s.booksMu.Lock()
	defer s.booksMu.Unlock()
	book, ok := s.books[msg.InstrumentName]
	if !ok {
		return fmt.Errorf("%w: book change for %s before snapshot", ErrUnknownInstrument, msg.InstrumentName)
	}
	applyOps(book.Bids, msg.Bids)
	applyOps(book.Asks, msg.Asks)
	return nil
}

// BookSides returns a deep copy of the instrument's book.
func (s *Store) BookSides(name string) (Book, bool) {
	s.booksMu.RLock()
	defer s.booksMu.RUnlock()
	book, ok := s.books[name]
	if !ok {
		return Book{}, false
	}
	return book.clone(), true
}

// Quote is the best level on each side of one book. Zero values mean the
// side is empty.
type Quote struct {
	BidPrice float64 `msgpack:"bid_price"`
	BidSize  float64 `msgpack:"bid_size"`
	AskPrice float64 `msgpack:"ask_price"`
	AskSize  float64 `msgpack:"ask_size"`
}

func (b *Book) quote() Quote {
	var q Quote
	first := true
	for p, a := range b.Bids {
		if first || p > q.BidPrice {
			q.BidPrice, q.BidSize = p, a
			first = false
		}
	}
	first = true
	for p, a := range b.Asks {
		if first || p < q.AskPrice {
			q.AskPrice, q.AskSize = p, a
			first = false
		}
	}
	return q
}

func (s *Store) BestBidAsk(name string) (Quote, bool) {
	s.booksMu.RLock()
	defer s.booksMu.RUnlock()
	book, ok := s.books[name]
	if !ok {
		return Quote{}, false
	}
	return book.quote(), true
}

// Level is a serialisable price level.
type Level struct {
	Price  float64 `msgpack:"p"`
	Amount float64 `msgpack:"a"`
}

// levels sorts a side, best first.
func levels(side Side, descending bool) []Level {
	out := make([]Level, 0, len(side))
	for p, a := range side {
		out = append(out, Level{Price: p, Amount: a})
	}
	sort.Slice(out, func(i, j int) bool {
		if descending {
			return out[i].Price > out[j].Price
		}
		return out[i].Price < out[j].Price
	})
	return out
}
