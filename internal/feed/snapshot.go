package feed

import (
	"sort"
	"time"
)

type BookSnapshot struct {
	Instrument   string  `msgpack:"instrument"`
	Bids         []Level `msgpack:"bids"`
	Asks         []Level `msgpack:"asks"`
	Best         Quote   `msgpack:"best"`
	OpenInterest float64 `msgpack:"open_interest"`
	MarkPrice    float64 `msgpack:"mark_price"`
}

// Snapshot is a deep-copied, serialisable view of the store. Collections are
// copied one at a time, so it is not a single atomic cut across them.
type Snapshot struct {
	TakenAt   time.Time      `msgpack:"taken_at"`
	Books     []BookSnapshot `msgpack:"books"`
	PerpTop   TopOfBook      `msgpack:"perp_top"`
	LastTrade Trade          `msgpack:"last_trade"`
	Positions []Position     `msgpack:"positions"`
	Orders    []Order        `msgpack:"orders"`
	Account   AccountMetrics `msgpack:"account"`
}

func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{TakenAt: s.now().UTC()}

	s.booksMu.RLock()
	for name, book := range s.books {
		snap.Books = append(snap.Books, BookSnapshot{
			Instrument: name,
			Bids:       levels(book.Bids, true),
			Asks:       levels(book.Asks, false),
			Best:       book.quote(),
		})
	}
	s.booksMu.RUnlock()
	sort.Slice(snap.Books, func(i, j int) bool { return snap.Books[i].Instrument < snap.Books[j].Instrument })

	s.tickerMu.RLock()
	for i := range snap.Books {
		snap.Books[i].OpenInterest = s.openInterest[snap.Books[i].Instrument]
		snap.Books[i].MarkPrice = s.marks[snap.Books[i].Instrument]
	}
	s.tickerMu.RUnlock()

	snap.PerpTop = s.PerpTopOfBook()
	snap.LastTrade = s.LastPerpTrade()

	snap.Positions = s.Positions()
	sort.Slice(snap.Positions, func(i, j int) bool {
		return snap.Positions[i].Instrument.Name < snap.Positions[j].Instrument.Name
	})
	snap.Orders = s.OpenOrders()
	sort.Slice(snap.Orders, func(i, j int) bool {
		if snap.Orders[i].Instrument != snap.Orders[j].Instrument {
			return snap.Orders[i].Instrument < snap.Orders[j].Instrument
		}
		return snap.Orders[i].OrderID < snap.Orders[j].OrderID
	})
	snap.Account = s.Account()
	return snap
}
