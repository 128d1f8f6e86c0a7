package feed

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"deribit-hedge-bot/internal/instrument"
)

type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
	DirectionZero Direction = "zero"
)

func parseDirection(raw string) (Direction, error) {
	switch Direction(raw) {
	case DirectionBuy, DirectionSell, DirectionZero:
		return Direction(raw), nil
	case "":
		return DirectionZero, nil
	}
	return "", fmt.Errorf("%w: direction %q", ErrDataModel, raw)
}

// Position keeps the size non-negative; the sign lives in Direction.
type Position struct {
	Instrument   instrument.ID `msgpack:"instrument"`
	Direction    Direction     `msgpack:"direction"`
	Size         float64       `msgpack:"size"`
	AveragePrice float64       `msgpack:"average_price"`
	MarkPrice    float64       `msgpack:"mark_price"`
}

// Signed returns the size with sign: buy positive, sell negative.
func (p Position) Signed() float64 {
	switch p.Direction {
	case DirectionBuy:
		return p.Size
	case DirectionSell:
		return -p.Size
	}
	return 0
}

// Position listing kinds accepted by private/get_positions.
const (
	ListingFuture = "future"
	ListingOption = "option"
)

func listingCovers(listing string, kind instrument.Kind) bool {
	switch listing {
	case ListingFuture:
		return kind == instrument.KindPerpetual || kind == instrument.KindFuture
	case ListingOption:
		return kind == instrument.KindCall || kind == instrument.KindPut
	}
	return false
}

// ReplacePositions installs a get_positions listing. The listing is
// authoritative for its kind: held positions of that kind that it omits, such
// as settled options, are removed. An empty kind merges without removing.
func (s *Store) ReplacePositions(kind string, list []PositionMessage) error {
	switch kind {
	case "", ListingFuture, ListingOption:
	default:
		return fmt.Errorf("%w: position listing kind %q", ErrDataModel, kind)
	}
	parsed := make([]Position, 0, len(list))
	for _, msg := range list {
		id, err := s.ParseInstrument(msg.InstrumentName)
		if err != nil {
			return err
		}
		if kind != "" && !listingCovers(kind, id.Kind) {
			return fmt.Errorf("%w: %s in %s position listing", ErrDataModel, id.Name, kind)
		}
		dir, err := parseDirection(msg.Direction)
		if err != nil {
			return err
		}
		parsed = append(parsed, Position{
			Instrument:   id,
			Direction:    dir,
			Size:         math.Abs(msg.Size),
			AveragePrice: msg.AveragePrice,
			MarkPrice:    msg.MarkPrice,
		})
	}
	listed := make(map[string]struct{}, len(parsed))
	for _, p := range parsed {
		listed[p.Instrument.Name] = struct{}{}
	}
	s.posMu.Lock()
	defer s.posMu.Unlock()
	if kind != "" {
		for name, p := range s.positions {
			if _, ok := listed[name]; !ok && listingCovers(kind, p.Instrument.Kind) {
				delete(s.positions, name)
			}
		}
	}
	for _, p := range parsed {
		s.positions[p.Instrument.Name] = p
	}
	return nil
}

// ApplyFill updates the position for one user trade. Fills that extend the
// position recompute the weighted average price; opposing fills reduce it or,
// when larger than the position, flip direction at the fill price.
func (s *Store) ApplyFill(fill TradeMessage) error {
	id, err := s.ParseInstrument(fill.InstrumentName)
	if err != nil {
		return err
	}
	dir, err := parseDirection(fill.Direction)
	if err != nil {
		return err
	}
	if dir == DirectionZero {
		return fmt.Errorf("%w: fill %s without direction", ErrDataModel, fill.TradeID)
	}
	amount := math.Abs(fill.Amount)
	if amount == 0 {
		return nil
	}

	s.posMu.Lock()
	defer s.posMu.Unlock()
	pos, ok := s.positions[id.Name]
	if !ok {
		pos = Position{Instrument: id, Direction: DirectionZero}
	}
	pos = applyFill(pos, dir, amount, fill.Price)
	if fill.MarkPrice != 0 {
		pos.MarkPrice = fill.MarkPrice
	}
	s.positions[id.Name] = pos
	return nil
}

func applyFill(pos Position, dir Direction, amount, price float64) Position {
	size := decimal.NewFromFloat(pos.Size)
	fillSize := decimal.NewFromFloat(amount)
	fillPrice := decimal.NewFromFloat(price)

	if pos.Direction == dir {
		total := size.Add(fillSize)
		avg := size.Mul(decimal.NewFromFloat(pos.AveragePrice)).Add(fillSize.Mul(fillPrice)).Div(total)
		pos.Size = total.InexactFloat64()
		pos.AveragePrice = avg.InexactFloat64()
		return pos
	}

	switch fillSize.Cmp(size) {
	case 1:
		pos.Direction = dir
		pos.Size = fillSize.Sub(size).InexactFloat64()
		pos.AveragePrice = price
	case 0:
		pos.Size = 0
	default:
		pos.Size = size.Sub(fillSize).InexactFloat64()
	}
	return pos
}

func (s *Store) Position(name string) (Position, bool) {
	s.posMu.RLock()
	defer s.posMu.RUnlock()
	p, ok := s.positions[name]
	return p, ok
}

func (s *Store) Positions() []Position {
	s.posMu.RLock()
	defer s.posMu.RUnlock()
	out := make([]Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p)
	}
	return out
}

func (s *Store) setMark(name string, mark float64) {
	s.posMu.Lock()
	defer s.posMu.Unlock()
	if p, ok := s.positions[name]; ok {
		p.MarkPrice = mark
		s.positions[name] = p
	}
}
