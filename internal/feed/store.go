package feed

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"deribit-hedge-bot/internal/instrument"
)

var (
	// ErrDataModel marks inbound data that contradicts the local model. It is
	// an invariant breach, not a business error: the offending mutation is
	// aborted and the caller must surface it loudly.
	ErrDataModel         = errors.New("data model violation")
	ErrUnknownInstrument = fmt.Errorf("%w: unknown instrument", ErrDataModel)
	ErrOrderRejected     = errors.New("order rejected")
)

// Store is the authoritative in-memory market and account state. Each
// top-level collection has its own lock; no method holds two locks at once.
type Store struct {
	cutoffHour int
	perpetual  string
	now        func() time.Time

	booksMu sync.RWMutex
	books   map[string]*Book

	tickerMu     sync.RWMutex
	openInterest map[string]float64
	marks        map[string]float64

	perpMu    sync.RWMutex
	perpTop   TopOfBook
	lastTrade Trade

	posMu     sync.RWMutex
	positions map[string]Position

	ordersMu sync.RWMutex
	orders   map[string]map[string]Order

	accountMu sync.RWMutex
	account   AccountMetrics

	instMu      sync.RWMutex
	instruments []instrument.ID
}

// New creates an empty store. cutoffHour is the UTC hour dated instruments
// expire at; perpetual names the hedging instrument.
func New(perpetual string, cutoffHour int) *Store {
	return &Store{
		cutoffHour:   cutoffHour,
		perpetual:    perpetual,
		now:          time.Now,
		books:        make(map[string]*Book),
		openInterest: make(map[string]float64),
		marks:        make(map[string]float64),
		positions:    make(map[string]Position),
		orders:       make(map[string]map[string]Order),
	}
}

func (s *Store) Perpetual() string {
	return s.perpetual
}

func (s *Store) CutoffHour() int {
	return s.cutoffHour
}

// ParseInstrument validates a venue name at the ingestion boundary.
func (s *Store) ParseInstrument(name string) (instrument.ID, error) {
	id, err := instrument.Parse(name, s.cutoffHour)
	if err != nil {
		return instrument.ID{}, fmt.Errorf("%w: %w", ErrDataModel, err)
	}
	return id, nil
}

func (s *Store) SetInstruments(ids []instrument.ID) {
	cp := append([]instrument.ID(nil), ids...)
	s.instMu.Lock()
	s.instruments = cp
	s.instMu.Unlock()
}

func (s *Store) Instruments() []instrument.ID {
	s.instMu.RLock()
	defer s.instMu.RUnlock()
	return append([]instrument.ID(nil), s.instruments...)
}
