package feed

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Number decodes venue numerics that arrive either as JSON numbers or as
// strings (e.g. "market_price" on market orders decodes to 0).
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*n = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			*n = 0
			return nil
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// BookOp is one incremental order book operation: [action, price, amount].
type BookOp struct {
	Action string
	Price  float64
	Amount float64
}

const (
	OpNew    = "new"
	OpChange = "change"
	OpDelete = "delete"
)

func (op *BookOp) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 3 {
		return fmt.Errorf("book op needs 3 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &op.Action); err != nil {
		return err
	}
	if err := json.Unmarshal(raw[1], &op.Price); err != nil {
		return err
	}
	return json.Unmarshal(raw[2], &op.Amount)
}

type BookMessage struct {
	Type           string   `json:"type"`
	InstrumentName string   `json:"instrument_name"`
	ChangeID       int64    `json:"change_id"`
	PrevChangeID   int64    `json:"prev_change_id"`
	Timestamp      int64    `json:"timestamp"`
	Bids           []BookOp `json:"bids"`
	Asks           []BookOp `json:"asks"`
}

// PriceLevel is a grouped book level: [price, amount].
type PriceLevel struct {
	Price  float64
	Amount float64
}

func (l *PriceLevel) UnmarshalJSON(data []byte) error {
	var raw [2]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	l.Price, l.Amount = raw[0], raw[1]
	return nil
}

type GroupedBookMessage struct {
	InstrumentName string       `json:"instrument_name"`
	Timestamp      int64        `json:"timestamp"`
	Bids           []PriceLevel `json:"bids"`
	Asks           []PriceLevel `json:"asks"`
}

type TickerMessage struct {
	InstrumentName string  `json:"instrument_name"`
	OpenInterest   float64 `json:"open_interest"`
	MarkPrice      float64 `json:"mark_price"`
	Timestamp      int64   `json:"timestamp"`
}

type TradeMessage struct {
	TradeID        string  `json:"trade_id"`
	OrderID        string  `json:"order_id"`
	InstrumentName string  `json:"instrument_name"`
	Direction      string  `json:"direction"`
	Amount         float64 `json:"amount"`
	Price          float64 `json:"price"`
	MarkPrice      float64 `json:"mark_price"`
	Label          string  `json:"label"`
	Timestamp      int64   `json:"timestamp"`
}

type OrderMessage struct {
	InstrumentName string `json:"instrument_name"`
	OrderID        string `json:"order_id"`
	OrderType      string `json:"order_type"`
	OrderState     string `json:"order_state"`
	Direction      string `json:"direction"`
	Price          Number `json:"price"`
	Amount         Number `json:"amount"`
	FilledAmount   Number `json:"filled_amount"`
	Label          string `json:"label"`
	LastUpdate     int64  `json:"last_update_timestamp"`
}

type PositionMessage struct {
	InstrumentName string  `json:"instrument_name"`
	Kind           string  `json:"kind"`
	Direction      string  `json:"direction"`
	Size           float64 `json:"size"`
	AveragePrice   float64 `json:"average_price"`
	MarkPrice      float64 `json:"mark_price"`
}

type PortfolioMessage struct {
	Currency          string  `json:"currency"`
	AvailableFunds    float64 `json:"available_funds"`
	Balance           float64 `json:"balance"`
	DeltaTotal        float64 `json:"delta_total"`
	InitialMargin     float64 `json:"initial_margin"`
	MaintenanceMargin float64 `json:"maintenance_margin"`
	MarginBalance     float64 `json:"margin_balance"`
	Equity            float64 `json:"equity"`
}

type InstrumentMessage struct {
	InstrumentName string `json:"instrument_name"`
	Kind           string `json:"kind"`
	IsActive       bool   `json:"is_active"`
}
