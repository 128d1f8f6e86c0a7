package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

const Version = "2.0"

// Method names used by the client.
const (
	MethodAuth           = "public/auth"
	MethodGetInstruments = "public/get_instruments"
	MethodPublicSub      = "public/subscribe"
	MethodPrivateSub     = "private/subscribe"
	MethodGetPositions   = "private/get_positions"
	MethodGetOpenOrders  = "private/get_open_orders_by_currency"
	MethodBuy            = "private/buy"
	MethodSell           = "private/sell"
	MethodSubscription   = "subscription"
	MethodHeartbeat      = "heartbeat"
)

var ErrMalformed = errors.New("malformed message")

type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

func NewRequest(id int64, method string, params any) Request {
	if params == nil {
		params = map[string]any{}
	}
	return Request{JSONRPC: Version, ID: id, Method: method, Params: params}
}

// Error is the venue-side rejection attached to a response.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type Response struct {
	ID     int64
	Result json.RawMessage
	Error  *Error
}

type Notification struct {
	Channel string
	Data    json.RawMessage
}

// Inbound is one classified frame: exactly one of Response or Notification is set.
type Inbound struct {
	Response     *Response
	Notification *Notification
}

type rawInbound struct {
	ID     *int64          `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
	Params *struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	} `json:"params"`
}

// Classify decodes a frame into a correlated response (carries id) or a
// subscription push (carries params.channel).
func Classify(data []byte) (Inbound, error) {
	var raw rawInbound
	if err := json.Unmarshal(data, &raw); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw.ID != nil {
		if len(raw.Result) == 0 && raw.Error == nil {
			return Inbound{}, fmt.Errorf("%w: response %d has neither result nor error", ErrMalformed, *raw.ID)
		}
		return Inbound{Response: &Response{ID: *raw.ID, Result: raw.Result, Error: raw.Error}}, nil
	}
	if raw.Method == MethodSubscription {
		if raw.Params == nil || raw.Params.Channel == "" || len(raw.Params.Data) == 0 {
			return Inbound{}, fmt.Errorf("%w: subscription without channel or data", ErrMalformed)
		}
		return Inbound{Notification: &Notification{Channel: raw.Params.Channel, Data: raw.Params.Data}}, nil
	}
	if raw.Method != "" {
		return Inbound{Notification: &Notification{Channel: raw.Method}}, nil
	}
	return Inbound{}, fmt.Errorf("%w: neither response nor notification", ErrMalformed)
}
