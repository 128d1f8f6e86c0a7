package exec

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"

	"deribit-hedge-bot/internal/state"
)

type memoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{data: make(map[string]string)}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryStore) Close() error { return nil }

type sentRequest struct {
	method string
	params map[string]any
}

type mockSender struct {
	mu   sync.Mutex
	sent []sentRequest
	err  error
}

func (m *mockSender) Send(ctx context.Context, method string, params any) (int64, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.sent = append(m.sent, sentRequest{method: method, params: params.(map[string]any)})
	return int64(len(m.sent)), nil
}

func TestPlaceOrderSell(t *testing.T) {
	store := newMemoryStore()
	sender := &mockSender{}
	executor := New(sender, store, zap.NewNop())

	id, err := executor.PlaceOrder(context.Background(), Order{
		Instrument: "BTC-PERPETUAL", Side: SideSell, Amount: 30, Price: 60000, Label: "delta_hedge",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 1 || len(sender.sent) != 1 {
		t.Fatalf("expected one request, got %d (id %d)", len(sender.sent), id)
	}
	req := sender.sent[0]
	if req.method != "private/sell" {
		t.Fatalf("expected private/sell, got %s", req.method)
	}
	if req.params["type"] != "limit" || req.params["label"] != "delta_hedge" || req.params["price"] != 60000.0 || req.params["amount"] != 30.0 {
		t.Fatalf("unexpected params %v", req.params)
	}
	record, ok, err := state.LoadLastOrder(context.Background(), store)
	if err != nil || !ok || record.RequestID != 1 || record.Method != "private/sell" {
		t.Fatalf("unexpected record %#v ok=%v err=%v", record, ok, err)
	}
}

func TestPlaceOrderBuy(t *testing.T) {
	sender := &mockSender{}
	executor := New(sender, nil, zap.NewNop())
	if _, err := executor.PlaceOrder(context.Background(), Order{Instrument: "BTC-PERPETUAL", Side: SideBuy, Amount: 1, Price: 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.sent[0].method != "private/buy" {
		t.Fatalf("expected private/buy, got %s", sender.sent[0].method)
	}
}

func TestPlaceOrderValidation(t *testing.T) {
	sender := &mockSender{}
	executor := New(sender, nil, zap.NewNop())
	bad := []Order{
		{Instrument: "BTC-PERPETUAL", Side: SideBuy, Amount: 0, Price: 1},
		{Instrument: "BTC-PERPETUAL", Side: SideBuy, Amount: 1, Price: 0},
		{Instrument: "BTC-PERPETUAL", Side: "hold", Amount: 1, Price: 1},
		{Side: SideBuy, Amount: 1, Price: 1},
	}
	for _, order := range bad {
		if _, err := executor.PlaceOrder(context.Background(), order); err == nil {
			t.Fatalf("expected error for %+v", order)
		}
	}
	if len(sender.sent) != 0 {
		t.Fatalf("invalid orders must not be sent")
	}
}

func TestPlaceOrderSendError(t *testing.T) {
	boom := errors.New("closed")
	executor := New(&mockSender{err: boom}, nil, zap.NewNop())
	_, err := executor.PlaceOrder(context.Background(), Order{Instrument: "BTC-PERPETUAL", Side: SideBuy, Amount: 1, Price: 1})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped send error, got %v", err)
	}
}
