package app

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"deribit-hedge-bot/internal/alerts"
	"deribit-hedge-bot/internal/hedge"
)

type fakeUpdates struct {
	mu      sync.Mutex
	batches [][]alerts.Update
	offsets []int64
	sent    []string
}

func (f *fakeUpdates) GetUpdates(ctx context.Context, offset int64, wait time.Duration) ([]alerts.Update, error) {
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	if len(f.batches) > 0 {
		next := f.batches[0]
		f.batches = f.batches[1:]
		f.mu.Unlock()
		return next, nil
	}
	f.mu.Unlock()
	<-ctx.Done()
	return nil, ctx.Err()
}

func (f *fakeUpdates) Send(ctx context.Context, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, message)
	return nil
}

func (f *fakeUpdates) messages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func update(id, chat, user int64, text string) alerts.Update {
	return alerts.Update{
		UpdateID: id,
		Message: &alerts.Message{
			Text: text,
			Chat: &alerts.Chat{ID: chat},
			From: &alerts.User{ID: user, Username: "ops"},
		},
	}
}

func TestParseOperatorCommand(t *testing.T) {
	cmd, args, ok := parseOperatorCommand("/Hedge@deltabot on")
	if !ok {
		t.Fatalf("expected ok")
	}
	if cmd != "hedge" {
		t.Fatalf("expected hedge, got %s", cmd)
	}
	if len(args) != 1 || args[0] != "on" {
		t.Fatalf("unexpected args: %v", args)
	}
	if _, _, ok := parseOperatorCommand("hedge on"); ok {
		t.Fatalf("expected plain text to be ignored")
	}
}

func TestOperatorHedgeCommandQueuesAndAudits(t *testing.T) {
	app, _ := newTestApp(t)
	meta := operatorMeta{UpdateID: 9, UserID: 1, ChatID: 100, Raw: "/hedge toggle"}
	resp, err := app.handleOperatorCommand(context.Background(), "hedge", []string{"toggle"}, meta)
	if err != nil {
		t.Fatalf("hedge error: %v", err)
	}
	if resp != "hedge toggle queued" {
		t.Fatalf("unexpected response: %s", resp)
	}
	select {
	case cmd := <-app.commands:
		if cmd != hedge.CommandToggle {
			t.Fatalf("expected toggle, got %s", cmd)
		}
	default:
		t.Fatalf("expected queued command")
	}

	key := fmt.Sprintf("ops:audit:%d:9", app.now().UTC().UnixNano())
	raw, ok, err := app.store.Get(context.Background(), key)
	if err != nil || !ok {
		t.Fatalf("expected audit record at %s: ok=%v err=%v", key, ok, err)
	}
	var event operatorAuditEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	if event.Action != "hedge_toggle" || event.UserID != 1 {
		t.Fatalf("unexpected audit event %+v", event)
	}

	if _, err := app.handleOperatorCommand(context.Background(), "hedge", []string{"maybe"}, meta); err == nil {
		t.Fatalf("expected error for unknown argument")
	}
}

func TestOperatorReconnect(t *testing.T) {
	app, session := newTestApp(t)
	resp, err := app.handleOperatorCommand(context.Background(), "reconnect", nil, operatorMeta{Raw: "/reconnect"})
	if err != nil || resp != "reconnect requested" {
		t.Fatalf("unexpected response %q err=%v", resp, err)
	}
	if session.count() != 1 {
		t.Fatalf("expected one forced reconnect, got %d", session.count())
	}
	session.live = false
	resp, _ = app.handleOperatorCommand(context.Background(), "reconnect", nil, operatorMeta{})
	if resp != "no live connection to recycle" {
		t.Fatalf("unexpected response %q", resp)
	}
}

func TestOperatorLoopFiltersAndPersistsOffset(t *testing.T) {
	app, _ := newTestApp(t)
	src := &fakeUpdates{batches: [][]alerts.Update{{
		update(5, 999, 1, "/hedge on"),
		update(6, 100, 2, "/hedge on"),
		update(7, 100, 1, "/hedge on"),
	}}}
	allowed := map[int64]struct{}{1: {}}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.operatorLoop(ctx, src, 100, allowed, time.Millisecond)
		close(done)
	}()

	select {
	case cmd := <-app.commands:
		if cmd != hedge.CommandActivate {
			t.Fatalf("expected activate, got %s", cmd)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected one command from the allowed user")
	}
	cancel()
	<-done

	select {
	case cmd := <-app.commands:
		t.Fatalf("unexpected extra command %s", cmd)
	default:
	}
	if sent := src.messages(); len(sent) != 1 || sent[0] != "hedge activate queued" {
		t.Fatalf("unexpected replies %v", sent)
	}
	if got := app.loadOperatorOffset(context.Background()); got != 8 {
		t.Fatalf("expected persisted offset 8, got %d", got)
	}
}
