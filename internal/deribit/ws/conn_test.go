package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"nhooyr.io/websocket"
)

func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Errorf("accept ws: %v", err)
			return
		}
		defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()
		for {
			typ, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			if err := conn.Write(r.Context(), typ, data); err != nil {
				return
			}
		}
	}))
}

func TestConnWriteJSONRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	server := echoServer(t)
	defer server.Close()

	dialer := Dialer{URL: "ws" + strings.TrimPrefix(server.URL, "http"), ReadLimit: 1 << 20, Log: zap.NewNop()}
	conn, err := dialer.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close("test done")

	if err := conn.WriteJSON(ctx, map[string]any{"method": "public/test"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg["method"] != "public/test" {
		t.Fatalf("unexpected echo %v", msg)
	}
	if conn.OpenedAt().IsZero() {
		t.Fatalf("expected opened-at timestamp")
	}
}

func TestConnWriteAfterClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	server := echoServer(t)
	defer server.Close()

	conn, err := Dialer{URL: "ws" + strings.TrimPrefix(server.URL, "http")}.Dial(ctx)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := conn.Close("bye"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := conn.Close("again"); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
	if err := conn.Write(ctx, []byte("{}")); err != ErrClosed {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}
