package feed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testHub(opts ...HubOption) *Hub {
	return NewHub(slog.New(slog.NewTextHandler(io.Discard, nil)), opts...)
}

func TestSubscription_Empty(t *testing.T) {
	p := &Prediction{FraudProbability: 0.01, RiskLevel: "DÜŞÜK"}
	if !(Subscription{}).Matches(p) {
		t.Error("empty subscription should match everything")
	}
}

func TestSubscription_MinProbability(t *testing.T) {
	sub := Subscription{MinProbability: 0.5}

	if !sub.Matches(&Prediction{FraudProbability: 0.5}) {
		t.Error("probability equal to the minimum should match")
	}
	if sub.Matches(&Prediction{FraudProbability: 0.49}) {
		t.Error("probability below the minimum should not match")
	}
}

func TestSubscription_RiskLevels(t *testing.T) {
	sub := Subscription{RiskLevels: []string{"YÜKSEK", "ORTA"}}

	if !sub.Matches(&Prediction{RiskLevel: "ORTA"}) {
		t.Error("ORTA should match")
	}
	if sub.Matches(&Prediction{RiskLevel: "DÜŞÜK"}) {
		t.Error("DÜŞÜK should not match")
	}
}

func TestSubscription_CustomerIDs(t *testing.T) {
	sub := Subscription{CustomerIDs: []string{"C1"}}

	if !sub.Matches(&Prediction{CustomerID: "C1"}) {
		t.Error("C1 should match")
	}
	if sub.Matches(&Prediction{CustomerID: "C2"}) {
		t.Error("C2 should not match")
	}
	if sub.Matches(&Prediction{}) {
		t.Error("anonymous prediction should not match a customer filter")
	}
}

func TestPublishPrediction_DropsWhenQueueFull(t *testing.T) {
	h := testHub()
	// Run is not started, so nothing drains the queue.
	for i := 0; i < broadcastQueue+5; i++ {
		h.PublishPrediction(Prediction{})
	}
	if got := h.droppedEvents.Load(); got != 5 {
		t.Errorf("expected 5 dropped events, got %d", got)
	}
}

func startHub(t *testing.T, opts ...HubOption) (*Hub, *httptest.Server) {
	t.Helper()
	h := testHub(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-h.done
	})
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.RLock()
		got := len(h.clients)
		h.mu.RUnlock()
		if got == n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d clients", n)
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return ev
}

func TestHub_BroadcastsPrediction(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv)
	waitForClients(t, h, 1)

	h.PublishPrediction(Prediction{TransactionID: "TX1", CustomerID: "C1", FraudProbability: 0.82, RiskLevel: "YÜKSEK", IsFraud: 1})

	ev := readEvent(t, conn)
	if ev.Type != EventPrediction {
		t.Errorf("expected type %q, got %q", EventPrediction, ev.Type)
	}
	if ev.Data == nil || ev.Data.TransactionID != "TX1" || ev.Data.RiskLevel != "YÜKSEK" {
		t.Errorf("unexpected payload: %+v", ev.Data)
	}
}

func TestHub_SubscriptionFilters(t *testing.T) {
	h, srv := startHub(t)
	conn := dial(t, srv)
	waitForClients(t, h, 1)

	if err := conn.WriteJSON(Subscription{MinProbability: 0.7}); err != nil {
		t.Fatalf("write subscription: %v", err)
	}

	// The subscription is applied asynchronously; wait until it is visible.
	deadline := time.Now().Add(2 * time.Second)
	for {
		h.mu.RLock()
		var applied bool
		for c := range h.clients {
			applied = c.subscription().MinProbability == 0.7
		}
		h.mu.RUnlock()
		if applied {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("subscription was not applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	h.PublishPrediction(Prediction{TransactionID: "low", FraudProbability: 0.1})
	h.PublishPrediction(Prediction{TransactionID: "high", FraudProbability: 0.9})

	ev := readEvent(t, conn)
	if ev.Data.TransactionID != "high" {
		t.Errorf("expected only the high-probability event, got %q", ev.Data.TransactionID)
	}
}

func TestHub_RejectsOverCapacity(t *testing.T) {
	h, srv := startHub(t, WithMaxClients(1))
	dial(t, srv)
	waitForClients(t, h, 1)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected second connection to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %v", resp)
	}
}

func TestHub_Stats(t *testing.T) {
	h, srv := startHub(t)
	dial(t, srv)
	waitForClients(t, h, 1)

	stats := h.Stats()
	if stats["connectedClients"] != 1 {
		t.Errorf("expected 1 connected client, got %v", stats["connectedClients"])
	}
}
