package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"RoundPull/internal/domain/models"
)

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/predictions"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("clients = %d, want %d", h.Len(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readPrediction(t *testing.T, conn *websocket.Conn) models.Prediction {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var p models.Prediction
	if err := json.Unmarshal(msg, &p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return p
}

func TestHubBroadcastsAndReplaysLatest(t *testing.T) {
	h := NewHub(nil)
	e := echo.New()
	h.RegisterRoutes(e)
	srv := httptest.NewServer(e)
	defer srv.Close()
	defer h.Close()

	first := dial(t, srv)
	waitClients(t, h, 1)

	h.Broadcast(models.Prediction{RoundID: "42", Label: models.High})
	if p := readPrediction(t, first); p.RoundID != "42" || p.Label != models.High {
		t.Fatalf("first got %+v", p)
	}

	second := dial(t, srv)
	if p := readPrediction(t, second); p.RoundID != "42" {
		t.Fatalf("late joiner got %+v", p)
	}
	waitClients(t, h, 2)

	_ = first.Close()
	waitClients(t, h, 1)
}
