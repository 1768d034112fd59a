package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"DualSignal/pkg/logger"
	"DualSignal/pkg/metrics"

	"github.com/gorilla/websocket"
)

func newFeedServer(t *testing.T, frames []string, hold bool) (*httptest.Server, chan string) {
	t.Helper()
	received := make(chan string, 4)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"ev":"status","status":"connected","message":"Connected Successfully"}]`))

		_, auth, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(auth)
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`[{"ev":"status","status":"auth_success","message":"authenticated"}]`))

		_, sub, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- string(sub)
		for _, f := range frames {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(f))
		}
		if !hold {
			return
		}
		// hold the connection until the client goes away
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return srv, received
}

func TestClientStreamsBars(t *testing.T) {
	frames := []string{
		`[{"ev":"AM","sym":"AAPL","o":150,"h":151,"l":149,"c":151,"v":10,"s":1728568800000,"e":1728568860000},{"ev":"AM","sym":"MSFT","o":1,"h":1,"l":1,"c":1,"v":1,"s":1728568800000,"e":1728568860000}]`,
		`garbage`,
		`{"ev":"AM","sym":"AAPL","o":151,"h":152,"l":150,"c":150.5,"v":5,"s":1728568860000,"e":1728568920000}`,
	}
	srv, received := newFeedServer(t, frames, true)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(Options{APIKey: "secret", URL: url, Symbols: []string{"AAPL", "MSFT"}}, logger.Nop(), metrics.Nop{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()
	if err := c.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if !c.IsConnected() {
		t.Fatalf("expected connected")
	}

	if got := <-received; !strings.Contains(got, `"action":"auth"`) || !strings.Contains(got, "secret") {
		t.Fatalf("unexpected auth message %s", got)
	}
	if got := <-received; !strings.Contains(got, `"params":"AM.AAPL,AM.MSFT"`) {
		t.Fatalf("unexpected subscribe message %s", got)
	}

	bars, errs := c.Read(ctx)
	var got []string
	for len(got) < 3 {
		select {
		case b, ok := <-bars:
			if !ok {
				t.Fatalf("bar channel closed early")
			}
			got = append(got, b.Instrument)
		case err := <-errs:
			t.Fatalf("unexpected stream error: %v", err)
		case <-ctx.Done():
			t.Fatalf("timed out, got %v", got)
		}
	}
	if got[0] != "AAPL" || got[1] != "MSFT" || got[2] != "AAPL" {
		t.Fatalf("unexpected bar order %v", got)
	}
}

func TestClientReportsDisconnect(t *testing.T) {
	srv, _ := newFeedServer(t, nil, false)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := New(Options{APIKey: "k", URL: url, Symbols: []string{"AAPL"}}, logger.Nop(), metrics.Nop{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Subscribe(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer c.Close()
	_, errs := c.Read(ctx)

	select {
	case err := <-errs:
		if err == nil {
			t.Fatalf("expected read error")
		}
	case <-ctx.Done():
		t.Fatalf("disconnect not reported")
	}
	if c.IsConnected() {
		t.Fatalf("client should report disconnected")
	}
}
