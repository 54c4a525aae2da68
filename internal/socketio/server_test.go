package socketio

import (
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"fitsbook-server/internal/metrics"
)

func waitForPrefix(t *testing.T, c *websocket.Conn, prefix string, timeout time.Duration) string {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		_ = c.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		_, data, err := c.ReadMessage()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			t.Fatalf("ReadMessage: %v", err)
		}
		msg := string(data)
		if msg == "2" {
			_ = c.WriteMessage(websocket.TextMessage, []byte("3"))
			continue
		}
		if strings.HasPrefix(msg, prefix) {
			_ = c.SetReadDeadline(time.Time{})
			return msg
		}
	}
	t.Fatalf("timeout waiting for %q", prefix)
	return ""
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met")
}

func dialViewer(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http") + "/?EIO=4&transport=websocket"
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	_ = waitForPrefix(t, c, "0{", 2*time.Second)
	if err := c.WriteMessage(websocket.TextMessage, []byte("40")); err != nil {
		t.Fatalf("WriteMessage(connect): %v", err)
	}
	return c
}

func newTestServer(t *testing.T, deps Deps) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(deps)
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv
}

func TestServer_AnonymousConnectAndGreeting(t *testing.T) {
	m := metrics.New()
	s, srv := newTestServer(t, Deps{Metrics: m})

	c := dialViewer(t, srv.URL)
	connected := waitForPrefix(t, c, "40", 2*time.Second)
	if !strings.HasPrefix(connected, `40{"sid":"`) {
		t.Fatalf("unexpected connect ack: %s", connected)
	}
	news := waitForPrefix(t, c, "42", 2*time.Second)
	if news != `42["news",{"hello":"world"}]` {
		t.Fatalf("unexpected greeting: %s", news)
	}

	waitFor(t, func() bool { return s.Viewers() == 1 })
	if got := testutil.ToFloat64(m.Viewers); got != 1 {
		t.Fatalf("expected viewers gauge 1, got %v", got)
	}

	_ = c.Close()
	waitFor(t, func() bool { return s.Viewers() == 0 })
	waitFor(t, func() bool { return testutil.ToFloat64(m.Viewers) == 0 })
}

func TestServer_PingAck(t *testing.T) {
	_, srv := newTestServer(t, Deps{})

	c := dialViewer(t, srv.URL)
	_ = waitForPrefix(t, c, "42", 2*time.Second)

	if err := c.WriteMessage(websocket.TextMessage, []byte(`421["ping"]`)); err != nil {
		t.Fatalf("WriteMessage(ping): %v", err)
	}
	ack := waitForPrefix(t, c, "431", 2*time.Second)
	if ack != "431[]" {
		t.Fatalf("unexpected ack: %s", ack)
	}
}

func TestServer_BroadcastsToEveryViewer(t *testing.T) {
	s, srv := newTestServer(t, Deps{})

	a := dialViewer(t, srv.URL)
	b := dialViewer(t, srv.URL)
	_ = waitForPrefix(t, a, `42["news"`, 2*time.Second)
	_ = waitForPrefix(t, b, `42["news"`, 2*time.Second)
	waitFor(t, func() bool { return s.Viewers() == 2 })

	s.HistoryAppended(7, []byte(`{"epoch":1,"loss":0.5}`))
	for _, c := range []*websocket.Conn{a, b} {
		msg := waitForPrefix(t, c, `42["history-7"`, 2*time.Second)
		if msg != `42["history-7",{"epoch":1,"loss":0.5}]` {
			t.Fatalf("unexpected history event: %s", msg)
		}
	}

	s.ModelCreated(8)
	msg := waitForPrefix(t, a, `42["model-created"`, 2*time.Second)
	if msg != `42["model-created",{"id":8}]` {
		t.Fatalf("unexpected model-created event: %s", msg)
	}

	s.TrainingEnded(8, true)
	msg = waitForPrefix(t, b, `42["training-ended"`, 2*time.Second)
	if msg != `42["training-ended",{"id":8,"stopped":true}]` {
		t.Fatalf("unexpected training-ended event: %s", msg)
	}
}

func TestServer_NoBroadcastBeforeConnect(t *testing.T) {
	s, srv := newTestServer(t, Deps{})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?EIO=4&transport=websocket"
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	_ = waitForPrefix(t, c, "0{", 2*time.Second)

	if n := s.Emit("model-created", map[string]int{"id": 1}); n != 0 {
		t.Fatalf("expected no recipients before the socket connect, got %d", n)
	}
}

func TestServer_PongTimeoutCloses(t *testing.T) {
	s, srv := newTestServer(t, Deps{PingInterval: 50 * time.Millisecond, PingTimeout: 50 * time.Millisecond})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?EIO=4&transport=websocket"
	c, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	open := waitForPrefix(t, c, "0{", 2*time.Second)
	if !strings.Contains(open, `"pingInterval":50`) {
		t.Fatalf("unexpected open packet: %s", open)
	}
	if err := c.WriteMessage(websocket.TextMessage, []byte("40")); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return s.Viewers() == 1 })

	// never answer pings
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
	waitFor(t, func() bool { return s.Viewers() == 0 })
}
