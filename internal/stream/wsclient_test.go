package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// wsTestServer upgrades every request and hands the connection to fn.
func wsTestServer(t *testing.T, fn func(conn *websocket.Conn, connNum int)) (*httptest.Server, string) {
	t.Helper()
	var connNum atomic.Int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		fn(conn, int(connNum.Add(1)))
	}))
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSClient_ConnectAndReceive(t *testing.T) {
	srv, url := wsTestServer(t, func(conn *websocket.Conn, _ int) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"hello":"world"}`))
		// Keep the connection open until the client closes it.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	msgCh := make(chan []byte, 1)
	c := NewWSClient(WSOptions{
		URL: url,
		Handlers: Handlers{
			OnMessage: func(data []byte) {
				select {
				case msgCh <- data:
				default:
				}
			},
		},
	})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	if got := c.State(); got != StateOpen {
		t.Errorf("state: got %s, want open", got)
	}
	select {
	case data := <-msgCh:
		if string(data) != `{"hello":"world"}` {
			t.Errorf("message: got %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestWSClient_SendDeliversJSON(t *testing.T) {
	recvCh := make(chan []byte, 1)
	srv, url := wsTestServer(t, func(conn *websocket.Conn, _ int) {
		_, data, err := conn.ReadMessage()
		if err == nil {
			recvCh <- data
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	c := NewWSClient(WSOptions{URL: url})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	if err := c.Send(map[string]string{"op": "subscribe"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case data := <-recvCh:
		if !strings.Contains(string(data), `"op":"subscribe"`) {
			t.Errorf("server received %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server received nothing")
	}
}

func TestWSClient_ReconnectAfterServerDrop(t *testing.T) {
	srv, url := wsTestServer(t, func(conn *websocket.Conn, connNum int) {
		if connNum == 1 {
			// Drop the first connection immediately.
			_ = conn.Close()
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	reconnected := make(chan struct{})
	c := NewWSClient(WSOptions{
		URL:               url,
		ReconnectInterval: 20 * time.Millisecond,
		Handlers: Handlers{
			OnOpen: func(isReconnect bool) {
				if isReconnect {
					close(reconnected)
				}
			},
		},
	})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer c.Close()

	select {
	case <-reconnected:
	case <-time.After(3 * time.Second):
		t.Fatal("client did not reconnect")
	}
	if got := c.State(); got != StateOpen {
		t.Errorf("state after reconnect: got %s, want open", got)
	}
}

func TestWSClient_DisabledReconnectClosesOnDrop(t *testing.T) {
	srv, url := wsTestServer(t, func(conn *websocket.Conn, connNum int) {
		if connNum == 1 {
			_ = conn.Close()
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	closed := make(chan struct{})
	c := NewWSClient(WSOptions{
		URL:              url,
		DisableReconnect: true,
		Handlers: Handlers{
			OnClose: func() { close(closed) },
		},
	})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("dropped connection must close the client")
	}
	if got := c.State(); got != StateClosed {
		t.Errorf("state: got %s, want closed", got)
	}
	if err := c.Send(struct{}{}); err == nil {
		t.Error("send after drop must fail")
	}
}

func TestWSClient_ConnectAfterCloseFails(t *testing.T) {
	srv, url := wsTestServer(t, func(conn *websocket.Conn, _ int) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	c := NewWSClient(WSOptions{URL: url})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// A straggling reconnect attempt must not reopen the socket.
	if err := c.connect(true); err == nil {
		t.Fatal("connect after close must fail")
	}
	if got := c.State(); got != StateClosed {
		t.Errorf("state: got %s, want closed", got)
	}
}

func TestWSClient_ExhaustedReconnectsSurfaceTerminalError(t *testing.T) {
	srv, url := wsTestServer(t, func(conn *websocket.Conn, _ int) {
		_ = conn.Close()
	})

	terminal := make(chan error, 8)
	closed := make(chan struct{})
	c := NewWSClient(WSOptions{
		URL:                  url,
		ReconnectInterval:    10 * time.Millisecond,
		MaxReconnectAttempts: 2,
		Handlers: Handlers{
			OnError: func(err error) {
				select {
				case terminal <- err:
				default:
				}
			},
			OnClose: func() { close(closed) },
		},
	})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	// Take the server down so reconnects fail outright.
	srv.Close()

	select {
	case <-closed:
	case <-time.After(3 * time.Second):
		t.Fatal("client did not give up")
	}
	if got := c.State(); got != StateClosed {
		t.Errorf("state: got %s, want closed", got)
	}
	select {
	case <-terminal:
	default:
		t.Error("expected at least one surfaced error")
	}
}

func TestWSClient_CloseIsIdempotent(t *testing.T) {
	srv, url := wsTestServer(t, func(conn *websocket.Conn, _ int) {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
	defer srv.Close()

	c := NewWSClient(WSOptions{URL: url})
	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := c.Send(struct{}{}); err == nil {
		t.Error("send after close must fail")
	}
}
