package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type wsServer struct {
	*httptest.Server
	mu       sync.Mutex
	subs     []string
	connects int
}

// newWSServer accepts connections, records subscription messages, then
// plays back the given frames and closes the connection.
func newWSServer(t *testing.T, subsPerConn int, frames []string) *wsServer {
	t.Helper()
	srv := &wsServer{}
	upgrader := websocket.Upgrader{}
	srv.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		srv.mu.Lock()
		srv.connects++
		srv.mu.Unlock()

		for i := 0; i < subsPerConn; i++ {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			srv.mu.Lock()
			srv.subs = append(srv.subs, string(raw))
			srv.mu.Unlock()
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
	}))
	return srv
}

func wsURL(s *httptest.Server) string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func TestSubscribeStreamReconnect(t *testing.T) {
	srv := newWSServer(t, 2, []string{`{"n":1}`, `{"n":2}`})
	defer srv.Close()

	sess, err := New("test", Config{
		URL:               wsURL(srv.Server),
		ReconnectInterval: 20 * time.Millisecond,
		Retry:             true,
	})
	if err != nil {
		t.Fatal(err)
	}
	sess.Register(map[string]any{"op": "subscribe", "channel": "ticker"})
	sess.Register(map[string]any{"op": "subscribe", "channel": "depth"})

	var mu sync.Mutex
	var got []string
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Run(ctx, func(_ context.Context, raw []byte) error {
			mu.Lock()
			got = append(got, string(raw))
			mu.Unlock()
			return nil
		})
	}()

	deadline := time.After(5 * time.Second)
	for {
		srv.mu.Lock()
		connects, subs := srv.connects, len(srv.subs)
		srv.mu.Unlock()
		mu.Lock()
		frames := len(got)
		mu.Unlock()
		// after the server closes the stream the session must reconnect
		// and replay both registered channels
		if connects >= 2 && subs >= 4 && frames >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("connects=%d subs=%d frames=%d", connects, subs, frames)
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not stop on cancel")
	}
	if sess.State() != StateClosed {
		t.Errorf("state = %v, want closed", sess.State())
	}
}

func TestDispatchErrorDoesNotKillStream(t *testing.T) {
	srv := newWSServer(t, 0, []string{`bad`, `{"n":1}`})
	defer srv.Close()

	sess, err := New("test", Config{URL: wsURL(srv.Server), ReconnectInterval: time.Hour, Retry: true})
	if err != nil {
		t.Fatal(err)
	}

	seen := make(chan string, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = sess.Run(ctx, func(_ context.Context, raw []byte) error {
			seen <- string(raw)
			if string(raw) == "bad" {
				return errors.New("malformed message")
			}
			return nil
		})
	}()

	for _, want := range []string{"bad", `{"n":1}`} {
		select {
		case got := <-seen:
			if got != want {
				t.Fatalf("got %q, want %q", got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("did not receive %q", want)
		}
	}
}

func TestRetryDisabledFatalOnDialFailure(t *testing.T) {
	sess, err := New("test", Config{
		URL:         "ws://127.0.0.1:1", // nothing listens here
		DialTimeout: 100 * time.Millisecond,
		Retry:       false,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := sess.Run(context.Background(), func(context.Context, []byte) error { return nil }); err == nil {
		t.Fatal("expected fatal error with retry disabled")
	}
}

func TestMissingURLIsConfigurationError(t *testing.T) {
	if _, err := New("test", Config{}); err == nil {
		t.Fatal("expected error for empty url")
	}
}
