package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/model"
	"github.com/matheus3301/msgr/internal/status"
)

func typingOf(chat string, user int64, typing bool) model.TypingUpdate {
	return model.TypingUpdate{ChatID: chat, UserID: user, IsTyping: typing}
}

type staticToken string

func (s staticToken) Token() string { return string(s) }

// sseServer serves frames on each connection, then either holds the stream
// open or closes it.
type sseServer struct {
	frames    []string
	holdOpen  bool
	status    int
	conns     atomic.Int32
	mu        sync.Mutex
	lastAuth  string
	lastToken string
}

func (s *sseServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.conns.Add(1)
	s.mu.Lock()
	s.lastAuth = r.Header.Get("Authorization")
	if c, err := r.Cookie("auth_token"); err == nil {
		s.lastToken = c.Value
	}
	s.mu.Unlock()

	if s.status != 0 {
		w.WriteHeader(s.status)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher := w.(http.Flusher)
	for _, f := range s.frames {
		_, _ = fmt.Fprintf(w, "data: %s\n\n", f)
	}
	flusher.Flush()
	if s.holdOpen {
		<-r.Context().Done()
	}
}

func newTestClient(t *testing.T, srv *httptest.Server, userID int64) (*Client, *bus.Bus, *status.Machine) {
	t.Helper()
	b := bus.New()
	m := status.NewMachine(b)
	c := New(Config{StreamURL: srv.URL, RetryDelay: 20 * time.Millisecond, UserID: userID}, staticToken("tok"), nil, b, m, nil)
	t.Cleanup(c.Disconnect)
	return c, b, m
}

func waitEvent(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	timeout := time.After(2 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func waitState(t *testing.T, m *status.Machine, want status.State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if m.Current() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", m.Current(), want)
}

func TestStreamPublishesEvents(t *testing.T) {
	h := &sseServer{holdOpen: true, frames: []string{
		`{"type":"connected"}`,
		`{"type":"new_message","message":{"id":1,"chatId":"c1","senderId":1,"content":"own echo","timestamp":"2024-05-01T10:00:00Z"}}`,
		`{"type":"unknown_x"}`,
		`not json`,
		`{"type":"new_message","message":{"id":2,"chatId":"c1","senderId":9,"content":"hi","timestamp":"2024-05-01T10:00:01Z"}}`,
		`{"type":"typing_update","chatId":"c1","userId":9,"isTyping":true}`,
		`{"type":"message_read","chatId":"c1","messageId":2}`,
	}}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, b, m := newTestClient(t, srv, 1)
	ch, unsub := b.Subscribe("push.", 16)
	defer unsub()

	c.Connect(true)
	waitState(t, m, status.Connected)

	waitEvent(t, ch, bus.PushConnected)
	msg := waitEvent(t, ch, bus.PushNewMessage).Payload.(model.Message)
	if msg.ID != 2 {
		t.Errorf("first published message id = %d, want 2 (own echo suppressed)", msg.ID)
	}
	typing := waitEvent(t, ch, bus.PushTyping).Payload.(model.TypingUpdate)
	if typing != typingOf("c1", 9, true) {
		t.Errorf("typing = %+v", typing)
	}
	read := waitEvent(t, ch, bus.PushMessageRead).Payload.(model.ReadReceipt)
	if read.MessageID != 2 {
		t.Errorf("read = %+v", read)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lastAuth != "Bearer tok" || h.lastToken != "tok" {
		t.Errorf("auth header %q cookie %q", h.lastAuth, h.lastToken)
	}
}

func TestReconnectsAfterStreamLoss(t *testing.T) {
	h := &sseServer{frames: []string{`{"type":"connected"}`}}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, b, _ := newTestClient(t, srv, 1)
	ch, unsub := b.Subscribe("transport.", 64)
	defer unsub()

	c.Connect(true)

	var seen []status.State
	timeout := time.After(2 * time.Second)
	for h.conns.Load() < 3 {
		select {
		case evt := <-ch:
			seen = append(seen, evt.Payload.(status.StatusChange).To)
		case <-timeout:
			t.Fatalf("only %d connections, states %v", h.conns.Load(), seen)
		}
	}

	want := []status.State{status.Connecting, status.Connected, status.Disconnected, status.Connecting}
	for i, s := range want {
		if i >= len(seen) || seen[i] != s {
			t.Fatalf("states = %v, want prefix %v", seen, want)
		}
	}
}

func TestUnauthorizedIsRetried(t *testing.T) {
	h := &sseServer{status: http.StatusUnauthorized}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, _, m := newTestClient(t, srv, 1)
	c.Connect(true)

	deadline := time.Now().Add(2 * time.Second)
	for h.conns.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.conns.Load() < 2 {
		t.Fatalf("connections = %d, want retry after 401", h.conns.Load())
	}
	if m.IsConnected() {
		t.Error("connected despite 401")
	}
}

func TestDisconnectStopsRetrying(t *testing.T) {
	h := &sseServer{holdOpen: true}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, _, m := newTestClient(t, srv, 1)
	c.Connect(true)
	waitState(t, m, status.Connected)

	c.Disconnect()
	if m.Current() != status.Disabled {
		t.Errorf("state after Disconnect = %s, want disabled", m.Current())
	}
	n := h.conns.Load()
	time.Sleep(100 * time.Millisecond)
	if h.conns.Load() != n {
		t.Errorf("connections grew from %d to %d after Disconnect", n, h.conns.Load())
	}
	if m.Current() != status.Disabled {
		t.Errorf("state drifted to %s after Disconnect", m.Current())
	}
}

func TestConnectIsReentrant(t *testing.T) {
	h := &sseServer{holdOpen: true}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, _, m := newTestClient(t, srv, 1)
	c.Connect(true)
	waitState(t, m, status.Connected)
	c.Connect(true)
	c.Connect(true)
	time.Sleep(50 * time.Millisecond)

	if got := h.conns.Load(); got != 1 {
		t.Errorf("connections = %d, want 1", got)
	}

	c.Connect(false)
	if m.Current() != status.Disabled {
		t.Errorf("Connect(false) state = %s, want disabled", m.Current())
	}
}

func TestSubscriptions(t *testing.T) {
	srv := httptest.NewServer(&sseServer{})
	t.Cleanup(srv.Close)
	c, _, _ := newTestClient(t, srv, 1)

	c.SubscribeToChat("b")
	c.SubscribeToChat("a")
	c.SubscribeToChat("a")
	c.UnsubscribeFromChat("b")
	c.UnsubscribeFromChat("missing")

	got := c.Subscriptions()
	if len(got) != 1 || got[0] != "a" {
		t.Errorf("Subscriptions() = %v, want [a]", got)
	}
}

type fakeSignaler struct {
	typingErr error
	reads     []int64
}

func (f *fakeSignaler) SendTyping(ctx context.Context, chatID string, isTyping bool) error {
	return f.typingErr
}

func (f *fakeSignaler) MarkRead(ctx context.Context, chatID string, messageID int64) error {
	f.reads = append(f.reads, messageID)
	return nil
}

func TestSignalsLoopBack(t *testing.T) {
	b := bus.New()
	sig := &fakeSignaler{typingErr: errors.New("offline")}
	c := New(Config{StreamURL: "http://unused", UserID: 1}, nil, sig, b, status.NewMachine(b), nil)
	ch, unsub := b.Subscribe("push.", 4)
	defer unsub()

	if err := c.SendTyping(context.Background(), "c1", true); err == nil {
		t.Error("SendTyping() should surface the backend error")
	}
	typing := waitEvent(t, ch, bus.PushTyping).Payload.(model.TypingUpdate)
	if typing != typingOf("c1", 1, true) {
		t.Errorf("looped typing = %+v", typing)
	}

	if err := c.MarkRead(context.Background(), "c1", 40); err != nil {
		t.Fatal(err)
	}
	read := waitEvent(t, ch, bus.PushMessageRead).Payload.(model.ReadReceipt)
	if read.MessageID != 40 || len(sig.reads) != 1 {
		t.Errorf("read = %+v, backend reads %v", read, sig.reads)
	}
}
