package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/msgr/internal/api"
	"github.com/matheus3301/msgr/internal/auth"
	"github.com/matheus3301/msgr/internal/config"
	"github.com/matheus3301/msgr/internal/ctlclient"
	"github.com/matheus3301/msgr/internal/model"
	"github.com/matheus3301/msgr/internal/session"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// fakeBackend serves the REST endpoints the daemon calls at start and for
// the operations exercised below.
func fakeBackend(t *testing.T, sends *atomic.Int32) *httptest.Server {
	t.Helper()
	bob := map[string]any{"id": 2, "username": "bob", "full_name": "Bob", "status": "offline"}

	r := mux.NewRouter()
	sub := r.PathPrefix("/api").Subrouter()
	sub.HandleFunc("/chats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, []map[string]any{{
			"id": "c1", "type": "direct", "name": "Bob", "participant": bob,
			"lastMessage": "hello there", "timestamp": "2024-05-01T10:00:00Z", "unreadCount": 1,
		}})
	}).Methods("GET")
	sub.HandleFunc("/chats/{id}/messages", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, []map[string]any{{
			"id": 1, "chatId": mux.Vars(req)["id"], "senderId": 2, "senderName": "Bob",
			"content": "hello there", "timestamp": "2024-05-01T10:00:00Z",
		}})
	}).Methods("GET")
	sub.HandleFunc("/friends", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, []any{bob})
	}).Methods("GET")
	sub.HandleFunc("/friends/status", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"2": "online"})
	}).Methods("GET")
	sub.HandleFunc("/groups", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, []any{})
	}).Methods("GET")
	sub.HandleFunc("/messages", func(w http.ResponseWriter, req *http.Request) {
		sends.Add(1)
		var body map[string]string
		_ = json.NewDecoder(req.Body).Decode(&body)
		writeJSON(w, map[string]any{
			"id": 42, "chatId": body["chatId"], "senderId": 7, "senderName": "Me",
			"content": body["content"], "timestamp": "2024-05-01T10:05:00Z",
		})
	}).Methods("POST")

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

// testHome points MSGR_HOME at a short /tmp dir to stay under the Unix
// socket path limit.
func testHome(t *testing.T) string {
	t.Helper()
	home, err := os.MkdirTemp("/tmp", "msgr-test-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(home) })
	t.Setenv("MSGR_HOME", home)
	return home
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDaemonEndToEnd(t *testing.T) {
	testHome(t)
	var sends atomic.Int32
	be := fakeBackend(t, &sends)

	const name = "e2e"
	creds := &auth.Credentials{Token: "tok", User: model.User{ID: 7, FullName: "Me"}, ExpiresAt: time.Now().Add(time.Hour)}
	if err := auth.Save(session.CredentialsPath(name), creds); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.Backend.BaseURL = be.URL + "/api"
	cfg.Backend.StreamURL = be.URL + "/api/sse/messages"
	cfg.Presence.Interval.Duration = 50 * time.Millisecond

	app := fx.New(Module(Params{SessionName: name, Config: cfg}), fx.NopLogger)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		t.Fatalf("app.Start() error = %v", err)
	}
	stopped := false
	defer func() {
		if !stopped {
			_ = app.Stop(ctx)
		}
	}()

	c, err := ctlclient.New(session.SocketPath(name))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c.Close() }()

	eventually(t, "initial load and presence", func() bool {
		st, err := c.Status(ctx)
		return err == nil && st.Chats == 1 && st.OnlineFriends == 1
	})
	st, _ := c.Status(ctx)
	if st.Session != name || st.User.ID != 7 || st.Realtime {
		t.Errorf("status = %+v", st)
	}

	opened, err := c.OpenChat(ctx, "c1")
	if err != nil {
		t.Fatalf("OpenChat() error = %v", err)
	}
	if len(opened.Messages) != 1 || opened.Chat.UnreadCount != 0 {
		t.Errorf("opened = %+v", opened)
	}

	msg, err := c.SendMessage(ctx, "c1", "yo")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if msg.ID != 42 || sends.Load() != 1 {
		t.Errorf("message = %+v, sends = %d", msg, sends.Load())
	}

	snap, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.SelectedChat != "c1" || len(snap.Messages) != 2 || snap.Chats[0].LastMessage != "yo" {
		t.Errorf("snapshot = %+v", snap)
	}

	eventually(t, "cached history to be searchable", func() bool {
		hits, err := c.Search(ctx, "hello", "", 10)
		return err == nil && len(hits) == 1
	})

	_, err = c.OpenChat(ctx, "nope")
	if grpcstatus.Code(err) != codes.NotFound {
		t.Errorf("OpenChat(unknown) code = %v, want NotFound", grpcstatus.Code(err))
	}
	err = c.Call(ctx, api.MethodSendMessage, map[string]any{"chatId": "c1", "content": " "}, nil)
	if grpcstatus.Code(err) != codes.InvalidArgument {
		t.Errorf("empty send code = %v, want InvalidArgument", grpcstatus.Code(err))
	}

	if err := app.Stop(ctx); err != nil {
		t.Fatalf("app.Stop() error = %v", err)
	}
	stopped = true
	if _, err := os.Stat(session.SocketPath(name)); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("socket left behind: %v", err)
	}
}

func TestDaemonRequiresCredentials(t *testing.T) {
	home := testHome(t)

	app := fx.New(Module(Params{SessionName: "nocreds", Config: config.Default()}), fx.NopLogger)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := app.Start(ctx)
	if err == nil || !strings.Contains(err.Error(), auth.ErrNoCredentials.Error()) {
		t.Fatalf("app.Start() error = %v, want %q", err, auth.ErrNoCredentials)
	}
	if _, err := os.Stat(filepath.Join(home, "sessions", "nocreds", "LOCK")); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("lock file created without credentials: %v", err)
	}
}

// TestNewServerUsesParamsSocket verifies NewServer resolves the socket from
// Params so fx never needs a bare string.
func TestNewServerUsesParamsSocket(t *testing.T) {
	home := testHome(t)
	socketPath := filepath.Join(home, "d.sock")

	p := Params{SessionName: "fxtest", SocketPath: socketPath}
	srv, err := NewServer(p, zap.NewNop(), api.NewService("fxtest", nil, nil, nil))
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	info, err := os.Stat(socketPath)
	if err != nil {
		t.Fatalf("socket not created at %s: %v", socketPath, err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("socket mode = %o, want 600", perm)
	}

	srv.Stop(context.Background())
	if _, err := os.Stat(socketPath); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("socket not removed: %v", err)
	}
}
