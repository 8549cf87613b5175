// Package relay serves a push stream for backends that have none, by
// polling the recent-messages endpoint and emitting SSE frames.
package relay

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/matheus3301/msgr/internal/model"
)

// StreamPath is the route the relay serves.
const StreamPath = "/api/sse/messages"

// DefaultInterval is the recent-messages polling period.
const DefaultInterval = 2 * time.Second

// Source fetches the latest messages visible to one user.
type Source interface {
	RecentMessages(ctx context.Context) ([]model.Message, error)
}

// SourceFactory builds a Source authenticated with a client's token.
type SourceFactory func(token string) Source

// Server is the relay HTTP handler.
type Server struct {
	router    *mux.Router
	newSource SourceFactory
	interval  time.Duration
	logger    *zap.Logger
}

// New creates a relay. A non-positive interval uses DefaultInterval.
func New(newSource SourceFactory, interval time.Duration, logger *zap.Logger) *Server {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		router:    mux.NewRouter(),
		newSource: newSource,
		interval:  interval,
		logger:    logger,
	}
	s.router.HandleFunc(StreamPath, s.serveMessages).Methods(http.MethodGet)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("relay listening", zap.String("addr", addr), zap.Duration("interval", s.interval))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	// Streams never end on their own, so Shutdown would wait forever.
	if err := srv.Close(); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func tokenFrom(r *http.Request) string {
	if c, err := r.Cookie("auth_token"); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}

type frame struct {
	Type    string        `json:"type"`
	Message *frameMessage `json:"message,omitempty"`
}

type frameMessage struct {
	ID         int64  `json:"id"`
	ChatID     string `json:"chatId"`
	SenderID   int64  `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Timestamp  string `json:"timestamp"`
}

func (s *Server) serveMessages(w http.ResponseWriter, r *http.Request) {
	token := tokenFrom(r)
	if token == "" {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Headers", "Cache-Control")
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	if err := writeFrame(w, frame{Type: "connected"}); err != nil {
		return
	}
	flusher.Flush()

	src := s.newSource(token)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var lastSent int64
	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("relay client gone", zap.String("remote", r.RemoteAddr))
			return
		case <-ticker.C:
		}

		msgs, err := src.RecentMessages(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("poll recent messages failed", zap.Error(err))
			}
			continue
		}
		fresh := newerThan(msgs, lastSent)
		for _, m := range fresh {
			if err := writeFrame(w, newMessageFrame(m)); err != nil {
				return
			}
			lastSent = m.ID
		}
		if len(fresh) > 0 {
			flusher.Flush()
		}
	}
}

// newerThan returns the messages with an id above last, in id order.
func newerThan(msgs []model.Message, last int64) []model.Message {
	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID > last {
			out = append(out, m)
		}
	}
	slices.SortFunc(out, func(a, b model.Message) int { return cmp.Compare(a.ID, b.ID) })
	return slices.CompactFunc(out, func(a, b model.Message) bool { return a.ID == b.ID })
}

func newMessageFrame(m model.Message) frame {
	fm := &frameMessage{
		ID:         m.ID,
		ChatID:     m.ChatID,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Content:    m.Content,
	}
	if !m.Timestamp.IsZero() {
		fm.Timestamp = m.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return frame{Type: "new_message", Message: fm}
}

func writeFrame(w http.ResponseWriter, f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
