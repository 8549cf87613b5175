package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/msgr/internal/backend"
	"github.com/matheus3301/msgr/internal/bus"
	"github.com/matheus3301/msgr/internal/dispatch"
	"github.com/matheus3301/msgr/internal/messenger"
	"github.com/matheus3301/msgr/internal/model"
	"github.com/matheus3301/msgr/internal/reconcile"
)

func TestToStatusCodes(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("x: %w", backend.ErrUnauthorized), codes.Unauthenticated},
		{&backend.StatusError{Status: 422}, codes.InvalidArgument},
		{fmt.Errorf("%w: chatId is required", errBadRequest), codes.InvalidArgument},
		{&backend.StatusError{Status: 503}, codes.Unavailable},
		{fmt.Errorf("open: %w", messenger.ErrUnknownChat), codes.NotFound},
		{fmt.Errorf("retry: %w", dispatch.ErrNotFound), codes.NotFound},
		{context.Canceled, codes.Canceled},
		{errors.New("boom"), codes.Internal},
		{grpcstatus.Error(codes.Aborted, "kept"), codes.Aborted},
	}
	for _, tt := range tests {
		if got := grpcstatus.Code(toStatus(tt.err)); got != tt.want {
			t.Errorf("toStatus(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIntField(t *testing.T) {
	req, err := structpb.NewStruct(map[string]any{
		"num": 42, "str": "7", "frac": 1.5, "bad": "x", "list": []any{1, 2},
	})
	if err != nil {
		t.Fatal(err)
	}

	if n, ok, err := intField(req, "num"); n != 42 || !ok || err != nil {
		t.Errorf("num = %d, %v, %v", n, ok, err)
	}
	if n, _, err := intField(req, "str"); n != 7 || err != nil {
		t.Errorf("str = %d, %v", n, err)
	}
	for _, key := range []string{"frac", "bad", "list"} {
		if _, _, err := intField(req, key); !errors.Is(err, errBadRequest) {
			t.Errorf("%s: got %v, want errBadRequest", key, err)
		}
	}
	if _, err := requiredInt(req, "missing"); !errors.Is(err, errBadRequest) {
		t.Errorf("missing: got %v, want errBadRequest", err)
	}
	if got, err := intList(req, "list"); err != nil || len(got) != 2 || got[1] != 2 {
		t.Errorf("list = %v, %v", got, err)
	}
}

func TestEncodeDecodeChat(t *testing.T) {
	in := ChatMessages{
		Chat: model.Chat{ID: "c1", Kind: model.ChatDirect, Participant: &model.Friend{ID: 2}},
		Messages: []model.Message{
			{ID: 1, ChatID: "c1", Content: "hi", Timestamp: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)},
		},
	}
	s, err := Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	var out ChatMessages
	if err := Decode(s, &out); err != nil {
		t.Fatal(err)
	}
	if out.Chat.Participant == nil || out.Chat.Participant.ID != 2 || !out.Messages[0].Timestamp.Equal(in.Messages[0].Timestamp) {
		t.Errorf("got %+v", out)
	}
}

func serve(t *testing.T, svc *Service) *grpc.ClientConn {
	t.Helper()
	dir, err := os.MkdirTemp("/tmp", "msgr-api-*")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	socketPath := filepath.Join(dir, "d.sock")

	lis, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	srv := grpc.NewServer()
	Register(srv, svc)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("unix://"+socketPath, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWatchFiltersByPrefix(t *testing.T) {
	b := bus.New()
	conn := serve(t, NewService("test", nil, b, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stream, err := conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, FullMethod(MethodWatch))
	if err != nil {
		t.Fatal(err)
	}
	req, _ := structpb.NewStruct(map[string]any{"prefixes": []any{"state."}})
	if err := stream.SendMsg(req); err != nil {
		t.Fatal(err)
	}
	_ = stream.CloseSend()

	// Publish until the server side has subscribed and the event arrives.
	got := make(chan *structpb.Struct, 1)
	go func() {
		evt := new(structpb.Struct)
		if err := stream.RecvMsg(evt); err == nil {
			got <- evt
		}
	}()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case evt := <-got:
			var env Envelope
			if err := Decode(evt, &env); err != nil {
				t.Fatal(err)
			}
			if env.Kind != bus.StateSelection || env.Session != "test" || env.EventID == "" {
				t.Errorf("envelope = %+v", env)
			}
			payload, _ := env.Payload.(map[string]any)
			if payload["chatId"] != "c1" {
				t.Errorf("payload = %v", env.Payload)
			}
			return
		case <-tick.C:
			b.Publish(bus.NewEvent(bus.PushNewMessage, model.Message{ID: 1}))
			b.Publish(bus.NewEvent(bus.StateSelection, reconcile.SelectionChanged{ChatID: "c1"}))
		case <-ctx.Done():
			t.Fatal("no event received")
		}
	}
}
