// Package ctlclient is the gRPC client for a session daemon's control socket.
package ctlclient

import (
	"context"
	"errors"
	"fmt"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/msgr/internal/api"
	"github.com/matheus3301/msgr/internal/model"
	"github.com/matheus3301/msgr/internal/reconcile"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Call invokes a unary method. req is encoded to a Struct; the response is
// decoded into out when out is non-nil.
func (c *Client) Call(ctx context.Context, method string, req, out any) error {
	in, err := api.Encode(req)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, api.FullMethod(method), in, resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return api.Decode(resp, out)
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	var out api.StatusResponse
	if err := c.Call(ctx, api.MethodStatus, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Snapshot returns the full engine state.
func (c *Client) Snapshot(ctx context.Context) (*reconcile.Snapshot, error) {
	var out reconcile.Snapshot
	if err := c.Call(ctx, api.MethodSnapshot, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// OpenChat selects a chat and returns its loaded messages.
func (c *Client) OpenChat(ctx context.Context, chatID string) (*api.ChatMessages, error) {
	var out api.ChatMessages
	if err := c.Call(ctx, api.MethodOpenChat, map[string]any{"chatId": chatID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendMessage sends content to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (*model.Message, error) {
	var out struct {
		Message model.Message `json:"message"`
	}
	req := map[string]any{"chatId": chatID, "content": content}
	if err := c.Call(ctx, api.MethodSendMessage, req, &out); err != nil {
		return nil, err
	}
	return &out.Message, nil
}

// SetRealtime turns the push channel on or off.
func (c *Client) SetRealtime(ctx context.Context, enabled bool) error {
	return c.Call(ctx, api.MethodSetRealtime, map[string]any{"enabled": enabled}, nil)
}

// Search searches cached messages.
func (c *Client) Search(ctx context.Context, query, chatID string, limit int) ([]api.SearchHit, error) {
	var out struct {
		Results []api.SearchHit `json:"results"`
	}
	req := map[string]any{"query": query, "chatId": chatID, "limit": limit}
	if err := c.Call(ctx, api.MethodSearch, req, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Watch streams events whose kind starts with one of prefixes (all default
// namespaces if empty) and calls fn for each until ctx ends, the stream
// closes, or fn returns an error.
func (c *Client) Watch(ctx context.Context, prefixes []string, fn func(*structpb.Struct) error) error {
	desc := &grpc.StreamDesc{StreamName: api.MethodWatch, ServerStreams: true}
	stream, err := c.conn.NewStream(ctx, desc, api.FullMethod(api.MethodWatch))
	if err != nil {
		return err
	}
	in, err := api.Encode(map[string]any{"prefixes": prefixes})
	if err != nil {
		return err
	}
	if err := stream.SendMsg(in); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		evt := new(structpb.Struct)
		if err := stream.RecvMsg(evt); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}
