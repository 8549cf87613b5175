package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/msgr/internal/model"
)

// StartDirectChat returns the direct chat with a friend, creating it on the
// backend if none is loaded.
func (d *Dispatcher) StartDirectChat(ctx context.Context, friendID int64) (model.Chat, error) {
	if chat, ok := d.state.FindDirectChat(friendID); ok {
		return chat, nil
	}
	chat, err := d.backend.CreateDirectChat(ctx, friendID)
	if err != nil {
		return model.Chat{}, fmt.Errorf("create direct chat: %w", err)
	}
	d.state.AddChat(chat)
	return chat, nil
}

// CreateGroup creates a group and reloads the chat list so its chat appears.
func (d *Dispatcher) CreateGroup(ctx context.Context, name string, members []int64) (model.Group, error) {
	g, err := d.backend.CreateGroup(ctx, name, members)
	if err != nil {
		return model.Group{}, fmt.Errorf("create group: %w", err)
	}
	d.state.AddGroup(g)
	if err := d.ReloadChats(ctx); err != nil {
		d.logger.Warn("chat reload after group creation failed", zap.Error(err))
	}
	return g, nil
}

// SendFriendRequest asks a user to become a friend.
func (d *Dispatcher) SendFriendRequest(ctx context.Context, userID int64) error {
	if err := d.backend.SendFriendRequest(ctx, userID); err != nil {
		return fmt.Errorf("send friend request: %w", err)
	}
	return nil
}

// ListFriendRequests returns pending incoming requests.
func (d *Dispatcher) ListFriendRequests(ctx context.Context) ([]model.FriendRequest, error) {
	return d.backend.ListFriendRequests(ctx)
}

// AcceptFriendRequest accepts a request, then reloads friends and chats.
func (d *Dispatcher) AcceptFriendRequest(ctx context.Context, requestID int64) error {
	if err := d.backend.AcceptFriendRequest(ctx, requestID); err != nil {
		return fmt.Errorf("accept friend request: %w", err)
	}
	d.reloadAfterRequest(ctx)
	return nil
}

// RejectFriendRequest rejects a request, then reloads friends and chats.
func (d *Dispatcher) RejectFriendRequest(ctx context.Context, requestID int64) error {
	if err := d.backend.RejectFriendRequest(ctx, requestID); err != nil {
		return fmt.Errorf("reject friend request: %w", err)
	}
	d.reloadAfterRequest(ctx)
	return nil
}

func (d *Dispatcher) reloadAfterRequest(ctx context.Context) {
	if err := d.Reload(ctx, false); err != nil {
		d.logger.Warn("reload after friend request failed", zap.Error(err))
	}
}

// Unfriend removes a friend on the backend, then drops them and their
// direct chats locally.
func (d *Dispatcher) Unfriend(ctx context.Context, friendID int64) error {
	if err := d.backend.Unfriend(ctx, friendID); err != nil {
		return fmt.Errorf("unfriend: %w", err)
	}
	d.state.RemoveFriend(friendID)
	return nil
}

// ReloadChats replaces the engine's chat list from the backend.
func (d *Dispatcher) ReloadChats(ctx context.Context) error {
	chats, err := d.backend.ListChats(ctx)
	if err != nil {
		return fmt.Errorf("list chats: %w", err)
	}
	d.state.ReplaceChats(chats)
	return nil
}

// ReloadFriends replaces the engine's friend list from the backend.
func (d *Dispatcher) ReloadFriends(ctx context.Context) error {
	friends, err := d.backend.ListFriends(ctx)
	if err != nil {
		return fmt.Errorf("list friends: %w", err)
	}
	d.state.ReplaceFriends(friends)
	return nil
}

// ReloadGroups replaces the engine's group list from the backend.
func (d *Dispatcher) ReloadGroups(ctx context.Context) error {
	groups, err := d.backend.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}
	d.state.ReplaceGroups(groups)
	return nil
}

// Reload fetches friends and chats, plus groups when withGroups is set, in
// parallel. Each list that loads is applied even if another fails.
func (d *Dispatcher) Reload(ctx context.Context, withGroups bool) error {
	loads := []func(context.Context) error{d.ReloadFriends, d.ReloadChats}
	if withGroups {
		loads = append(loads, d.ReloadGroups)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(loads))
	for i, load := range loads {
		i, load := i, load
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = load(ctx)
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
