package api

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/matheus3301/msgr/internal/messenger"
)

func (s *Service) snapshot(_ context.Context, _ *structpb.Struct) (any, error) {
	return s.m.Engine().Snapshot(), nil
}

func (s *Service) chatMessages(chatID string) (ChatMessages, error) {
	eng := s.m.Engine()
	chat, ok := eng.Chat(chatID)
	if !ok {
		return ChatMessages{}, fmt.Errorf("chat %s: %w", chatID, messenger.ErrUnknownChat)
	}
	return ChatMessages{Chat: chat, Messages: eng.Messages(chatID)}, nil
}

func (s *Service) messages(_ context.Context, req *structpb.Struct) (any, error) {
	chatID, err := requiredString(req, "chatId")
	if err != nil {
		return nil, err
	}
	return s.chatMessages(chatID)
}

func (s *Service) openChat(ctx context.Context, req *structpb.Struct) (any, error) {
	chatID, err := requiredString(req, "chatId")
	if err != nil {
		return nil, err
	}
	if err := s.m.Open(ctx, chatID); err != nil {
		return nil, err
	}
	return s.chatMessages(chatID)
}

func (s *Service) closeChat(_ context.Context, _ *structpb.Struct) (any, error) {
	s.m.Close()
	return nil, nil
}

func (s *Service) startChat(ctx context.Context, req *structpb.Struct) (any, error) {
	friendID, err := requiredInt(req, "friendId")
	if err != nil {
		return nil, err
	}
	chat, err := s.m.StartDirectChat(ctx, friendID)
	if err != nil {
		return nil, err
	}
	if err := s.m.Open(ctx, chat.ID); err != nil {
		s.logger.Warn("open started chat failed", zap.String("chat_id", chat.ID), zap.Error(err))
	}
	return map[string]any{"chat": chat}, nil
}

func (s *Service) createGroup(ctx context.Context, req *structpb.Struct) (any, error) {
	name, err := requiredString(req, "name")
	if err != nil {
		return nil, err
	}
	members, err := intList(req, "members")
	if err != nil {
		return nil, err
	}
	g, err := s.m.CreateGroup(ctx, name, members)
	if err != nil {
		return nil, err
	}
	return map[string]any{"group": g}, nil
}
