package api

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"
)

const defaultSearchLimit = 50

func (s *Service) sendMessage(ctx context.Context, req *structpb.Struct) (any, error) {
	chatID, err := requiredString(req, "chatId")
	if err != nil {
		return nil, err
	}
	msg, err := s.m.SendMessage(ctx, chatID, stringField(req, "content"))
	if err != nil {
		if msg.ClientID != "" {
			return nil, fmt.Errorf("send failed, retry with clientId %s: %w", msg.ClientID, err)
		}
		return nil, err
	}
	return map[string]any{"message": msg}, nil
}

func (s *Service) retryMessage(ctx context.Context, req *structpb.Struct) (any, error) {
	clientID, err := requiredString(req, "clientId")
	if err != nil {
		return nil, err
	}
	msg, err := s.m.RetryMessage(ctx, clientID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"message": msg}, nil
}

func (s *Service) discardMessage(_ context.Context, req *structpb.Struct) (any, error) {
	clientID, err := requiredString(req, "clientId")
	if err != nil {
		return nil, err
	}
	return nil, s.m.DiscardMessage(clientID)
}

func (s *Service) setTyping(ctx context.Context, req *structpb.Struct) (any, error) {
	chatID, err := requiredString(req, "chatId")
	if err != nil {
		return nil, err
	}
	return nil, s.m.Typing(ctx, chatID, boolField(req, "isTyping"))
}

func (s *Service) search(_ context.Context, req *structpb.Struct) (any, error) {
	query, err := requiredString(req, "query")
	if err != nil {
		return nil, err
	}
	limit, _, err := intField(req, "limit")
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	results, err := s.m.Search(query, stringField(req, "chatId"), int(limit))
	if err != nil {
		return nil, err
	}
	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		hits = append(hits, SearchHit{Message: r.Message, Snippet: r.Snippet})
	}
	return map[string]any{"results": hits, "hasMore": len(results) == int(limit)}, nil
}
