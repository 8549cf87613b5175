package api

import (
	"context"

	"google.golang.org/protobuf/types/known/structpb"
)

func (s *Service) sendFriendRequest(ctx context.Context, req *structpb.Struct) (any, error) {
	userID, err := requiredInt(req, "userId")
	if err != nil {
		return nil, err
	}
	return nil, s.m.SendFriendRequest(ctx, userID)
}

func (s *Service) listFriendRequests(ctx context.Context, _ *structpb.Struct) (any, error) {
	reqs, err := s.m.ListFriendRequests(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"requests": reqs}, nil
}

func (s *Service) acceptFriendRequest(ctx context.Context, req *structpb.Struct) (any, error) {
	id, err := requiredInt(req, "requestId")
	if err != nil {
		return nil, err
	}
	return nil, s.m.AcceptFriendRequest(ctx, id)
}

func (s *Service) rejectFriendRequest(ctx context.Context, req *structpb.Struct) (any, error) {
	id, err := requiredInt(req, "requestId")
	if err != nil {
		return nil, err
	}
	return nil, s.m.RejectFriendRequest(ctx, id)
}

func (s *Service) unfriend(ctx context.Context, req *structpb.Struct) (any, error) {
	id, err := requiredInt(req, "friendId")
	if err != nil {
		return nil, err
	}
	return nil, s.m.Unfriend(ctx, id)
}
