package api

import (
	"context"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
)

func (s *Service) status(_ context.Context, _ *structpb.Struct) (any, error) {
	snap := s.m.Engine().Snapshot()
	resp := StatusResponse{
		Session:       s.sessionName,
		Connection:    snap.Connection,
		Realtime:      s.m.Realtime(),
		User:          s.m.User(),
		UptimeMs:      time.Since(s.startedAt).Milliseconds(),
		Chats:         len(snap.Chats),
		TotalUnread:   snap.TotalUnread,
		OnlineFriends: snap.OnlineFriends,
	}
	if s.bus != nil {
		resp.DroppedEvents = s.bus.Dropped()
	}
	return resp, nil
}

func (s *Service) setRealtime(_ context.Context, req *structpb.Struct) (any, error) {
	enabled := boolField(req, "enabled")
	if err := s.m.SetRealtime(enabled); err != nil {
		return nil, err
	}
	return map[string]bool{"realtime": enabled}, nil
}

func (s *Service) refresh(ctx context.Context, _ *structpb.Struct) (any, error) {
	return nil, s.m.Refresh(ctx)
}
