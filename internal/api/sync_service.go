package api

import (
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultWatchPrefixes are streamed when a Watch request names none.
var DefaultWatchPrefixes = []string{"state.", "outbound.", "transport."}

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(*Service).watch(stringList(in, "prefixes"), stream)
}

// watch streams bus events until the client goes away. Slow clients lose
// events rather than stall the engine.
func (s *Service) watch(prefixes []string, stream grpc.ServerStream) error {
	if len(prefixes) == 0 {
		prefixes = DefaultWatchPrefixes
	}
	ch, unsub := s.bus.Subscribe("", 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			if !hasAnyPrefix(evt.Kind, prefixes) {
				continue
			}
			out, err := Encode(Envelope{
				EventID:          uuid.New().String(),
				Session:          s.sessionName,
				Kind:             evt.Kind,
				OccurredAtUnixMs: evt.Timestamp.UnixMilli(),
				Payload:          evt.Payload,
			})
			if err != nil {
				return toStatus(err)
			}
			if err := stream.SendMsg(out); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func hasAnyPrefix(kind string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(kind, p) {
			return true
		}
	}
	return false
}
