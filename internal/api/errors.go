package api

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/matheus3301/msgr/internal/backend"
	"github.com/matheus3301/msgr/internal/dispatch"
	"github.com/matheus3301/msgr/internal/messenger"
)

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	if _, ok := grpcstatus.FromError(err); ok {
		return err
	}
	var code codes.Code
	switch {
	case errors.Is(err, errBadRequest), errors.Is(err, backend.ErrValidation):
		code = codes.InvalidArgument
	case errors.Is(err, backend.ErrUnauthorized):
		code = codes.Unauthenticated
	case errors.Is(err, messenger.ErrUnknownChat), errors.Is(err, dispatch.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, backend.ErrUpstreamUnavailable):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
	}
	return grpcstatus.Error(code, err.Error())
}
