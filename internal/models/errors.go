package models

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	ErrNotFound          = status.Errorf(codes.NotFound, "not found")
	ErrValidation        = status.Errorf(codes.InvalidArgument, "validation failed")
	ErrForbidden         = status.Errorf(codes.PermissionDenied, "forbidden")
	ErrGraphCorruption   = status.Errorf(codes.Internal, "graph corruption")
	ErrNoActiveSession   = status.Errorf(codes.NotFound, "No active collaboration session")
	ErrAccessDenied      = status.Errorf(codes.PermissionDenied, "Access denied")
	ErrSessionIDRequired = status.Errorf(codes.InvalidArgument, "Session ID required")
)

type grpcStatus interface {
	GRPCStatus() *status.Status
}

// Code returns the status code of the first error in err's chain that carries one.
func Code(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if errors.Is(err, context.Canceled) {
		return codes.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return codes.DeadlineExceeded
	}
	var se grpcStatus
	if errors.As(err, &se) {
		return se.GRPCStatus().Code()
	}
	return codes.Unknown
}
