package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Caller visible taxonomy
var (
	ErrUnauthorized    = fmt.Errorf("unauthorized")
	ErrNotFound        = fmt.Errorf("not found")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrTransport       = fmt.Errorf("transport error")
	ErrConflict        = fmt.Errorf("conflict")
	ErrRateLimited     = fmt.Errorf("rate limited")
)

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrOnlyCensoredFiles = fmt.Errorf("no word list file found")
	ErrEmptyWords        = fmt.Errorf("no words have been found")
	ErrUnknownKind       = fmt.Errorf("unknown event kind")
	ErrQueueFull         = fmt.Errorf("fanout queue is full")
	ErrSessionClosed     = fmt.Errorf("session closed")
)

// MapToGRPCError converts a domain error into a gRPC status.
// Errors that are already a status are returned untouched.
func MapToGRPCError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case stderrors.Is(err, ErrUnauthorized):
		return status.Error(codes.PermissionDenied, err.Error())
	case stderrors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case stderrors.Is(err, ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case stderrors.Is(err, ErrTransport):
		return status.Error(codes.Unavailable, err.Error())
	case stderrors.Is(err, ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	case stderrors.Is(err, ErrRateLimited):
		return status.Error(codes.ResourceExhausted, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

// FromGRPCError is the client side inverse of MapToGRPCError.
func FromGRPCError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.PermissionDenied, codes.Unauthenticated:
		return fmt.Errorf("%w: %s", ErrUnauthorized, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidArgument, st.Message())
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrTransport, st.Message())
	case codes.Aborted:
		return fmt.Errorf("%w: %s", ErrConflict, st.Message())
	case codes.ResourceExhausted:
		return fmt.Errorf("%w: %s", ErrRateLimited, st.Message())
	default:
		return err
	}
}

// MapToHTTPStatus is used by the REST gateway
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case stderrors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case stderrors.Is(err, ErrTransport):
		return http.StatusServiceUnavailable
	case stderrors.Is(err, ErrConflict):
		return http.StatusConflict
	case stderrors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Is and As mirror the standard library so callers only import this package.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }
