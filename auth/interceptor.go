package auth

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const authorizationHeader = "authorization"

// UnaryInterceptor authenticates every unary call and injects the identity.
func UnaryInterceptor(log *slog.Logger, authenticator *Authenticator) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		authCtx, err := authenticate(ctx, authenticator)
		if err != nil {
			log.Debug("Rejected unauthenticated call", "method", info.FullMethod, "error", err)
			return nil, err
		}
		return handler(authCtx, req)
	}
}

// StreamInterceptor does the same for streams, the subscribe stream included.
func StreamInterceptor(log *slog.Logger, authenticator *Authenticator) grpc.StreamServerInterceptor {
	return func(srv any, stream grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		authCtx, err := authenticate(stream.Context(), authenticator)
		if err != nil {
			log.Debug("Rejected unauthenticated stream", "method", info.FullMethod, "error", err)
			return err
		}
		return handler(srv, &identityStream{ServerStream: stream, ctx: authCtx})
	}
}

func authenticate(ctx context.Context, authenticator *Authenticator) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "metadata is missing")
	}
	values := md.Get(authorizationHeader)
	if len(values) == 0 {
		return nil, status.Error(codes.Unauthenticated, "authorization token is missing")
	}
	user, err := authenticator.Authenticate(ctx, values[0])
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
	}
	return WithIdentity(ctx, user), nil
}

type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context {
	return s.ctx
}

// TokenCredentials attaches a bearer token to every outgoing call.
type TokenCredentials struct {
	Token    string
	Insecure bool
}

func (c TokenCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{authorizationHeader: "Bearer " + c.Token}, nil
}

func (c TokenCredentials) RequireTransportSecurity() bool {
	return !c.Insecure
}
