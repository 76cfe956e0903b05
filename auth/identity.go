package auth

import (
	"context"
	"dm-core/domain"
	"dm-core/errors"
	"dm-core/services"
	"fmt"
	"strings"
)

type contextKey struct{}

// WithIdentity stores the authenticated user on the context.
func WithIdentity(ctx context.Context, user domain.User) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

func IdentityFromContext(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(contextKey{}).(domain.User)
	return user, ok && user.ID != ""
}

// UserIDFromContext returns an empty id for anonymous contexts, which every
// service rejects as unauthorized.
func UserIDFromContext(ctx context.Context) domain.UserID {
	user, _ := IdentityFromContext(ctx)
	return user.ID
}

// Authenticator turns a bearer token into a provisioned local user.
type Authenticator struct {
	issuer *Issuer
	users  services.IUserService
}

func NewAuthenticator(issuer *Issuer, users services.IUserService) *Authenticator {
	return &Authenticator{issuer: issuer, users: users}
}

func (a *Authenticator) Authenticate(ctx context.Context, header string) (domain.User, error) {
	raw := BearerToken(header)
	if raw == "" {
		return domain.User{}, fmt.Errorf("%w: missing bearer token", errors.ErrUnauthorized)
	}
	identity, err := a.issuer.Validate(raw)
	if err != nil {
		return domain.User{}, err
	}
	return a.users.Ensure(ctx, identity)
}

// BearerToken accepts both "Bearer <token>" and a bare token.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return header
}
