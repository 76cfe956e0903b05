package auth

import (
	"dm-core/domain"
	"dm-core/errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuerName = "dm-core"

// Claims is what the identity provider vouches for: a stable id and a profile.
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Image  string `json:"image,omitempty"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 bearer tokens with a shared secret.
type Issuer struct {
	secret   []byte
	duration time.Duration
	clock    func() time.Time
}

func NewIssuer(secret string, duration time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), duration: duration, clock: time.Now}
}

func (i *Issuer) Generate(user domain.User) (string, error) {
	if user.ID == "" {
		return "", fmt.Errorf("%w: empty user id", errors.ErrInvalidArgument)
	}
	issuedAt := i.clock()
	claims := &Claims{
		UserID: string(user.ID),
		Name:   user.Name,
		Image:  user.Image,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(user.ID),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(i.duration)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			Issuer:    issuerName,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Validate checks signature, algorithm and expiry, and returns the identity.
func (i *Issuer) Validate(raw string) (domain.User, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.clock))
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: %v", errors.ErrUnauthorized, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return domain.User{}, fmt.Errorf("%w: invalid token", errors.ErrUnauthorized)
	}
	return domain.User{ID: domain.UserID(claims.UserID), Name: claims.Name, Image: claims.Image}, nil
}
