// Package auth decides who may run operator actions and authenticates
// API callers with signed bearer tokens.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

var (
	ErrMissingToken         = errors.New("missing authorization token")
	ErrInvalidTokenFormat   = errors.New("invalid token format")
	ErrInvalidToken         = errors.New("invalid token")
	ErrInvalidSigningMethod = errors.New("invalid signing method")
)

// Authorization answers whether caller may run admin-only operations.
// It is consulted on every call.
type Authorization interface {
	IsAdmin(caller string) bool
}

// Admins is an Authorization backed by a fixed set of addresses.
type Admins struct {
	set map[string]struct{}
}

// NewAdmins creates an Admins set. Addresses compare case-insensitively.
func NewAdmins(addresses ...string) *Admins {
	a := &Admins{set: make(map[string]struct{})}
	for _, addr := range addresses {
		a.set[normalize(addr)] = struct{}{}
	}
	return a
}

// IsAdmin implements Authorization.
func (a *Admins) IsAdmin(caller string) bool {
	if caller == "" {
		return false
	}
	_, ok := a.set[normalize(caller)]
	return ok
}

func normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Claims identifies the caller of an API request.
type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 tokens.
type Signer struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// Issue signs a token for address.
func (s *Signer) Issue(address string, now time.Time) (string, error) {
	claims := Claims{
		Address: address,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address,
			Issuer:    s.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	if s.TTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.TTL))
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.Secret)
}

// Verify parses an Authorization header value ("Bearer <token>") and
// returns the caller address.
func (s *Signer) Verify(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return "", ErrInvalidTokenFormat
	}

	opts := []jwt.ParserOption{}
	if s.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.Issuer))
	}
	token, err := jwt.ParseWithClaims(parts[1], &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSigningMethod
		}
		return s.Secret, nil
	}, opts...)
	if err != nil {
		return "", errors.Wrap(ErrInvalidToken, err.Error())
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Address == "" {
		return "", ErrInvalidToken
	}
	return claims.Address, nil
}
