// Package auth turns bearer tokens into principals and decides who may mint
// links for which target types.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"

	"github.com/BBbrighton/qr-suite/internal/core"
)

var (
	ErrNoSecret     = errors.New("jwt secret not configured")
	ErrInvalidToken = errors.New("invalid bearer token")
)

// Claims carries the acting user and their roles.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.StandardClaims
}

// Authenticator signs and verifies HS256 tokens.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// NewAuthenticator returns an Authenticator for secret. An empty secret
// yields an Authenticator that rejects every token.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// Enabled reports whether tokens can be verified.
func (a *Authenticator) Enabled() bool { return a != nil && len(a.secret) > 0 }

// Issue signs a token for name with roles valid for ttl.
func (a *Authenticator) Issue(name string, roles []string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", ErrNoSecret
	}
	now := a.now()
	claims := Claims{
		Roles: roles,
		StandardClaims: jwt.StandardClaims{
			Subject:   name,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse verifies tokenString and returns the principal it names.
func (a *Authenticator) Parse(tokenString string) (core.Principal, error) {
	if !a.Enabled() {
		return core.Principal{}, ErrNoSecret
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	})
	if err != nil {
		return core.Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return core.Principal{}, ErrInvalidToken
	}
	return core.Principal{Name: claims.Subject, Roles: claims.Roles}, nil
}

// FromHeader extracts the principal from an Authorization header value. An
// empty header is the Guest principal.
func (a *Authenticator) FromHeader(header string) (core.Principal, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return core.Guest, nil
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return core.Principal{}, fmt.Errorf("%w: expected Bearer scheme", ErrInvalidToken)
	}
	return a.Parse(strings.TrimSpace(parts[1]))
}

// Policy decides whether a principal may generate links for a target type.
type Policy struct {
	doctypes map[string]bool
	roles    []string
}

// NewPolicy enables link generation for doctypes by holders of roles.
func NewPolicy(doctypes, roles []string) *Policy {
	p := &Policy{doctypes: make(map[string]bool, len(doctypes)), roles: roles}
	for _, d := range doctypes {
		p.doctypes[strings.TrimSpace(d)] = true
	}
	return p
}

// CanGenerate reports whether targetType is enabled and principal holds an
// allowed role.
func (p *Policy) CanGenerate(targetType string, principal core.Principal) bool {
	return p.doctypes[targetType] && p.Allowed(principal)
}

// Allowed reports whether principal holds one of the policy's roles.
func (p *Policy) Allowed(principal core.Principal) bool {
	return principal.HasRole(p.roles...)
}

// Roles returns the roles allowed by the policy.
func (p *Policy) Roles() []string { return append([]string(nil), p.roles...) }
