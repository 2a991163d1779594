package security

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/promptcraft/promptcraft/internal/config"
)

// ErrMissingJWTSecret indicates the token secret is not configured.
var ErrMissingJWTSecret = errors.New("security: missing jwt secret")

// UserClaims are the identity provider claims used by the API.
type UserClaims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// ParseUserToken verifies an HS256 identity token and returns its claims.
// The subject is normalized to the canonical UUID string form.
func ParseUserToken(cfg config.JWTConfig, tokenString string) (*UserClaims, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, ErrMissingJWTSecret
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer := strings.TrimSpace(cfg.Issuer); issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience := strings.TrimSpace(cfg.Audience); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	claims := &UserClaims{}
	token, errParse := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
	if errParse != nil {
		return nil, fmt.Errorf("security: parse token: %w", errParse)
	}
	if !token.Valid {
		return nil, errors.New("security: invalid token")
	}

	subject, errSubject := NormalizeUserID(claims.Subject)
	if errSubject != nil {
		return nil, errSubject
	}
	claims.Subject = subject
	return claims, nil
}

// SignUserToken issues an HS256 token for subject. Used by tooling and tests.
func SignUserToken(cfg config.JWTConfig, claims UserClaims) (string, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return "", ErrMissingJWTSecret
	}
	if claims.Issuer == "" {
		claims.Issuer = cfg.Issuer
	}
	if len(claims.Audience) == 0 && cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// NormalizeUserID parses id as a UUID and returns its canonical form.
func NormalizeUserID(id string) (string, error) {
	parsed, errParse := uuid.Parse(strings.TrimSpace(id))
	if errParse != nil {
		return "", fmt.Errorf("security: invalid user id %q: %w", id, errParse)
	}
	return parsed.String(), nil
}
