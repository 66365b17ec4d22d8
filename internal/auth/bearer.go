package auth

import (
	"errors"
	"strings"
)

var (
	ErrMissingToken   = errors.New("missing authorization header")
	ErrMalformedToken = errors.New("invalid authorization header format")
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrNotConfigured  = errors.New("authentication not configured")
)

// Principal is the caller identity resolved from a bearer token
type Principal struct {
	UserID string
	Email  string
	Name   string
}

// BearerToken extracts the token from an Authorization header value
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrMalformedToken
	}
	return strings.TrimSpace(parts[1]), nil
}

// Resolve checks the token against the JWKS verifier first and falls back to
// the legacy HMAC secret. Either may be unset.
func Resolve(verifier TokenVerifier, legacySecret, token string) (*Principal, error) {
	if verifier != nil {
		claims, err := verifier.Validate(token)
		if err == nil {
			return &Principal{UserID: claims.UserID, Email: claims.Email, Name: claims.Name}, nil
		}
		if legacySecret == "" {
			return nil, ErrInvalidToken
		}
	}

	if legacySecret == "" {
		return nil, ErrNotConfigured
	}

	claims, err := ValidateLegacyToken(token, legacySecret)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return &Principal{UserID: claims.UserID, Email: claims.Email}, nil
}
