// Package token issues signed tokens for credentials. Attaching a token is
// optional and carries no trust-chain semantics; verification never depends
// on it.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "github.com/Hodazia/kubecredentials/pkg/domain-errors"
)

// Claims are embedded in tokens attached to issued credentials.
type Claims struct {
	CredentialID string `json:"credential_id"`
	ContentHash  string `json:"content_hash"`
	jwt.RegisteredClaims
}

// Service signs and validates credential tokens with an HMAC key.
type Service struct {
	signingKey []byte
	issuer     string
	ttl        time.Duration
}

// NewService creates a token service. A zero ttl means tokens never expire.
func NewService(signingKey, issuer string, ttl time.Duration) *Service {
	return &Service{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		ttl:        ttl,
	}
}

// Generate signs a token binding the credential id to its content hash.
func (s *Service) Generate(credentialID, contentHash string) (string, error) {
	claims := Claims{
		CredentialID: credentialID,
		ContentHash:  contentHash,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(time.Now()),
			Issuer:   s.issuer,
			ID:       uuid.NewString(),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(s.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign credential token")
	}
	return signed, nil
}

// Validate parses and verifies a token, returning its claims.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeBadRequest, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeBadRequest, "invalid token claims")
	}
	return claims, nil
}
