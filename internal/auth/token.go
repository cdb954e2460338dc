package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrTokenRevoked = errors.New("auth: token revoked")
)

// Revoker keeps token ids on a deny list until they expire on their own.
type Revoker interface {
	Revoke(jti string, ttl time.Duration) error
	IsRevoked(jti string) (bool, error)
}

// TokenStore issues, verifies and revokes signed session tokens. It replaces
// the bare user_id cookie: the caller only ever sees an opaque string that
// maps back to a user id.
type TokenStore struct {
	secret  []byte
	ttl     time.Duration
	revoker Revoker
}

func NewTokenStore(secret string, ttl time.Duration, revoker Revoker) *TokenStore {
	return &TokenStore{secret: []byte(secret), ttl: ttl, revoker: revoker}
}

type sessionClaims struct {
	UserID uint64 `json:"uid"`
	jwt.RegisteredClaims
}

// Issue signs a fresh token for the user.
func (s *TokenStore) Issue(userID uint64) (string, error) {
	now := time.Now()
	claims := sessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify returns the user id the token maps to.
func (s *TokenStore) Verify(token string) (uint64, error) {
	claims, err := s.parse(token)
	if err != nil {
		return 0, ErrInvalidToken
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(claims.ID)
		if err != nil {
			return 0, err
		}
		if revoked {
			return 0, ErrTokenRevoked
		}
	}
	if claims.UserID == 0 {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}

// Revoke puts the token's id on the deny list for its remaining lifetime.
func (s *TokenStore) Revoke(token string) error {
	if s.revoker == nil {
		return nil
	}
	claims, err := s.parse(token)
	if err != nil {
		// already unusable
		return nil
	}
	ttl := s.ttl
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}
	if ttl <= 0 {
		return nil
	}
	return s.revoker.Revoke(claims.ID, ttl)
}

func (s *TokenStore) parse(token string) (*sessionClaims, error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}
