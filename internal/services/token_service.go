package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/jonboulle/clockwork"

	"marketplace/internal/models"
)

// Claims are the identity facts carried by a session token. The expiry is
// embedded as "exp" in unix seconds.
type Claims struct {
	UserID string      `json:"userId"`
	Role   models.Role `json:"role"`
	Name   string      `json:"name"`
	Email  string      `json:"email"`
	jwt.StandardClaims
}

// TokenService issues and verifies compact signed session tokens of the form
// base64url(claims JSON) + "." + hex(HMAC-SHA256(secret, first part)).
//
// There is no refresh and no revocation list: expiry is the only way a token
// stops being valid.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	clock  clockwork.Clock
}

// NewTokenService creates a TokenService. ttl is used by IssueSession.
func NewTokenService(secret string, ttl time.Duration, clock clockwork.Clock) *TokenService {
	return &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		clock:  clock,
	}
}

// Issue signs claims with an expiry ttl from now. Any expiry already set on claims is replaced.
func (s *TokenService) Issue(claims Claims, ttl time.Duration) (string, error) {
	claims.ExpiresAt = s.clock.Now().Add(ttl).Unix()

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to encode token claims: %w", err)
	}

	encoded := jwt.EncodeSegment(payload)
	return encoded + "." + s.sign(encoded), nil
}

// IssueSession issues a token for user with the configured TTL.
func (s *TokenService) IssueSession(user *models.User) (string, error) {
	return s.Issue(Claims{
		UserID: user.ID,
		Role:   user.Role,
		Name:   user.Name,
		Email:  user.Email,
	}, s.ttl)
}

// Verify checks the token signature, then its expiry, and returns its claims.
func (s *TokenService) Verify(token string) (*Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return nil, ErrMalformedToken
	}

	expected := s.sign(parts[0])
	if !hmac.Equal([]byte(parts[1]), []byte(expected)) {
		return nil, ErrInvalidSignature
	}

	raw, err := jwt.DecodeSegment(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	if !claims.VerifyExpiresAt(s.clock.Now().Unix(), true) {
		return nil, ErrTokenExpired
	}

	return &claims, nil
}

func (s *TokenService) sign(encodedClaims string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(encodedClaims))
	return hex.EncodeToString(mac.Sum(nil))
}
