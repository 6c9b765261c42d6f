package auth

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken             = errors.New("invalid token")
	ErrInvalidAuthorizationCode = errors.New("the authorization code is not valid")
)

// TokenGenerator produces opaque recovery/registration tokens.
type TokenGenerator interface {
	NewToken() (string, error)
}

// NewTokenGenerator returns the UUID generator when length is zero and a
// random alphanumeric generator of that length otherwise.
func NewTokenGenerator(length int) TokenGenerator {
	if length <= 0 {
		return UUIDTokenGenerator{}
	}
	return RandomTokenGenerator{Length: length}
}

// UUIDTokenGenerator renders a random v4 UUID as 32 hex chars, no dashes.
type UUIDTokenGenerator struct{}

func (UUIDTokenGenerator) NewToken() (string, error) {
	const op = "auth.UUIDTokenGenerator.NewToken"

	id, err := uuid.NewV4()
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return hex.EncodeToString(id.Bytes()), nil
}

type RandomTokenGenerator struct {
	Length int
}

func (g RandomTokenGenerator) NewToken() (string, error) {
	const op = "auth.RandomTokenGenerator.NewToken"

	token, err := RandomString(g.Length)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}

type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// SessionIssuer signs the session token handed out after a successful login.
type SessionIssuer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewSessionIssuer(secret string, ttl time.Duration) *SessionIssuer {
	return &SessionIssuer{
		key: []byte(secret),
		ttl: ttl,
		now: time.Now,
	}
}

func (s *SessionIssuer) TTL() time.Duration {
	return s.ttl
}

func (s *SessionIssuer) Issue(userID, email string) (string, error) {
	const op = "auth.SessionIssuer.Issue"

	now := s.now()
	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

func (s *SessionIssuer) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return s.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// AccessClaims is the payload of the Authorization header a client
// application presents on every /auth call.
type AccessClaims struct {
	Token string `json:"token"`
	jwt.RegisteredClaims
}

// VerifyAuthorizationCode checks that tokenStr is signed with secret and
// carries code in its token claim.
func VerifyAuthorizationCode(tokenStr string, secret []byte, code string) error {
	claims := &AccessClaims{}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return ErrInvalidAuthorizationCode
	}

	if claims.Token == "" || claims.Token != code {
		return ErrInvalidAuthorizationCode
	}

	return nil
}
