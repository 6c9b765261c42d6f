package auth

import (
	"crypto/md5" //nolint:gosec // legacy digests only
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	HasherBcrypt = "bcrypt"
	HasherMD5    = "md5"
)

// PasswordHasher turns a plaintext password into the digest stored on the
// user record and checks plaintexts against stored digests.
type PasswordHasher interface {
	Hash(password string) (string, error)

	// Compare reports whether password hashes to digest. An empty digest
	// never matches.
	Compare(digest, password string) bool
}

func NewPasswordHasher(kind string, cost int) (PasswordHasher, error) {
	switch kind {
	case "", HasherBcrypt:
		return NewBcryptHasher(cost), nil
	case HasherMD5:
		return MD5Hasher{}, nil
	default:
		return nil, fmt.Errorf("auth.NewPasswordHasher: unknown hasher %q", kind)
	}
}

// BcryptHasher writes bcrypt digests. It still accepts 32-hex MD5 digests
// written by the legacy service, so existing accounts keep logging in until
// their next password change.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(password string) (string, error) {
	const op = "auth.BcryptHasher.Hash"

	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return string(bytes), nil
}

func (h *BcryptHasher) Compare(digest, password string) bool {
	if digest == "" {
		return false
	}
	if isMD5Digest(digest) {
		return MD5Hasher{}.Compare(digest, password)
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}

// MD5Hasher reproduces the legacy unsalted hex MD5 digest.
type MD5Hasher struct{}

func (MD5Hasher) Hash(password string) (string, error) {
	sum := md5.Sum([]byte(password)) //nolint:gosec // legacy digests only
	return hex.EncodeToString(sum[:]), nil
}

func (m MD5Hasher) Compare(digest, password string) bool {
	if digest == "" {
		return false
	}
	computed, _ := m.Hash(password)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.ToLower(digest))) == 1
}

func isMD5Digest(digest string) bool {
	if len(digest) != md5.Size*2 {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}

// RandomString returns n characters drawn uniformly from [a-zA-Z0-9].
func RandomString(n int) (string, error) {
	const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	limit := big.NewInt(int64(len(letters)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		b[i] = letters[idx.Int64()]
	}
	return string(b), nil
}
