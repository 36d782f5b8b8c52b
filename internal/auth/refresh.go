package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// refresh tokens carry 256 bits of entropy
const refreshTokenBytes = 32

// RefreshTokenSource mints opaque refresh tokens. The raw value is handed to
// the client exactly once; only its keyed hash is ever persisted, so a DB
// leak does not yield usable tokens.
type RefreshTokenSource struct {
	secret []byte
	ttl    time.Duration
}

func NewRefreshTokenSource(secret string, ttl time.Duration) *RefreshTokenSource {
	return &RefreshTokenSource{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

func (s *RefreshTokenSource) New() (raw string, hash string, expiresAt time.Time, err error) {
	buf := make([]byte, refreshTokenBytes)

	_, err = rand.Read(buf)

	if err != nil {
		return "", "", time.Time{}, err
	}

	raw = hex.EncodeToString(buf)

	return raw, s.Hash(raw), time.Now().UTC().Add(s.ttl), nil
}

// Hash is a deterministic HMAC-SHA256 (server-side pepper = signing secret).
func (s *RefreshTokenSource) Hash(raw string) string {
	h := hmac.New(sha256.New, s.secret)
	h.Write([]byte(raw))
	return hex.EncodeToString(h.Sum(nil))
}

func (s *RefreshTokenSource) TTL() time.Duration {
	return s.ttl
}
