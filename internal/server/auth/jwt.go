package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidSessionToken covers malformed tokens, bad signatures, foreign
	// algorithms and tokens of the wrong kind.
	ErrInvalidSessionToken = errors.New("invalid session token")

	// ErrSessionTokenExpired is returned together with the decoded claims
	// when the signature is valid but the expiry has passed.
	ErrSessionTokenExpired = errors.New("session token expired")
)

// TokenKind separates access tokens from refresh tokens. A token of one kind
// never verifies as the other.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// SessionClaims is the identity carried inside a session token.
type SessionClaims struct {
	UserID    int64
	Email     string
	Admin     bool
	ExpiresAt time.Time
}

// Claims is the JWT payload: the registered claims plus the session fields.
//
// exp only has whole-second precision, so it is rounded up and the exact
// expiry travels in ExpiresAtNano. Verify enforces the exact instant.
type Claims struct {
	jwt.RegisteredClaims
	UserID        int64     `json:"id"`
	Email         string    `json:"email"`
	Admin         bool      `json:"isAdmin"`
	Kind          TokenKind `json:"kind"`
	ExpiresAtNano int64     `json:"expNano,omitempty"`
}

// expiry is the exact expiry instant, falling back to exp for tokens that
// do not carry expNano.
func (c *Claims) expiry() time.Time {
	if c.ExpiresAtNano != 0 {
		return time.Unix(0, c.ExpiresAtNano)
	}
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return time.Time{}
}

// TokenCodec issues and verifies signed session tokens.
type TokenCodec interface {
	Issue(claims SessionClaims, kind TokenKind, ttl time.Duration) (string, error)
	Verify(token string, kind TokenKind) (*SessionClaims, error)
}

// Codec is an HS256 TokenCodec.
type Codec struct {
	secret []byte
	now    func() time.Time
}

// CodecOption customises a Codec.
type CodecOption func(*Codec)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) { c.now = now }
}

// NewCodec builds a Codec signing with secret.
func NewCodec(secret []byte, opts ...CodecOption) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret must not be empty")
	}
	c := &Codec{secret: secret, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Issue signs claims with exp = now + ttl. Every token gets a random jti, so
// two tokens minted for the same user in the same second still differ.
func (c *Codec) Issue(claims SessionClaims, kind TokenKind, ttl time.Duration) (string, error) {
	now := c.now()
	expiresAt := now.Add(ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(ceilSecond(expiresAt)),
		},
		UserID:        claims.UserID,
		Email:         claims.Email,
		Admin:         claims.Admin,
		Kind:          kind,
		ExpiresAtNano: expiresAt.UnixNano(),
	})

	return token.SignedString(c.secret)
}

// Verify checks the signature first, then the kind, then the expiry. On
// expiry the decoded claims are returned alongside ErrSessionTokenExpired.
func (c *Codec) Verify(tokenString string, kind TokenKind) (*SessionClaims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	expired := false
	if err != nil {
		if !errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrInvalidSessionToken
		}
		expired = true
	}

	if claims.Kind != kind {
		return nil, ErrInvalidSessionToken
	}

	out := &SessionClaims{
		UserID:    claims.UserID,
		Email:     claims.Email,
		Admin:     claims.Admin,
		ExpiresAt: claims.expiry(),
	}
	if !c.now().Before(out.ExpiresAt) {
		expired = true
	}

	if expired {
		return out, ErrSessionTokenExpired
	}
	return out, nil
}

func ceilSecond(t time.Time) time.Time {
	r := t.Truncate(time.Second)
	if r.Before(t) {
		r = r.Add(time.Second)
	}
	return r
}
