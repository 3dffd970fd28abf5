// Package session issues and resolves the portal's stateless session
// cookie. Sessions are signed HS256 tokens; resolution is advisory and
// never rejects a request, route guards decide what anonymity means.
package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/meridianhealth/patient-portal/internal/authz"
	"github.com/meridianhealth/patient-portal/internal/xerrors"
)

// DefaultCookieName is used when the deployment does not override it.
const DefaultCookieName = "portal_session"

// MaxTTL bounds session lifetime regardless of configuration.
const MaxTTL = 24 * time.Hour

var (
	ErrInvalidToken = xerrors.New("session: token invalid")
	ErrExpired      = xerrors.New("session: token expired")
)

type claims struct {
	Role      string `json:"role"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// Codec signs and verifies session tokens.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec builds a codec. TTL is clamped to MaxTTL; a non-positive TTL
// gets the maximum.
func NewCodec(secret []byte, ttl time.Duration) (*Codec, error) {
	if len(secret) < 32 {
		return nil, xerrors.New("session: signing secret must be at least 32 bytes")
	}
	if ttl <= 0 || ttl > MaxTTL {
		ttl = MaxTTL
	}
	return &Codec{secret: secret, ttl: ttl, now: time.Now}, nil
}

// TTL reports the effective session lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue mints a signed token for the identity. A fresh session ID is
// assigned when the identity carries none.
func (c *Codec) Issue(id authz.Identity) (string, error) {
	if id.UserID == "" {
		return "", xerrors.New("session: cannot issue token without user id")
	}
	if id.SessionID == "" {
		id.SessionID = uuid.NewString()
	}

	now := c.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Role:      id.Role,
		SessionID: id.SessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})

	signed, err := tok.SignedString(c.secret)
	if err != nil {
		return "", xerrors.Wrap(err, "session: sign token")
	}
	return signed, nil
}

// Verify parses and validates a token, returning the identity it names.
func (c *Codec) Verify(token string) (authz.Identity, error) {
	var cl claims
	parsed, err := jwt.ParseWithClaims(token, &cl,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return authz.Identity{}, ErrExpired
		}
		return authz.Identity{}, ErrInvalidToken
	}
	if !parsed.Valid || cl.Subject == "" {
		return authz.Identity{}, ErrInvalidToken
	}

	return authz.Identity{
		UserID:    cl.Subject,
		Role:      cl.Role,
		SessionID: cl.SessionID,
	}, nil
}
