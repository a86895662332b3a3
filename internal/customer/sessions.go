package customer

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/noah-isme/backend-grocer/internal/common"
)

const sessionIssuer = "grocer"

// Sessions issues and verifies the signed customer session token.
type Sessions struct {
	secret    []byte
	ttl       time.Duration
	clockSkew time.Duration
	now       func() time.Time
}

// SessionsConfig configures Sessions.
type SessionsConfig struct {
	Secret    string
	TTL       time.Duration
	ClockSkew time.Duration
	Now       func() time.Time
}

// NewSessions constructs a Sessions instance.
func NewSessions(cfg SessionsConfig) (*Sessions, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("customer: session secret is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = 30 * time.Second
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Sessions{secret: []byte(cfg.Secret), ttl: ttl, clockSkew: skew, now: now}, nil
}

// TTL returns the session lifetime.
func (s *Sessions) TTL() time.Duration { return s.ttl }

// Issue signs a session token for the customer.
func (s *Sessions) Issue(c Customer) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.ttl)
	token, err := jwt.NewBuilder().
		Subject(c.ID).
		Issuer(sessionIssuer).
		IssuedAt(now).
		NotBefore(now.Add(-s.clockSkew)).
		Expiration(expiresAt).
		Claim("adm", c.IsAdmin).
		Build()
	if err != nil {
		return "", time.Time{}, err
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, s.secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return string(signed), expiresAt, nil
}

// Parse verifies token and returns the customer id it was issued for.
func (s *Sessions) Parse(token string) (string, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "", unauthorized(errors.New("customer: empty session token"))
	}
	if err := requireHS256(trimmed); err != nil {
		return "", unauthorized(err)
	}
	parsed, err := jwt.ParseString(trimmed, jwt.WithKey(jwa.HS256, s.secret), jwt.WithValidate(false))
	if err != nil {
		return "", unauthorized(err)
	}
	if err := jwt.Validate(parsed,
		jwt.WithIssuer(sessionIssuer),
		jwt.WithAcceptableSkew(s.clockSkew),
		jwt.WithClock(jwt.ClockFunc(s.now)),
	); err != nil {
		return "", unauthorized(err)
	}
	if strings.TrimSpace(parsed.Subject()) == "" {
		return "", unauthorized(errors.New("customer: session without subject"))
	}
	return parsed.Subject(), nil
}

func requireHS256(token string) error {
	message, err := jws.ParseString(token)
	if err != nil {
		return err
	}
	signatures := message.Signatures()
	if len(signatures) != 1 {
		return fmt.Errorf("customer: expected one signature, got %d", len(signatures))
	}
	headers := signatures[0].ProtectedHeaders()
	if headers == nil || headers.Algorithm() != jwa.HS256 {
		return errors.New("customer: unexpected session algorithm")
	}
	return nil
}

func unauthorized(err error) *common.AppError {
	return common.NewAppError("UNAUTHORIZED", "Not authenticated", http.StatusUnauthorized, err)
}
