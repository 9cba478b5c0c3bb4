package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// ScopeAPI tokens may call the job API in place of the shared key.
	ScopeAPI = "api"
	// ScopeCallback tokens accompany job callbacks so receivers can verify the sender.
	ScopeCallback = "callback"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrNoSecret     = errors.New("jwt secret not configured")
)

type Claims struct {
	Scope string `json:"scope"`
	JobID string `json:"job_id,omitempty"`

	jwtlib.RegisteredClaims
}

type Service interface {
	Issue(subject, scope, jobID string, ttl time.Duration) (string, error)
	Validate(tokenString string) (Claims, error)
}

type HMACService struct {
	secret []byte
	issuer string

	now func() time.Time
}

func NewHMACService(secret, issuer string) *HMACService {
	return &HMACService{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

func (s *HMACService) Enabled() bool {
	return s != nil && len(s.secret) > 0
}

func (s *HMACService) Issue(subject, scope, jobID string, ttl time.Duration) (string, error) {
	if !s.Enabled() {
		return "", ErrNoSecret
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	now := s.now().UTC()
	c := Claims{
		Scope: scope,
		JobID: jobID,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		},
	}
	t := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, c)
	return t.SignedString(s.secret)
}

func (s *HMACService) Validate(tokenString string) (Claims, error) {
	if !s.Enabled() {
		return Claims{}, ErrNoSecret
	}
	opts := []jwtlib.ParserOption{
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithTimeFunc(s.now),
		jwtlib.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwtlib.WithIssuer(s.issuer))
	}
	p := jwtlib.NewParser(opts...)

	var c Claims
	tok, err := p.ParseWithClaims(tokenString, &c, func(token *jwtlib.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}
	if tok == nil || !tok.Valid {
		return Claims{}, ErrTokenInvalid
	}
	if c.Scope != ScopeAPI && c.Scope != ScopeCallback {
		return Claims{}, ErrTokenInvalid
	}
	return c, nil
}

var _ Service = (*HMACService)(nil)
