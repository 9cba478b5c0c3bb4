package middleware

import (
	"crypto/subtle"
	"errors"
	"strings"

	"meeting-bot/internal/pkg/jwt"

	"github.com/gofiber/fiber/v3"
)

const (
	CtxSubjectKey = "subject"
	HeaderAPIKey  = "x-api-key"
)

type TokenValidator interface {
	Validate(token string) (jwt.Claims, error)
}

// AuthMiddleware guards the job API with the shared key. A bearer value that is not the key is tried as a service JWT.
type AuthMiddleware struct {
	apiKey     string
	jwt        TokenValidator
	queryToken bool
}

func NewAuthMiddleware(apiKey string, validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{apiKey: strings.TrimSpace(apiKey), jwt: validator}
}

// WithQueryToken also accepts the credential as ?token=, for websocket clients that cannot set headers.
func (m *AuthMiddleware) WithQueryToken() *AuthMiddleware {
	if m == nil {
		return nil
	}
	cp := *m
	cp.queryToken = true
	return &cp
}

func (m *AuthMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		if m == nil || m.apiKey == "" {
			return NewAppError(fiber.StatusUnauthorized, "Unauthorized", nil)
		}

		if key := strings.TrimSpace(c.Get(HeaderAPIKey)); key != "" {
			if !keyEqual(key, m.apiKey) {
				return NewAppError(fiber.StatusUnauthorized, "Invalid API key", nil)
			}
			c.Locals(CtxSubjectKey, "api-key")
			return c.Next()
		}

		token, ok := bearerTokenFromHeader(c.Get("Authorization"))
		if !ok && m.queryToken {
			token = strings.TrimSpace(c.Query("token"))
			ok = token != ""
		}
		if !ok {
			return NewAppError(fiber.StatusUnauthorized, "Unauthorized", nil)
		}
		if keyEqual(token, m.apiKey) {
			c.Locals(CtxSubjectKey, "api-key")
			return c.Next()
		}
		if m.jwt == nil {
			return NewAppError(fiber.StatusUnauthorized, "Invalid API key", nil)
		}

		claims, err := m.jwt.Validate(token)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return NewAppError(fiber.StatusUnauthorized, "Token expired", err)
			}
			return NewAppError(fiber.StatusUnauthorized, "Invalid token", err)
		}
		if claims.Scope != jwt.ScopeAPI {
			return NewAppError(fiber.StatusUnauthorized, "Invalid token", nil)
		}

		c.Locals(CtxSubjectKey, claims.Subject)
		return c.Next()
	}
}

// InternalKeyMiddleware accepts only the x-api-key header carrying the internal key.
type InternalKeyMiddleware struct {
	key string
}

func NewInternalKeyMiddleware(key string) *InternalKeyMiddleware {
	return &InternalKeyMiddleware{key: strings.TrimSpace(key)}
}

func (m *InternalKeyMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		if m == nil || m.key == "" {
			return NewAppError(fiber.StatusUnauthorized, "Unauthorized", nil)
		}
		if !keyEqual(strings.TrimSpace(c.Get(HeaderAPIKey)), m.key) {
			return NewAppError(fiber.StatusUnauthorized, "Unauthorized", nil)
		}
		return c.Next()
	}
}

func keyEqual(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func bearerTokenFromHeader(authHeader string) (string, bool) {
	authHeader = strings.TrimSpace(authHeader)
	if authHeader == "" {
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}
