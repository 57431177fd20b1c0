package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/Dhoini/findxo-settlement/pkg/logger"
	"github.com/Dhoini/findxo-settlement/pkg/res"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextKey тип для ключей контекста во избежание коллизий.
type ContextKey string

const (
	// ContextUserIDKey ключ для хранения ID пользователя в контексте.
	ContextUserIDKey ContextKey = "userID"
	// ContextWalletKey адрес кошелька, которым пользователь вошел.
	ContextWalletKey ContextKey = "wallet"

	// ScopeAdmin разрешает ручную сверку подписок.
	ScopeAdmin = "admin"

	authHeaderPrefix = "Bearer "
)

type TokenValidator interface {
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims сессия, выданная после входа кошельком. Subject - ID пользователя.
type TokenClaims struct {
	Wallet string `json:"wallet"`
	Scope  string `json:"scope"`
	jwt.RegisteredClaims
}

type JWTMiddleware struct {
	log       *logger.Logger
	validator TokenValidator
}

func NewJWTMiddleware(validator TokenValidator, log *logger.Logger) *JWTMiddleware {
	return &JWTMiddleware{
		log:       log,
		validator: validator,
	}
}

// RequireAuth пропускает запрос с валидным токеном, содержащим хотя бы один из requiredScopes.
func (m *JWTMiddleware) RequireAuth(requiredScopes ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, authHeaderPrefix) {
			m.handleAuthError(c, http.StatusUnauthorized, "Missing authorization token")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, authHeaderPrefix)
		claims, err := m.validator.Validate(tokenString)
		if err != nil {
			m.handleAuthError(c, http.StatusUnauthorized, fmt.Sprintf("Token validation failed: %v", err))
			return
		}

		userID := claims.Subject
		if userID == "" {
			m.handleAuthError(c, http.StatusUnauthorized, "User ID (sub) missing in token")
			return
		}

		if !hasRequiredScope(claims.Scope, requiredScopes) {
			m.handleAuthError(c, http.StatusForbidden, "Insufficient token permissions")
			return
		}

		c.Set(string(ContextUserIDKey), userID)
		c.Set(string(ContextWalletKey), claims.Wallet)
		m.log.Debugw("User authenticated via HTTP", "userID", userID)
		c.Next()
	}
}

// UserID возвращает ID пользователя, установленный RequireAuth.
func UserID(c *gin.Context) string {
	return c.GetString(string(ContextUserIDKey))
}

// Wallet возвращает кошелек пользователя из токена.
func Wallet(c *gin.Context) string {
	return c.GetString(string(ContextWalletKey))
}

// hasRequiredScope scope в токене - список через пробел.
func hasRequiredScope(tokenScope string, requiredScopes []string) bool {
	if len(requiredScopes) == 0 {
		return true
	}
	granted := strings.Fields(tokenScope)
	for _, required := range requiredScopes {
		for _, scope := range granted {
			if scope == required {
				return true
			}
		}
	}
	return false
}

func (m *JWTMiddleware) handleAuthError(c *gin.Context, status int, message string) {
	m.log.Warnw("HTTP Authentication failed", "path", c.Request.URL.Path, "error", message)
	res.JsonResponse(c.Writer, res.ErrorResponse{
		Error:     message,
		ErrorCode: status,
	}, status)
	c.Abort()
}

// DefaultTokenValidator - реализация валидатора по умолчанию (HMAC).
type DefaultTokenValidator struct {
	Secret []byte
}

func (v *DefaultTokenValidator) Validate(tokenString string) (*TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.Secret, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, errors.New("malformed token")
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, errors.New("invalid token signature")
		case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, errors.New("token expired")
		default:
			return nil, fmt.Errorf("invalid token: %w", err)
		}
	}

	if claims, ok := token.Claims.(*TokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token claims")
}

// Sign выпускает токен с теми же claims. Используется для служебных токенов и в тестах.
func (v *DefaultTokenValidator) Sign(userID, wallet, scope string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := TokenClaims{
		Wallet: wallet,
		Scope:  scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.Secret)
}
