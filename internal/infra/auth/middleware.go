package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/xela07ax/openexec-gateway/internal/domain"
)

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const claimsKey ctxKey = "caller_claims"

// NewMiddleware проверяет Bearer-токен и прокидывает клеймы в контекст
func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext достает клеймы, положенные middleware
func ClaimsFromContext(ctx context.Context) (*domain.CustomClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*domain.CustomClaims)
	return claims, ok
}
