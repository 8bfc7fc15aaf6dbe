package domain

import "github.com/golang-jwt/jwt/v5"

// CustomClaims — клеймы токена вызывающей стороны.
// Scopes перечисляют действия, которые токен разрешает исполнять
// ("admin": true открывает все действия).
type CustomClaims struct {
	Subject string          `json:"sub_id"`
	Scopes  map[string]bool `json:"scopes"`
	jwt.RegisteredClaims
}

// Allows проверяет, покрывает ли токен запрошенное действие
func (c *CustomClaims) Allows(action string) bool {
	return c.Scopes["admin"] || c.Scopes[action]
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}
