package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xela07ax/openexec-gateway/internal/domain"
)

// Service выдает RS256-токены единственному оператору шлюза.
// Таблицы пользователей нет: логин и bcrypt-хеш пароля приходят
// из конфигурации процесса.
type Service struct {
	operatorUser string
	operatorHash string
	privateKey   *rsa.PrivateKey
	tokenTTL     time.Duration
}

func NewService(operatorUser, operatorHash string, privateKey *rsa.PrivateKey, tokenTTL time.Duration) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	return &Service{
		operatorUser: operatorUser,
		operatorHash: operatorHash,
		privateKey:   privateKey,
		tokenTTL:     tokenTTL,
	}
}

// GenerateToken аутентифицирует оператора и подписывает токен
// закрытым ключом RS256. Выданный токен несет scope "admin".
func (s *Service) GenerateToken(username, password string) (*domain.TokenResponse, error) {
	if s.operatorUser == "" || username != s.operatorUser {
		return nil, errors.New("invalid credentials")
	}

	// bcrypt сравнивает за константное время
	if err := bcrypt.CompareHashAndPassword([]byte(s.operatorHash), []byte(password)); err != nil {
		return nil, errors.New("invalid credentials")
	}

	expiresAt := time.Now().Add(s.tokenTTL)
	claims := &domain.CustomClaims{
		Subject: username,
		Scopes:  map[string]bool{"admin": true},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "openexec-gateway",
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signedToken, err := token.SignedString(s.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	return &domain.TokenResponse{
		AccessToken: signedToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(expiresAt).Seconds()),
	}, nil
}
