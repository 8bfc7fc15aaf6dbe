package approval

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xela07ax/openexec-gateway/internal/crypto"
	"github.com/xela07ax/openexec-gateway/internal/domain"
)

/*
Локальный authority: выпуск подписанных артефактов для dev-режима и тестов.
В проде артефакты чеканит внешний сервис (см. client.go), здесь — та же
конструкция сообщения, что и в validator.go, с другой стороны контракта.
*/

// GenerateKeypair создает тестовую пару Ed25519 и PEM публичного ключа
func GenerateKeypair() (ed25519.PrivateKey, []byte, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("authority: keygen failed: %w", err)
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("authority: marshal public key: %w", err)
	}
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return priv, pemData, nil
}

// MintEd25519 выпускает артефакт схемы v1 (асимметричная подпись, явный TTL).
// Отрицательный ttl дает уже истекший артефакт — удобно в тестах свежести.
func MintEd25519(action string, payload map[string]interface{}, priv ed25519.PrivateKey, tenantID, issuer string, ttl time.Duration) (*domain.ApprovalArtifact, error) {
	actionHash, err := crypto.HashActionRequest(action, payload)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	artifact := &domain.ApprovalArtifact{
		ApprovalID: uuid.New().String(),
		TenantID:   tenantID,
		ActionHash: actionHash,
		IssuedAt:   now.Format(time.RFC3339Nano),
		ExpiresAt:  now.Add(ttl).Format(time.RFC3339Nano),
		IssuedBy:   issuer,
	}
	sig := ed25519.Sign(priv, Ed25519Message(artifact))
	artifact.Signature = base64.StdEncoding.EncodeToString(sig)
	return artifact, nil
}

// MintHMAC выпускает артефакт схемы v2 (общий секрет, окно по issued_at).
// age сдвигает issued_at в прошлое; ноль — свежий артефакт.
func MintHMAC(action string, payload map[string]interface{}, secret []byte, tenantID, issuer string, age time.Duration) (*domain.ApprovalArtifact, error) {
	actionHash, err := crypto.HashActionRequest(action, payload)
	if err != nil {
		return nil, err
	}
	artifact := &domain.ApprovalArtifact{
		ApprovalID: uuid.New().String(),
		TenantID:   tenantID,
		ActionHash: actionHash,
		IssuedAt:   time.Now().UTC().Add(-age).Format(time.RFC3339Nano),
		IssuedBy:   issuer,
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(HMACMessage(artifact))
	artifact.Signature = hex.EncodeToString(mac.Sum(nil))
	return artifact, nil
}
