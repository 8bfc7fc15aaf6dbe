package crypto

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
)

// Verifier — подключаемая способность проверки подписи.
// Контракт: малформленная подпись — это просто false, а не ошибка.
// Ошибки конфигурации (битый ключ, пустой секрет) поднимает вызывающий
// код на этапе конструирования, не здесь.
type Verifier interface {
	Verify(message []byte, signature string) bool
}

// Ed25519Verifier проверяет асимметричную подпись артефакта (base64)
// публичным ключом authority.
type Ed25519Verifier struct {
	publicKey ed25519.PublicKey
}

// NewEd25519Verifier парсит PEM (SubjectPublicKeyInfo) в проверяющий объект
func NewEd25519Verifier(pemData []byte) (*Ed25519Verifier, error) {
	if len(pemData) == 0 {
		return nil, fmt.Errorf("ed25519: public key data is empty")
	}
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("ed25519: failed to decode PEM block")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("ed25519: failed to parse public key: %w", err)
	}
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("ed25519: key is not an Ed25519 public key")
	}
	return &Ed25519Verifier{publicKey: pub}, nil
}

func (v *Ed25519Verifier) Verify(message []byte, signature string) bool {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(v.publicKey, message, sig)
}

// HMACVerifier проверяет симметричную подпись (hex от HMAC-SHA256)
// общим секретом. hmac.Equal дает сравнение за константное время.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret []byte) (*HMACVerifier, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("hmac: shared secret is empty")
	}
	return &HMACVerifier{secret: secret}, nil
}

func (v *HMACVerifier) Verify(message []byte, signature string) bool {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(message)
	return hmac.Equal(mac.Sum(nil), sig)
}
