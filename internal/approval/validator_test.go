package approval

import (
	"strings"
	"testing"
	"time"

	"github.com/xela07ax/openexec-gateway/internal/crypto"
	"github.com/xela07ax/openexec-gateway/internal/domain"
)

const testTenant = "tenant-001"

func ed25519Validator(t *testing.T, pemData []byte, tenant, issuer string) *Validator {
	t.Helper()
	var verifier crypto.Verifier
	if pemData != nil {
		v, err := crypto.NewEd25519Verifier(pemData)
		if err != nil {
			t.Fatalf("verifier: %v", err)
		}
		verifier = v
	}
	return NewValidator(Config{
		Scheme:         SchemeEd25519,
		Verifier:       verifier,
		ExpectedTenant: tenant,
		RequiredIssuer: issuer,
	})
}

func TestValidArtifactPasses(t *testing.T) {
	priv, pemData, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}

	payload := map[string]interface{}{"msg": "constitutional"}
	artifact, err := MintEd25519("echo", payload, priv, testTenant, "", 5*time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	v := ed25519Validator(t, pemData, testTenant, "")
	if appErr := v.Validate("echo", payload, artifact); appErr != nil {
		t.Fatalf("expected valid artifact, got %v", appErr)
	}
}

func TestTamperedPayloadRejected(t *testing.T) {
	priv, pemData, _ := GenerateKeypair()

	artifact, _ := MintEd25519("echo", map[string]interface{}{"msg": "original"}, priv, testTenant, "", 5*time.Minute)

	v := ed25519Validator(t, pemData, testTenant, "")
	appErr := v.Validate("echo", map[string]interface{}{"msg": "tampered"}, artifact)
	if appErr == nil || appErr.Kind != domain.KindActionHashMismatch {
		t.Fatalf("expected ActionHashMismatch, got %v", appErr)
	}
	if !strings.Contains(appErr.Message, "hash mismatch") {
		t.Fatalf("unexpected message: %s", appErr.Message)
	}
}

func TestExpiredArtifactRejected(t *testing.T) {
	priv, pemData, _ := GenerateKeypair()

	payload := map[string]interface{}{"msg": "hello"}
	artifact, _ := MintEd25519("echo", payload, priv, testTenant, "", -time.Minute)

	v := ed25519Validator(t, pemData, testTenant, "")
	appErr := v.Validate("echo", payload, artifact)
	if appErr == nil || appErr.Kind != domain.KindExpired {
		t.Fatalf("expected Expired, got %v", appErr)
	}
}

func TestMissingExpiryRejected(t *testing.T) {
	priv, pemData, _ := GenerateKeypair()

	payload := map[string]interface{}{"msg": "hello"}
	artifact, _ := MintEd25519("echo", payload, priv, testTenant, "", 5*time.Minute)
	artifact.ExpiresAt = ""

	v := ed25519Validator(t, pemData, testTenant, "")
	appErr := v.Validate("echo", payload, artifact)
	if appErr == nil || appErr.Kind != domain.KindInvalidTimestamp {
		t.Fatalf("expected InvalidTimestamp, got %v", appErr)
	}
}

func TestGarbageTimestampRejected(t *testing.T) {
	priv, pemData, _ := GenerateKeypair()

	payload := map[string]interface{}{"msg": "hello"}
	artifact, _ := MintEd25519("echo", payload, priv, testTenant, "", 5*time.Minute)
	artifact.ExpiresAt = "not-a-timestamp"

	v := ed25519Validator(t, pemData, testTenant, "")
	appErr := v.Validate("echo", payload, artifact)
	if appErr == nil || appErr.Kind != domain.KindInvalidTimestamp {
		t.Fatalf("expected InvalidTimestamp, got %v", appErr)
	}
}

func TestMissingTrustMaterialRejected(t *testing.T) {
	priv, _, _ := GenerateKeypair()

	payload := map[string]interface{}{"msg": "hello"}
	artifact, _ := MintEd25519("echo", payload, priv, testTenant, "", 5*time.Minute)

	v := ed25519Validator(t, nil, testTenant, "")
	appErr := v.Validate("echo", payload, artifact)
	if appErr == nil || appErr.Kind != domain.KindConfigurationMissing {
		t.Fatalf("expected ConfigurationMissing, got %v", appErr)
	}
}

func TestWrongKeyRejected(t *testing.T) {
	priv, _, _ := GenerateKeypair()
	_, otherPEM, _ := GenerateKeypair()

	payload := map[string]interface{}{"msg": "hello"}
	artifact, _ := MintEd25519("echo", payload, priv, testTenant, "", 5*time.Minute)

	v := ed25519Validator(t, otherPEM, testTenant, "")
	appErr := v.Validate("echo", payload, artifact)
	if appErr == nil || appErr.Kind != domain.KindInvalidSignature {
		t.Fatalf("expected InvalidSignature, got %v", appErr)
	}
	if !strings.Contains(appErr.Message, "Invalid signature") {
		t.Fatalf("unexpected message: %s", appErr.Message)
	}
}

func TestTenantMismatchRejected(t *testing.T) {
	priv, pemData, _ := GenerateKeypair()

	payload := map[string]interface{}{"msg": "hello"}
	artifact, _ := MintEd25519("echo", payload, priv, "tenant-001", "", 5*time.Minute)

	v := ed25519Validator(t, pemData, "tenant-002", "")
	appErr := v.Validate("echo", payload, artifact)
	if appErr == nil || appErr.Kind != domain.KindTenantMismatch {
		t.Fatalf("expected TenantMismatch, got %v", appErr)
	}
	if !strings.Contains(appErr.Message, "Tenant mismatch") {
		t.Fatalf("unexpected message: %s", appErr.Message)
	}
}

func TestIssuerCheckedOnlyWhenRequired(t *testing.T) {
	priv, pemData, _ := GenerateKeypair()

	payload := map[string]interface{}{"msg": "hello"}
	artifact, _ := MintEd25519("echo", payload, priv, testTenant, "other-authority", 5*time.Minute)

	// Без требования издателя — проходит
	v := ed25519Validator(t, pemData, testTenant, "")
	if appErr := v.Validate("echo", payload, artifact); appErr != nil {
		t.Fatalf("issuer must be ignored when not required: %v", appErr)
	}

	// С требованием — отваливается
	v = ed25519Validator(t, pemData, testTenant, "trusted-authority")
	appErr := v.Validate("echo", payload, artifact)
	if appErr == nil || appErr.Kind != domain.KindUnknownIssuer {
		t.Fatalf("expected UnknownIssuer, got %v", appErr)
	}
}

func TestUnhashablePayloadReported(t *testing.T) {
	priv, pemData, _ := GenerateKeypair()

	artifact, _ := MintEd25519("echo", nil, priv, testTenant, "", 5*time.Minute)

	// Канал не сериализуется в JSON: это несчитаемый хеш, а не расхождение
	v := ed25519Validator(t, pemData, testTenant, "")
	appErr := v.Validate("echo", map[string]interface{}{"bad": make(chan int)}, artifact)
	if appErr == nil || appErr.Kind != domain.KindHashingFailure {
		t.Fatalf("expected HashingFailure, got %v", appErr)
	}
	if appErr.Kind == domain.KindActionHashMismatch {
		t.Fatalf("uncomputable hash must not be reported as a mismatch")
	}
}

func TestHashMismatchWinsOverExpiry(t *testing.T) {
	// Порядок проверок фиксирован: привязка к запросу раньше свежести
	priv, pemData, _ := GenerateKeypair()

	artifact, _ := MintEd25519("echo", map[string]interface{}{"msg": "original"}, priv, testTenant, "", -time.Minute)

	v := ed25519Validator(t, pemData, testTenant, "")
	appErr := v.Validate("echo", map[string]interface{}{"msg": "tampered"}, artifact)
	if appErr == nil || appErr.Kind != domain.KindActionHashMismatch {
		t.Fatalf("hash mismatch must be reported before expiry, got %v", appErr)
	}
}

func TestHMACSchemeRoundTrip(t *testing.T) {
	secret := []byte("shared-secret")

	verifier, err := crypto.NewHMACVerifier(secret)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	v := NewValidator(Config{
		Scheme:         SchemeHMAC,
		Verifier:       verifier,
		ExpectedTenant: testTenant,
	})

	payload := map[string]interface{}{"msg": "hello"}
	artifact, err := MintHMAC("echo", payload, secret, testTenant, "", 0)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if appErr := v.Validate("echo", payload, artifact); appErr != nil {
		t.Fatalf("expected valid artifact, got %v", appErr)
	}
}

func TestHMACMaxAgeEnforced(t *testing.T) {
	secret := []byte("shared-secret")

	verifier, _ := crypto.NewHMACVerifier(secret)
	v := NewValidator(Config{
		Scheme:         SchemeHMAC,
		Verifier:       verifier,
		MaxArtifactAge: 300 * time.Second,
	})

	payload := map[string]interface{}{"msg": "hello"}

	// Артефакт старше окна свежести
	artifact, _ := MintHMAC("echo", payload, secret, testTenant, "", 10*time.Minute)
	appErr := v.Validate("echo", payload, artifact)
	if appErr == nil || appErr.Kind != domain.KindExpired {
		t.Fatalf("expected Expired, got %v", appErr)
	}
}

func TestHMACWrongSecretRejected(t *testing.T) {
	verifier, _ := crypto.NewHMACVerifier([]byte("right-secret"))
	v := NewValidator(Config{Scheme: SchemeHMAC, Verifier: verifier})

	payload := map[string]interface{}{"msg": "hello"}
	artifact, _ := MintHMAC("echo", payload, []byte("wrong-secret"), testTenant, "", 0)

	appErr := v.Validate("echo", payload, artifact)
	if appErr == nil || appErr.Kind != domain.KindInvalidSignature {
		t.Fatalf("expected InvalidSignature, got %v", appErr)
	}
}
