package codec

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/pem"
	"strings"
	"testing"

	"crypto/x509"
)

func testKeyPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal pub key: %v", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestGenerateAESKeyShapeAndCharset(t *testing.T) {
	key, err := GenerateAESKey()
	if err != nil {
		t.Fatalf("GenerateAESKey: %v", err)
	}
	if len(key) != 16 {
		t.Fatalf("expected 16-byte key, got %d", len(key))
	}
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	for _, r := range key {
		if !strings.ContainsRune(alphabet, r) {
			t.Fatalf("key %q contains char outside alphabet", key)
		}
	}
}

func TestAESEncryptRoundTripSize(t *testing.T) {
	key, _ := GenerateAESKey()
	out, err := AESEncryptECB(key, `{"a":1}`)
	if err != nil {
		t.Fatalf("AESEncryptECB: %v", err)
	}
	if out == "" {
		t.Fatal("expected non-empty ciphertext")
	}
}

func TestRSAEncryptProducesBase64(t *testing.T) {
	pub := testKeyPEM(t)
	enc := NewEncryptor(pub)
	out, err := enc.RSAEncrypt("hello")
	if err != nil {
		t.Fatalf("RSAEncrypt: %v", err)
	}
	if out == "" {
		t.Fatal("expected non-empty output")
	}
}

func TestDecodeSignPrefersJSONFields(t *testing.T) {
	raw := `{"startTime":"19:00","endTime":"20:00","reserveDate":"2026-08-01"}`
	sign := EncodeSignForTest(raw)
	got, ok := DecodeSign(sign)
	if !ok {
		t.Fatal("expected decode success")
	}
	if got.Start != "19:00" || got.End != "20:00" || got.Date != "2026-08-01" {
		t.Fatalf("unexpected decoded sign: %+v", got)
	}
}

func TestDecodeSignFallsBackToRegex(t *testing.T) {
	raw := "场地A 19:00-20:00 可预订"
	sign := EncodeSignForTest(raw)
	got, ok := DecodeSign(sign)
	if !ok {
		t.Fatal("expected decode success via regex fallback")
	}
	if got.Start != "19:00" || got.End != "20:00" {
		t.Fatalf("unexpected regex-decoded sign: %+v", got)
	}
}

func TestDecodeSignInvalidBase64(t *testing.T) {
	if _, ok := DecodeSign("not-base64!!"); ok {
		t.Fatal("expected decode failure on invalid base64")
	}
}
