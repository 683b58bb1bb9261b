package security

import (
	"strings"
	"testing"
)

// ─── Secret Generation ──────────────────────────────────────────────────────

func TestGenerateSecret(t *testing.T) {
	s, err := GenerateSecret(32)
	if err != nil {
		t.Fatalf("GenerateSecret() error: %v", err)
	}
	if len(s) != 64 { // 32 bytes = 64 hex chars
		t.Errorf("secret len = %d, want 64", len(s))
	}
}

func TestGenerateSecret_Unique(t *testing.T) {
	a, _ := GenerateSecret(16)
	b, _ := GenerateSecret(16)
	if a == b {
		t.Error("two generated secrets should differ")
	}
}

func TestGenerateSecret_DefaultLength(t *testing.T) {
	s, _ := GenerateSecret(0)
	if len(s) != 64 {
		t.Errorf("secret len = %d, want 64", len(s))
	}
}

// ─── Sign / Verify ──────────────────────────────────────────────────────────

func TestSignVerify(t *testing.T) {
	payload := []byte(`{"ref":"refs/heads/main"}`)
	sig := Sign("s3cret", payload)

	if !strings.HasPrefix(sig, SignaturePrefix) {
		t.Errorf("signature %q missing prefix", sig)
	}
	if !VerifySignature("s3cret", payload, sig) {
		t.Error("valid signature should verify")
	}
}

func TestVerifySignature_Tampered(t *testing.T) {
	sig := Sign("s3cret", []byte("original"))
	if VerifySignature("s3cret", []byte("tampered"), sig) {
		t.Error("tampered payload should fail verification")
	}
}

func TestVerifySignature_WrongSecret(t *testing.T) {
	payload := []byte("body")
	sig := Sign("s3cret", payload)
	if VerifySignature("other", payload, sig) {
		t.Error("wrong secret should fail verification")
	}
}

func TestVerifySignature_Malformed(t *testing.T) {
	payload := []byte("body")
	for _, header := range []string{"", "sha1=abcd", "sha256=zz", "sha256="} {
		if VerifySignature("s3cret", payload, header) {
			t.Errorf("header %q should fail verification", header)
		}
	}
}

func TestVerifySignature_EmptySecret(t *testing.T) {
	payload := []byte("body")
	if VerifySignature("", payload, Sign("", payload)) {
		t.Error("empty secret should never verify")
	}
}

// ─── Tokens ─────────────────────────────────────────────────────────────────

func TestVerifyToken(t *testing.T) {
	if !VerifyToken("tok", "tok") {
		t.Error("matching token should verify")
	}
	if VerifyToken("tok", "tok2") {
		t.Error("different token should fail")
	}
	if VerifyToken("", "") {
		t.Error("empty secret should never verify")
	}
}
