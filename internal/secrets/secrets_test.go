package secrets

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	m := NewManager("test-key")

	cases := []struct {
		name      string
		plaintext string
	}{
		{"empty string", ""},
		{"short string", "hi"},
		{"typical key", "sk-proj-abcdef1234567890abcdef"},
		{"long string", strings.Repeat("abcdefghij", 100)},
		{"special characters", "!@#$%^&*()_+-=[]{}|;':\",./<>?"},
		{"unicode", "Hello, 世界! café"},
		{"newlines and tabs", "line1\nline2\ttab"},
		{"null bytes", "before\x00after"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encrypted, err := m.Encrypt(tc.plaintext)
			if err != nil {
				t.Fatalf("Encrypt(%q) returned error: %v", tc.plaintext, err)
			}

			if encrypted == "" {
				t.Fatal("Encrypt returned empty string")
			}

			decrypted, err := m.Decrypt(encrypted)
			if err != nil {
				t.Fatalf("Decrypt returned error: %v", err)
			}

			if decrypted != tc.plaintext {
				t.Errorf("round-trip failed: got %q, want %q", decrypted, tc.plaintext)
			}
		})
	}
}

func TestEncryptProducesDifferentCiphertexts(t *testing.T) {
	m := NewManager("test-key")
	plaintext := "same-input-every-time"

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		encrypted, err := m.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt returned error on iteration %d: %v", i, err)
		}
		if seen[encrypted] {
			t.Fatalf("duplicate ciphertext on iteration %d: %s", i, encrypted)
		}
		seen[encrypted] = true
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	m1 := NewManager("key-one")
	m2 := NewManager("key-two")

	encrypted, err := m1.Encrypt("secret data")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}

	if _, err := m2.Decrypt(encrypted); err == nil {
		t.Fatal("expected decryption with wrong key to fail")
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	m := NewManager("test-key")

	encrypted, err := m.Encrypt("secret data")
	if err != nil {
		t.Fatalf("Encrypt returned error: %v", err)
	}

	raw, err := hex.DecodeString(encrypted)
	if err != nil {
		t.Fatalf("ciphertext is not hex: %v", err)
	}
	raw[len(raw)-1] ^= 0xff
	tampered := hex.EncodeToString(raw)

	if _, err := m.Decrypt(tampered); err == nil {
		t.Fatal("expected decryption of tampered ciphertext to fail")
	}
}

func TestDecryptRejectsMalformedInput(t *testing.T) {
	m := NewManager("test-key")

	cases := []struct {
		name  string
		input string
	}{
		{"not hex", "zzzz"},
		{"empty", ""},
		{"too short for nonce", "abcd"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := m.Decrypt(tc.input); err == nil {
				t.Fatalf("expected Decrypt(%q) to fail", tc.input)
			}
		})
	}
}

func TestGenerateKey(t *testing.T) {
	k1, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey returned error: %v", err)
	}
	if len(k1) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(k1))
	}
	k2, _ := GenerateKey()
	if k1 == k2 {
		t.Error("two generated keys are identical")
	}
}

func TestValidateFormat(t *testing.T) {
	cases := []struct {
		name    string
		kind    string
		value   string
		wantErr bool
	}{
		{"valid openai key", KindOpenAIKey, "sk-proj-abcdef1234567890", false},
		{"missing prefix", KindOpenAIKey, "proj-abcdef1234567890xyz", true},
		{"too short", KindOpenAIKey, "sk-short", true},
		{"unknown kind non-empty", "other", "anything", false},
		{"unknown kind blank", "other", "   ", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateFormat(tc.kind, tc.value)
			if (err != nil) != tc.wantErr {
				t.Errorf("ValidateFormat(%q, %q) error = %v, wantErr %v", tc.kind, tc.value, err, tc.wantErr)
			}
		})
	}
}
