package e2ee

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func generateTestKeyPair(t *testing.T) *KeyPair {
	t.Helper()
	kp, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	return kp
}

func TestRoundTrip(t *testing.T) {
	bob := generateTestKeyPair(t)

	env, err := Encrypt([]byte("Hello Bob!"), bob.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := Decrypt(env, bob.Private())
	if err != nil {
		t.Fatal(err)
	}
	if string(pt) != "Hello Bob!" {
		t.Fatalf("expected 'Hello Bob!', got %q", pt)
	}
}

func TestKeyPairEncodingRoundTrip(t *testing.T) {
	kp := generateTestKeyPair(t)

	// Reconstruct the private key from its exported form only
	priv, err := ParsePrivateKey(kp.PrivateKey)
	if err != nil {
		t.Fatal(err)
	}

	env, err := Encrypt([]byte("portable"), kp.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := Decrypt(env, priv)
	if err != nil {
		t.Fatal(err)
	}
	if string(pt) != "portable" {
		t.Fatalf("expected 'portable', got %q", pt)
	}
}

func TestDifferentCiphertexts(t *testing.T) {
	kp := generateTestKeyPair(t)

	env1, _ := Encrypt([]byte("same"), kp.PublicKey)
	env2, _ := Encrypt([]byte("same"), kp.PublicKey)

	if env1.IV == env2.IV {
		t.Fatal("IVs should differ between calls")
	}
	if env1.EncryptedMessage == env2.EncryptedMessage {
		t.Fatal("ciphertexts should differ for same plaintext")
	}
	if env1.EncryptedKey == env2.EncryptedKey {
		t.Fatal("wrapped keys should differ (one-time AES key per call)")
	}

	pt1, _ := Decrypt(env1, kp.Private())
	pt2, _ := Decrypt(env2, kp.Private())
	if string(pt1) != "same" || string(pt2) != "same" {
		t.Fatal("both should decrypt to 'same'")
	}
}

func TestWrongKeyFails(t *testing.T) {
	bob := generateTestKeyPair(t)
	alice := generateTestKeyPair(t)

	env, _ := Encrypt([]byte("secret"), bob.PublicKey)

	pt, err := Decrypt(env, alice.Private())
	if err == nil {
		t.Fatalf("expected error with wrong key, got plaintext %q", pt)
	}
	if !IsDecryptionError(err) {
		t.Fatalf("expected DecryptionError, got %T", err)
	}
}

func tamper(t *testing.T, fieldB64 string) string {
	t.Helper()
	raw, err := base64.StdEncoding.DecodeString(fieldB64)
	if err != nil {
		t.Fatal(err)
	}
	raw[len(raw)/2] ^= 0x01
	return base64.StdEncoding.EncodeToString(raw)
}

func TestTamperedFieldsFail(t *testing.T) {
	kp := generateTestKeyPair(t)
	env, _ := Encrypt([]byte("secret"), kp.PublicKey)

	cases := map[string]Envelope{
		"ciphertext": {EncryptedMessage: tamper(t, env.EncryptedMessage), EncryptedKey: env.EncryptedKey, IV: env.IV},
		"wrappedKey": {EncryptedMessage: env.EncryptedMessage, EncryptedKey: tamper(t, env.EncryptedKey), IV: env.IV},
		"iv":         {EncryptedMessage: env.EncryptedMessage, EncryptedKey: env.EncryptedKey, IV: tamper(t, env.IV)},
	}

	for name, tampered := range cases {
		pt, err := Decrypt(&tampered, kp.Private())
		if err == nil {
			t.Fatalf("%s: expected error, got plaintext %q", name, pt)
		}
		if !IsDecryptionError(err) {
			t.Fatalf("%s: expected DecryptionError, got %T", name, err)
		}
	}
}

func TestMalformedEnvelope(t *testing.T) {
	kp := generateTestKeyPair(t)

	env := &Envelope{EncryptedMessage: "not base64!!", EncryptedKey: "x", IV: "y"}
	if _, err := Decrypt(env, kp.Private()); err == nil {
		t.Fatal("expected error with malformed envelope")
	}
}

func TestMalformedPublicKey(t *testing.T) {
	_, err := Encrypt([]byte("test"), "definitely not a key")
	if err == nil {
		t.Fatal("expected error with malformed public key")
	}
	var ee *EncryptionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected EncryptionError, got %T", err)
	}

	// Valid base64 that is not DER
	_, err = Encrypt([]byte("test"), base64.StdEncoding.EncodeToString([]byte("junk")))
	if err == nil {
		t.Fatal("expected error with non-DER public key")
	}
}

func TestEmptyPlaintext(t *testing.T) {
	kp := generateTestKeyPair(t)

	env, err := Encrypt(nil, kp.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := Decrypt(env, kp.Private())
	if err != nil {
		t.Fatal(err)
	}
	if len(pt) != 0 {
		t.Fatalf("expected empty plaintext, got %q", pt)
	}
}

func TestUnicodePlaintext(t *testing.T) {
	kp := generateTestKeyPair(t)

	msg := "Hello \U0001F30D❤️ 日本語"
	env, err := Encrypt([]byte(msg), kp.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := Decrypt(env, kp.Private())
	if err != nil {
		t.Fatal(err)
	}
	if string(pt) != msg {
		t.Fatalf("expected %q, got %q", msg, pt)
	}
}

func TestLargeMessage(t *testing.T) {
	kp := generateTestKeyPair(t)

	msg := bytes.Repeat([]byte("A"), 64*1024)
	env, err := Encrypt(msg, kp.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	pt, err := Decrypt(env, kp.Private())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(pt, msg) {
		t.Fatal("large message round-trip failed")
	}
}

func TestIVLength(t *testing.T) {
	kp := generateTestKeyPair(t)

	env, _ := Encrypt([]byte("x"), kp.PublicKey)
	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		t.Fatal(err)
	}
	if len(iv) != 12 {
		t.Fatalf("expected 96-bit IV, got %d bytes", len(iv))
	}
}
