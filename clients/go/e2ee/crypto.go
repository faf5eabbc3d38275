package e2ee

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	rsaKeyBits = 2048
	aesKeySize = 32 // AES-256
	gcmIVSize  = 12 // 96-bit nonce
)

// EncryptionError represents a failure to produce an envelope.
type EncryptionError struct {
	Message string
}

func (e *EncryptionError) Error() string {
	return e.Message
}

// DecryptionError represents a failure to open an envelope. It is local
// to the message: the caller treats it as unreadable, nothing more.
type DecryptionError struct {
	Message string
}

func (e *DecryptionError) Error() string {
	return e.Message
}

// IsDecryptionError reports whether err is a DecryptionError.
func IsDecryptionError(err error) bool {
	var de *DecryptionError
	return errors.As(err, &de)
}

// Envelope is the encrypted wire payload. Each field is independently
// base64-encoded so it survives JSON transport untouched.
type Envelope struct {
	EncryptedMessage string `json:"encryptedMessage"` // AES-GCM ciphertext incl. tag
	EncryptedKey     string `json:"encryptedKey"`     // RSA-OAEP wrapped AES key
	IV               string `json:"iv"`               // GCM nonce
}

// KeyPair holds a generated RSA keypair in self-contained text encodings:
// base64 SPKI for the public half, base64 PKCS#8 for the private half.
// The private key must never leave the client that generated it.
type KeyPair struct {
	PublicKey  string
	PrivateKey string
	raw        *rsa.PrivateKey
}

// Private returns the in-memory private key for fast operations.
func (k *KeyPair) Private() *rsa.PrivateKey {
	return k.raw
}

// GenerateKeyPair produces a 2048-bit RSA keypair for OAEP key wrapping.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, err
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, err
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}

	return &KeyPair{
		PublicKey:  base64.StdEncoding.EncodeToString(pubDER),
		PrivateKey: base64.StdEncoding.EncodeToString(privDER),
		raw:        priv,
	}, nil
}

// ParsePublicKey decodes a base64 SPKI public key.
func ParsePublicKey(publicKeyB64 string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return nil, &EncryptionError{Message: fmt.Sprintf("invalid public key encoding: %v", err)}
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, &EncryptionError{Message: fmt.Sprintf("malformed public key: %v", err)}
	}
	rsaPub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, &EncryptionError{Message: fmt.Sprintf("public key is %T, expected RSA", key)}
	}
	return rsaPub, nil
}

// ParsePrivateKey decodes a base64 PKCS#8 private key.
func ParsePrivateKey(privateKeyB64 string) (*rsa.PrivateKey, error) {
	der, err := base64.StdEncoding.DecodeString(privateKeyB64)
	if err != nil {
		return nil, &DecryptionError{Message: fmt.Sprintf("invalid private key encoding: %v", err)}
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, &DecryptionError{Message: fmt.Sprintf("malformed private key: %v", err)}
	}
	rsaPriv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, &DecryptionError{Message: fmt.Sprintf("private key is %T, expected RSA", key)}
	}
	return rsaPriv, nil
}

// Encrypt seals plaintext for the holder of receiverPublicKey using hybrid
// encryption: a fresh one-time AES-256-GCM key encrypts the plaintext, and
// the raw AES key is wrapped under the receiver's RSA key with OAEP/SHA-256.
// The AES key and IV are generated per call and never reused.
func Encrypt(plaintext []byte, receiverPublicKeyB64 string) (*Envelope, error) {
	pub, err := ParsePublicKey(receiverPublicKeyB64)
	if err != nil {
		return nil, err
	}

	aesKey := make([]byte, aesKeySize)
	if _, err := rand.Read(aesKey); err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, gcmIVSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	ciphertext := aead.Seal(nil, iv, plaintext, nil)

	wrappedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, aesKey, nil)
	if err != nil {
		return nil, &EncryptionError{Message: fmt.Sprintf("key wrap failed: %v", err)}
	}

	return &Envelope{
		EncryptedMessage: base64.StdEncoding.EncodeToString(ciphertext),
		EncryptedKey:     base64.StdEncoding.EncodeToString(wrappedKey),
		IV:               base64.StdEncoding.EncodeToString(iv),
	}, nil
}

// Decrypt opens an envelope with the receiver's private key. Any failure
// (wrong key, tampered field, malformed encoding) returns a
// DecryptionError and no plaintext.
func Decrypt(env *Envelope, privateKey *rsa.PrivateKey) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(env.EncryptedMessage)
	if err != nil {
		return nil, &DecryptionError{Message: fmt.Sprintf("invalid ciphertext encoding: %v", err)}
	}
	wrappedKey, err := base64.StdEncoding.DecodeString(env.EncryptedKey)
	if err != nil {
		return nil, &DecryptionError{Message: fmt.Sprintf("invalid key encoding: %v", err)}
	}
	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return nil, &DecryptionError{Message: fmt.Sprintf("invalid iv encoding: %v", err)}
	}
	if len(iv) != gcmIVSize {
		return nil, &DecryptionError{Message: fmt.Sprintf("iv is %d bytes, expected %d", len(iv), gcmIVSize)}
	}

	aesKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privateKey, wrappedKey, nil)
	if err != nil {
		return nil, &DecryptionError{Message: "key unwrap failed: wrong private key or corrupted key field"}
	}
	if len(aesKey) != aesKeySize {
		return nil, &DecryptionError{Message: fmt.Sprintf("unwrapped key is %d bytes, expected %d", len(aesKey), aesKeySize)}
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return nil, &DecryptionError{Message: err.Error()}
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, &DecryptionError{Message: err.Error()}
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, &DecryptionError{Message: "decryption failed: wrong key or tampered ciphertext"}
	}

	return plaintext, nil
}
