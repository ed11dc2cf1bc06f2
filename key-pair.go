package contentauth

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const keyPairLifetime = time.Hour * 24 * 30 * 3

// KeyPair is an RSA key pair in PEM form, together
// with the window in which it may be used for signing
type KeyPair struct {
	ID         string
	PrivateKey string
	PublicKey  string
	NotBefore  time.Time
	NotAfter   time.Time
}

// GenerateKeyPair creates a new 2048 bit RSA key pair with
// public exponent 65537, valid for signing from now on
func GenerateKeyPair() (KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeySize)
	if err != nil {
		return KeyPair{}, fmt.Errorf("key pair: unable to generate RSA key: %w", err)
	}

	privatePEM, err := EncodePrivateKey(key)
	if err != nil {
		return KeyPair{}, fmt.Errorf("key pair: %w", err)
	}

	publicPEM, err := EncodePublicKey(&key.PublicKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("key pair: %w", err)
	}

	now := time.Now().UTC()
	return KeyPair{
		ID:         uuid.New().String(),
		PrivateKey: privatePEM,
		PublicKey:  publicPEM,
		NotBefore:  now,
		NotAfter:   now.Add(keyPairLifetime),
	}, nil
}

// Valid validates a KeyPair, making sure it hasn't
// expired or isn't set for usage yet
func (k KeyPair) Valid() bool {
	now := time.Now().UTC()
	if now.Before(k.NotBefore) {
		return false
	}

	if now.After(k.NotAfter) {
		return false
	}

	return true
}

// Fingerprint returns the fingerprint of the public key
func (k KeyPair) Fingerprint() string {
	return Fingerprint(k.PublicKey)
}
