package contentauth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

const (
	pemPrivateKey    = "PRIVATE KEY"
	pemPublicKey     = "PUBLIC KEY"
	pemRSAPrivateKey = "RSA PRIVATE KEY"
	pemRSAPublicKey  = "RSA PUBLIC KEY"
)

// ParsePrivateKey decodes an RSA private key from PEM. Both
// PKCS8 ("PRIVATE KEY") and PKCS1 ("RSA PRIVATE KEY") blocks
// are accepted.
func ParsePrivateKey(privateKeyPEM string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(privateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("PEM: no private key block found: %w", ErrMalformedKey)
	}

	switch block.Type {
	case pemPrivateKey:
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("PEM: %v: %w", err, ErrMalformedKey)
		}

		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("PEM: private key is %T, not RSA: %w", key, ErrMalformedKey)
		}

		return rsaKey, nil

	case pemRSAPrivateKey:
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("PEM: %v: %w", err, ErrMalformedKey)
		}

		return key, nil

	default:
		return nil, fmt.Errorf("PEM: unsupported block type %q: %w", block.Type, ErrMalformedKey)
	}
}

// ParsePublicKey decodes an RSA public key from PEM. Both
// SubjectPublicKeyInfo ("PUBLIC KEY") and PKCS1 ("RSA PUBLIC KEY")
// blocks are accepted.
func ParsePublicKey(publicKeyPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(publicKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("PEM: no public key block found: %w", ErrMalformedKey)
	}

	switch block.Type {
	case pemPublicKey:
		key, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("PEM: %v: %w", err, ErrMalformedKey)
		}

		rsaKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return nil, fmt.Errorf("PEM: public key is %T, not RSA: %w", key, ErrMalformedKey)
		}

		return rsaKey, nil

	case pemRSAPublicKey:
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("PEM: %v: %w", err, ErrMalformedKey)
		}

		return key, nil

	default:
		return nil, fmt.Errorf("PEM: unsupported block type %q: %w", block.Type, ErrMalformedKey)
	}
}

// EncodePrivateKey serializes a private key as PKCS8 PEM
func EncodePrivateKey(key *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", fmt.Errorf("PEM: unable to marshal private key: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: pemPrivateKey, Bytes: der})), nil
}

// EncodePublicKey serializes a public key as SubjectPublicKeyInfo PEM
func EncodePublicKey(key *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", fmt.Errorf("PEM: unable to marshal public key: %w", err)
	}

	return string(pem.EncodeToMemory(&pem.Block{Type: pemPublicKey, Bytes: der})), nil
}

// PublicKeyFromPrivate derives the public key PEM belonging
// to a private key PEM
func PublicKeyFromPrivate(privateKeyPEM string) (string, error) {
	key, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", err
	}

	return EncodePublicKey(&key.PublicKey)
}
