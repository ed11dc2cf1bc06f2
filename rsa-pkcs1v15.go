package contentauth

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
)

const rsaKeySize = 2048

// RSAPKCS1v15SHA256 creates RSASSA-PKCS1-v1_5 signatures
// over SHA256 digests, and verifies them. The padding is
// deterministic, so a key and message always produce the
// same signature (SHA256withRSA in most other toolkits).
type RSAPKCS1v15SHA256 struct{}

// NewRSAPKCS1v15SHA256 sets up a new signer/verifier
// for RSA PKCS1v15 with SHA256
func NewRSAPKCS1v15SHA256() *RSAPKCS1v15SHA256 {
	return &RSAPKCS1v15SHA256{}
}

// Sign a payload with the specified private key
func (RSAPKCS1v15SHA256) Sign(key *rsa.PrivateKey, raw []byte) ([]byte, error) {
	if key == nil {
		return nil, fmt.Errorf("RSA-PKCS1v15: signing failed: %w", ErrMalformedKey)
	}

	digest := sha256.Sum256(raw)
	sig, err := rsa.SignPKCS1v15(nil, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("RSA-PKCS1v15: signing failed: %w", err)
	}

	return sig, nil
}

// Verify a signature over a payload with the specified public key
func (RSAPKCS1v15SHA256) Verify(key *rsa.PublicKey, raw, sig []byte) error {
	if key == nil {
		return fmt.Errorf("RSA-PKCS1v15: verification failed: %w", ErrMalformedKey)
	}

	digest := sha256.Sum256(raw)
	if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("RSA-PKCS1v15: %w", ErrSignatureMismatch)
	}

	return nil
}
