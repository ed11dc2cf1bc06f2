package contentauth

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const bindingDelimiter = "|"

// ContentHash returns the base64 encoded SHA256 digest of content
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// CanonicalString joins a fingerprint and the hash of content into
// the string that gets signed when binding the two:
//
//	<fingerprint>|<base64(sha256(content))>
func CanonicalString(fingerprint, content string) string {
	return fingerprint + bindingDelimiter + ContentHash(content)
}

// BindContent signs the canonical string of fingerprint and content,
// tying the identity to exactly this content
func BindContent(privateKeyPEM, fingerprint, content string) (string, error) {
	sig, err := SignBytes(privateKeyPEM, []byte(CanonicalString(fingerprint, content)))
	if err != nil {
		return "", fmt.Errorf("bind: %w", err)
	}

	return sig, nil
}

// CheckBoundContent rebuilds the canonical string from the expected
// fingerprint and content and verifies the signature against it
func CheckBoundContent(publicKeyPEM, signature, fingerprint, content string) error {
	if err := CheckBytes(publicKeyPEM, signature, []byte(CanonicalString(fingerprint, content))); err != nil {
		return fmt.Errorf("bind: %w", err)
	}

	return nil
}

// VerifyBoundContent is the boolean form of CheckBoundContent
func VerifyBoundContent(publicKeyPEM, signature, fingerprint, content string) bool {
	return CheckBoundContent(publicKeyPEM, signature, fingerprint, content) == nil
}
