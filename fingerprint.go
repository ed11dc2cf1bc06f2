package contentauth

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the lowercase hex SHA256 digest of a public
// key's PEM text. The digest covers the exact bytes given, so the
// same key serialized differently yields a different fingerprint.
func Fingerprint(publicKeyPEM string) string {
	sum := sha256.Sum256([]byte(publicKeyPEM))
	return hex.EncodeToString(sum[:])
}
