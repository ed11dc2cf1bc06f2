package contentauth

import "crypto/rsa"

// Signer produces and checks signatures over raw bytes
type Signer interface {
	Sign(*rsa.PrivateKey, []byte) ([]byte, error)
	Verify(*rsa.PublicKey, []byte, []byte) error
}
