package contentauth

import (
	"encoding/base64"
	"fmt"
)

var pkcs1v15 RSAPKCS1v15SHA256

// SignMessage signs a text message with a PEM private key and
// returns the base64 encoded signature
func SignMessage(privateKeyPEM, message string) (string, error) {
	return SignBytes(privateKeyPEM, []byte(message))
}

// SignBytes signs raw data with a PEM private key and returns
// the base64 encoded signature
func SignBytes(privateKeyPEM string, data []byte) (string, error) {
	key, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}

	sig, err := pkcs1v15.Sign(key, data)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}

	return base64.StdEncoding.EncodeToString(sig), nil
}

// CheckSignature verifies a base64 signature over a text message.
// The returned error tells why verification failed; see
// IsVerificationFailure.
func CheckSignature(publicKeyPEM, message, signature string) error {
	return CheckBytes(publicKeyPEM, signature, []byte(message))
}

// VerifySignature reports whether signature is valid for message
// under the public key. It never fails loudly: any problem with
// the key, the signature or the message yields false.
func VerifySignature(publicKeyPEM, message, signature string) bool {
	return CheckSignature(publicKeyPEM, message, signature) == nil
}

// CheckBytes verifies a base64 signature over raw data
func CheckBytes(publicKeyPEM, signature string, data []byte) error {
	key, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	sig, err := decodeSignature(signature)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	if err := pkcs1v15.Verify(key, data, sig); err != nil {
		return fmt.Errorf("verify: %w", err)
	}

	return nil
}

// VerifyBytes is the boolean form of CheckBytes
func VerifyBytes(publicKeyPEM, signature string, data []byte) bool {
	return CheckBytes(publicKeyPEM, signature, data) == nil
}

func decodeSignature(signature string) ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrMalformedSignature)
	}

	if len(sig) == 0 {
		return nil, fmt.Errorf("empty signature: %w", ErrMalformedSignature)
	}

	return sig, nil
}
