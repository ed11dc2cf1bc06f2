package contentauth

import "errors"

var (
	// ErrMalformedKey is returned when PEM key material cannot be
	// decoded, parsed, or is not an RSA key
	ErrMalformedKey = errors.New("malformed key")

	// ErrMalformedSignature is returned when a signature is not
	// valid base64
	ErrMalformedSignature = errors.New("malformed signature")

	// ErrSignatureMismatch is returned when a signature does not
	// verify against the given public key and message
	ErrSignatureMismatch = errors.New("signature mismatch")

	// ErrNoKeys is returned when the key ring holds no valid key
	// pair to sign with
	ErrNoKeys = errors.New("no keys available")

	// ErrKeyNotFound is returned when no key pair in the ring has
	// the fingerprint of a bound signature
	ErrKeyNotFound = errors.New("key not found")
)

// IsVerificationFailure reports whether err is one of the errors a
// verification can legitimately end in. Anything else reaching a
// verification call site is a programming or infrastructure error.
func IsVerificationFailure(err error) bool {
	return errors.Is(err, ErrMalformedKey) ||
		errors.Is(err, ErrMalformedSignature) ||
		errors.Is(err, ErrSignatureMismatch) ||
		errors.Is(err, ErrKeyNotFound)
}
