package contentauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	a, b := testKeyPairs(t)

	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Fingerprint(""))

	fp := Fingerprint(a.PublicKey)
	assert.Len(t, fp, 64)
	assert.Equal(t, fp, Fingerprint(a.PublicKey))
	assert.Equal(t, fp, a.Fingerprint())
	assert.NotEqual(t, fp, Fingerprint(b.PublicKey))
}

func TestFingerprintCoversExactText(t *testing.T) {
	a, _ := testKeyPairs(t)

	assert.NotEqual(t, Fingerprint(a.PublicKey), Fingerprint(a.PublicKey+"\n"))
}
