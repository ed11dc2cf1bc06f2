package contentauth

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	fixtureOnce sync.Once
	fixtureKeys [2]KeyPair
	fixtureErr  error
)

// testKeyPairs returns two independently generated key pairs,
// shared across the package tests since RSA generation is slow
func testKeyPairs(t *testing.T) (KeyPair, KeyPair) {
	t.Helper()

	fixtureOnce.Do(func() {
		for i := range fixtureKeys {
			fixtureKeys[i], fixtureErr = GenerateKeyPair()
			if fixtureErr != nil {
				return
			}
		}
	})

	require.NoError(t, fixtureErr)
	return fixtureKeys[0], fixtureKeys[1]
}

type memoryBackend struct {
	mu     sync.Mutex
	keys   []KeyPair
	addErr error
}

func (m *memoryBackend) GetKeys() ([]KeyPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]KeyPair{}, m.keys...), nil
}

func (m *memoryBackend) AddKey(key KeyPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.addErr != nil {
		return m.addErr
	}

	m.keys = append(m.keys, key)
	return nil
}

var errBackendDown = errors.New("backend down")
