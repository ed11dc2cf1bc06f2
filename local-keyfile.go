package contentauth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

const localKeyFileMode = 0o600

type localKeyFile struct {
	mu sync.Mutex
	fp string

	// records holds every entry read from the file, including
	// those that do not decode to a KeyPair, so rewrites keep them
	records []*localKeyFileFormat
}

type localKeyFileFormat struct {
	ID         string `json:"id"`
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
	NotBefore  string `json:"not_before"`
	NotAfter   string `json:"not_after"`
}

func newLocalFile(fp string) *localKeyFile {
	return &localKeyFile{fp: fp}
}

// WithFile sets up a local file as the Backend for an
// Authenticator. The file holds private keys and is
// written readable by the owner only.
func WithFile(fp string) Option {
	return func(a *Authenticator) error {
		if fp == "" {
			return errors.New("local file: missing path")
		}

		a.backend = newLocalFile(fp)
		return nil
	}
}

// GetKeys returns any KeyPairs stored in the local
// file backend, creating an empty file when missing
func (l *localKeyFile) GetKeys() ([]KeyPair, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, err := os.ReadFile(l.fp)
	if errors.Is(err, fs.ErrNotExist) {
		if err := writeFileAtomic(l.fp, []byte("[]")); err != nil {
			return nil, fmt.Errorf("local file error: %w", err)
		}
		b = []byte("[]")
	} else if err != nil {
		return nil, fmt.Errorf("local file error: %w", err)
	}

	var localKeys []*localKeyFileFormat
	if err := json.Unmarshal(b, &localKeys); err != nil {
		return nil, fmt.Errorf("local file error: invalid JSON: %w", err)
	}

	l.records = compactRecords(localKeys)
	return decodeKeyPairs(l.records), nil
}

// AddKey appends a KeyPair to the local file backend
func (l *localKeyFile) AddKey(key KeyPair) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	records := append(append([]*localKeyFileFormat{}, l.records...), encodeKeyPairs([]KeyPair{key})...)

	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("local file error: could not serialize keys: %w", err)
	}

	if err := writeFileAtomic(l.fp, raw); err != nil {
		return fmt.Errorf("local file error: could not write keys: %w", err)
	}

	l.records = records
	return nil
}

// writeFileAtomic replaces fp through a temporary file in the same
// directory, so a failed write never truncates the existing keys
func writeFileAtomic(fp string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(fp), filepath.Base(fp)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := tmp.Chmod(localKeyFileMode); err != nil {
		_ = tmp.Close()
		return err
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), fp)
}

func encodeKeyPairs(keys []KeyPair) []*localKeyFileFormat {
	localKeys := make([]*localKeyFileFormat, 0, len(keys))
	for _, k := range keys {
		localKeys = append(localKeys, &localKeyFileFormat{
			ID:         k.ID,
			PrivateKey: k.PrivateKey,
			PublicKey:  k.PublicKey,
			NotBefore:  k.NotBefore.Format(time.RFC3339),
			NotAfter:   k.NotAfter.Format(time.RFC3339),
		})
	}

	return localKeys
}

func compactRecords(localKeys []*localKeyFileFormat) []*localKeyFileFormat {
	records := make([]*localKeyFileFormat, 0, len(localKeys))
	for _, lk := range localKeys {
		if lk != nil {
			records = append(records, lk)
		}
	}

	return records
}

// decodeKeyPairs skips entries with unparseable dates; they stay
// in the file untouched
func decodeKeyPairs(localKeys []*localKeyFileFormat) []KeyPair {
	var keys []KeyPair
	for _, lk := range localKeys {
		if lk == nil {
			continue
		}

		notBefore, err := time.Parse(time.RFC3339, lk.NotBefore)
		if err != nil {
			continue
		}

		notAfter, err := time.Parse(time.RFC3339, lk.NotAfter)
		if err != nil {
			continue
		}

		keys = append(keys, KeyPair{
			ID:         lk.ID,
			PrivateKey: lk.PrivateKey,
			PublicKey:  lk.PublicKey,
			NotBefore:  notBefore,
			NotAfter:   notAfter,
		})
	}

	return keys
}
