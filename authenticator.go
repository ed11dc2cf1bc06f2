package contentauth

import (
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Backend stores the key pairs of an Authenticator
type Backend interface {
	GetKeys() ([]KeyPair, error)
	AddKey(KeyPair) error
}

type Scheme string

const (
	RSA2048_PKCS1v15_SHA256 Scheme = "RSA2048_PKCS1v15_SHA256"
)

const (
	opSign        = "sign"
	opBind        = "bind"
	opVerify      = "verify"
	opVerifyBound = "verify_bound"
)

type keyEntry struct {
	pair        KeyPair
	private     *rsa.PrivateKey
	public      *rsa.PublicKey
	fingerprint string
}

// Authenticator signs and verifies content with a ring of
// key pairs loaded from a Backend. It is meant to be created
// once and shared; all methods are safe for concurrent use.
type Authenticator struct {
	backend Backend
	scheme  Scheme
	signer  Signer
	logger  zerolog.Logger
	metrics *Metrics

	mu      sync.RWMutex
	keyring map[string]keyEntry

	// genMu serializes regeneration of an expired ring
	genMu sync.Mutex
}

type Option func(*Authenticator) error

// WithBackend sets the key pair store
func WithBackend(backend Backend) Option {
	return func(a *Authenticator) error {
		a.backend = backend
		return nil
	}
}

// WithLogger sets the logger, which defaults to a no-op logger
func WithLogger(logger zerolog.Logger) Option {
	return func(a *Authenticator) error {
		a.logger = logger
		return nil
	}
}

// WithMetrics records signatures and verification outcomes
func WithMetrics(metrics *Metrics) Option {
	return func(a *Authenticator) error {
		a.metrics = metrics
		return nil
	}
}

// New sets up an Authenticator for the given scheme. Keys are
// read from the backend (a local key file unless WithBackend or
// WithFile is given), and a fresh key pair is generated and
// stored when none of them is currently valid.
func New(scheme Scheme, opts ...Option) (*Authenticator, error) {
	signer, err := schemeSigner(scheme)
	if err != nil {
		return nil, err
	}

	a := &Authenticator{
		scheme:  scheme,
		signer:  signer,
		logger:  zerolog.Nop(),
		keyring: make(map[string]keyEntry),
	}

	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, fmt.Errorf("content auth: invalid option: %w", err)
		}
	}

	if a.backend == nil {
		l, err := defaultLocalKeyFile()
		if err != nil {
			return nil, fmt.Errorf("content auth: could not create local key file: %w", err)
		}

		withFile := WithFile(l)
		if err := withFile(a); err != nil {
			return nil, fmt.Errorf("content auth: %w", err)
		}
	}

	keys, err := a.backend.GetKeys()
	if err != nil {
		return nil, fmt.Errorf("content auth: %w", err)
	}

	for _, k := range keys {
		if err := a.AddKeyPair(k); err != nil {
			return nil, fmt.Errorf("content auth: %w", err)
		}
	}

	if _, err := a.signingKey(); err != nil {
		return nil, fmt.Errorf("content auth: key error: %w", err)
	}

	a.logger.Debug().Int("keys", len(a.keyring)).Str("scheme", string(scheme)).Msg("authenticator ready")
	return a, nil
}

// WithRotationPolicy schedules generation of new key pairs
func (a *Authenticator) WithRotationPolicy(policy Policy) (*KeyRotator, error) {
	kr, err := NewKeyRotationPolicy(policy, a)
	if err != nil {
		return nil, fmt.Errorf("content auth: rotation policy failure: %w", err)
	}

	return kr, nil
}

// AddKeyPair adds a key pair to the key ring without storing it
// in the backend. The key material is parsed up front, so a
// malformed pair is rejected here rather than at signing time.
func (a *Authenticator) AddKeyPair(key KeyPair) error {
	entry, err := newKeyEntry(key)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.keyring[key.ID]; ok {
		return fmt.Errorf("key pair %s already exists", key.ID)
	}

	a.keyring[key.ID] = entry
	return nil
}

// Sign signs message with the current key pair. It returns the
// base64 encoded signature and the ID of the key pair used.
func (a *Authenticator) Sign(message []byte) (string, string, error) {
	entry, err := a.signingKey()
	if err != nil {
		return "", "", fmt.Errorf("content auth: signing key not available: %w", err)
	}

	sig, err := a.signer.Sign(entry.private, message)
	if err != nil {
		return "", "", fmt.Errorf("content auth: %w", err)
	}

	a.metrics.observeSign(opSign)
	return base64.StdEncoding.EncodeToString(sig), entry.pair.ID, nil
}

// Check verifies a signature against every key pair in the ring
func (a *Authenticator) Check(message []byte, signature string) error {
	err := a.check(message, signature)
	a.observe(opVerify, err)
	return err
}

// Verify reports whether Check accepts the signature
func (a *Authenticator) Verify(message []byte, signature string) bool {
	return a.Check(message, signature) == nil
}

// CheckWith verifies a signature made by a third party whose
// public key is given
func (a *Authenticator) CheckWith(publicKeyPEM string, message []byte, signature string) error {
	err := CheckBytes(publicKeyPEM, signature, message)
	a.observe(opVerify, err)
	return err
}

// Bind signs the canonical string of the current fingerprint and
// content. It returns the signature and the fingerprint used.
func (a *Authenticator) Bind(content string) (string, string, error) {
	entry, err := a.signingKey()
	if err != nil {
		return "", "", fmt.Errorf("content auth: signing key not available: %w", err)
	}

	canonical := CanonicalString(entry.fingerprint, content)
	sig, err := a.signer.Sign(entry.private, []byte(canonical))
	if err != nil {
		return "", "", fmt.Errorf("content auth: %w", err)
	}

	a.metrics.observeSign(opBind)
	return base64.StdEncoding.EncodeToString(sig), entry.fingerprint, nil
}

// CheckBound verifies a bound signature. The key pair is looked
// up by fingerprint, so only identities held in the ring verify.
func (a *Authenticator) CheckBound(signature, fingerprint, content string) error {
	err := a.checkBound(signature, fingerprint, content)
	a.observe(opVerifyBound, err)
	return err
}

// VerifyBound reports whether CheckBound accepts the signature
func (a *Authenticator) VerifyBound(signature, fingerprint, content string) bool {
	return a.CheckBound(signature, fingerprint, content) == nil
}

// CheckBoundWith verifies a bound signature under a given public key
func (a *Authenticator) CheckBoundWith(publicKeyPEM, signature, fingerprint, content string) error {
	err := CheckBoundContent(publicKeyPEM, signature, fingerprint, content)
	a.observe(opVerifyBound, err)
	return err
}

// Current returns the key pair used for signing
func (a *Authenticator) Current() (KeyPair, error) {
	entry, err := a.signingKey()
	if err != nil {
		return KeyPair{}, fmt.Errorf("content auth: %w", err)
	}

	return entry.pair, nil
}

// KeyPairs returns every key pair in the ring, oldest first
func (a *Authenticator) KeyPairs() []KeyPair {
	a.mu.RLock()
	defer a.mu.RUnlock()

	pairs := make([]KeyPair, 0, len(a.keyring))
	for _, e := range a.keyring {
		pairs = append(pairs, e.pair)
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].NotBefore.Before(pairs[j].NotBefore)
	})

	return pairs
}

func (a *Authenticator) check(message []byte, signature string) error {
	sig, err := decodeSignature(signature)
	if err != nil {
		return fmt.Errorf("content auth: %w", err)
	}

	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, e := range a.keyring {
		if err := a.signer.Verify(e.public, message, sig); err == nil {
			return nil
		}
	}

	return fmt.Errorf("content auth: %w", ErrSignatureMismatch)
}

func (a *Authenticator) checkBound(signature, fingerprint, content string) error {
	sig, err := decodeSignature(signature)
	if err != nil {
		return fmt.Errorf("content auth: %w", err)
	}

	entry, ok := a.byFingerprint(fingerprint)
	if !ok {
		return fmt.Errorf("content auth: fingerprint %s: %w", fingerprint, ErrKeyNotFound)
	}

	canonical := CanonicalString(fingerprint, content)
	if err := a.signer.Verify(entry.public, []byte(canonical), sig); err != nil {
		return fmt.Errorf("content auth: %w", err)
	}

	return nil
}

func (a *Authenticator) byFingerprint(fingerprint string) (keyEntry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	for _, e := range a.keyring {
		if e.fingerprint == fingerprint {
			return e, true
		}
	}

	return keyEntry{}, false
}

// signingKey returns the key pair to sign with. When every key
// pair in the ring has expired, a new one is generated and
// stored in the backend first.
func (a *Authenticator) signingKey() (keyEntry, error) {
	if entry, err := a.latestKey(); err == nil {
		return entry, nil
	}

	a.genMu.Lock()
	defer a.genMu.Unlock()

	// another caller may have replaced the key meanwhile
	if entry, err := a.latestKey(); err == nil {
		return entry, nil
	}

	key, err := a.generateKeyPair()
	if err != nil {
		return keyEntry{}, err
	}

	a.logger.Info().Str("key_id", key.ID).Msg("generated key pair")
	return a.latestKey()
}

// generateKeyPair creates a key pair, stores it in the backend
// and adds it to the ring
func (a *Authenticator) generateKeyPair() (KeyPair, error) {
	key, err := GenerateKeyPair()
	if err != nil {
		return KeyPair{}, err
	}

	if err := a.backend.AddKey(key); err != nil {
		return KeyPair{}, err
	}

	if err := a.AddKeyPair(key); err != nil {
		return KeyPair{}, err
	}

	return key, nil
}

// latestKey returns the valid key pair expiring last
func (a *Authenticator) latestKey() (keyEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var (
		latest keyEntry
		found  bool
	)

	for _, e := range a.keyring {
		if !e.pair.Valid() {
			continue
		}

		if found && latest.pair.NotAfter.After(e.pair.NotAfter) {
			continue
		}

		latest = e
		found = true
	}

	if !found {
		return keyEntry{}, ErrNoKeys
	}

	return latest, nil
}

func (a *Authenticator) observe(operation string, err error) {
	a.metrics.observeVerify(operation, err)
	if err == nil {
		return
	}

	a.logger.Debug().
		Str("operation", operation).
		Str("outcome", outcome(err)).
		Err(err).
		Msg("verification failed")
}

func newKeyEntry(key KeyPair) (keyEntry, error) {
	if key.ID == "" {
		return keyEntry{}, fmt.Errorf("key pair without ID: %w", ErrMalformedKey)
	}

	private, err := ParsePrivateKey(key.PrivateKey)
	if err != nil {
		return keyEntry{}, fmt.Errorf("key pair %s: %w", key.ID, err)
	}

	if key.PublicKey == "" {
		if key.PublicKey, err = EncodePublicKey(&private.PublicKey); err != nil {
			return keyEntry{}, fmt.Errorf("key pair %s: %w", key.ID, err)
		}
	}

	public, err := ParsePublicKey(key.PublicKey)
	if err != nil {
		return keyEntry{}, fmt.Errorf("key pair %s: %w", key.ID, err)
	}

	if !private.PublicKey.Equal(public) {
		return keyEntry{}, fmt.Errorf("key pair %s: public key does not belong to private key: %w", key.ID, ErrMalformedKey)
	}

	return keyEntry{
		pair:        key,
		private:     private,
		public:      public,
		fingerprint: Fingerprint(key.PublicKey),
	}, nil
}

func schemeSigner(scheme Scheme) (Signer, error) {
	switch scheme {
	case RSA2048_PKCS1v15_SHA256:
		return NewRSAPKCS1v15SHA256(), nil

	default:
		return nil, fmt.Errorf("content auth: unsupported scheme: %s", scheme)
	}
}

func defaultLocalKeyFile() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	return filepath.Join(cwd, "content-auth-keys"), nil
}
