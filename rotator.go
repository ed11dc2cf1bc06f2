package contentauth

import (
	"errors"
	"fmt"

	"github.com/mileusna/crontab"
)

type Policy string

const (
	RotateDaily     Policy = Policy("0 0 * * *")
	RotateWeekly           = Policy("0 0 * * 0")
	RotateMonthly          = Policy("0 0 1 * *")
	RotateQuarterly        = Policy("0 0 1 */3 *")
)

// KeyRotator adds a freshly generated key pair to an
// Authenticator and its backend on a cron schedule
type KeyRotator struct {
	auth  *Authenticator
	ctab  *crontab.Crontab
	errch chan error
}

func NewKeyRotationPolicy(policy Policy, a *Authenticator) (*KeyRotator, error) {
	if err := validateRotationPolicy(policy); err != nil {
		return nil, fmt.Errorf("rotation policy: invalid policy: %w", err)
	}

	if a == nil || a.backend == nil {
		return nil, errors.New("rotation policy: invalid Authenticator")
	}

	errch := make(chan error)
	kr := &KeyRotator{auth: a, errch: errch}

	ctab := crontab.New()
	if err := ctab.AddJob(string(policy), kr.rotate); err != nil {
		ctab.Shutdown()
		return nil, fmt.Errorf("rotation policy: unable to create policy: %w", err)
	}

	kr.ctab = ctab
	return kr, nil
}

// Errors delivers rotation failures to a listening receiver.
// Failures are always logged; those nobody is waiting for are
// dropped from the channel.
func (kr *KeyRotator) Errors() <-chan error {
	return kr.errch
}

// Stop halts the rotation schedule
func (kr *KeyRotator) Stop() {
	if kr.ctab != nil {
		kr.ctab.Shutdown()
	}
}

func (kr *KeyRotator) writeError(err error) bool {
	select {
	case kr.errch <- err:
		return true
	default:
		return false
	}
}

func (kr *KeyRotator) rotate() {
	if err := kr.Rotate(); err != nil {
		kr.auth.logger.Error().Err(err).Msg("key rotation failed")
		_ = kr.writeError(err)
	}
}

// Rotate generates, stores and activates a new key pair now
func (kr *KeyRotator) Rotate() error {
	key, err := kr.auth.generateKeyPair()
	if err != nil {
		return fmt.Errorf("rotation: %w", err)
	}

	kr.auth.logger.Info().Str("key_id", key.ID).Time("not_after", key.NotAfter).Msg("rotated key pair")
	return nil
}

func validateRotationPolicy(policy Policy) error {
	switch policy {
	case RotateDaily, RotateWeekly, RotateMonthly, RotateQuarterly:
		return nil
	default:
		return fmt.Errorf("unsupported policy %s", string(policy))
	}
}

// ParsePolicy maps a policy name (daily, weekly, monthly,
// quarterly) to its Policy
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "daily":
		return RotateDaily, nil
	case "weekly":
		return RotateWeekly, nil
	case "monthly":
		return RotateMonthly, nil
	case "quarterly":
		return RotateQuarterly, nil
	default:
		return "", fmt.Errorf("rotation policy: unknown policy %q", name)
	}
}
