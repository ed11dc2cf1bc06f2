package contentauth

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	outcomeValid              = "valid"
	outcomeMismatch           = "mismatch"
	outcomeMalformedKey       = "malformed_key"
	outcomeMalformedSignature = "malformed_signature"
	outcomeUnknownKey         = "unknown_key"
	outcomeError              = "error"
)

// Metrics counts signatures produced and verification
// outcomes of an Authenticator. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	signatures    *prometheus.CounterVec
	verifications *prometheus.CounterVec
}

// NewMetrics registers the authenticator collectors on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		signatures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contentauth_signatures_total",
				Help: "Total number of signatures produced",
			},
			[]string{"operation"},
		),
		verifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "contentauth_verifications_total",
				Help: "Total number of verifications by outcome",
			},
			[]string{"operation", "outcome"},
		),
	}
}

func (m *Metrics) observeSign(operation string) {
	if m == nil {
		return
	}

	m.signatures.WithLabelValues(operation).Inc()
}

func (m *Metrics) observeVerify(operation string, err error) {
	if m == nil {
		return
	}

	m.verifications.WithLabelValues(operation, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return outcomeValid
	case errors.Is(err, ErrSignatureMismatch):
		return outcomeMismatch
	case errors.Is(err, ErrMalformedSignature):
		return outcomeMalformedSignature
	case errors.Is(err, ErrMalformedKey):
		return outcomeMalformedKey
	case errors.Is(err, ErrKeyNotFound):
		return outcomeUnknownKey
	default:
		return outcomeError
	}
}
