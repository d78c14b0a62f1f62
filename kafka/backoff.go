package kafka

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffConfig describes an exponential, jittered and bounded sequence of
// retry delays
type BackoffConfig struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	// MaxRetries caps the number of delays the sequence yields
	MaxRetries uint64
}

// DefaultBackoffConfig returns the policy used for stream-level failures
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         30 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
		MaxRetries:          10,
	}
}

// withDefaults fills unset fields from DefaultBackoffConfig.
// MaxRetries is kept as given; zero means the first failure exhausts the sequence.
func (c BackoffConfig) withDefaults() BackoffConfig {
	def := DefaultBackoffConfig()
	if c.InitialInterval <= 0 {
		c.InitialInterval = def.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = def.MaxInterval
	}
	if c.Multiplier < 1 {
		c.Multiplier = def.Multiplier
	}
	if c.RandomizationFactor < 0 || c.RandomizationFactor >= 1 {
		c.RandomizationFactor = def.RandomizationFactor
	}
	return c
}

// newSequence builds a fresh delay sequence. NextBackOff returns
// backoff.Stop once MaxRetries delays have been handed out.
func (c BackoffConfig) newSequence() backoff.BackOff {
	c = c.withDefaults()

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.InitialInterval
	exp.MaxInterval = c.MaxInterval
	exp.Multiplier = c.Multiplier
	exp.RandomizationFactor = c.RandomizationFactor
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithMaxRetries(exp, c.MaxRetries)
}
