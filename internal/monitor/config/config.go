package config

import (
	"errors"
	"fmt"
	"time"
)

// Defaults applied by Normalized for zero-valued tuning fields.
const (
	DefaultPollInterval         = 10 * time.Second
	DefaultBaseBackoff          = 60 * time.Second
	DefaultMaxBackoff           = 300 * time.Second
	DefaultConfirmationAttempts = 8
	DefaultInlinePayloadLimit   = 1000
)

// Config groups the identity and tuning settings required to run the
// monitoring engine. Zero values for tuning fields fall back to the defaults
// above; identity fields are mandatory and validated at startup.
type Config struct {
	// AccountID is the local agent's account identifier. Records whose sender
	// resolves to this account are never dispatched back to the agent.
	AccountID string

	// InboundTopicID is the agent's public topic for connection proposals.
	InboundTopicID string

	// OperatorKey authorises appends to the topic log service. The engine
	// never interprets it; it is passed through to the log client and
	// redacted from String output.
	OperatorKey string

	// PollInterval is the fixed sleep between poll cycles of a monitored
	// topic. Backoff skips reads, it does not change this wake frequency.
	PollInterval time.Duration

	// BaseBackoff and MaxBackoff bound the rate-limit backoff delay.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// ConfirmationAttempts bounds how many confirmation polls an outbound
	// connection proposal waits before it is reported as failed.
	ConfirmationAttempts int

	// InlinePayloadLimit is the largest payload, in bytes, submitted inline.
	// Larger payloads are stored out of band and referenced.
	InlinePayloadLimit int

	// MetricsEnabled turns on Prometheus collectors for poll cycles and
	// record dispatch.
	MetricsEnabled bool
}

// Normalized returns a copy of the config with defaults applied to all
// zero-valued tuning fields.
func (c Config) Normalized() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = DefaultBaseBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.ConfirmationAttempts <= 0 {
		c.ConfirmationAttempts = DefaultConfirmationAttempts
	}
	if c.InlinePayloadLimit <= 0 {
		c.InlinePayloadLimit = DefaultInlinePayloadLimit
	}
	return c
}

func (c Config) String() string {
	copy := c
	if copy.OperatorKey != "" {
		copy.OperatorKey = "***REDACTED***"
	}
	// Use a type alias to avoid infinite recursion when printing
	type configAlias Config
	return fmt.Sprintf("%+v", configAlias(copy))
}

// Validate checks that the configuration is complete enough to start
// monitoring. Missing identifiers here are the only fatal startup condition;
// everything later is contained per topic.
func (c *Config) Validate() error {
	var errs []error

	errs = append(errs, c.validateIdentity()...)
	errs = append(errs, c.validateTuning()...)

	return errors.Join(errs...)
}

func (c *Config) validateIdentity() []error {
	var errs []error
	if c.AccountID == "" {
		errs = append(errs, errors.New("identity: account id is required"))
	}
	if c.InboundTopicID == "" {
		errs = append(errs, errors.New("identity: inbound topic id is required"))
	}
	return errs
}

func (c *Config) validateTuning() []error {
	var errs []error
	if c.PollInterval < 0 {
		errs = append(errs, errors.New("poll: interval cannot be negative"))
	}
	if c.BaseBackoff < 0 {
		errs = append(errs, errors.New("backoff: base delay cannot be negative"))
	}
	if c.MaxBackoff < 0 {
		errs = append(errs, errors.New("backoff: max delay cannot be negative"))
	}
	if c.BaseBackoff > 0 && c.MaxBackoff > 0 && c.BaseBackoff > c.MaxBackoff {
		errs = append(errs, errors.New("backoff: base delay cannot exceed max delay"))
	}
	if c.ConfirmationAttempts < 0 {
		errs = append(errs, errors.New("connection: confirmation attempts cannot be negative"))
	}
	if c.InlinePayloadLimit < 0 {
		errs = append(errs, errors.New("content: inline payload limit cannot be negative"))
	}
	return errs
}

// ValidateConfig is a convenience function to validate a config pointer.
// Returns nil if the config is valid.
func ValidateConfig(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	return c.Validate()
}
