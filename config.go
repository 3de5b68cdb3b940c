package authgate

import (
	"errors"
	"time"
)

// Config defines a public type used by authgate APIs.
//
// Config instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Config struct {
	Token   TokenConfig
	Phone   PhoneConfig
	Google  GoogleConfig
	Email   EmailConfig
	Storage StorageConfig
	Audit   AuditConfig
	Metrics MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig defines a public type used by authgate APIs.
//
// TokenConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TokenConfig struct {
	DeviceSecret  []byte
	SessionSecret []byte
	DeviceTTL     time.Duration
	SessionTTL    map[Scope]time.Duration
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
PHONE CONFIG
====================================
*/

// PhoneConfig defines a public type used by authgate APIs.
//
// PhoneConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PhoneConfig struct {
	// ClaimWindow is how long a pending SMS code both blocks other devices from
	// claiming the same phone number and is reused verbatim on resend.
	ClaimWindow time.Duration
	SMSFrom     string
	SMSBody     string
}

/*
====================================
GOOGLE (TOTP) CONFIG
====================================
*/

// GoogleConfig defines a public type used by authgate APIs.
//
// GoogleConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type GoogleConfig struct {
	Issuer string
}

/*
====================================
EMAIL CONFIG
====================================
*/

// EmailConfig defines a public type used by authgate APIs.
//
// EmailConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EmailConfig struct {
	// SecretTTL bounds how long an enrollment secret remains confirmable.
	SecretTTL time.Duration
	// SecretGenerationRetries caps the uniqueness loop when minting an
	// enrollment secret; exhausting it yields EmailSecretGenerationLimit.
	SecretGenerationRetries int
	AuthHost                string
	From                    string
	VerificationSubject     string
	ConfirmationSubject     string
}

/*
====================================
STORAGE CONFIG
====================================
*/

// StorageConfig defines a public type used by authgate APIs.
//
// StorageConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type StorageConfig struct {
	RedisPrefix string
	// ResolveRetries caps the find-or-create loop during identity resolution
	// when the store reports a conflicting concurrent create.
	ResolveRetries int
}

// AuditConfig defines a public type used by authgate APIs.
//
// AuditConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig defines a public type used by authgate APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			DeviceTTL: 72 * time.Hour,
			SessionTTL: map[Scope]time.Duration{
				ScopeTrading:            time.Hour,
				ScopeUpdateSecondFactor: 10 * time.Minute,
				ScopeSensitive:          5 * time.Minute,
			},
			Issuer: "authgate",
			Leeway: 30 * time.Second,
		},
		Phone: PhoneConfig{
			ClaimWindow: 5 * time.Minute,
			SMSBody:     "Your verification code is",
		},
		Google: GoogleConfig{
			Issuer: "authgate",
		},
		Email: EmailConfig{
			SecretTTL:               10 * time.Minute,
			SecretGenerationRetries: 10,
			VerificationSubject:     "Please confirm your email address",
			ConfirmationSubject:     "Your secret code to perform sensitive operation",
		},
		Storage: StorageConfig{
			RedisPrefix:    "ag",
			ResolveRetries: 3,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.DeviceSecret = cloneBytes(cfg.Token.DeviceSecret)
	out.Token.SessionSecret = cloneBytes(cfg.Token.SessionSecret)
	if cfg.Token.SessionTTL != nil {
		out.Token.SessionTTL = make(map[Scope]time.Duration, len(cfg.Token.SessionTTL))
		for scope, ttl := range cfg.Token.SessionTTL {
			out.Token.SessionTTL[scope] = ttl
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (c *Config) Validate() error {
	// Token
	if len(c.Token.DeviceSecret) == 0 {
		return errors.New("Token DeviceSecret required")
	}
	if len(c.Token.SessionSecret) == 0 {
		return errors.New("Token SessionSecret required")
	}
	if string(c.Token.DeviceSecret) == string(c.Token.SessionSecret) {
		return errors.New("Token DeviceSecret and SessionSecret must differ")
	}
	if c.Token.DeviceTTL <= 0 {
		return errors.New("Token DeviceTTL must be > 0")
	}
	if len(c.Token.SessionTTL) == 0 {
		return errors.New("Token SessionTTL must configure at least one scope")
	}
	for scope, ttl := range c.Token.SessionTTL {
		if ttl <= 0 {
			return errors.New("Token SessionTTL for scope " + string(scope) + " must be > 0")
		}
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be between 0 and 2m")
	}

	// Phone
	if c.Phone.ClaimWindow <= 0 {
		return errors.New("Phone ClaimWindow must be > 0")
	}

	// Email
	if c.Email.SecretTTL <= 0 {
		return errors.New("Email SecretTTL must be > 0")
	}
	if c.Email.SecretGenerationRetries <= 0 {
		return errors.New("Email SecretGenerationRetries must be > 0")
	}

	// Storage
	if c.Storage.RedisPrefix == "" {
		return errors.New("Storage RedisPrefix required")
	}
	if c.Storage.ResolveRetries <= 0 {
		return errors.New("Storage ResolveRetries must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
