package authgate

import (
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tradewire/authgate/internal"
	"github.com/tradewire/authgate/token"
)

// Builder defines a public type used by authgate APIs.
//
// Builder instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	devices    DeviceRepository
	profiles   ProfileRepository
	identities IdentityRepository
	resolver   IdentityResolver

	sms          SMSSender
	mail         MailSender
	mailTemplate MailTemplate
	events       EventPublisher
	totp         TotpVerifier
	clock        Clock
	newCode      CodeGenerator
	newSecret    SecretGenerator
	logger       *zap.Logger
	auditSink    AuditSink

	built bool
}

// New describes the new operation and its observable behavior.
//
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis installs the Redis client backing the default device, profile,
// and identity repositories.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithRepositories overrides the default Redis-backed storage with custom
// implementations. All three must be provided together.
func (b *Builder) WithRepositories(devices DeviceRepository, profiles ProfileRepository, identities IdentityRepository) *Builder {
	b.devices = devices
	b.profiles = profiles
	b.identities = identities
	return b
}

// WithIdentityResolver overrides the default bounded-retry find-or-create
// strategy.
func (b *Builder) WithIdentityResolver(r IdentityResolver) *Builder {
	b.resolver = r
	return b
}

// WithSMSSender describes the withsmssender operation and its observable behavior.
//
// WithSMSSender does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSMSSender(s SMSSender) *Builder {
	b.sms = s
	return b
}

// WithMailSender describes the withmailsender operation and its observable behavior.
//
// WithMailSender does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMailSender(m MailSender) *Builder {
	b.mail = m
	return b
}

// WithMailTemplate describes the withmailtemplate operation and its observable behavior.
//
// WithMailTemplate does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMailTemplate(t MailTemplate) *Builder {
	b.mailTemplate = t
	return b
}

// WithEventPublisher describes the witheventpublisher operation and its observable behavior.
//
// WithEventPublisher does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithEventPublisher(p EventPublisher) *Builder {
	b.events = p
	return b
}

// WithTotpVerifier describes the withtotpverifier operation and its observable behavior.
//
// WithTotpVerifier does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithTotpVerifier(v TotpVerifier) *Builder {
	b.totp = v
	return b
}

// WithClock describes the withclock operation and its observable behavior.
//
// WithClock does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithClock(c Clock) *Builder {
	b.clock = c
	return b
}

// WithLogger describes the withlogger operation and its observable behavior.
//
// WithLogger does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithCodeGenerator describes the withcodegenerator operation and its observable behavior.
//
// WithCodeGenerator does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithCodeGenerator(g CodeGenerator) *Builder {
	b.newCode = g
	return b
}

// WithSecretGenerator describes the withsecretgenerator operation and its observable behavior.
//
// WithSecretGenerator does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithSecretGenerator(g SecretGenerator) *Builder {
	b.newSecret = g
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled describes the withmetricsenabled operation and its observable behavior.
//
// WithMetricsEnabled does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms describes the withlatencyhistograms operation and its observable behavior.
//
// WithLatencyHistograms does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	customStorage := b.devices != nil || b.profiles != nil || b.identities != nil
	if customStorage {
		if b.devices == nil || b.profiles == nil || b.identities == nil {
			return nil, errors.New("custom repositories must be provided together")
		}
	} else if b.redis == nil {
		return nil, errors.New("redis client required")
	}

	if b.sms == nil {
		return nil, errors.New("sms sender required")
	}
	if b.mail == nil {
		return nil, errors.New("mail sender required")
	}
	if b.mailTemplate == nil {
		return nil, errors.New("mail template required")
	}

	clock := b.clock
	if clock == nil {
		clock = systemClock{}
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	sessionTTL := make(map[string]time.Duration, len(cfg.Token.SessionTTL))
	for scope, ttl := range cfg.Token.SessionTTL {
		sessionTTL[scope.lower()] = ttl
	}

	tm, err := token.NewManager(token.Config{
		DeviceSecret:  cloneBytes(cfg.Token.DeviceSecret),
		SessionSecret: cloneBytes(cfg.Token.SessionSecret),
		DeviceTTL:     cfg.Token.DeviceTTL,
		SessionTTL:    sessionTTL,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
		TimeFunc:      clock.Now,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		tokens:       tm,
		sms:          b.sms,
		mail:         b.mail,
		mailTemplate: b.mailTemplate,
		events:       b.events,
		clock:        clock,
		logger:       logger,
	}

	if customStorage {
		engine.devices = b.devices
		engine.profiles = b.profiles
		engine.identities = b.identities
	} else {
		engine.devices = newRedisDeviceRepository(b.redis, cfg.Storage.RedisPrefix)
		engine.profiles = newRedisProfileRepository(b.redis, cfg.Storage.RedisPrefix)
		engine.identities = newRedisIdentityRepository(b.redis, cfg.Storage.RedisPrefix)
	}

	engine.resolver = b.resolver
	if engine.resolver == nil {
		engine.resolver = &retryingResolver{
			identities: engine.identities,
			retries:    cfg.Storage.ResolveRetries,
		}
	}

	engine.totp = b.totp
	if engine.totp == nil {
		engine.totp = &pquernaVerifier{issuer: cfg.Google.Issuer, clock: clock}
	}

	engine.newCode = b.newCode
	if engine.newCode == nil {
		engine.newCode = internal.NewNumericCode
	}
	engine.newSecret = b.newSecret
	if engine.newSecret == nil {
		engine.newSecret = internal.NewEmailSecret
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, clock)
	engine.metrics = NewMetrics(cfg.Metrics)

	b.built = true

	return engine, nil
}
