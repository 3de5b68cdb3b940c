package authgate

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tradewire/authgate/token"
)

// phoneNumberPattern accepts E.164 numbers: a plus sign followed by 8 to 15
// digits.
var phoneNumberPattern = regexp.MustCompile(`^\+\d{8,15}$`)

// Engine defines a public type used by authgate APIs.
//
// Engine instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Engine struct {
	config       Config
	tokens       *token.Manager
	devices      DeviceRepository
	profiles     ProfileRepository
	identities   IdentityRepository
	resolver     IdentityResolver
	sms          SMSSender
	mail         MailSender
	mailTemplate MailTemplate
	events       EventPublisher
	totp         TotpVerifier
	clock        Clock
	newCode      CodeGenerator
	newSecret    SecretGenerator
	logger       *zap.Logger
	audit        *auditDispatcher
	metrics      *Metrics
}

// Close describes the close operation and its observable behavior.
//
// Close does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped describes the auditdropped operation and its observable behavior.
//
// AuditDropped does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot describes the metricssnapshot operation and its observable behavior.
//
// MetricsSnapshot does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if e == nil || e.audit == nil {
		return
	}
	if event.IP == "" {
		event.IP = clientIPFromContext(ctx)
	}
	if ua := userAgentFromContext(ctx); ua != "" {
		if event.Metadata == nil {
			event.Metadata = map[string]string{}
		}
		event.Metadata["user_agent"] = ua
	}
	e.audit.Emit(ctx, event)
}

// CreateDeviceToken mints a fresh anonymous device identity and returns its
// signed bearer token. The backing record starts with a full attempt budget
// and no phone claim.
func (e *Engine) CreateDeviceToken(ctx context.Context) (string, error) {
	if e == nil {
		return "", ErrEngineNotReady
	}

	deviceID := uuid.NewString()
	rec := &DeviceRecord{
		DeviceID:     deviceID,
		AttemptsLeft: initialAttemptsCount,
	}
	if err := e.devices.Save(ctx, rec); err != nil {
		return "", err
	}

	signed, err := e.tokens.CreateDevice(deviceID, e.clock.Now())
	if err != nil {
		return "", err
	}

	e.metricInc(MetricDeviceTokenIssued)
	e.emitAudit(ctx, AuditEvent{
		EventType: "device_token_issued",
		DeviceID:  deviceID,
		Success:   true,
	})
	e.logger.Debug("device token issued", zap.String("device_id", deviceID))

	return signed, nil
}

// deviceSubject verifies a device token and returns its subject. Token-layer
// failures are folded into the engine's sentinel vocabulary.
func (e *Engine) deviceSubject(tokenStr string) (string, error) {
	if tokenStr == "" {
		return "", ErrDeviceTokenRequired
	}
	claims, err := e.tokens.ParseDevice(tokenStr)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		if errors.Is(err, token.ErrExpired) {
			return "", ErrDeviceTokenExpired
		}
		return "", ErrDeviceTokenInvalid
	}
	return claims.Subject, nil
}

// sessionSubject verifies a session token and requires that its scope matches
// one of the allowed scopes.
func (e *Engine) sessionSubject(tokenStr string, allowed ...Scope) (string, error) {
	if tokenStr == "" {
		return "", ErrSessionTokenRequired
	}
	claims, err := e.tokens.ParseSession(tokenStr)
	if err != nil {
		e.metricInc(MetricTokenRejected)
		if errors.Is(err, token.ErrExpired) {
			return "", ErrSessionTokenExpired
		}
		return "", ErrSessionTokenInvalid
	}
	for _, scope := range allowed {
		if claims.HasScope(string(scope)) {
			return claims.Subject, nil
		}
	}
	e.metricInc(MetricScopeRejected)
	return "", ErrInvalidScope
}

// TwofaStatus reports which second factors are enabled for the member behind
// the session token. Any scope is accepted; the status is not privileged.
func (e *Engine) TwofaStatus(ctx context.Context, sessionToken string) (TwofaStatusResult, error) {
	if e == nil {
		return TwofaStatusResult{}, ErrEngineNotReady
	}

	memberID, err := e.sessionSubject(sessionToken, ScopeTrading, ScopeUpdateSecondFactor, ScopeSensitive)
	if err != nil {
		return TwofaStatusResult{}, err
	}

	profile, err := e.profiles.Get(ctx, memberID)
	if err != nil {
		return TwofaStatusResult{}, err
	}
	if profile == nil {
		exists, err := e.identities.Exists(ctx, memberID)
		if err != nil {
			return TwofaStatusResult{}, err
		}
		if !exists {
			return TwofaStatusResult{Status: TwofaStatusTokenRevoked}, nil
		}
		return TwofaStatusResult{Status: TwofaStatusOK}, nil
	}

	return TwofaStatusResult{
		Status:              TwofaStatusOK,
		GoogleFactorEnabled: profile.GoogleEnabled,
		EmailFactorEnabled:  profile.EmailEnabled,
	}, nil
}

// profileForMember loads the member's profile, creating an empty one when the
// member exists but has never touched a second factor. Returns (nil, nil)
// when the member itself is unknown, which flows map to a revoked-token
// outcome.
func (e *Engine) profileForMember(ctx context.Context, memberID string) (*ProfileRecord, error) {
	profile, err := e.profiles.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if profile != nil {
		return profile, nil
	}

	exists, err := e.identities.Exists(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return &ProfileRecord{
		MemberID:           memberID,
		GoogleAttemptsLeft: initialAttemptsCount,
		EmailAttemptsLeft:  initialAttemptsCount,
	}, nil
}
