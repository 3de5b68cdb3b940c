package authgate

import (
	"context"

	"go.uber.org/zap"
)

// IssueSensitiveSessionToken escalates a trading-scope session to a
// sensitive-scope one after re-proving every enabled second factor. A member
// with no factors enabled escalates on the session token alone.
//
// Submitting an empty proof for an enabled factor is a caller contract
// violation and surfaces as ErrGoogleCodeRequired or ErrEmailCodeRequired
// rather than a typed outcome. Each factor's attempt budget is spent before
// its comparison; a passing TOTP code leaves the authenticator secret in
// place so the factor stays enabled.
//
// TODO: decide whether repeated escalation lockouts should also invalidate
// the standing trading session instead of leaving it usable until expiry.
func (e *Engine) IssueSensitiveSessionToken(ctx context.Context, sessionToken, googleCode, emailCode string) (SensitiveResult, error) {
	if e == nil {
		return SensitiveResult{}, ErrEngineNotReady
	}

	memberID, err := e.sessionSubject(sessionToken, ScopeTrading)
	if err != nil {
		return SensitiveResult{}, err
	}

	profile, err := e.profileForMember(ctx, memberID)
	if err != nil {
		return SensitiveResult{}, err
	}
	if profile == nil {
		return SensitiveResult{Status: SensitiveTokenRevoked}, nil
	}

	if profile.GoogleEnabled && profile.GoogleSecret != "" {
		if googleCode == "" {
			return SensitiveResult{}, ErrGoogleCodeRequired
		}
		if banned(profile.GoogleAttemptsLeft) {
			e.metricInc(MetricGoogleBanned)
			return SensitiveResult{Status: SensitiveGoogleBanned}, nil
		}

		remaining, err := e.profiles.DecrementGoogleAttempts(ctx, memberID)
		if err != nil {
			return SensitiveResult{}, err
		}
		attemptsLeft, nowBanned := spendAttempt(remaining)

		if !e.totp.Validate(profile.GoogleSecret, googleCode) {
			e.metricInc(MetricGoogleCodeIncorrect)
			e.emitAudit(ctx, AuditEvent{
				EventType: "sensitive_google_incorrect",
				MemberID:  memberID,
			})
			if nowBanned {
				e.metricInc(MetricGoogleBanned)
				return SensitiveResult{Status: SensitiveGoogleBanned}, nil
			}
			return SensitiveResult{Status: SensitiveGoogleIncorrect, AttemptsLeft: attemptsLeft}, nil
		}
		profile.GoogleAttemptsLeft = initialAttemptsCount
	}

	if profile.EmailEnabled {
		if emailCode == "" {
			return SensitiveResult{}, ErrEmailCodeRequired
		}
		if banned(profile.EmailAttemptsLeft) {
			e.metricInc(MetricEmailBanned)
			return SensitiveResult{Status: SensitiveEmailBanned}, nil
		}

		remaining, err := e.profiles.DecrementEmailAttempts(ctx, memberID)
		if err != nil {
			return SensitiveResult{}, err
		}
		attemptsLeft, nowBanned := spendAttempt(remaining)

		if profile.EmailCode == "" || emailCode != profile.EmailCode {
			e.metricInc(MetricEmailCodeIncorrect)
			e.emitAudit(ctx, AuditEvent{
				EventType: "sensitive_email_incorrect",
				MemberID:  memberID,
			})
			if nowBanned {
				e.metricInc(MetricEmailBanned)
				return SensitiveResult{Status: SensitiveEmailBanned}, nil
			}
			return SensitiveResult{Status: SensitiveEmailIncorrect, AttemptsLeft: attemptsLeft}, nil
		}
		profile.EmailCode = ""
		profile.EmailAttemptsLeft = initialAttemptsCount
	}

	if profile.GoogleEnabled || profile.EmailEnabled {
		if err := e.profiles.Save(ctx, profile); err != nil {
			return SensitiveResult{}, err
		}
	}

	signed, err := e.tokens.CreateSession(memberID, ScopeSensitive.lower(), e.clock.Now())
	if err != nil {
		return SensitiveResult{}, err
	}

	e.metricInc(MetricSensitiveIssued)
	e.emitAudit(ctx, AuditEvent{
		EventType: "sensitive_session_issued",
		MemberID:  memberID,
		Scope:     string(ScopeSensitive),
		Success:   true,
	})
	e.logger.Info("sensitive session issued",
		zap.String("member_id", memberID),
		zap.Bool("google_checked", profile.GoogleEnabled),
		zap.Bool("email_checked", profile.EmailEnabled))

	return SensitiveResult{Status: SensitiveIssued, SessionToken: signed}, nil
}
