package authgate

import (
	"context"

	"go.uber.org/zap"
)

// IssueGoogleSecret starts authenticator-app enrollment: it mints a fresh
// TOTP secret, stages it on the profile, and returns it with a provisioning
// URI. The factor stays disabled until a code derived from the staged secret
// passes [Engine.VerifyGoogleToken]. Reissuing replaces any earlier staged
// secret.
func (e *Engine) IssueGoogleSecret(ctx context.Context, sessionToken string) (GoogleSecretResult, error) {
	if e == nil {
		return GoogleSecretResult{}, ErrEngineNotReady
	}

	memberID, err := e.sessionSubject(sessionToken, ScopeUpdateSecondFactor)
	if err != nil {
		return GoogleSecretResult{}, err
	}

	profile, err := e.profileForMember(ctx, memberID)
	if err != nil {
		return GoogleSecretResult{}, err
	}
	if profile == nil {
		return GoogleSecretResult{Status: GoogleSecretTokenRevoked}, nil
	}

	secret, uri, err := e.totp.GenerateSecret(memberID)
	if err != nil {
		return GoogleSecretResult{}, err
	}

	profile.GoogleTempSecret = secret
	profile.GoogleAttemptsLeft = initialAttemptsCount
	if err := e.profiles.Save(ctx, profile); err != nil {
		return GoogleSecretResult{}, err
	}

	e.metricInc(MetricGoogleSecretIssued)
	e.emitAudit(ctx, AuditEvent{
		EventType: "google_secret_issued",
		MemberID:  memberID,
		Success:   true,
	})

	return GoogleSecretResult{Status: GoogleSecretIssued, Secret: secret, URI: uri}, nil
}

// VerifyGoogleToken checks a TOTP code. For a profile mid-enrollment a
// passing code promotes the staged secret and enables the factor; for an
// already enabled factor it serves as a liveness check. Either way the
// attempt budget is spent before the comparison.
func (e *Engine) VerifyGoogleToken(ctx context.Context, sessionToken, code string) (GoogleVerifyResult, error) {
	if e == nil {
		return GoogleVerifyResult{}, ErrEngineNotReady
	}

	memberID, err := e.sessionSubject(sessionToken, ScopeUpdateSecondFactor)
	if err != nil {
		return GoogleVerifyResult{}, err
	}
	if code == "" {
		return GoogleVerifyResult{}, ErrGoogleCodeRequired
	}

	profile, err := e.profileForMember(ctx, memberID)
	if err != nil {
		return GoogleVerifyResult{}, err
	}
	if profile == nil {
		return GoogleVerifyResult{Status: GoogleVerifyTokenRevoked}, nil
	}

	secret := profile.GoogleTempSecret
	enrolling := true
	if profile.GoogleEnabled && profile.GoogleSecret != "" {
		secret = profile.GoogleSecret
		enrolling = false
	}
	if secret == "" {
		return GoogleVerifyResult{Status: GoogleVerifyNoVerificationInProgress}, nil
	}

	if banned(profile.GoogleAttemptsLeft) {
		e.metricInc(MetricGoogleBanned)
		return GoogleVerifyResult{Status: GoogleVerifyBanned}, nil
	}

	remaining, err := e.profiles.DecrementGoogleAttempts(ctx, memberID)
	if err != nil {
		return GoogleVerifyResult{}, err
	}
	attemptsLeft, nowBanned := spendAttempt(remaining)

	if !e.totp.Validate(secret, code) {
		e.metricInc(MetricGoogleCodeIncorrect)
		e.emitAudit(ctx, AuditEvent{
			EventType: "google_code_incorrect",
			MemberID:  memberID,
		})
		if nowBanned {
			e.metricInc(MetricGoogleBanned)
			return GoogleVerifyResult{Status: GoogleVerifyBanned}, nil
		}
		return GoogleVerifyResult{Status: GoogleVerifyCodeIncorrect, AttemptsLeft: attemptsLeft}, nil
	}

	if enrolling {
		profile.GoogleSecret = profile.GoogleTempSecret
		profile.GoogleTempSecret = ""
		profile.GoogleEnabled = true
		e.metricInc(MetricGoogleEnrolled)
		e.logger.Info("google factor enabled", zap.String("member_id", memberID))
	}
	profile.GoogleAttemptsLeft = initialAttemptsCount
	if err := e.profiles.Save(ctx, profile); err != nil {
		return GoogleVerifyResult{}, err
	}

	e.emitAudit(ctx, AuditEvent{
		EventType: "google_code_verified",
		MemberID:  memberID,
		Success:   true,
	})

	return GoogleVerifyResult{Status: GoogleVerifySuccess, AttemptsLeft: initialAttemptsCount}, nil
}

// DisableGoogle2FA turns the authenticator factor off and discards both the
// active and any staged secret. Disabling an already disabled factor
// succeeds.
func (e *Engine) DisableGoogle2FA(ctx context.Context, sessionToken string) (DisableResult, error) {
	if e == nil {
		return DisableResult{}, ErrEngineNotReady
	}

	memberID, err := e.sessionSubject(sessionToken, ScopeUpdateSecondFactor)
	if err != nil {
		return DisableResult{}, err
	}

	profile, err := e.profileForMember(ctx, memberID)
	if err != nil {
		return DisableResult{}, err
	}
	if profile == nil {
		return DisableResult{Status: DisableTokenRevoked}, nil
	}

	profile.GoogleSecret = ""
	profile.GoogleTempSecret = ""
	profile.GoogleEnabled = false
	profile.GoogleAttemptsLeft = initialAttemptsCount
	if err := e.profiles.Save(ctx, profile); err != nil {
		return DisableResult{}, err
	}

	e.metricInc(MetricGoogleDisabled)
	e.emitAudit(ctx, AuditEvent{
		EventType: "google_factor_disabled",
		MemberID:  memberID,
		Success:   true,
	})

	return DisableResult{Status: DisableSuccess}, nil
}
