package authgate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// RequestSmsCode claims a phone number for the device behind deviceToken and
// dispatches a one-time code to it.
//
// A pending code younger than the claim window is resent verbatim instead of
// being rotated, so a user tapping "resend" keeps one valid code. The same
// window blocks a second device from starting verification for a phone number
// another device is mid-flight on. Rotating to a fresh code restores the full
// attempt budget.
func (e *Engine) RequestSmsCode(ctx context.Context, deviceToken, phoneNumber string) (SmsCodeResult, error) {
	if e == nil {
		return SmsCodeResult{}, ErrEngineNotReady
	}

	deviceID, err := e.deviceSubject(deviceToken)
	if err != nil {
		return SmsCodeResult{}, err
	}

	if !phoneNumberPattern.MatchString(phoneNumber) {
		return SmsCodeResult{
			Status: SmsCodeWrongPhoneNumber,
			Reason: "phone number must be in international format",
		}, nil
	}

	rec, err := e.devices.Get(ctx, deviceID)
	if err != nil {
		return SmsCodeResult{}, err
	}
	if rec == nil {
		return SmsCodeResult{Status: SmsCodeTokenRevoked}, nil
	}

	bannedPhone, err := e.devices.PhoneBanned(ctx, phoneNumber)
	if err != nil {
		return SmsCodeResult{}, err
	}
	if bannedPhone || banned(rec.AttemptsLeft) {
		e.metricInc(MetricPhoneBanned)
		e.emitAudit(ctx, AuditEvent{
			EventType: "sms_code_rejected",
			DeviceID:  deviceID,
			Error:     "phone banned",
		})
		return SmsCodeResult{Status: SmsCodePhoneBanned}, nil
	}

	now := e.clock.Now()
	cutoff := now.Add(-e.config.Phone.ClaimWindow)

	claimed, err := e.devices.PhoneClaimedElsewhere(ctx, phoneNumber, deviceID, cutoff)
	if err != nil {
		return SmsCodeResult{}, err
	}
	if claimed {
		e.metricInc(MetricPhoneClaimConflict)
		return SmsCodeResult{Status: SmsCodeAuthenticationInProgress}, nil
	}

	code := rec.SecretCode
	reused := rec.PhoneNumber == phoneNumber && rec.HasPendingCode(cutoff)
	if !reused {
		code = e.newCode()
	}

	sent, err := e.sms.Send(ctx, SMSMessage{
		Body: e.config.Phone.SMSBody + " " + code,
		From: e.config.Phone.SMSFrom,
		To:   phoneNumber,
	})
	if err != nil {
		return SmsCodeResult{}, fmt.Errorf("%w: %v", ErrSmsUnavailable, err)
	}
	if sent.WrongPhoneNumber != "" {
		return SmsCodeResult{
			Status: SmsCodeWrongPhoneNumber,
			Reason: sent.WrongPhoneNumber,
		}, nil
	}
	if !sent.OK {
		e.metricInc(MetricSmsProviderError)
		e.logger.Warn("sms provider rejected dispatch",
			zap.String("device_id", deviceID),
			zap.String("provider_code", sent.Code))
		// A code the provider refused to deliver must not stay claimable.
		rec.SecretCode = ""
		rec.SecretCreatedAt = time.Time{}
		rec.AttemptsLeft = initialAttemptsCount
		if err := e.devices.Save(ctx, rec); err != nil {
			return SmsCodeResult{}, err
		}
		return SmsCodeResult{
			Status:          SmsCodeProviderError,
			ProviderCode:    sent.Code,
			ProviderMessage: sent.ErrorMessage,
		}, nil
	}

	if !reused {
		rec.PhoneNumber = phoneNumber
		rec.SecretCode = code
		rec.SecretCreatedAt = now
		rec.AttemptsLeft = initialAttemptsCount
		if err := e.devices.Save(ctx, rec); err != nil {
			return SmsCodeResult{}, err
		}
		e.metricInc(MetricSmsCodeSent)
	} else {
		e.metricInc(MetricSmsCodeReused)
	}

	e.emitAudit(ctx, AuditEvent{
		EventType: "sms_code_sent",
		DeviceID:  deviceID,
		Success:   true,
		Metadata:  map[string]string{"reused": boolToField(reused)},
	})

	return SmsCodeResult{Status: SmsCodeSent, AttemptsLeft: rec.AttemptsLeft}, nil
}

// RequestTwofaSmsCode dispatches a one-time code to the phone number the
// device verified previously. It serves re-login on a device that already
// completed phone verification once; a device with no attached member gets
// SmsCodeTokenRevoked.
func (e *Engine) RequestTwofaSmsCode(ctx context.Context, deviceToken string) (SmsCodeResult, error) {
	if e == nil {
		return SmsCodeResult{}, ErrEngineNotReady
	}

	deviceID, err := e.deviceSubject(deviceToken)
	if err != nil {
		return SmsCodeResult{}, err
	}

	rec, err := e.devices.Get(ctx, deviceID)
	if err != nil {
		return SmsCodeResult{}, err
	}
	if rec == nil || rec.MemberID == "" || rec.PhoneNumber == "" {
		return SmsCodeResult{Status: SmsCodeTokenRevoked}, nil
	}
	if banned(rec.AttemptsLeft) {
		e.metricInc(MetricPhoneBanned)
		return SmsCodeResult{Status: SmsCodePhoneBanned}, nil
	}

	now := e.clock.Now()
	cutoff := now.Add(-e.config.Phone.ClaimWindow)

	code := rec.SecretCode
	reused := rec.HasPendingCode(cutoff)
	if !reused {
		code = e.newCode()
	}

	sent, err := e.sms.Send(ctx, SMSMessage{
		Body: e.config.Phone.SMSBody + " " + code,
		From: e.config.Phone.SMSFrom,
		To:   rec.PhoneNumber,
	})
	if err != nil {
		return SmsCodeResult{}, fmt.Errorf("%w: %v", ErrSmsUnavailable, err)
	}
	if sent.WrongPhoneNumber != "" {
		return SmsCodeResult{
			Status: SmsCodeWrongPhoneNumber,
			Reason: sent.WrongPhoneNumber,
		}, nil
	}
	if !sent.OK {
		e.metricInc(MetricSmsProviderError)
		rec.SecretCode = ""
		rec.SecretCreatedAt = time.Time{}
		rec.AttemptsLeft = initialAttemptsCount
		if err := e.devices.Save(ctx, rec); err != nil {
			return SmsCodeResult{}, err
		}
		return SmsCodeResult{
			Status:          SmsCodeProviderError,
			ProviderCode:    sent.Code,
			ProviderMessage: sent.ErrorMessage,
		}, nil
	}

	if !reused {
		rec.SecretCode = code
		rec.SecretCreatedAt = now
		rec.AttemptsLeft = initialAttemptsCount
		if err := e.devices.Save(ctx, rec); err != nil {
			return SmsCodeResult{}, err
		}
		e.metricInc(MetricSmsCodeSent)
	} else {
		e.metricInc(MetricSmsCodeReused)
	}

	e.emitAudit(ctx, AuditEvent{
		EventType: "twofa_sms_code_sent",
		DeviceID:  deviceID,
		MemberID:  rec.MemberID,
		Success:   true,
	})

	return SmsCodeResult{Status: SmsCodeSent, AttemptsLeft: rec.AttemptsLeft}, nil
}

// IssueSessionToken checks the submitted one-time code against the device's
// pending challenge and, on success, resolves the phone number to a member
// identity, attaches the device to it, and returns a session token with the
// requested scope. An empty scope defaults to Trading; Sensitive cannot be
// requested here, it is only minted by [Engine.IssueSensitiveSessionToken].
//
// The attempt budget is spent before the comparison, so a burst of concurrent
// wrong guesses cannot overshoot the budget.
func (e *Engine) IssueSessionToken(ctx context.Context, deviceToken, code string, scope Scope) (SessionIssueResult, error) {
	if e == nil {
		return SessionIssueResult{}, ErrEngineNotReady
	}
	defer func(start time.Time) {
		e.metricObserve(MetricVerifyLatency, time.Since(start))
	}(time.Now())

	if scope == "" {
		scope = ScopeTrading
	}
	if scope != ScopeTrading && scope != ScopeUpdateSecondFactor {
		return SessionIssueResult{}, ErrInvalidScope
	}

	deviceID, err := e.deviceSubject(deviceToken)
	if err != nil {
		return SessionIssueResult{}, err
	}

	rec, err := e.devices.Get(ctx, deviceID)
	if err != nil {
		return SessionIssueResult{}, err
	}

	now := e.clock.Now()
	cutoff := now.Add(-e.config.Phone.ClaimWindow)
	if rec == nil || !rec.HasPendingCode(cutoff) {
		return SessionIssueResult{Status: SessionNoVerificationInProgress}, nil
	}
	if banned(rec.AttemptsLeft) {
		e.metricInc(MetricPhoneBanned)
		return SessionIssueResult{Status: SessionPhoneBanned}, nil
	}

	remaining, err := e.devices.DecrementAttempts(ctx, deviceID)
	if err != nil {
		return SessionIssueResult{}, err
	}
	attemptsLeft, nowBanned := spendAttempt(remaining)

	if code == "" || code != rec.SecretCode {
		e.metricInc(MetricSmsCodeIncorrect)
		e.emitAudit(ctx, AuditEvent{
			EventType: "sms_code_incorrect",
			DeviceID:  deviceID,
		})
		if nowBanned {
			e.metricInc(MetricPhoneBanned)
			return SessionIssueResult{Status: SessionPhoneBanned}, nil
		}
		return SessionIssueResult{Status: SessionCodeIncorrect, AttemptsLeft: attemptsLeft}, nil
	}

	memberID, created, err := e.resolver.Resolve(ctx, phoneLookupKey(rec.PhoneNumber))
	if err != nil {
		return SessionIssueResult{}, err
	}
	if created {
		e.metricInc(MetricIdentityCreated)
	} else {
		e.metricInc(MetricIdentityResolved)
	}

	isReset := rec.MemberID != "" && rec.MemberID != memberID
	if e.events != nil {
		if err := e.events.PublishIdentityResolved(ctx, IdentityEvent{
			IdentityID: memberID,
			IsCreated:  created,
			IsReset:    isReset,
		}); err != nil {
			// Publishing is best effort for the login path; downstream
			// consumers reconcile from storage on restart.
			e.metricInc(MetricEventPublishFailure)
			e.logger.Error("identity event publish failed",
				zap.String("member_id", memberID),
				zap.Error(errors.Join(ErrPublishFailed, err)))
		} else {
			e.metricInc(MetricEventPublished)
		}
	}

	if err := e.devices.Attach(ctx, deviceID, memberID); err != nil {
		return SessionIssueResult{}, err
	}

	signed, err := e.tokens.CreateSession(memberID, scope.lower(), now)
	if err != nil {
		return SessionIssueResult{}, err
	}

	e.metricInc(MetricSessionIssued)
	e.emitAudit(ctx, AuditEvent{
		EventType: "session_issued",
		DeviceID:  deviceID,
		MemberID:  memberID,
		Scope:     string(scope),
		Success:   true,
	})
	e.logger.Info("session issued",
		zap.String("device_id", deviceID),
		zap.String("member_id", memberID),
		zap.Bool("identity_created", created))

	return SessionIssueResult{Status: SessionIssued, SessionToken: signed}, nil
}

// ReissueSessionToken returns a fresh trading-scope session token for a
// device that has already completed phone verification. No second factor is
// consulted; possession of the device token is the credential.
func (e *Engine) ReissueSessionToken(ctx context.Context, deviceToken string) (ReissueResult, error) {
	if e == nil {
		return ReissueResult{}, ErrEngineNotReady
	}

	deviceID, err := e.deviceSubject(deviceToken)
	if err != nil {
		return ReissueResult{}, err
	}

	rec, err := e.devices.Get(ctx, deviceID)
	if err != nil {
		return ReissueResult{}, err
	}
	if rec == nil || rec.MemberID == "" {
		return ReissueResult{Status: ReissueSmsVerificationIncomplete}, nil
	}

	signed, err := e.tokens.CreateSession(rec.MemberID, ScopeTrading.lower(), e.clock.Now())
	if err != nil {
		return ReissueResult{}, err
	}

	e.metricInc(MetricSessionReissued)
	e.emitAudit(ctx, AuditEvent{
		EventType: "session_reissued",
		DeviceID:  deviceID,
		MemberID:  rec.MemberID,
		Scope:     string(ScopeTrading),
		Success:   true,
	})

	return ReissueResult{Status: ReissueIssued, SessionToken: signed}, nil
}
