package authgate

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"go.uber.org/zap"
)

var emailAddressPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func (e *Engine) verificationLink(secret string) string {
	return fmt.Sprintf("https://%s/twofa/email/verify?secret=%s",
		e.config.Email.AuthHost, url.QueryEscape(secret))
}

// IssueEmailVerificationSecret starts email-factor enrollment: it mints a
// unique opaque secret, stages it on the profile, and mails the member a
// confirmation link embedding it. Enrollment completes when the link lands on
// [Engine.VerifyEmailSecret] within the configured TTL.
func (e *Engine) IssueEmailVerificationSecret(ctx context.Context, sessionToken, email string) (EmailSecretResult, error) {
	if e == nil {
		return EmailSecretResult{}, ErrEngineNotReady
	}

	memberID, err := e.sessionSubject(sessionToken, ScopeUpdateSecondFactor)
	if err != nil {
		return EmailSecretResult{}, err
	}

	if !emailAddressPattern.MatchString(email) {
		return EmailSecretResult{
			Status: EmailSecretWrongEmail,
			Reason: "email address is malformed",
		}, nil
	}

	profile, err := e.profileForMember(ctx, memberID)
	if err != nil {
		return EmailSecretResult{}, err
	}
	if profile == nil {
		return EmailSecretResult{Status: EmailSecretTokenRevoked}, nil
	}
	if profile.EmailEnabled {
		return EmailSecretResult{Status: EmailSecretFactorEnabled}, nil
	}

	// The secret doubles as a lookup key, so it must be unique across all
	// outstanding enrollments.
	var secret string
	found := false
	for i := 0; i < e.config.Email.SecretGenerationRetries; i++ {
		candidate := e.newSecret()
		taken, err := e.profiles.FindByEmailSecret(ctx, candidate)
		if err != nil {
			return EmailSecretResult{}, err
		}
		if taken == nil {
			secret = candidate
			found = true
			break
		}
	}
	if !found {
		e.logger.Error("email secret generation budget exhausted",
			zap.String("member_id", memberID))
		return EmailSecretResult{Status: EmailSecretGenerationLimit}, nil
	}

	link := e.verificationLink(secret)
	msg := EmailMessage{
		From:    e.config.Email.From,
		To:      email,
		Subject: e.config.Email.VerificationSubject,
		Text:    e.mailTemplate.VerificationText(email, link),
		HTML:    e.mailTemplate.VerificationHTML(email, link),
	}
	if err := e.mail.Send(ctx, msg); err != nil {
		return EmailSecretResult{}, fmt.Errorf("%w: %v", ErrMailUnavailable, err)
	}

	profile.EmailAddress = email
	profile.EmailSecret = secret
	profile.EmailSecretCreatedAt = e.clock.Now()
	profile.EmailAttemptsLeft = initialAttemptsCount
	if err := e.profiles.Save(ctx, profile); err != nil {
		return EmailSecretResult{}, err
	}

	e.metricInc(MetricEmailSecretIssued)
	e.emitAudit(ctx, AuditEvent{
		EventType: "email_secret_issued",
		MemberID:  memberID,
		Success:   true,
	})

	return EmailSecretResult{Status: EmailSecretSent}, nil
}

// VerifyEmailSecret completes email-factor enrollment from the mailed link.
// No session token is required: possession of the unexpired secret is the
// credential.
func (e *Engine) VerifyEmailSecret(ctx context.Context, secret string) (EmailConfirmResult, error) {
	if e == nil {
		return EmailConfirmResult{}, ErrEngineNotReady
	}
	if secret == "" {
		return EmailConfirmResult{Status: EmailConfirmWrongSecret}, nil
	}

	profile, err := e.profiles.FindByEmailSecret(ctx, secret)
	if err != nil {
		return EmailConfirmResult{}, err
	}
	if profile == nil {
		return EmailConfirmResult{Status: EmailConfirmWrongSecret}, nil
	}

	cutoff := e.clock.Now().Add(-e.config.Email.SecretTTL)
	if profile.EmailSecretCreatedAt.Before(cutoff) {
		e.metricInc(MetricEmailSecretExpired)
		return EmailConfirmResult{Status: EmailConfirmExpired}, nil
	}

	profile.EmailEnabled = true
	profile.EmailSecret = ""
	profile.EmailSecretCreatedAt = time.Time{}
	profile.EmailAttemptsLeft = initialAttemptsCount
	if err := e.profiles.Save(ctx, profile); err != nil {
		return EmailConfirmResult{}, err
	}

	e.metricInc(MetricEmailEnrolled)
	e.emitAudit(ctx, AuditEvent{
		EventType: "email_factor_enabled",
		MemberID:  profile.MemberID,
		Success:   true,
	})
	e.logger.Info("email factor enabled", zap.String("member_id", profile.MemberID))

	return EmailConfirmResult{Status: EmailConfirmSuccess}, nil
}

// SendEmailConfirmationCode mails a short one-time code to the member's
// verified address, ahead of a sensitive-session escalation.
func (e *Engine) SendEmailConfirmationCode(ctx context.Context, sessionToken string) (EmailCodeResult, error) {
	if e == nil {
		return EmailCodeResult{}, ErrEngineNotReady
	}

	memberID, err := e.sessionSubject(sessionToken, ScopeTrading)
	if err != nil {
		return EmailCodeResult{}, err
	}

	profile, err := e.profileForMember(ctx, memberID)
	if err != nil {
		return EmailCodeResult{}, err
	}
	if profile == nil {
		return EmailCodeResult{Status: EmailCodeTokenRevoked}, nil
	}
	if !profile.EmailEnabled || profile.EmailAddress == "" {
		return EmailCodeResult{Status: EmailCodeNoVerificationInProgress}, nil
	}

	code := e.newCode()
	msg := EmailMessage{
		From:    e.config.Email.From,
		To:      profile.EmailAddress,
		Subject: e.config.Email.ConfirmationSubject,
		Text:    e.mailTemplate.CodeText(profile.EmailAddress, code),
		HTML:    e.mailTemplate.CodeHTML(profile.EmailAddress, code),
	}
	if err := e.mail.Send(ctx, msg); err != nil {
		return EmailCodeResult{}, fmt.Errorf("%w: %v", ErrMailUnavailable, err)
	}

	// A fresh code opens a fresh attempt budget, so a member who exhausted
	// theirs can recover by requesting a new code.
	profile.EmailCode = code
	profile.EmailAttemptsLeft = initialAttemptsCount
	if err := e.profiles.Save(ctx, profile); err != nil {
		return EmailCodeResult{}, err
	}

	e.metricInc(MetricEmailCodeSent)
	e.emitAudit(ctx, AuditEvent{
		EventType: "email_code_sent",
		MemberID:  memberID,
		Success:   true,
	})

	return EmailCodeResult{Status: EmailCodeSent}, nil
}

// DisableEmail2FA turns the email factor off and discards the address, any
// staged secret, and any outstanding code. Disabling an already disabled
// factor succeeds.
func (e *Engine) DisableEmail2FA(ctx context.Context, sessionToken string) (DisableResult, error) {
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

	profile.EmailAddress = ""
	profile.EmailSecret = ""
	profile.EmailSecretCreatedAt = time.Time{}
	profile.EmailEnabled = false
	profile.EmailCode = ""
	profile.EmailAttemptsLeft = initialAttemptsCount
	if err := e.profiles.Save(ctx, profile); err != nil {
		return DisableResult{}, err
	}

	e.metricInc(MetricEmailDisabled)
	e.emitAudit(ctx, AuditEvent{
		EventType: "email_factor_disabled",
		MemberID:  memberID,
		Success:   true,
	})

	return DisableResult{Status: DisableSuccess}, nil
}
