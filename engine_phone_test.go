package authgate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRequestSmsCodeSendsCode(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()
	ctx := context.Background()

	deviceToken, err := h.engine.CreateDeviceToken(ctx)
	if err != nil {
		t.Fatalf("CreateDeviceToken failed: %v", err)
	}

	res, err := h.engine.RequestSmsCode(ctx, deviceToken, "+12025550100")
	if err != nil {
		t.Fatalf("RequestSmsCode failed: %v", err)
	}
	if res.Status != SmsCodeSent {
		t.Fatalf("expected SmsCodeSent, got %v", res.Status)
	}
	if res.AttemptsLeft != initialAttemptsCount {
		t.Fatalf("expected full attempt budget, got %d", res.AttemptsLeft)
	}
	if h.sms.count() != 1 {
		t.Fatalf("expected 1 sms, got %d", h.sms.count())
	}
	if msg := h.sms.last(); msg.To != "+12025550100" || !strings.HasSuffix(msg.Body, "1111") {
		t.Fatalf("unexpected sms %+v", msg)
	}
}

func TestRequestSmsCodeRejectsMalformedNumber(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()
	ctx := context.Background()

	deviceToken, err := h.engine.CreateDeviceToken(ctx)
	if err != nil {
		t.Fatalf("CreateDeviceToken failed: %v", err)
	}

	for _, phone := range []string{"", "12025550100", "+1202", "+1202555010012345678", "+12025a50100"} {
		res, err := h.engine.RequestSmsCode(ctx, deviceToken, phone)
		if err != nil {
			t.Fatalf("RequestSmsCode(%q) failed: %v", phone, err)
		}
		if res.Status != SmsCodeWrongPhoneNumber {
			t.Fatalf("expected SmsCodeWrongPhoneNumber for %q, got %v", phone, res.Status)
		}
	}
	if h.sms.count() != 0 {
		t.Fatalf("expected no sms dispatches, got %d", h.sms.count())
	}
}

func TestRequestSmsCodeRequiresDeviceToken(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()

	if _, err := h.engine.RequestSmsCode(context.Background(), "", "+12025550100"); !errors.Is(err, ErrDeviceTokenRequired) {
		t.Fatalf("expected ErrDeviceTokenRequired, got %v", err)
	}
	if _, err := h.engine.RequestSmsCode(context.Background(), "not-a-token", "+12025550100"); !errors.Is(err, ErrDeviceTokenInvalid) {
		t.Fatalf("expected ErrDeviceTokenInvalid, got %v", err)
	}
}

func TestRequestSmsCodeReusesPendingCodeWithinWindow(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()
	ctx := context.Background()

	deviceToken, err := h.engine.CreateDeviceToken(ctx)
	if err != nil {
		t.Fatalf("CreateDeviceToken failed: %v", err)
	}

	if _, err := h.engine.RequestSmsCode(ctx, deviceToken, "+12025550100"); err != nil {
		t.Fatalf("first RequestSmsCode failed: %v", err)
	}
	first := h.sms.last().Body

	h.clock.Advance(4 * time.Minute)
	if _, err := h.engine.RequestSmsCode(ctx, deviceToken, "+12025550100"); err != nil {
		t.Fatalf("second RequestSmsCode failed: %v", err)
	}
	if h.sms.last().Body != first {
		t.Fatalf("expected resend of pending code, got %q then %q", first, h.sms.last().Body)
	}

	h.clock.Advance(3 * time.Minute)
	if _, err := h.engine.RequestSmsCode(ctx, deviceToken, "+12025550100"); err != nil {
		t.Fatalf("third RequestSmsCode failed: %v", err)
	}
	if h.sms.last().Body == first {
		t.Fatal("expected a rotated code after the claim window elapsed")
	}
}

func TestRequestSmsCodeCrossDeviceClaimConflict(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()
	ctx := context.Background()

	tokenA, err := h.engine.CreateDeviceToken(ctx)
	if err != nil {
		t.Fatalf("CreateDeviceToken failed: %v", err)
	}
	tokenB, err := h.engine.CreateDeviceToken(ctx)
	if err != nil {
		t.Fatalf("CreateDeviceToken failed: %v", err)
	}

	if _, err := h.engine.RequestSmsCode(ctx, tokenA, "+12025550100"); err != nil {
		t.Fatalf("RequestSmsCode on device A failed: %v", err)
	}

	res, err := h.engine.RequestSmsCode(ctx, tokenB, "+12025550100")
	if err != nil {
		t.Fatalf("RequestSmsCode on device B failed: %v", err)
	}
	if res.Status != SmsCodeAuthenticationInProgress {
		t.Fatalf("expected SmsCodeAuthenticationInProgress, got %v", res.Status)
	}

	// After the window the claim lapses and device B may proceed.
	h.clock.Advance(6 * time.Minute)
	res, err = h.engine.RequestSmsCode(ctx, tokenB, "+12025550100")
	if err != nil {
		t.Fatalf("RequestSmsCode on device B after window failed: %v", err)
	}
	if res.Status != SmsCodeSent {
		t.Fatalf("expected SmsCodeSent after window, got %v", res.Status)
	}
}

func TestRequestSmsCodeProviderOutcomes(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()
	ctx := context.Background()

	deviceToken, err := h.engine.CreateDeviceToken(ctx)
	if err != nil {
		t.Fatalf("CreateDeviceToken failed: %v", err)
	}

	h.sms.result = SMSResult{WrongPhoneNumber: "unreachable destination"}
	res, err := h.engine.RequestSmsCode(ctx, deviceToken, "+12025550100")
	if err != nil {
		t.Fatalf("RequestSmsCode failed: %v", err)
	}
	if res.Status != SmsCodeWrongPhoneNumber || res.Reason != "unreachable destination" {
		t.Fatalf("unexpected result %+v", res)
	}

	h.sms.result = SMSResult{Code: "30007", ErrorMessage: "carrier violation"}
	res, err = h.engine.RequestSmsCode(ctx, deviceToken, "+12025550100")
	if err != nil {
		t.Fatalf("RequestSmsCode failed: %v", err)
	}
	if res.Status != SmsCodeProviderError || res.ProviderCode != "30007" {
		t.Fatalf("unexpected result %+v", res)
	}

	h.sms.err = errors.New("connection refused")
	if _, err := h.engine.RequestSmsCode(ctx, deviceToken, "+12025550100"); !errors.Is(err, ErrSmsUnavailable) {
		t.Fatalf("expected ErrSmsUnavailable, got %v", err)
	}
}

func TestRequestSmsCodeFreshChallengeResetsAttempts(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()
	ctx := context.Background()

	deviceToken, err := h.engine.CreateDeviceToken(ctx)
	if err != nil {
		t.Fatalf("CreateDeviceToken failed: %v", err)
	}
	if _, err := h.engine.RequestSmsCode(ctx, deviceToken, "+12025550100"); err != nil {
		t.Fatalf("RequestSmsCode failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := h.engine.IssueSessionToken(ctx, deviceToken, "0000", ScopeTrading); err != nil {
			t.Fatalf("IssueSessionToken failed: %v", err)
		}
	}
	if rec := h.deviceRecord(t, deviceToken); rec.AttemptsLeft != initialAttemptsCount-2 {
		t.Fatalf("expected %d attempts after wrong guesses, got %d", initialAttemptsCount-2, rec.AttemptsLeft)
	}

	// A rotated code starts a new challenge cycle with a full budget.
	h.clock.Advance(6 * time.Minute)
	res, err := h.engine.RequestSmsCode(ctx, deviceToken, "+12025550100")
	if err != nil {
		t.Fatalf("RequestSmsCode failed: %v", err)
	}
	if res.Status != SmsCodeSent {
		t.Fatalf("expected SmsCodeSent, got %v", res.Status)
	}
	if res.AttemptsLeft != initialAttemptsCount {
		t.Fatalf("expected full budget on fresh challenge, got %d", res.AttemptsLeft)
	}
	if rec := h.deviceRecord(t, deviceToken); rec.AttemptsLeft != initialAttemptsCount {
		t.Fatalf("expected persisted budget reset, got %d", rec.AttemptsLeft)
	}
}

func TestRequestSmsCodeProviderErrorVoidsPendingChallenge(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()
	ctx := context.Background()

	deviceToken, err := h.engine.CreateDeviceToken(ctx)
	if err != nil {
		t.Fatalf("CreateDeviceToken failed: %v", err)
	}
	if _, err := h.engine.RequestSmsCode(ctx, deviceToken, "+12025550100"); err != nil {
		t.Fatalf("RequestSmsCode failed: %v", err)
	}
	if _, err := h.engine.IssueSessionToken(ctx, deviceToken, "0000", ScopeTrading); err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}

	h.sms.result = SMSResult{Code: "30007", ErrorMessage: "carrier violation"}
	res, err := h.engine.RequestSmsCode(ctx, deviceToken, "+12025550100")
	if err != nil {
		t.Fatalf("RequestSmsCode failed: %v", err)
	}
	if res.Status != SmsCodeProviderError {
		t.Fatalf("expected SmsCodeProviderError, got %v", res.Status)
	}

	rec := h.deviceRecord(t, deviceToken)
	if rec.SecretCode != "" || !rec.SecretCreatedAt.IsZero() {
		t.Fatalf("expected challenge cleared after provider rejection, got %+v", rec)
	}
	if rec.AttemptsLeft != initialAttemptsCount {
		t.Fatalf("expected attempt budget reset, got %d", rec.AttemptsLeft)
	}

	// The undelivered code no longer answers verification.
	h.sms.result = SMSResult{OK: true}
	verify, err := h.engine.IssueSessionToken(ctx, deviceToken, "1111", ScopeTrading)
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}
	if verify.Status != SessionNoVerificationInProgress {
		t.Fatalf("expected SessionNoVerificationInProgress, got %v", verify.Status)
	}
}

func TestIssueSessionTokenHappyPath(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()

	deviceToken, sessionToken := h.verifiedSession(t, "+12025550100")

	claims, err := h.engine.tokens.ParseSession(sessionToken)
	if err != nil {
		t.Fatalf("ParseSession failed: %v", err)
	}
	if !claims.HasScope(string(ScopeTrading)) {
		t.Fatalf("expected trading scope, got %q", claims.Scope)
	}

	rec := h.deviceRecord(t, deviceToken)
	if rec.MemberID == "" {
		t.Fatal("expected device attached to a member")
	}
	if rec.SecretCode != "" {
		t.Fatal("expected pending code cleared after verification")
	}
	if rec.AttemptsLeft != initialAttemptsCount {
		t.Fatalf("expected attempt budget reset, got %d", rec.AttemptsLeft)
	}

	events := h.events.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 identity event, got %d", len(events))
	}
	if events[0].IdentityID != rec.MemberID || !events[0].IsCreated || events[0].IsReset {
		t.Fatalf("unexpected event %+v", events[0])
	}
}

func TestIssueSessionTokenWrongCodeSpendsAttempt(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()
	ctx := context.Background()

	deviceToken, err := h.engine.CreateDeviceToken(ctx)
	if err != nil {
		t.Fatalf("CreateDeviceToken failed: %v", err)
	}
	if _, err := h.engine.RequestSmsCode(ctx, deviceToken, "+12025550100"); err != nil {
		t.Fatalf("RequestSmsCode failed: %v", err)
	}

	res, err := h.engine.IssueSessionToken(ctx, deviceToken, "0000", ScopeTrading)
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}
	if res.Status != SessionCodeIncorrect {
		t.Fatalf("expected SessionCodeIncorrect, got %v", res.Status)
	}
	if res.AttemptsLeft != initialAttemptsCount-1 {
		t.Fatalf("expected %d attempts left, got %d", initialAttemptsCount-1, res.AttemptsLeft)
	}

	// The correct code still verifies afterwards.
	verify, err := h.engine.IssueSessionToken(ctx, deviceToken, "1111", ScopeTrading)
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}
	if verify.Status != SessionIssued {
		t.Fatalf("expected SessionIssued, got %v", verify.Status)
	}
}

func TestIssueSessionTokenBansAfterBudgetExhausted(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()
	ctx := context.Background()

	deviceToken, err := h.engine.CreateDeviceToken(ctx)
	if err != nil {
		t.Fatalf("CreateDeviceToken failed: %v", err)
	}
	if _, err := h.engine.RequestSmsCode(ctx, deviceToken, "+12025550100"); err != nil {
		t.Fatalf("RequestSmsCode failed: %v", err)
	}

	var last SessionIssueResult
	for i := int64(0); i < initialAttemptsCount; i++ {
		last, err = h.engine.IssueSessionToken(ctx, deviceToken, "0000", ScopeTrading)
		if err != nil {
			t.Fatalf("IssueSessionToken failed: %v", err)
		}
	}
	if last.Status != SessionPhoneBanned {
		t.Fatalf("expected SessionPhoneBanned on final attempt, got %v", last.Status)
	}

	// The correct code is refused once banned.
	res, err := h.engine.IssueSessionToken(ctx, deviceToken, "1111", ScopeTrading)
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}
	if res.Status != SessionPhoneBanned {
		t.Fatalf("expected SessionPhoneBanned, got %v", res.Status)
	}

	// So is a fresh SMS request for the same number, from any device.
	other, err := h.engine.CreateDeviceToken(ctx)
	if err != nil {
		t.Fatalf("CreateDeviceToken failed: %v", err)
	}
	smsRes, err := h.engine.RequestSmsCode(ctx, other, "+12025550100")
	if err != nil {
		t.Fatalf("RequestSmsCode failed: %v", err)
	}
	if smsRes.Status != SmsCodePhoneBanned {
		t.Fatalf("expected SmsCodePhoneBanned, got %v", smsRes.Status)
	}
}

func TestIssueSessionTokenNoPendingChallenge(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()
	ctx := context.Background()

	deviceToken, err := h.engine.CreateDeviceToken(ctx)
	if err != nil {
		t.Fatalf("CreateDeviceToken failed: %v", err)
	}

	res, err := h.engine.IssueSessionToken(ctx, deviceToken, "1111", ScopeTrading)
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}
	if res.Status != SessionNoVerificationInProgress {
		t.Fatalf("expected SessionNoVerificationInProgress, got %v", res.Status)
	}

	// A challenge older than the claim window no longer verifies.
	if _, err := h.engine.RequestSmsCode(ctx, deviceToken, "+12025550100"); err != nil {
		t.Fatalf("RequestSmsCode failed: %v", err)
	}
	h.clock.Advance(6 * time.Minute)
	res, err = h.engine.IssueSessionToken(ctx, deviceToken, "1111", ScopeTrading)
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}
	if res.Status != SessionNoVerificationInProgress {
		t.Fatalf("expected SessionNoVerificationInProgress after expiry, got %v", res.Status)
	}
}

func TestIssueSessionTokenRejectsSensitiveScope(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()

	deviceToken, err := h.engine.CreateDeviceToken(context.Background())
	if err != nil {
		t.Fatalf("CreateDeviceToken failed: %v", err)
	}
	if _, err := h.engine.IssueSessionToken(context.Background(), deviceToken, "1111", ScopeSensitive); !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope, got %v", err)
	}
}

func TestIssueSessionTokenSameIdentityAcrossDevices(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()

	deviceA, _ := h.verifiedSession(t, "+12025550100")
	h.clock.Advance(6 * time.Minute)
	deviceB, _ := h.verifiedSession(t, "+12025550100")

	recA := h.deviceRecord(t, deviceA)
	recB := h.deviceRecord(t, deviceB)
	if recA.MemberID != recB.MemberID {
		t.Fatalf("expected same member for same phone, got %q and %q", recA.MemberID, recB.MemberID)
	}

	events := h.events.all()
	if len(events) != 2 {
		t.Fatalf("expected 2 identity events, got %d", len(events))
	}
	if !events[0].IsCreated || events[1].IsCreated {
		t.Fatalf("expected created-then-resolved, got %+v", events)
	}
}

func TestRequestTwofaSmsCode(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()
	ctx := context.Background()

	deviceToken, _ := h.verifiedSession(t, "+12025550100")

	h.clock.Advance(6 * time.Minute)
	res, err := h.engine.RequestTwofaSmsCode(ctx, deviceToken)
	if err != nil {
		t.Fatalf("RequestTwofaSmsCode failed: %v", err)
	}
	if res.Status != SmsCodeSent {
		t.Fatalf("expected SmsCodeSent, got %v", res.Status)
	}
	if h.sms.last().To != "+12025550100" {
		t.Fatalf("expected dispatch to stored phone, got %q", h.sms.last().To)
	}

	// A device that never verified a phone has nothing to re-verify.
	fresh, err := h.engine.CreateDeviceToken(ctx)
	if err != nil {
		t.Fatalf("CreateDeviceToken failed: %v", err)
	}
	res, err = h.engine.RequestTwofaSmsCode(ctx, fresh)
	if err != nil {
		t.Fatalf("RequestTwofaSmsCode failed: %v", err)
	}
	if res.Status != SmsCodeTokenRevoked {
		t.Fatalf("expected SmsCodeTokenRevoked, got %v", res.Status)
	}
}

func TestRequestTwofaSmsCodeFreshChallengeResetsAttempts(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()
	ctx := context.Background()

	deviceToken, _ := h.verifiedSession(t, "+12025550100")

	h.clock.Advance(6 * time.Minute)
	if _, err := h.engine.RequestTwofaSmsCode(ctx, deviceToken); err != nil {
		t.Fatalf("RequestTwofaSmsCode failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := h.engine.IssueSessionToken(ctx, deviceToken, "0000", ScopeTrading); err != nil {
			t.Fatalf("IssueSessionToken failed: %v", err)
		}
	}

	h.clock.Advance(6 * time.Minute)
	res, err := h.engine.RequestTwofaSmsCode(ctx, deviceToken)
	if err != nil {
		t.Fatalf("RequestTwofaSmsCode failed: %v", err)
	}
	if res.Status != SmsCodeSent {
		t.Fatalf("expected SmsCodeSent, got %v", res.Status)
	}
	if res.AttemptsLeft != initialAttemptsCount {
		t.Fatalf("expected full budget on fresh challenge, got %d", res.AttemptsLeft)
	}
}

func TestRequestTwofaSmsCodeProviderErrorVoidsPendingChallenge(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()
	ctx := context.Background()

	deviceToken, _ := h.verifiedSession(t, "+12025550100")

	h.clock.Advance(6 * time.Minute)
	if _, err := h.engine.RequestTwofaSmsCode(ctx, deviceToken); err != nil {
		t.Fatalf("RequestTwofaSmsCode failed: %v", err)
	}
	pending := h.sms.last().Body
	pending = pending[len(pending)-4:]

	h.sms.result = SMSResult{Code: "30007", ErrorMessage: "carrier violation"}
	res, err := h.engine.RequestTwofaSmsCode(ctx, deviceToken)
	if err != nil {
		t.Fatalf("RequestTwofaSmsCode failed: %v", err)
	}
	if res.Status != SmsCodeProviderError {
		t.Fatalf("expected SmsCodeProviderError, got %v", res.Status)
	}

	rec := h.deviceRecord(t, deviceToken)
	if rec.SecretCode != "" || !rec.SecretCreatedAt.IsZero() {
		t.Fatalf("expected challenge cleared after provider rejection, got %+v", rec)
	}
	if rec.MemberID == "" {
		t.Fatal("expected member attachment retained")
	}

	h.sms.result = SMSResult{OK: true}
	verify, err := h.engine.IssueSessionToken(ctx, deviceToken, pending, ScopeUpdateSecondFactor)
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}
	if verify.Status != SessionNoVerificationInProgress {
		t.Fatalf("expected SessionNoVerificationInProgress, got %v", verify.Status)
	}
}

func TestReissueSessionToken(t *testing.T) {
	h, done := newEngineHarness(t, engineTestConfig())
	defer done()
	ctx := context.Background()

	deviceToken, _ := h.verifiedSession(t, "+12025550100")

	res, err := h.engine.ReissueSessionToken(ctx, deviceToken)
	if err != nil {
		t.Fatalf("ReissueSessionToken failed: %v", err)
	}
	if res.Status != ReissueIssued || res.SessionToken == "" {
		t.Fatalf("unexpected result %+v", res)
	}

	claims, err := h.engine.tokens.ParseSession(res.SessionToken)
	if err != nil {
		t.Fatalf("ParseSession failed: %v", err)
	}
	if !claims.HasScope(string(ScopeTrading)) {
		t.Fatalf("expected trading scope, got %q", claims.Scope)
	}

	fresh, err := h.engine.CreateDeviceToken(ctx)
	if err != nil {
		t.Fatalf("CreateDeviceToken failed: %v", err)
	}
	res, err = h.engine.ReissueSessionToken(ctx, fresh)
	if err != nil {
		t.Fatalf("ReissueSessionToken failed: %v", err)
	}
	if res.Status != ReissueSmsVerificationIncomplete {
		t.Fatalf("expected ReissueSmsVerificationIncomplete, got %v", res.Status)
	}
}
