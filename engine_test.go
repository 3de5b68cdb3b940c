package authgate

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, rdb
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSMS struct {
	mu     sync.Mutex
	sent   []SMSMessage
	result SMSResult
	err    error
}

func newRecordingSMS() *recordingSMS {
	return &recordingSMS{result: SMSResult{OK: true}}
}

func (s *recordingSMS) Send(_ context.Context, msg SMSMessage) (SMSResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return SMSResult{}, s.err
	}
	s.sent = append(s.sent, msg)
	return s.result, nil
}

func (s *recordingSMS) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *recordingSMS) last() SMSMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return SMSMessage{}
	}
	return s.sent[len(s.sent)-1]
}

type recordingMail struct {
	mu   sync.Mutex
	sent []EmailMessage
	err  error
}

func (m *recordingMail) Send(_ context.Context, msg EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *recordingMail) last() EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return EmailMessage{}
	}
	return m.sent[len(m.sent)-1]
}

type recordingEvents struct {
	mu     sync.Mutex
	events []IdentityEvent
	err    error
}

func (p *recordingEvents) PublishIdentityResolved(_ context.Context, event IdentityEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *recordingEvents) all() []IdentityEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]IdentityEvent, len(p.events))
	copy(out, p.events)
	return out
}

// fakeTotp accepts exactly one code per secret: "ok:" + secret.
type fakeTotp struct {
	mu     sync.Mutex
	issued int
}

func (f *fakeTotp) GenerateSecret(account string) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued++
	secret := fmt.Sprintf("SECRET%d", f.issued)
	uri := "otpauth://totp/authgate:" + account + "?secret=" + secret
	return secret, uri, nil
}

func (f *fakeTotp) Validate(secret, code string) bool {
	return code == "ok:"+secret
}

// sequenceCodes returns codes from the list in order, then repeats the last.
func sequenceCodes(codes ...string) CodeGenerator {
	i := 0
	var mu sync.Mutex
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		code := codes[len(codes)-1]
		if i < len(codes) {
			code = codes[i]
			i++
		}
		return code
	}
}

func engineTestConfig() Config {
	cfg := defaultConfig()
	cfg.Token.DeviceSecret = []byte("device-signing-secret")
	cfg.Token.SessionSecret = []byte("session-signing-secret")
	cfg.Email.AuthHost = "auth.example.com"
	cfg.Email.From = "no-reply@example.com"
	return cfg
}

type engineHarness struct {
	engine *Engine
	clock  *fakeClock
	sms    *recordingSMS
	mail   *recordingMail
	events *recordingEvents
	totp   *fakeTotp
	rdb    *redis.Client
}

func newEngineHarness(t *testing.T, cfg Config, opts ...func(*Builder)) (*engineHarness, func()) {
	t.Helper()

	mr, rdb := newTestRedis(t)

	h := &engineHarness{
		clock:  newFakeClock(),
		sms:    newRecordingSMS(),
		mail:   &recordingMail{},
		events: &recordingEvents{},
		totp:   &fakeTotp{},
		rdb:    rdb,
	}

	builder := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithSMSSender(h.sms).
		WithMailSender(h.mail).
		WithMailTemplate(plainTemplate{}).
		WithEventPublisher(h.events).
		WithTotpVerifier(h.totp).
		WithClock(h.clock).
		WithCodeGenerator(sequenceCodes("1111", "2222", "3333", "4444"))

	for _, opt := range opts {
		opt(builder)
	}

	engine, err := builder.Build()
	if err != nil {
		mr.Close()
		t.Fatalf("Build failed: %v", err)
	}
	h.engine = engine

	return h, func() {
		engine.Close()
		mr.Close()
	}
}

type plainTemplate struct{}

func (plainTemplate) VerificationHTML(email, link string) string { return link }
func (plainTemplate) VerificationText(email, link string) string { return link }
func (plainTemplate) CodeHTML(email, code string) string         { return code }
func (plainTemplate) CodeText(email, code string) string         { return code }

// verifiedSession walks a device through phone verification and returns the
// device token plus a trading-scope session token.
func (h *engineHarness) verifiedSession(t *testing.T, phone string) (string, string) {
	t.Helper()
	ctx := context.Background()

	deviceToken, err := h.engine.CreateDeviceToken(ctx)
	if err != nil {
		t.Fatalf("CreateDeviceToken failed: %v", err)
	}

	smsRes, err := h.engine.RequestSmsCode(ctx, deviceToken, phone)
	if err != nil {
		t.Fatalf("RequestSmsCode failed: %v", err)
	}
	if smsRes.Status != SmsCodeSent {
		t.Fatalf("expected SmsCodeSent, got %v", smsRes.Status)
	}

	code := h.sms.last().Body
	code = code[len(code)-4:]

	issueRes, err := h.engine.IssueSessionToken(ctx, deviceToken, code, ScopeTrading)
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}
	if issueRes.Status != SessionIssued {
		t.Fatalf("expected SessionIssued, got %v", issueRes.Status)
	}

	return deviceToken, issueRes.SessionToken
}

// updateSession re-verifies the device by phone and returns a session token
// carrying the second-factor management scope.
func (h *engineHarness) updateSession(t *testing.T, deviceToken string) string {
	t.Helper()
	ctx := context.Background()

	// Step past the claim window so a fresh code is issued.
	h.clock.Advance(6 * time.Minute)

	smsRes, err := h.engine.RequestTwofaSmsCode(ctx, deviceToken)
	if err != nil {
		t.Fatalf("RequestTwofaSmsCode failed: %v", err)
	}
	if smsRes.Status != SmsCodeSent {
		t.Fatalf("expected SmsCodeSent, got %v", smsRes.Status)
	}

	code := h.sms.last().Body
	code = code[len(code)-4:]

	issueRes, err := h.engine.IssueSessionToken(ctx, deviceToken, code, ScopeUpdateSecondFactor)
	if err != nil {
		t.Fatalf("IssueSessionToken failed: %v", err)
	}
	if issueRes.Status != SessionIssued {
		t.Fatalf("expected SessionIssued, got %v", issueRes.Status)
	}
	return issueRes.SessionToken
}

func (h *engineHarness) deviceRecord(t *testing.T, deviceToken string) *DeviceRecord {
	t.Helper()

	deviceID, err := h.engine.deviceSubject(deviceToken)
	if err != nil {
		t.Fatalf("deviceSubject failed: %v", err)
	}
	rec, err := h.engine.devices.Get(context.Background(), deviceID)
	if err != nil {
		t.Fatalf("device Get failed: %v", err)
	}
	if rec == nil {
		t.Fatal("expected device record")
	}
	return rec
}

func (h *engineHarness) profileRecord(t *testing.T, memberID string) *ProfileRecord {
	t.Helper()

	rec, err := h.engine.profiles.Get(context.Background(), memberID)
	if err != nil {
		t.Fatalf("profile Get failed: %v", err)
	}
	return rec
}
