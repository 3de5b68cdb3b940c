package authgate

import (
	"context"
	"strings"
	"time"
)

// Scope represents the privilege level attached to a session token.
//
//	Docs: docs/scopes.md
type Scope string

const (
	// ScopeTrading is an exported constant or variable used by the authentication engine.
	ScopeTrading Scope = "Trading"
	// ScopeSensitive is an exported constant or variable used by the authentication engine.
	ScopeSensitive Scope = "Sensitive"
	// ScopeUpdateSecondFactor is an exported constant or variable used by the authentication engine.
	ScopeUpdateSecondFactor Scope = "UpdateSecondFactor"
)

func (s Scope) lower() string {
	return strings.ToLower(string(s))
}

/*
====================================
PERSISTED RECORDS
====================================
*/

// DeviceRecord is the per-device verification state keyed by the device token
// subject. A pending SMS challenge is present while SecretCode is non-empty;
// MemberID is set once the device has been linked to an identity.
type DeviceRecord struct {
	DeviceID        string
	PhoneNumber     string
	SecretCode      string
	SecretCreatedAt time.Time
	AttemptsLeft    int64
	MemberID        string
}

// HasPendingCode reports whether the record carries an SMS challenge issued at
// or after the cutoff.
func (r *DeviceRecord) HasPendingCode(cutoff time.Time) bool {
	return r != nil && r.SecretCode != "" && r.SecretCreatedAt.After(cutoff)
}

// ProfileRecord is the per-identity second-factor state. At most one of
// GoogleSecret/GoogleTempSecret is meaningful at a time depending on
// GoogleEnabled; EmailSecret is set only during an outstanding enrollment and
// EmailCode only during an outstanding sensitive-action challenge.
type ProfileRecord struct {
	MemberID             string
	GoogleSecret         string
	GoogleTempSecret     string
	GoogleEnabled        bool
	GoogleAttemptsLeft   int64
	EmailAddress         string
	EmailSecret          string
	EmailSecretCreatedAt time.Time
	EmailEnabled         bool
	EmailCode            string
	EmailAttemptsLeft    int64
}

/*
====================================
REPOSITORY CAPABILITIES
====================================
*/

// DeviceRepository is the storage contract for DeviceRecord. Get returns
// (nil, nil) when no record exists. DecrementAttempts must be an atomic
// read-modify-write: two concurrent failed verifications may never observe the
// same remaining value.
//
//	Docs: docs/storage.md
type DeviceRepository interface {
	Get(ctx context.Context, deviceID string) (*DeviceRecord, error)
	Save(ctx context.Context, rec *DeviceRecord) error
	DecrementAttempts(ctx context.Context, deviceID string) (int64, error)
	// Attach links the device to an identity, clears the pending challenge and
	// resets the attempt budget in one write.
	Attach(ctx context.Context, deviceID, memberID string) error
	// PhoneBanned reports whether any device holds this phone number with an
	// exhausted attempt budget.
	PhoneBanned(ctx context.Context, phone string) (bool, error)
	// PhoneClaimedElsewhere reports whether a different device holds a pending
	// code for this phone number issued after the cutoff.
	PhoneClaimedElsewhere(ctx context.Context, phone, deviceID string, cutoff time.Time) (bool, error)
}

// ProfileRepository is the storage contract for ProfileRecord. Get and
// FindByEmailSecret return (nil, nil) when nothing matches. The decrement
// methods carry the same atomicity contract as DeviceRepository.
type ProfileRepository interface {
	Get(ctx context.Context, memberID string) (*ProfileRecord, error)
	Save(ctx context.Context, rec *ProfileRecord) error
	DecrementGoogleAttempts(ctx context.Context, memberID string) (int64, error)
	DecrementEmailAttempts(ctx context.Context, memberID string) (int64, error)
	FindByEmailSecret(ctx context.Context, secret string) (*ProfileRecord, error)
}

// IdentityRepository resolves stable member identifiers. FindOrCreate must be
// safe under concurrent calls with the same lookup key: exactly one caller
// observes created == true, and every caller receives the same member id. A
// transient conflict may be reported as an error; callers retry within a
// bounded budget.
type IdentityRepository interface {
	FindOrCreate(ctx context.Context, lookupKey string) (memberID string, created bool, err error)
	Exists(ctx context.Context, memberID string) (bool, error)
}

// IdentityResolver maps a verified proof-of-ownership lookup key to a member
// identity, creating it on first use. The default implementation wraps
// IdentityRepository.FindOrCreate in a bounded retry loop; alternate
// strategies (an external token issuer deriving identity from an email claim)
// plug in through [Builder.WithIdentityResolver].
type IdentityResolver interface {
	Resolve(ctx context.Context, lookupKey string) (memberID string, created bool, err error)
}

/*
====================================
COLLABORATOR CAPABILITIES
====================================
*/

// Clock abstracts time so expiry windows are deterministically testable.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SMSMessage defines a public type used by authgate APIs.
//
// SMSMessage instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SMSMessage struct {
	Body string
	From string
	To   string
}

// SMSResult is the provider-level outcome of an SMS dispatch. Exactly one of
// OK, WrongPhoneNumber, or a non-empty Code is meaningful.
type SMSResult struct {
	OK               bool
	WrongPhoneNumber string
	Code             string
	ErrorMessage     string
}

// SMSSender dispatches one-time codes. A returned error means the transport
// itself was unreachable; provider-level rejections come back in SMSResult.
type SMSSender interface {
	Send(ctx context.Context, msg SMSMessage) (SMSResult, error)
}

// EmailMessage defines a public type used by authgate APIs.
//
// EmailMessage instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EmailMessage struct {
	From    string
	To      string
	Subject string
	Text    string
	HTML    string
}

// MailSender dispatches enrollment links and confirmation codes. Delivery is
// fire-and-forget: the engine never retries, a failure aborts the flow.
type MailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// MailTemplate renders the outbound mail bodies.
type MailTemplate interface {
	VerificationHTML(email, verificationLink string) string
	VerificationText(email, verificationLink string) string
	CodeHTML(email, code string) string
	CodeText(email, code string) string
}

// IdentityEvent is published when a phone verification resolves an identity,
// for downstream balance/ledger systems.
type IdentityEvent struct {
	IdentityID string `json:"ClientId"`
	IsCreated  bool   `json:"IsCreated"`
	IsReset    bool   `json:"IsReset"`
}

// EventPublisher announces resolved identities. The engine only publishes; it
// never consumes acknowledgments.
type EventPublisher interface {
	PublishIdentityResolved(ctx context.Context, event IdentityEvent) error
}

// TotpVerifier is the TOTP capability consumed by the enrollment and
// escalation flows. GenerateSecret returns a fresh base32 secret plus a
// scannable otpauth:// provisioning URI.
type TotpVerifier interface {
	GenerateSecret(account string) (secret string, uri string, err error)
	Validate(secret, code string) bool
}

// CodeGenerator mints short numeric one-time codes (SMS and email
// confirmation challenges).
type CodeGenerator func() string

// SecretGenerator mints URL-safe email enrollment secrets.
type SecretGenerator func() string

/*
====================================
FLOW RESULTS
====================================
*/

// SmsCodeStatus defines a public type used by authgate APIs.
//
// SmsCodeStatus instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SmsCodeStatus uint8

const (
	// SmsCodeSent is an exported constant or variable used by the authentication engine.
	SmsCodeSent SmsCodeStatus = iota
	// SmsCodeWrongPhoneNumber is an exported constant or variable used by the authentication engine.
	SmsCodeWrongPhoneNumber
	// SmsCodePhoneBanned is an exported constant or variable used by the authentication engine.
	SmsCodePhoneBanned
	// SmsCodeAuthenticationInProgress is an exported constant or variable used by the authentication engine.
	SmsCodeAuthenticationInProgress
	// SmsCodeTokenRevoked is an exported constant or variable used by the authentication engine.
	SmsCodeTokenRevoked
	// SmsCodeProviderError is an exported constant or variable used by the authentication engine.
	SmsCodeProviderError
)

// SmsCodeResult is returned by [Engine.RequestSmsCode] and
// [Engine.RequestTwofaSmsCode]. AttemptsLeft is set on SmsCodeSent; Reason on
// SmsCodeWrongPhoneNumber; ProviderCode/ProviderMessage on
// SmsCodeProviderError.
type SmsCodeResult struct {
	Status          SmsCodeStatus
	AttemptsLeft    int64
	Reason          string
	ProviderCode    string
	ProviderMessage string
}

// SessionIssueStatus defines a public type used by authgate APIs.
//
// SessionIssueStatus instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SessionIssueStatus uint8

const (
	// SessionIssued is an exported constant or variable used by the authentication engine.
	SessionIssued SessionIssueStatus = iota
	// SessionCodeIncorrect is an exported constant or variable used by the authentication engine.
	SessionCodeIncorrect
	// SessionNoVerificationInProgress is an exported constant or variable used by the authentication engine.
	SessionNoVerificationInProgress
	// SessionPhoneBanned is an exported constant or variable used by the authentication engine.
	SessionPhoneBanned
)

// SessionIssueResult is returned by [Engine.IssueSessionToken].
type SessionIssueResult struct {
	Status       SessionIssueStatus
	SessionToken string
	AttemptsLeft int64
}

// ReissueStatus defines a public type used by authgate APIs.
//
// ReissueStatus instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ReissueStatus uint8

const (
	// ReissueIssued is an exported constant or variable used by the authentication engine.
	ReissueIssued ReissueStatus = iota
	// ReissueSmsVerificationIncomplete is an exported constant or variable used by the authentication engine.
	ReissueSmsVerificationIncomplete
)

// ReissueResult is returned by [Engine.ReissueSessionToken].
type ReissueResult struct {
	Status       ReissueStatus
	SessionToken string
}

// TwofaStatusStatus defines a public type used by authgate APIs.
//
// TwofaStatusStatus instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type TwofaStatusStatus uint8

const (
	// TwofaStatusOK is an exported constant or variable used by the authentication engine.
	TwofaStatusOK TwofaStatusStatus = iota
	// TwofaStatusTokenRevoked is an exported constant or variable used by the authentication engine.
	TwofaStatusTokenRevoked
)

// TwofaStatusResult is returned by [Engine.TwofaStatus].
type TwofaStatusResult struct {
	Status              TwofaStatusStatus
	GoogleFactorEnabled bool
	EmailFactorEnabled  bool
}

// GoogleSecretStatus defines a public type used by authgate APIs.
//
// GoogleSecretStatus instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type GoogleSecretStatus uint8

const (
	// GoogleSecretIssued is an exported constant or variable used by the authentication engine.
	GoogleSecretIssued GoogleSecretStatus = iota
	// GoogleSecretTokenRevoked is an exported constant or variable used by the authentication engine.
	GoogleSecretTokenRevoked
)

// GoogleSecretResult is returned by [Engine.IssueGoogleSecret]. Secret is the
// base32 TOTP secret; URI is the otpauth:// provisioning link.
type GoogleSecretResult struct {
	Status GoogleSecretStatus
	Secret string
	URI    string
}

// GoogleVerifyStatus defines a public type used by authgate APIs.
//
// GoogleVerifyStatus instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type GoogleVerifyStatus uint8

const (
	// GoogleVerifySuccess is an exported constant or variable used by the authentication engine.
	GoogleVerifySuccess GoogleVerifyStatus = iota
	// GoogleVerifyCodeIncorrect is an exported constant or variable used by the authentication engine.
	GoogleVerifyCodeIncorrect
	// GoogleVerifyNoVerificationInProgress is an exported constant or variable used by the authentication engine.
	GoogleVerifyNoVerificationInProgress
	// GoogleVerifyBanned is an exported constant or variable used by the authentication engine.
	GoogleVerifyBanned
	// GoogleVerifyTokenRevoked is an exported constant or variable used by the authentication engine.
	GoogleVerifyTokenRevoked
)

// GoogleVerifyResult is returned by [Engine.VerifyGoogleToken].
type GoogleVerifyResult struct {
	Status       GoogleVerifyStatus
	AttemptsLeft int64
}

// DisableStatus defines a public type used by authgate APIs.
//
// DisableStatus instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type DisableStatus uint8

const (
	// DisableSuccess is an exported constant or variable used by the authentication engine.
	DisableSuccess DisableStatus = iota
	// DisableTokenRevoked is an exported constant or variable used by the authentication engine.
	DisableTokenRevoked
)

// DisableResult is returned by [Engine.DisableGoogle2FA] and
// [Engine.DisableEmail2FA]. Disabling is idempotent.
type DisableResult struct {
	Status DisableStatus
}

// EmailSecretStatus defines a public type used by authgate APIs.
//
// EmailSecretStatus instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EmailSecretStatus uint8

const (
	// EmailSecretSent is an exported constant or variable used by the authentication engine.
	EmailSecretSent EmailSecretStatus = iota
	// EmailSecretWrongEmail is an exported constant or variable used by the authentication engine.
	EmailSecretWrongEmail
	// EmailSecretFactorEnabled is an exported constant or variable used by the authentication engine.
	EmailSecretFactorEnabled
	// EmailSecretGenerationLimit is an exported constant or variable used by the authentication engine.
	EmailSecretGenerationLimit
	// EmailSecretTokenRevoked is an exported constant or variable used by the authentication engine.
	EmailSecretTokenRevoked
)

// EmailSecretResult is returned by [Engine.IssueEmailVerificationSecret].
type EmailSecretResult struct {
	Status EmailSecretStatus
	Reason string
}

// EmailConfirmStatus defines a public type used by authgate APIs.
//
// EmailConfirmStatus instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EmailConfirmStatus uint8

const (
	// EmailConfirmSuccess is an exported constant or variable used by the authentication engine.
	EmailConfirmSuccess EmailConfirmStatus = iota
	// EmailConfirmWrongSecret is an exported constant or variable used by the authentication engine.
	EmailConfirmWrongSecret
	// EmailConfirmExpired is an exported constant or variable used by the authentication engine.
	EmailConfirmExpired
)

// EmailConfirmResult is returned by [Engine.VerifyEmailSecret].
type EmailConfirmResult struct {
	Status EmailConfirmStatus
}

// EmailCodeStatus defines a public type used by authgate APIs.
//
// EmailCodeStatus instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type EmailCodeStatus uint8

const (
	// EmailCodeSent is an exported constant or variable used by the authentication engine.
	EmailCodeSent EmailCodeStatus = iota
	// EmailCodeNoVerificationInProgress is an exported constant or variable used by the authentication engine.
	EmailCodeNoVerificationInProgress
	// EmailCodeTokenRevoked is an exported constant or variable used by the authentication engine.
	EmailCodeTokenRevoked
)

// EmailCodeResult is returned by [Engine.SendEmailConfirmationCode].
type EmailCodeResult struct {
	Status EmailCodeStatus
}

// SensitiveStatus defines a public type used by authgate APIs.
//
// SensitiveStatus instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type SensitiveStatus uint8

const (
	// SensitiveIssued is an exported constant or variable used by the authentication engine.
	SensitiveIssued SensitiveStatus = iota
	// SensitiveGoogleBanned is an exported constant or variable used by the authentication engine.
	SensitiveGoogleBanned
	// SensitiveGoogleIncorrect is an exported constant or variable used by the authentication engine.
	SensitiveGoogleIncorrect
	// SensitiveEmailBanned is an exported constant or variable used by the authentication engine.
	SensitiveEmailBanned
	// SensitiveEmailIncorrect is an exported constant or variable used by the authentication engine.
	SensitiveEmailIncorrect
	// SensitiveTokenRevoked is an exported constant or variable used by the authentication engine.
	SensitiveTokenRevoked
)

// SensitiveResult is returned by [Engine.IssueSensitiveSessionToken].
// AttemptsLeft is set on the two Incorrect statuses.
type SensitiveResult struct {
	Status       SensitiveStatus
	SessionToken string
	AttemptsLeft int64
}
