// Package authgate implements the multi-factor authentication ladder for device
// and session credentials: anonymous device tokens, SMS phone verification,
// scoped session tokens, TOTP and email second-factor enrollment, and
// sensitive-session escalation.
//
// The package is designed for concurrent server workloads: Engine methods are safe
// to call from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config], the
// per-flow result types, and the collaborator capability interfaces
// ([DeviceRepository], [SMSSender], [MailSender], [EventPublisher], [Clock],
// [TotpVerifier]). Token signing lives under token/; the Kafka event publisher
// under events/; outbound SMS/mail transports under messaging/.
//
// # What this package must NOT do
//
//   - Expose HTTP transport, routing, or status-code mapping; callers own the
//     wire surface and switch on the typed result statuses.
//   - Retry outbound SMS or mail delivery; a dispatch failure rolls back the
//     pending challenge and is surfaced to the caller.
//   - Accept a token whose signature does not verify against the keys for its
//     declared kind, or whose scope is outside the operation's allowed set.
//
// # Authorization contract
//
// Every privileged Engine method authorizes by exactly one scope check before any
// business logic or side effect. Expected business outcomes (wrong code, banned,
// expired) are values on the result types; only contract violations (missing
// token, unreachable store, missing required proof) travel the error channel.
package authgate
