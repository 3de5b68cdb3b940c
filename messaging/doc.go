// Package messaging provides provider-backed implementations of the engine's
// outbound delivery capabilities: Twilio for SMS and Mailgun for email, both
// over their REST APIs.
//
// # What this package must NOT do
//
//   - Decide flow outcomes — provider rejections are reported, not interpreted.
//   - Retry deliveries.
package messaging
