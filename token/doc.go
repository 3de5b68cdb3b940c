// Package token manages device-token and session-token issuance and
// verification using configured signing keys and strict validation semantics
// suitable for low-latency authentication paths.
package token
