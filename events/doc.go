// Package events publishes identity lifecycle notifications to downstream
// consumers over Kafka.
//
// # What this package must NOT do
//
//   - Consume or acknowledge messages.
//   - Retry beyond what the underlying writer is configured for.
package events
