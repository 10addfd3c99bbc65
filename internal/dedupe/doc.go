// Package dedupe provides a TTL cache for idempotency keys, used by the
// HTTP API to ignore retried send requests.
package dedupe
