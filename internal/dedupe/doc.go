// Package dedupe guards form submissions with idempotency keys.
//
// Every chat form is rendered with a fresh key. The send handler claims
// Key(sessionID, formKey) before submitting; a second claim within the TTL
// is a duplicate and is dropped.
package dedupe
