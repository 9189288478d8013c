// Package security implements the manager's shared-password challenge
// (HMAC-SHA256 over a random nonce, so the password never crosses the
// wire) and the optional TLS wrap applied to an accepted connection
// before the first protocol message. Full mutual-TLS PKI is out of
// scope: the queue's Non-goals limit authentication to the password
// challenge and encryption to an optional transport wrap.
package security
