// Package rng supplies the capability layer's source of randomness:
// crypto/rand.Reader, wrapped only so call sites depend on this package
// rather than the stdlib directly.
package rng

import "crypto/rand"

// Reader is the process-wide cryptographically secure random source.
var Reader = rand.Reader
