// Package randstring produces opaque random strings, such as the OAuth2
// state parameter, from crypto/rand.
package randstring

import (
	"crypto/rand"
)

// letters has 64 entries so that masking a random byte with 63 picks
// each letter with equal probability
const letters = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789-_"

// RandString produces a randomly generated url-safe string of length n
func RandString(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("randstring: crypto/rand unavailable: " + err.Error())
	}
	for i := range b {
		b[i] = letters[b[i]&63]
	}
	return string(b)
}
