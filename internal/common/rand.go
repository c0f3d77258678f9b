package common

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Alphabets for generated identifiers and secrets. AlphabetSecret is sized so
// that a 20-character secret carries well over 60 bits of entropy.
const (
	AlphabetAlnum  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	AlphabetSecret = AlphabetAlnum + "!@#$%^&*()-_=+"
)

// MakeRandString draws a string of length n from the given alphabet using
// the provided entropy source. Pass nil to use crypto/rand. Selection uses
// rejection sampling so every alphabet character is equally likely.
func MakeRandString(src io.Reader, n int, alphabet string) (string, error) {
	if n < 0 || len(alphabet) == 0 || len(alphabet) > 256 {
		return "", fmt.Errorf("rand string: bad parameters (n=%d, alphabet=%d)", n, len(alphabet))
	}
	if src == nil {
		src = rand.Reader
	}

	// Largest multiple of len(alphabet) that fits in a byte; values at or
	// above it are rejected to avoid modulo bias.
	limit := 256 - 256%len(alphabet)

	out := make([]byte, 0, n)
	buf := make([]byte, 1)
	for len(out) < n {
		if _, err := io.ReadFull(src, buf); err != nil {
			return "", fmt.Errorf("rand string: %w", err)
		}
		if int(buf[0]) >= limit {
			continue
		}
		out = append(out, alphabet[int(buf[0])%len(alphabet)])
	}
	return string(out), nil
}

// WipeByteArray overwrites the contents of the provided byte slice with
// zeros. Useful for clearing plaintext secrets once they have been handed
// off. If the slice is nil, the function does nothing.
func WipeByteArray(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
