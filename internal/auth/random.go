package auth

import (
	"crypto/rand"
	"fmt"
)

const (
	alphanumericAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	base32Alphabet       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ234567"
)

// randomString returns n characters drawn uniformly from alphabet using
// crypto/rand. Bytes that would bias the distribution are rejected.
func randomString(n int, alphabet string) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("random string length must be positive, got %d", n)
	}

	size := len(alphabet)
	limit := 256 - (256 % size) //nolint:mnd // byte range
	out := make([]byte, 0, n)
	buf := make([]byte, n*2) //nolint:mnd // oversample to limit re-reads

	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%size])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
