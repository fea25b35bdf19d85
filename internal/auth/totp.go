package auth

import (
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP parameters: RFC 6238 defaults with one step of skew either side.
const (
	totpPeriod = 30
	totpSkew   = 1
	totpDigits = otp.DigitsSix

	// DefaultTOTPSecretLength is the number of base32 characters in a new secret (80 bits).
	DefaultTOTPSecretLength = 16
)

var totpOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Skew:      totpSkew,
	Digits:    totpDigits,
	Algorithm: otp.AlgorithmSHA1,
}

// GenerateTOTPSecret returns length characters of crypto-random base32 key material.
func GenerateTOTPSecret(length int) (string, error) {
	secret, err := randomString(length, base32Alphabet)
	if err != nil {
		return "", fmt.Errorf("generating totp secret: %w", err)
	}
	return secret, nil
}

// VerifyTOTP reports whether code matches secret at now, now-30s or now+30s.
// An empty secret never verifies, even though HMAC would accept an empty key.
func VerifyTOTP(secret, code string, now time.Time) bool {
	if secret == "" || len(code) != totpDigits.Length() {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now.UTC(), totpOpts)
	if err != nil {
		return false
	}
	return ok
}

// TOTPCode returns the code for secret at t.
func TOTPCode(secret string, t time.Time) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("empty totp secret")
	}
	code, err := totp.GenerateCodeCustom(secret, t.UTC(), totpOpts)
	if err != nil {
		return "", fmt.Errorf("generating totp code: %w", err)
	}
	return code, nil
}
