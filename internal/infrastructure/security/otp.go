package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// Email-verification codes are windowed OTPs derived from the user's
// rotating secret: a 300-second step with one step of skew gives the code
// roughly a five-minute validity window. This is distinct from TOTP MFA,
// which uses the standard 30-second step.
const (
	emailOTPPeriod = 300
	emailOTPSkew   = 1
)

// GenerateWindowedOTP derives the current email-verification code from the
// user's per-user secret.
func GenerateWindowedOTP(secretBase32 string) (string, error) {
	if strings.TrimSpace(secretBase32) == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}
	code, err := totp.GenerateCodeCustom(secretBase32, time.Now().UTC(), totp.ValidateOpts{
		Period:    emailOTPPeriod,
		Skew:      emailOTPSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate windowed OTP: %w", err)
	}
	return code, nil
}

// VerifyWindowedOTP checks an email-verification code against the user's
// per-user secret. Rotating the secret invalidates outstanding codes.
func VerifyWindowedOTP(secretBase32 string, code string) (bool, error) {
	if strings.TrimSpace(secretBase32) == "" || strings.TrimSpace(code) == "" {
		return false, fmt.Errorf("secret and code are required")
	}
	valid, err := totp.ValidateCustom(code, secretBase32, time.Now().UTC(), totp.ValidateOpts{
		Period:    emailOTPPeriod,
		Skew:      emailOTPSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("error during windowed OTP validation: %w", err)
	}
	return valid, nil
}
