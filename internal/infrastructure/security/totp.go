package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTPService generates and validates RFC 6238 TOTP codes.
type TOTPService interface {
	GenerateSecret(accountName string) (secretBase32 string, otpAuthURL string, err error)
	ValidateCode(secretBase32 string, code string) (bool, error)
}

type totpService struct {
	issuer string
}

// NewTOTPService creates a TOTPService. issuer names the application in
// provisioning URIs.
func NewTOTPService(issuer string) TOTPService {
	if strings.TrimSpace(issuer) == "" {
		issuer = "Driftline"
	}
	return &totpService{issuer: issuer}
}

// GenerateSecret creates a new TOTP secret and its otpauth:// URL.
func (s *totpService) GenerateSecret(accountName string) (string, string, error) {
	if strings.TrimSpace(accountName) == "" {
		return "", "", fmt.Errorf("accountName cannot be empty for TOTP secret generation")
	}
	if strings.Contains(accountName, ":") || strings.Contains(s.issuer, ":") {
		return "", "", fmt.Errorf("issuer and accountName cannot contain a colon character")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: accountName,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
		SecretSize:  20,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}
	return key.Secret(), key.URL(), nil
}

// ValidateCode checks a code against the secret, allowing one period of
// clock drift on either side.
func (s *totpService) ValidateCode(secretBase32 string, code string) (bool, error) {
	if strings.TrimSpace(secretBase32) == "" {
		return false, fmt.Errorf("secret cannot be empty")
	}
	if strings.TrimSpace(code) == "" {
		return false, fmt.Errorf("code cannot be empty")
	}

	valid, err := totp.ValidateCustom(code, secretBase32, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return false, fmt.Errorf("error during TOTP code validation: %w", err)
	}
	return valid, nil
}

var _ TOTPService = (*totpService)(nil)
