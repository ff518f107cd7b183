package security

import (
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	svc := NewTOTPService("Driftline")

	secret, url, err := svc.GenerateSecret("user@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, secret)
	assert.Contains(t, url, "otpauth://totp/")
	assert.Contains(t, url, "Driftline")
}

func TestGenerateSecret_Validation(t *testing.T) {
	svc := NewTOTPService("Driftline")

	_, _, err := svc.GenerateSecret("")
	assert.Error(t, err)

	_, _, err = svc.GenerateSecret("with:colon")
	assert.Error(t, err)
}

func TestValidateCode(t *testing.T) {
	svc := NewTOTPService("Driftline")

	secret, _, err := svc.GenerateSecret("user@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(secret, time.Now().UTC())
	require.NoError(t, err)

	valid, err := svc.ValidateCode(secret, code)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = svc.ValidateCode(secret, "000000")
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestValidateCode_Skew(t *testing.T) {
	svc := NewTOTPService("Driftline")

	secret, _, err := svc.GenerateSecret("user@example.com")
	require.NoError(t, err)

	// One period behind still validates; two periods behind does not.
	behindOne, err := totp.GenerateCode(secret, time.Now().UTC().Add(-30*time.Second))
	require.NoError(t, err)
	valid, err := svc.ValidateCode(secret, behindOne)
	require.NoError(t, err)
	assert.True(t, valid)

	behindThree, err := totp.GenerateCode(secret, time.Now().UTC().Add(-95*time.Second))
	require.NoError(t, err)
	valid, err = svc.ValidateCode(secret, behindThree)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestWindowedOTP_RoundTrip(t *testing.T) {
	secret, err := GenerateUserSecret()
	require.NoError(t, err)

	code, err := GenerateWindowedOTP(secret)
	require.NoError(t, err)
	assert.Len(t, code, 6)

	valid, err := VerifyWindowedOTP(secret, code)
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestWindowedOTP_SecretRotationInvalidates(t *testing.T) {
	secret, err := GenerateUserSecret()
	require.NoError(t, err)
	code, err := GenerateWindowedOTP(secret)
	require.NoError(t, err)

	rotated, err := GenerateUserSecret()
	require.NoError(t, err)

	valid, err := VerifyWindowedOTP(rotated, code)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestWindowedOTP_LongerPeriod(t *testing.T) {
	secret, err := GenerateUserSecret()
	require.NoError(t, err)

	// A code from two minutes ago stays valid under the 300-second step.
	code, err := totp.GenerateCodeCustom(secret, time.Now().UTC().Add(-2*time.Minute), totp.ValidateOpts{
		Period:    300,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)

	valid, err := VerifyWindowedOTP(secret, code)
	require.NoError(t, err)
	assert.True(t, valid)
}
