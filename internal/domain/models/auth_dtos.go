package models

// SigninRequest carries credentials. Exactly one of Email or Username must
// be supplied; the orchestrator selects the resolution strategy from it.
type SigninRequest struct {
	Email    string `json:"email" binding:"omitempty,email"`
	Username string `json:"username" binding:"omitempty,min=3,max=64"`
	Password string `json:"password" binding:"required"`
}

// SigninStatus distinguishes a completed signin from the deliberate
// email-unverified alternate outcome, which is not an error: it carries
// remediation data so the client can resume the flow.
type SigninStatus string

const (
	SigninStatusOK              SigninStatus = "ok"
	SigninStatusEmailUnverified SigninStatus = "email_unverified"
)

// SigninResult is the typed outcome of a signin attempt.
type SigninResult struct {
	Status       SigninStatus
	User         *User
	TokenPair    *TokenPair
	Verification *VerificationIssued
}

// RegisterResult reports a created user plus the issued verification window.
type RegisterResult struct {
	User         *User
	Verification VerificationIssued
}

// VerifyEmailRequest redeems an email verification window.
type VerifyEmailRequest struct {
	UserID           string `json:"user_id" binding:"required,uuid"`
	Email            string `json:"email" binding:"required,email"`
	VerificationCode string `json:"verification_code" binding:"required"`
	OTP              string `json:"otp" binding:"required"`
}

// ForgotPasswordRequest starts the password-reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest redeems a reset window with the signed RID token.
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

// Enable2FARequest activates legacy single-secret 2FA with a first code.
type Enable2FARequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

// Verify2FARequest checks a legacy 2FA code.
type Verify2FARequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}

// Disable2FARequest disables legacy 2FA. The route is aal2-gated; the
// password re-check guards against a hijacked escalated session.
type Disable2FARequest struct {
	Password string `json:"password" binding:"required"`
}

// Generate2FAResponse returns the legacy 2FA provisioning data.
type Generate2FAResponse struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
	QRCode     string `json:"qr_code"`
}
