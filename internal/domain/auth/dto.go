package auth

// SignUpRequest carries the fields accepted on account creation.
type SignUpRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required"`
	Phone     string `json:"phone_no"`
	Role      string `json:"role"`
}

// SignUpResult distinguishes a fresh credential from an unverified one the
// caller should resume verifying.
type SignUpResult struct {
	CredentialID string `json:"credential_id"`
	Resumed      bool   `json:"resumed"`
}

// SignInRequest authenticates by email or phone plus password.
type SignInRequest struct {
	Identifier string `json:"email" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

// VerifyEmailRequest exchanges an OTP for a verified credential and session.
type VerifyEmailRequest struct {
	CredentialID string `json:"credId" binding:"required"`
	Code         string `json:"verificationCode" binding:"required"`
}

// TokenPair is returned on successful authentication. The refresh token is
// additionally set as an HttpOnly cookie by the handler.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"-"`
	ExpiresIn    int    `json:"expires_in"`
}

// ResetRequest starts or completes the password reset flow.
type ResetRequest struct {
	Email       string `json:"email"`
	ResetToken  string `json:"resetToken"`
	NewPassword string `json:"newPassword"`
}

// ServiceTokenRequest is the body of POST /internal/service-token.
type ServiceTokenRequest struct {
	Audience string `json:"audience" binding:"required"`
}

// ServiceTokenResponse mirrors the wire format consumed by the
// inter-service client.
type ServiceTokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresIn   int    `json:"expiresIn"`
}

// ClientMeta is the request metadata recorded on the session row.
type ClientMeta struct {
	IPAddress string
	UserAgent string
}
