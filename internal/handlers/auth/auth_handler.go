// internal/handlers/auth/auth_handler.go
package auth

import (
	"errors"
	"net/http"
	"time"

	"finditnow-auth/internal/domain/auth"
	"finditnow-auth/internal/middleware"
	xerrors "finditnow-auth/internal/pkg/errors"
	"finditnow-auth/internal/pkg/response"
	authUsecase "finditnow-auth/internal/service/auth"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const refreshCookie = "refresh_token"

type AuthHandler struct {
	authService *authUsecase.Service
	refreshTTL  time.Duration
	logger      *zap.Logger
}

func NewAuthHandler(authService *authUsecase.Service, refreshTTL time.Duration, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		refreshTTL:  refreshTTL,
		logger:      logger,
	}
}

// SignUp creates an unverified credential and mails a verification code.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req auth.SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	result, err := h.authService.SignUp(c.Request.Context(), &req)
	if err != nil {
		h.logger.Warn("signup failed", zap.Error(err))
		h.renderError(c, err, "signup failed")
		return
	}

	status := http.StatusCreated
	message := "verification code sent"
	if result.Resumed {
		status = http.StatusOK
		message = "account pending verification, code resent"
	}
	response.Success(c, status, message, result)
}

// VerifyEmail exchanges the OTP for a verified account and a session.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req auth.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	pair, err := h.authService.VerifyEmail(c.Request.Context(), &req, clientMeta(c))
	if err != nil {
		h.logger.Warn("email verification failed",
			zap.String("cred_id", req.CredentialID), zap.Error(err))
		h.renderError(c, err, "verification failed")
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	response.Success(c, http.StatusOK, "email verified", pair)
}

// ResendVerificationEmail regenerates and mails the verification code.
func (h *AuthHandler) ResendVerificationEmail(c *gin.Context) {
	var req struct {
		CredentialID string `json:"credId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	if err := h.authService.ResendVerificationEmail(c.Request.Context(), req.CredentialID); err != nil {
		h.renderError(c, err, "resend failed")
		return
	}
	response.Success(c, http.StatusOK, "verification code sent", nil)
}

// SignIn authenticates by email-or-phone plus password.
func (h *AuthHandler) SignIn(c *gin.Context) {
	var req auth.SignInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	pair, err := h.authService.SignIn(c.Request.Context(), &req, clientMeta(c))
	if err != nil {
		var nv *authUsecase.NotVerifiedError
		if errors.As(err, &nv) {
			response.Conflict(c, "account_not_verified", gin.H{"credential_id": nv.CredentialID})
			return
		}
		h.logger.Warn("signin failed", zap.String("ip", c.ClientIP()), zap.Error(err))
		h.renderError(c, err, "invalid credentials")
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	response.Success(c, http.StatusOK, "signed in", pair)
}

// Refresh extends the session behind the refresh cookie and returns a new
// access token.
func (h *AuthHandler) Refresh(c *gin.Context) {
	refreshToken, err := c.Cookie(refreshCookie)
	if err != nil || refreshToken == "" {
		response.Unauthorized(c, "invalid_token")
		return
	}

	pair, err := h.authService.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrInvalidRefresh) || xerrors.Is(err, xerrors.ErrUnauthorized) {
			h.clearRefreshCookie(c)
		}
		h.renderError(c, err, "refresh failed")
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken)
	response.Success(c, http.StatusOK, "token refreshed", pair)
}

// Logout revokes whatever tokens the request carries. Never fails.
func (h *AuthHandler) Logout(c *gin.Context) {
	refreshToken, _ := c.Cookie(refreshCookie)
	accessToken := bearerToken(c)

	h.authService.Logout(c.Request.Context(), accessToken, refreshToken)

	h.clearRefreshCookie(c)
	response.Success(c, http.StatusOK, "logged out", nil)
}

// SendResetToken mails a password reset code.
func (h *AuthHandler) SendResetToken(c *gin.Context) {
	var req auth.ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		response.ValidationError(c, "email is required", err)
		return
	}

	if err := h.authService.SendResetToken(c.Request.Context(), req.Email); err != nil {
		h.renderError(c, err, "failed to send reset code")
		return
	}
	response.Success(c, http.StatusOK, "reset code sent", nil)
}

// VerifyResetToken opens the short window in which a reset is accepted.
func (h *AuthHandler) VerifyResetToken(c *gin.Context) {
	var req auth.ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.ResetToken == "" {
		response.ValidationError(c, "email and resetToken are required", err)
		return
	}

	if err := h.authService.VerifyResetToken(c.Request.Context(), req.Email, req.ResetToken); err != nil {
		h.renderError(c, err, "reset verification failed")
		return
	}
	response.Success(c, http.StatusOK, "reset authorized", nil)
}

// ResetPassword changes the password inside the reset window.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req auth.ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.NewPassword == "" {
		response.ValidationError(c, "email and newPassword are required", err)
		return
	}

	if err := h.authService.ResetPassword(c.Request.Context(), req.Email, req.NewPassword); err != nil {
		h.renderError(c, err, "password reset failed")
		return
	}
	response.Success(c, http.StatusOK, "password updated", nil)
}

// UpdatePassword changes the password for the authenticated credential.
func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	var req struct {
		OldPassword string `json:"oldPassword" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "invalid request", err)
		return
	}

	credID := middleware.MustGetCredentialID(c)
	if err := h.authService.UpdatePassword(c.Request.Context(), credID, req.OldPassword, req.NewPassword); err != nil {
		h.renderError(c, err, "password update failed")
		return
	}
	response.Success(c, http.StatusOK, "password updated", nil)
}

// Health reports liveness.
func (h *AuthHandler) Health(c *gin.Context) {
	response.Success(c, http.StatusOK, "ok", gin.H{"service": "auth-service"})
}

// renderError maps the error taxonomy to HTTP status codes without leaking
// internals.
func (h *AuthHandler) renderError(c *gin.Context, err error, fallback string) {
	switch {
	case xerrors.Is(err, xerrors.ErrOAuthOnly):
		response.Conflict(c, "oauth_only", gin.H{"reason": "password login unavailable, use OAuth"})
	case xerrors.Is(err, xerrors.ErrConflict):
		response.Conflict(c, err.Error())
	case xerrors.Is(err, xerrors.ErrInvalidRefresh), xerrors.Is(err, xerrors.ErrUnauthorized):
		response.Unauthorized(c, err.Error())
	case xerrors.Is(err, xerrors.ErrForbidden):
		response.Forbidden(c, err.Error())
	case xerrors.Is(err, xerrors.ErrNotFound):
		response.NotFound(c, err.Error())
	case xerrors.Is(err, xerrors.ErrInvalidInput):
		response.ValidationError(c, err.Error(), nil)
	default:
		h.logger.Error("internal error", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, fallback, nil)
	}
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, token string) {
	if token == "" {
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(refreshCookie, token, int(h.refreshTTL.Seconds()), "/", "", false, true)
}

func (h *AuthHandler) clearRefreshCookie(c *gin.Context) {
	c.SetCookie(refreshCookie, "", -1, "/", "", false, true)
}

func clientMeta(c *gin.Context) auth.ClientMeta {
	return auth.ClientMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && (header[:7] == "Bearer " || header[:7] == "bearer ") {
		return header[7:]
	}
	return ""
}
