// internal/app/router.go
package app

import (
	authHandler "finditnow-auth/internal/handlers/auth"
	wsHandler "finditnow-auth/internal/handlers/websocket"
	"finditnow-auth/internal/middleware"

	"github.com/gin-gonic/gin"
)

type Handlers struct {
	AuthHandler         *authHandler.AuthHandler
	ServiceTokenHandler *authHandler.ServiceTokenHandler
	WSHandler           *wsHandler.Handler
	AuthMiddleware      *middleware.AuthMiddleware
}

func SetupRouter(r *gin.Engine, h *Handlers) {
	r.GET("/health", h.AuthHandler.Health)

	// ==================== Public Auth Routes ====================
	r.POST("/signup", h.AuthHandler.SignUp)
	r.POST("/verifyemail", h.AuthHandler.VerifyEmail)
	r.POST("/resendverificationemail", h.AuthHandler.ResendVerificationEmail)
	r.POST("/signin", h.AuthHandler.SignIn)
	r.POST("/refresh", h.AuthHandler.Refresh)
	r.POST("/logout", h.AuthHandler.Logout)

	// ==================== Password Reset ====================
	r.POST("/sendresettoken", h.AuthHandler.SendResetToken)
	r.POST("/verifyresettoken", h.AuthHandler.VerifyResetToken)
	r.POST("/resetpassword", h.AuthHandler.ResetPassword)

	// ==================== Authenticated Routes ====================
	protected := r.Group("/")
	protected.Use(h.AuthMiddleware.Auth())
	{
		protected.POST("/updatepassword", h.AuthHandler.UpdatePassword)
		protected.GET("/ws", h.WSHandler.Serve)
	}

	// ==================== Machine-to-Machine ====================
	r.POST("/internal/service-token", h.ServiceTokenHandler.Issue)
}
