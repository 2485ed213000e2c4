// internal/handlers/auth/service_token_handler.go
package auth

import (
	"net/http"

	"finditnow-auth/internal/domain/auth"
	"finditnow-auth/internal/pkg/response"
	"finditnow-auth/internal/pkg/token"
	"finditnow-auth/internal/registry"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ServiceTokenHandler implements POST /internal/service-token: HTTP Basic
// credentials against the registry, call-graph check, then a 60-second
// audience-scoped token.
type ServiceTokenHandler struct {
	registry *registry.Registry
	issuer   *token.Issuer
	logger   *zap.Logger
}

func NewServiceTokenHandler(reg *registry.Registry, issuer *token.Issuer, logger *zap.Logger) *ServiceTokenHandler {
	return &ServiceTokenHandler{
		registry: reg,
		issuer:   issuer,
		logger:   logger,
	}
}

func (h *ServiceTokenHandler) Issue(c *gin.Context) {
	caller, secret, ok := c.Request.BasicAuth()
	if !ok || !h.registry.Authenticate(caller, secret) {
		h.logger.Warn("service token auth failed",
			zap.String("caller", caller), zap.String("ip", c.ClientIP()))
		response.Unauthorized(c, "invalid service credentials")
		return
	}

	var req auth.ServiceTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, "audience is required", err)
		return
	}

	if !h.registry.CanCall(caller, req.Audience) {
		h.logger.Warn("service call not allowed",
			zap.String("caller", caller), zap.String("audience", req.Audience))
		response.Forbidden(c, "service not allowed to call this audience")
		return
	}

	signed, err := h.issuer.IssueServiceToken(caller, req.Audience)
	if err != nil {
		h.logger.Error("failed to issue service token", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to issue token", nil)
		return
	}

	c.JSON(http.StatusOK, auth.ServiceTokenResponse{
		AccessToken: signed,
		ExpiresIn:   int(token.ServiceTokenTTL.Seconds()),
	})
}
