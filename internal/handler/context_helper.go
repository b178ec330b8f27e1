package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/curriculum-gate-api/internal/middleware"
	"github.com/noah-isme/curriculum-gate-api/internal/models"
	"github.com/noah-isme/curriculum-gate-api/internal/service"
)

func identityFromContext(c *gin.Context) *models.Identity {
	return middleware.IdentityFromContext(c)
}

func scopeFromContext(c *gin.Context) *service.Scope {
	return middleware.ScopeFromContext(c)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
