package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
	"github.com/noah-isme/curriculum-gate-api/internal/service"
	appErrors "github.com/noah-isme/curriculum-gate-api/pkg/errors"
	"github.com/noah-isme/curriculum-gate-api/pkg/response"
)

// ContextScopeKey is the gin context key storing the resolved cohort scope.
const ContextScopeKey = "cohortScope"

type scopeResolver interface {
	LearnerScope(ctx context.Context, actor models.Identity) (*service.Scope, error)
	PrivilegedScope(ctx context.Context, actor models.Identity, cohortID string) (*service.Scope, error)
}

// CohortScope resolves the cohort the caller may touch. Learners are pinned to their
// enrolled cohort; instructors and admins name it with the :cohortId path parameter
// or the cohortId query parameter.
func CohortScope(resolver scopeResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := IdentityFromContext(c)
		if identity == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		var (
			scope *service.Scope
			err   error
		)
		if identity.Role.Privileged() {
			cohortID := c.Param("cohortId")
			if cohortID == "" {
				cohortID = c.Query("cohortId")
			}
			scope, err = resolver.PrivilegedScope(c.Request.Context(), *identity, cohortID)
		} else {
			scope, err = resolver.LearnerScope(c.Request.Context(), *identity)
		}
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextScopeKey, scope)
		c.Next()
	}
}

// ScopeFromContext returns the scope stored by CohortScope.
func ScopeFromContext(c *gin.Context) *service.Scope {
	value, exists := c.Get(ContextScopeKey)
	if !exists {
		return nil
	}
	scope, ok := value.(*service.Scope)
	if !ok {
		return nil
	}
	return scope
}
