package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
)

// The REST/auth/RBAC layer lives upstream of this service: these headers
// are assumed to already be attached by an upstream gateway that has
// resolved the caller's session. Tenancy is enforced by the store adapters
// (project_id ∧ (owner_id ∨ tenant_id)); this middleware only threads the
// already-resolved identity onto the request context so handlers don't
// parse headers directly.
type contextKey string

const (
	ownerIDKey contextKey = "owner_id"
	roleKey    contextKey = "role"
)

const (
	headerOwnerID = "X-Owner-Id"
	headerRole    = "X-Tenant-Role"
)

// Tenancy requires the upstream-attached owner header and aborts with 401
// when it is missing, rather than silently treating the request as
// anonymous.
func Tenancy() gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID := c.GetHeader(headerOwnerID)
		if ownerID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing owner identity"})
			return
		}
		role := c.GetHeader(headerRole)

		ctx := context.WithValue(c.Request.Context(), ownerIDKey, ownerID)
		ctx = context.WithValue(ctx, roleKey, role)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// OwnerID reads the tenancy-resolved owner id attached by Tenancy.
func OwnerID(ctx context.Context) string {
	v, _ := ctx.Value(ownerIDKey).(string)
	return v
}

// Role reads the tenancy-resolved role attached by Tenancy.
func Role(ctx context.Context) string {
	v, _ := ctx.Value(roleKey).(string)
	return v
}
