package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cyberguard-api/internal/models"
	appErrors "github.com/noah-isme/cyberguard-api/pkg/errors"
	"github.com/noah-isme/cyberguard-api/pkg/response"
)

// RequireRoles allows the request through only for the listed roles.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		claims := Claims(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" cannot access this resource"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireReviewer admits officers and admins.
func RequireReviewer() gin.HandlerFunc {
	return RequireRoles(models.RoleOfficer, models.RoleAdmin)
}
