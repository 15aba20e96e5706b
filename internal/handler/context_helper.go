package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/cyberguard-api/internal/middleware"
	"github.com/noah-isme/cyberguard-api/internal/models"
	"github.com/noah-isme/cyberguard-api/internal/service"
	"github.com/noah-isme/cyberguard-api/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

// viewerFromContext returns the caller identity; the zero Viewer for
// unauthenticated requests.
func viewerFromContext(c *gin.Context) service.Viewer {
	claims := claimsFromContext(c)
	if claims == nil {
		return service.Viewer{}
	}
	return service.Viewer{UserID: claims.UserID, Role: claims.Role}
}

func toPagination(p *models.Pagination) *response.Pagination {
	if p == nil {
		return nil
	}
	return &response.Pagination{Page: p.Page, PageSize: p.PageSize, TotalCount: p.TotalCount}
}
