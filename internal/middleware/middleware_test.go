package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/cyberguard-api/internal/models"
	appErrors "github.com/noah-isme/cyberguard-api/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type validatorStub map[string]*models.JWTClaims

func (v validatorStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

var testTokens = validatorStub{
	"officer": {UserID: "o1", Role: models.RoleOfficer},
	"user":    {UserID: "u1", Role: models.RoleUser},
}

func serve(r *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJWT(t *testing.T) {
	r := gin.New()
	r.GET("/me", JWT(testTokens), func(c *gin.Context) {
		c.String(http.StatusOK, Claims(c).UserID)
	})

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/me", "forged").Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Token officer")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(r, http.MethodGet, "/me", "officer")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "o1", w.Body.String())
}

func TestOptionalJWT(t *testing.T) {
	r := gin.New()
	r.GET("/reports", OptionalJWT(testTokens), func(c *gin.Context) {
		if claims := Claims(c); claims != nil {
			c.String(http.StatusOK, claims.UserID)
			return
		}
		c.String(http.StatusOK, "anonymous")
	})

	assert.Equal(t, "anonymous", serve(r, http.MethodGet, "/reports", "").Body.String())
	assert.Equal(t, "anonymous", serve(r, http.MethodGet, "/reports", "forged").Body.String())
	assert.Equal(t, "u1", serve(r, http.MethodGet, "/reports", "user").Body.String())
}

func TestRequireReviewer(t *testing.T) {
	r := gin.New()
	r.GET("/critical-areas", JWT(testTokens), RequireReviewer(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/critical-areas", "officer").Code)
	w := serve(r, http.MethodGet, "/critical-areas", "user")
	assert.Equal(t, http.StatusForbidden, w.Code)

	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, appErrors.ErrForbidden.Code, body["error"]["code"])
}

func TestRequireRolesWithoutClaims(t *testing.T) {
	r := gin.New()
	r.GET("/admin", RequireRoles(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/admin", "").Code)
}

type auditStub struct {
	mu   sync.Mutex
	logs []*models.AuditLog
	err  error
}

func (a *auditStub) CreateAuditLog(_ context.Context, log *models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return a.err
}

func TestAudit(t *testing.T) {
	writer := &auditStub{}
	r := gin.New()
	r.PATCH("/reports/:id/status", JWT(testTokens), Audit(writer, nil, models.AuditActionStatusChange, "report"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.POST("/critical-areas/escalate", JWT(testTokens), Audit(writer, nil, models.AuditActionEscalate, "critical_area"), func(c *gin.Context) {
		if c.Query("fail") != "" {
			c.Status(http.StatusConflict)
			return
		}
		SetAuditResource(c, "mumbai|maharashtra")
		c.Status(http.StatusOK)
	})

	serve(r, http.MethodPatch, "/reports/r1/status", "officer")
	serve(r, http.MethodPost, "/critical-areas/escalate", "officer")
	serve(r, http.MethodPost, "/critical-areas/escalate?fail=1", "officer")

	require.Len(t, writer.logs, 2)
	assert.Equal(t, "r1", *writer.logs[0].ResourceID)
	assert.Equal(t, "o1", *writer.logs[0].UserID)
	assert.Equal(t, models.AuditActionEscalate, writer.logs[1].Action)
	assert.Equal(t, "mumbai|maharashtra", *writer.logs[1].ResourceID)
}

func TestAuditWriteFailureDoesNotAffectResponse(t *testing.T) {
	writer := &auditStub{err: errors.New("db down")}
	r := gin.New()
	r.POST("/x", Audit(writer, nil, "X", "x"), func(c *gin.Context) { c.Status(http.StatusCreated) })
	assert.Equal(t, http.StatusCreated, serve(r, http.MethodPost, "/x", "").Code)
	assert.Len(t, writer.logs, 1)
}

func TestResponseMeta(t *testing.T) {
	var meta map[string]interface{}
	r := gin.New()
	r.Use(WithResponseMeta())
	r.GET("/empty", func(c *gin.Context) {
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})
	r.GET("/cached", func(c *gin.Context) {
		SetCacheHit(c, true)
		SetMeta(c, "skipped", 2)
		meta = ExtractMeta(c)
		c.Status(http.StatusOK)
	})

	serve(r, http.MethodGet, "/empty", "")
	assert.Nil(t, meta)

	serve(r, http.MethodGet, "/cached", "")
	assert.Equal(t, true, meta[cacheHitKey])
	assert.Equal(t, 2, meta["skipped"])
	assert.Contains(t, meta, "processing_time_ms")
}

type observerStub struct {
	paths    []string
	statuses []int
}

func (o *observerStub) ObserveHTTPRequest(_ string, path string, status int, _ time.Duration) {
	o.paths = append(o.paths, path)
	o.statuses = append(o.statuses, status)
}

func TestMetrics(t *testing.T) {
	observer := &observerStub{}
	r := gin.New()
	r.Use(Metrics(observer))
	r.GET("/reports/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodGet, "/reports/abc", "")
	serve(r, http.MethodGet, "/nowhere", "")

	assert.Equal(t, []string{"/reports/:id", "unmatched"}, observer.paths)
	assert.Equal(t, []int{http.StatusOK, http.StatusNotFound}, observer.statuses)
}
