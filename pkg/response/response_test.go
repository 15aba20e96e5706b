package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/cyberguard-api/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, rec
}

func TestErrorUsesTypedStatus(t *testing.T) {
	c, rec := newContext()
	Error(c, appErrors.Clone(appErrors.ErrInvalidTransition, "resolved reports are final"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body struct {
		Error appErrors.Error `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "INVALID_STATUS_TRANSITION", body.Error.Code)
	assert.Equal(t, "resolved reports are final", body.Error.Message)
	assert.Empty(t, c.Errors)
}

func TestJSONWithMeta(t *testing.T) {
	c, rec := newContext()
	JSON(c, http.StatusOK, []int{1, 2}, &Pagination{Page: 1, PageSize: 2, TotalCount: 5}, map[string]interface{}{"skipped": 1})

	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 5, body["pagination"].(map[string]interface{})["total_count"])
	assert.EqualValues(t, 1, body["meta"].(map[string]interface{})["skipped"])
}

func TestFileSetsAttachment(t *testing.T) {
	c, rec := newContext()
	File(c, "critical-areas.csv", "text/csv", []byte("a,b\n"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `attachment; filename="critical-areas.csv"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "a,b\n", rec.Body.String())
}
