// Package response 统一响应格式单元测试
package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTest 创建测试用的 Gin 上下文
func setupTest() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	return c, w
}

// parseResponse 解析响应为 Response 结构
func parseResponse(t *testing.T, w *httptest.ResponseRecorder) Response {
	var resp Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func TestSuccess(t *testing.T) {
	c, w := setupTest()
	Success(c, map[string]interface{}{"ok": true})

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseResponse(t, w)
	assert.Equal(t, 0, resp.Code)
	assert.Equal(t, "success", resp.Message)
	assert.Equal(t, map[string]interface{}{"ok": true}, resp.Data)
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		call    func(c *gin.Context)
		status  int
		message string
	}{
		{"bad request", func(c *gin.Context) { BadRequest(c, "invalid update") }, http.StatusBadRequest, "invalid update"},
		{"unauthorized default", func(c *gin.Context) { Unauthorized(c, "") }, http.StatusUnauthorized, "unauthorized"},
		{"not found default", func(c *gin.Context) { NotFound(c, "") }, http.StatusNotFound, "not found"},
		{"internal default", func(c *gin.Context) { InternalError(c, "") }, http.StatusInternalServerError, "internal server error"},
		{"unavailable", func(c *gin.Context) { ServiceUnavailable(c, "", nil) }, http.StatusServiceUnavailable, "service unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := setupTest()
			tt.call(c)
			assert.Equal(t, tt.status, w.Code)
			resp := parseResponse(t, w)
			assert.Equal(t, tt.status, resp.Code)
			assert.Equal(t, tt.message, resp.Message)
		})
	}
}
