// Package webhook webhook 处理器单元测试
package webhook

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumeirei/realty-crm-bot/pkg/telegram"
)

type captureHandler struct {
	updates []telegram.Update
	err     error
}

func (h *captureHandler) HandleUpdate(ctx context.Context, upd telegram.Update) error {
	h.updates = append(h.updates, upd)
	return h.err
}

func setupRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/telegram/webhook", h.Receive)
	return r
}

const updateBody = `{"update_id": 42, "message": {"message_id": 1, "from": {"id": 7, "first_name": "Иван"}, "chat": {"id": 7, "type": "private"}, "text": "/start"}}`

func post(r *gin.Engine, body, secret string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(SecretHeader, secret)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_Receive(t *testing.T) {
	capture := &captureHandler{}
	r := setupRouter(NewHandler(capture, "s3cret", nil))

	w := post(r, updateBody, "s3cret")
	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, capture.updates, 1)
	assert.Equal(t, int64(42), capture.updates[0].UpdateID)
	assert.True(t, capture.updates[0].Message.IsCommand("start"))
}

func TestHandler_RejectsBadSecret(t *testing.T) {
	capture := &captureHandler{}
	r := setupRouter(NewHandler(capture, "s3cret", nil))

	assert.Equal(t, http.StatusUnauthorized, post(r, updateBody, "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, post(r, updateBody, "").Code)
	assert.Empty(t, capture.updates)
}

func TestHandler_NoSecretConfigured(t *testing.T) {
	capture := &captureHandler{}
	r := setupRouter(NewHandler(capture, "", nil))

	assert.Equal(t, http.StatusOK, post(r, updateBody, "").Code)
	assert.Len(t, capture.updates, 1)
}

func TestHandler_BadBody(t *testing.T) {
	capture := &captureHandler{}
	r := setupRouter(NewHandler(capture, "", nil))

	assert.Equal(t, http.StatusBadRequest, post(r, "{not json", "").Code)
	assert.Empty(t, capture.updates)
}

func TestHandler_DispatchErrorStillOK(t *testing.T) {
	capture := &captureHandler{err: stderrors.New("send failed")}
	r := setupRouter(NewHandler(capture, "", nil))

	assert.Equal(t, http.StatusOK, post(r, updateBody, "").Code)
}
