package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresenceHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	p, mr := newPresence(t, "node-a")
	require.NoError(t, p.Online(context.Background(), "u1", "c1", "tablet"))

	r := gin.New()
	r.GET("/internal/presence/:userId", p.PresenceHandler)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/internal/presence/u1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"userId":"u1","online":true,"connections":[{"connectionId":"c1","nodeId":"node-a","deviceClass":"tablet"}]}`, w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/internal/presence/u2", nil))
	assert.JSONEq(t, `{"userId":"u2","online":false,"connections":[]}`, w.Body.String())

	mr.Close()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/internal/presence/u1", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
