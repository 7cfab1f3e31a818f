package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRequestIDRouter(capture *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	router.GET("/", func(c *gin.Context) {
		*capture = GetRequestID(c)
		c.Status(http.StatusOK)
	})
	return router
}

func TestRequestIDGenerated(t *testing.T) {
	var got string
	router := newRequestIDRouter(&got)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	require.True(t, strings.HasPrefix(got, "req_"), "got %q", got)
	assert.Equal(t, got, w.Header().Get(RequestIDHeader))
}

func TestRequestIDHonorsClient(t *testing.T) {
	var got string
	router := newRequestIDRouter(&got)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req_from_client")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "req_from_client", got)
	assert.Equal(t, "req_from_client", w.Header().Get(RequestIDHeader))
}
