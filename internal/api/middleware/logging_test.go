package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogApiRecordsRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	engine := gin.New()
	engine.Use(LogApi(logger))
	engine.GET("/things/:id", func(c *gin.Context) {
		c.Set(UsernameKey, "alice")
		c.JSON(http.StatusNotFound, gin.H{"error": "missing"})
	})

	req := httptest.NewRequest(http.MethodGet, "/things/7?access_token=secret-token", nil)
	engine.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "HTTP request", line["msg"])
	assert.Equal(t, "WARN", line["level"])
	assert.Equal(t, "/things/7", line["path"])
	assert.Equal(t, float64(http.StatusNotFound), line["status"])
	assert.Equal(t, "alice", line["username"])
	assert.NotContains(t, buf.String(), "secret-token")
}

func TestLogApiOmitsAnonymousUsername(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	engine := gin.New()
	engine.Use(LogApi(logger))
	engine.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "INFO", line["level"])
	assert.NotContains(t, line, "username")
}
