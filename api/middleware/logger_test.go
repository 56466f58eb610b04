package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/alarm-evaluator/internal/logger"
)

func captureRequestLog(t *testing.T, path string) map[string]interface{} {
	t.Helper()
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetOutput(os.Stdout) })

	router := gin.New()
	router.Use(TraceID(), RequestLogger())
	router.GET("/alarms/:id/history", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/alarms", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	return entry
}

func TestRequestLogger_TagsAlarmID(t *testing.T) {
	entry := captureRequestLog(t, "/alarms/a-42/history")

	assert.Equal(t, "a-42", entry["alarm_id"])
	assert.Equal(t, "/alarms/a-42/history", entry["path"])
	assert.NotEmpty(t, entry["trace_id"])
}

func TestRequestLogger_NoAlarmIDOnList(t *testing.T) {
	entry := captureRequestLog(t, "/alarms")

	assert.NotContains(t, entry, "alarm_id")
	assert.EqualValues(t, http.StatusOK, entry["status"])
}
