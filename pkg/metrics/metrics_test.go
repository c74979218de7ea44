package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/cloudvault/pkg/configs"
)

func TestInitMetricsIdempotentAndServed(t *testing.T) {
	cfg := configs.MetricsConfig{Enabled: true, Labels: map[string]string{"service": "test"}}

	require.NoError(t, InitMetrics(cfg))
	require.NoError(t, InitMetrics(cfg))

	FilesBlocked.WithLabelValues("scan").Inc()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	require.NoError(t, StartMetricsServer(cfg, r))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "cloudvault_files_blocked_total")
	assert.Contains(t, w.Body.String(), `service="test"`)
}
