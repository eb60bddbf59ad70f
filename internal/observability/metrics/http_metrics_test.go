package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGinMiddlewareRecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	registry := prometheus.NewRegistry()
	m := NewHTTPMetricsWithRegisterer(registry, Config{ServiceName: "ambassador"})

	r := gin.New()
	r.Use(GinMiddleware(m))
	r.GET("/admin/graphs/:graphId/affiliates", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, id := range []string{"graph_1", "graph_2"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/graphs/"+id+"/affiliates", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	families, err := registry.Gather()
	require.NoError(t, err)

	var counter *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "ambassador_http_requests_total" {
			counter = f
		}
	}
	require.NotNil(t, counter)
	require.Len(t, counter.GetMetric(), 1)
	assert.Equal(t, 2.0, counter.GetMetric()[0].GetCounter().GetValue())

	labels := map[string]string{}
	for _, lp := range counter.GetMetric()[0].GetLabel() {
		labels[lp.GetName()] = lp.GetValue()
	}
	assert.Equal(t, "/admin/graphs/:graphId/affiliates", labels["route"])
	assert.Equal(t, "200", labels["status_code"])
}
