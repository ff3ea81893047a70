package metric_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/tuanvumaihuynh/versioned-catalog/internal/http/metric"
)

func TestNewReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := metric.New(reg)
	second := metric.New(reg)

	first.RequestsTotal.WithLabelValues("GET", "/products", "200").Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(second.RequestsTotal.WithLabelValues("GET", "/products", "200")))
}
