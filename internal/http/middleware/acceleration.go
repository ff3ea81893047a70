package middleware

import (
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
)

// AccelerationHeader tells clients whether reads may be served by the
// acceleration cache.
const AccelerationHeader = "X-Using-Acceleration"

// Acceleration sets AccelerationHeader on every response.
func Acceleration(configured func() bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(AccelerationHeader, strconv.FormatBool(configured()))
			next.ServeHTTP(w, r)
		})
	}
}

func attrAcceleration(header string) attribute.KeyValue {
	return attribute.String("catalog.acceleration", header)
}
