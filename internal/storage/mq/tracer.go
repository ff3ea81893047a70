package mq

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("internal/storage/mq")
