package link

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/tm-proximity/linkbridge/internal/link"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
