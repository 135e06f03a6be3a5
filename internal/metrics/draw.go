package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var drawTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "lotto_draw_steps_total",
		Help: "Randomness requests and fulfillments by phase and result",
	},
	[]string{"phase", "result"},
)

// RecordDraw counts one draw protocol step.
// phase: "request" | "fulfill"
// result: "success" | "fail" | "ignored"
func RecordDraw(phase, result string) {
	drawTotal.WithLabelValues(phase, result).Inc()
}
