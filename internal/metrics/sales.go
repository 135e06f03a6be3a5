package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

var (
	ticketsMinted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lotto_tickets_minted_total",
			Help: "Tickets minted across all rounds",
		},
	)

	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotto_batch_buys_total",
			Help: "Batch buy calls by result",
		},
		[]string{"result"},
	)

	claimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lotto_claims_total",
			Help: "Ticket claims by result and match count",
		},
		[]string{"result", "matches"},
	)

	paidOut = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lotto_paid_out_units_total",
			Help: "Base currency units paid to winners",
		},
	)
)

// RecordBatch counts a batch buy. tickets is ignored for failures.
func RecordBatch(ok bool, tickets int) {
	if !ok {
		batchesTotal.WithLabelValues("fail").Inc()
		return
	}
	batchesTotal.WithLabelValues("success").Inc()
	ticketsMinted.Add(float64(tickets))
}

// RecordClaim counts a settled or rejected claim.
func RecordClaim(code string, matches int, amount decimal.Decimal) {
	label := "n/a"
	if matches >= 0 {
		label = strconv.Itoa(matches)
	}
	claimsTotal.WithLabelValues(code, label).Inc()
	if amount.IsPositive() {
		f, _ := amount.Float64()
		paidOut.Add(f)
	}
}
