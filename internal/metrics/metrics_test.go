package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

func TestRecordClaim(t *testing.T) {
	before := testutil.ToFloat64(claimsTotal.WithLabelValues("success", "4"))
	paid := testutil.ToFloat64(paidOut)

	RecordClaim("success", 4, decimal.NewFromInt(500))
	RecordClaim("claim_not_owner", -1, decimal.Zero)

	if got := testutil.ToFloat64(claimsTotal.WithLabelValues("success", "4")); got != before+1 {
		t.Errorf("Expected %v, but got %v", before+1, got)
	}
	if got := testutil.ToFloat64(claimsTotal.WithLabelValues("claim_not_owner", "n/a")); got < 1 {
		t.Errorf("Expected a rejected claim to be counted, but got %v", got)
	}
	if got := testutil.ToFloat64(paidOut); got != paid+500 {
		t.Errorf("Expected %v paid out, but got %v", paid+500, got)
	}
}

func TestRecordBatch(t *testing.T) {
	minted := testutil.ToFloat64(ticketsMinted)
	RecordBatch(true, 3)
	RecordBatch(false, 10)
	if got := testutil.ToFloat64(ticketsMinted); got != minted+3 {
		t.Errorf("Expected %v tickets minted, but got %v", minted+3, got)
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware())
	r.GET("/rounds/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(httpReqTotal.WithLabelValues("/rounds/:id", "GET", "204"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rounds/3", nil))
	if got := testutil.ToFloat64(httpReqTotal.WithLabelValues("/rounds/:id", "GET", "204")); got != before+1 {
		t.Errorf("Expected requests to be labelled by route template, but got %v", got)
	}
}
