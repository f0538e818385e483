package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordCharge(t *testing.T) {
	c := NewCollector("coinmeter", "billing", prometheus.NewRegistry())

	c.Billing.RecordCharge("contract_review_strong", "advanced_hybrid", "success", 7)
	c.Billing.RecordCharge("contract_review_strong", "advanced_hybrid", "insufficient_balance", 0)

	if got := testutil.ToFloat64(c.Billing.chargesTotal.WithLabelValues("contract_review_strong", "advanced_hybrid", "success")); got != 1 {
		t.Errorf("charges_total success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.Billing.coinsChargedTotal.WithLabelValues("contract_review_strong")); got != 7 {
		t.Errorf("coins_charged_total = %v, want 7", got)
	}
}

func TestNilReceiverSafe(t *testing.T) {
	var bm *BillingMetrics
	// must not panic
	bm.RecordCharge("c", "message_based", "success", 1)
	bm.RecordBypass("c", "premium_subscription")
	bm.RecordReadonly("max_messages_reached")
}

func TestHandlerServesMetrics(t *testing.T) {
	c := NewCollector("coinmeter", "billing", nil)
	c.Billing.RecordReadonly("max_tokens_reached")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "coinmeter_billing_session_readonly_total") {
		t.Error("readonly metric missing from scrape output")
	}
}
