package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics tracks the charge path.
//
// Metrics:
//   - charges_total: charge attempts by config, pricing type and result
//   - coins_charged_total: coins successfully charged by config
//   - charge_coins: per-charge coin distribution (histogram)
//   - bypass_total: free charges by config and reason
//   - session_readonly_total: charges refused on frozen sessions by reason
//
// All recording methods are safe on a nil receiver, so components can run
// without metrics wired.
type BillingMetrics struct {
	chargesTotal      *prometheus.CounterVec
	coinsChargedTotal *prometheus.CounterVec
	chargeCoins       *prometheus.HistogramVec
	bypassTotal       *prometheus.CounterVec
	readonlyTotal     *prometheus.CounterVec
}

// NewBillingMetrics creates and registers billing metrics with the registry.
func NewBillingMetrics(namespace, subsystem string, registry *prometheus.Registry) *BillingMetrics {
	bm := &BillingMetrics{
		chargesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "charges_total",
				Help:      "Charge attempts by config, pricing type and result",
			},
			[]string{"config", "pricing_type", "result"},
		),

		coinsChargedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "coins_charged_total",
				Help:      "Coins successfully charged by config",
			},
			[]string{"config"},
		),

		chargeCoins: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "charge_coins",
				Help:      "Coin cost distribution per charge",
				Buckets:   []float64{1, 2, 5, 10, 20, 50, 100, 200},
			},
			[]string{"config"},
		),

		bypassTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "bypass_total",
				Help:      "Free charges by config and bypass reason",
			},
			[]string{"config", "reason"},
		),

		readonlyTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "session_readonly_total",
				Help:      "Charges refused on frozen sessions by reason",
			},
			[]string{"reason"},
		),
	}

	registry.MustRegister(
		bm.chargesTotal,
		bm.coinsChargedTotal,
		bm.chargeCoins,
		bm.bypassTotal,
		bm.readonlyTotal,
	)

	return bm
}

// RecordCharge records one charge attempt and, on success, its coin volume.
func (bm *BillingMetrics) RecordCharge(config, pricingType, result string, coins float64) {
	if bm == nil {
		return
	}
	bm.chargesTotal.WithLabelValues(config, pricingType, result).Inc()
	if result == "success" && coins > 0 {
		bm.coinsChargedTotal.WithLabelValues(config).Add(coins)
		bm.chargeCoins.WithLabelValues(config).Observe(coins)
	}
}

// RecordBypass records a free charge.
func (bm *BillingMetrics) RecordBypass(config, reason string) {
	if bm == nil {
		return
	}
	bm.bypassTotal.WithLabelValues(config, reason).Inc()
}

// RecordReadonly records a charge refused on a frozen session.
func (bm *BillingMetrics) RecordReadonly(reason string) {
	if bm == nil {
		return
	}
	bm.readonlyTotal.WithLabelValues(reason).Inc()
}
