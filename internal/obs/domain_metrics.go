package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// DiscountEvaluationsTotal counts pricing evaluations by rule type and outcome.
	DiscountEvaluationsTotal *prometheus.CounterVec
	// DiscountRedemptionsTotal counts redemption attempts by outcome.
	DiscountRedemptionsTotal *prometheus.CounterVec
	// StoreLookupsTotal counts store locator requests by kind and outcome.
	StoreLookupsTotal *prometheus.CounterVec
	// StoreDirectoryFetchTotal counts store directory loads by source and outcome.
	StoreDirectoryFetchTotal *prometheus.CounterVec
	// StoreDirectoryLatency records upstream directory latency in milliseconds.
	StoreDirectoryLatency prometheus.Histogram
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		DiscountEvaluationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_evaluations_total",
			Help:      "Count of discount rule evaluations by rule type and result.",
		}, []string{"type", "result"})
		DiscountRedemptionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discount_redemptions_total",
			Help:      "Count of discount redemption attempts by result.",
		}, []string{"result"})
		StoreLookupsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_lookups_total",
			Help:      "Count of store locator lookups by kind and result.",
		}, []string{"kind", "result"})
		StoreDirectoryFetchTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_directory_fetch_total",
			Help:      "Count of store directory loads by source and result.",
		}, []string{"source", "result"})
		StoreDirectoryLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_directory_fetch_duration_ms",
			Help:      "Latency of upstream store directory requests in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		})

		mustRegisterCollector(reg, DiscountEvaluationsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DiscountEvaluationsTotal = v
			}
		})
		mustRegisterCollector(reg, DiscountRedemptionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				DiscountRedemptionsTotal = v
			}
		})
		mustRegisterCollector(reg, StoreLookupsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				StoreLookupsTotal = v
			}
		})
		mustRegisterCollector(reg, StoreDirectoryFetchTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				StoreDirectoryFetchTotal = v
			}
		})
		mustRegisterCollector(reg, StoreDirectoryLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Histogram); ok {
				StoreDirectoryLatency = v
			}
		})
	})
}

// IncDiscountEvaluation records an evaluation outcome when domain metrics are registered.
func IncDiscountEvaluation(ruleType, result string) {
	if DiscountEvaluationsTotal == nil {
		return
	}
	DiscountEvaluationsTotal.WithLabelValues(ruleType, result).Inc()
}

// IncDiscountRedemption records a redemption outcome when domain metrics are registered.
func IncDiscountRedemption(result string) {
	if DiscountRedemptionsTotal == nil {
		return
	}
	DiscountRedemptionsTotal.WithLabelValues(result).Inc()
}

// IncStoreLookup records a locator lookup outcome when domain metrics are registered.
func IncStoreLookup(kind, result string) {
	if StoreLookupsTotal == nil {
		return
	}
	StoreLookupsTotal.WithLabelValues(kind, result).Inc()
}

// IncStoreDirectoryFetch records a directory load outcome when domain metrics are registered.
func IncStoreDirectoryFetch(source, result string) {
	if StoreDirectoryFetchTotal == nil {
		return
	}
	StoreDirectoryFetchTotal.WithLabelValues(source, result).Inc()
}

// ObserveStoreDirectoryLatency records upstream latency in milliseconds.
func ObserveStoreDirectoryLatency(ms float64) {
	if StoreDirectoryLatency == nil {
		return
	}
	StoreDirectoryLatency.Observe(ms)
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
