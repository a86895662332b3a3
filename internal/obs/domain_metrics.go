package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// CheckoutQuotesTotal counts calculator runs by stage (preview, commit) and result.
	CheckoutQuotesTotal *prometheus.CounterVec
	// OrderTotalGBP records committed order totals in pounds.
	OrderTotalGBP prometheus.Histogram
	// OrderStatusChangesTotal counts admin status transitions by target status and result.
	OrderStatusChangesTotal *prometheus.CounterVec
	// NotificationJobsTotal counts background notification jobs by type and result.
	NotificationJobsTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		CheckoutQuotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_quotes_total",
			Help:      "Count of checkout total calculations by stage and outcome.",
		}, []string{"stage", "result"})
		OrderTotalGBP = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "order_total_gbp",
			Help:      "Distribution of committed order totals in GBP.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		})
		OrderStatusChangesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_status_changes_total",
			Help:      "Count of order status change attempts.",
		}, []string{"status", "result"})
		NotificationJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_jobs_total",
			Help:      "Count of notification jobs processed by the worker.",
		}, []string{"type", "result"})

		CheckoutQuotesTotal = registerOrReuse(reg, CheckoutQuotesTotal)
		OrderTotalGBP = registerOrReuse(reg, OrderTotalGBP)
		OrderStatusChangesTotal = registerOrReuse(reg, OrderStatusChangesTotal)
		NotificationJobsTotal = registerOrReuse(reg, NotificationJobsTotal)
	})
}

// ObserveQuote records a checkout calculation outcome. It is a no-op until
// MustRegisterDomainMetrics has run.
func ObserveQuote(stage, result string) {
	if CheckoutQuotesTotal == nil {
		return
	}
	CheckoutQuotesTotal.WithLabelValues(stage, result).Inc()
}

// ObserveOrderTotal records the total of a committed order.
func ObserveOrderTotal(total float64) {
	if OrderTotalGBP == nil {
		return
	}
	OrderTotalGBP.Observe(total)
}

// ObserveStatusChange records an order status change attempt.
func ObserveStatusChange(status, result string) {
	if OrderStatusChangesTotal == nil {
		return
	}
	OrderStatusChangesTotal.WithLabelValues(status, result).Inc()
}

// ObserveNotificationJob records a worker job outcome.
func ObserveNotificationJob(kind, result string) {
	if NotificationJobsTotal == nil {
		return
	}
	NotificationJobsTotal.WithLabelValues(kind, result).Inc()
}
