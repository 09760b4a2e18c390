// Package metrics holds the Prometheus collectors of the settlement service.
package metrics

import (
	"net/http"
	"time"

	"cacaowallet/internal/reserve"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cacaowallet"

var TransactionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "settlement",
	Name:      "transactions_created_total",
	Help:      "Transactions created by type and initial status.",
}, []string{"type", "status"})

var SettlementsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "settlement",
	Name:      "resolutions_total",
	Help:      "Pending transactions resolved by type and decision.",
}, []string{"type", "decision"})

var SettlementFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "settlement",
	Name:      "failures_total",
	Help:      "Rejected operations by reason.",
}, []string{"reason"})

var ReserveGrams = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "reserve",
	Name:      "grams",
	Help:      "Global reserve quantities in grams.",
}, []string{"quantity"})

var TreasuryBalance = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "treasury",
	Name:      "fiat",
	Help:      "Treasury fee totals in fiat.",
}, []string{"quantity"})

var HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route and status class.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "route", "status"})

var EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "events",
	Name:      "published_total",
	Help:      "Settlement events handed to the external publisher by outcome.",
}, []string{"outcome"})

func TransactionCreated(txType, status string) {
	TransactionsCreated.WithLabelValues(txType, status).Inc()
}

func SettlementResolved(txType, decision string) {
	SettlementsResolved.WithLabelValues(txType, decision).Inc()
}

func SettlementFailed(reason string) {
	SettlementFailures.WithLabelValues(reason).Inc()
}

func ObserveReserve(r reserve.Reserve) {
	ReserveGrams.WithLabelValues("total_stock").Set(r.TotalCacaoStock.InexactFloat64())
	ReserveGrams.WithLabelValues("tokens_issued").Set(r.TokensIssued.InexactFloat64())
	ReserveGrams.WithLabelValues("available_stock").Set(r.AvailableStock.InexactFloat64())
}

func ObserveTreasury(t reserve.Treasury) {
	TreasuryBalance.WithLabelValues("collected").Set(t.TotalFeesCollected.InexactFloat64())
	TreasuryBalance.WithLabelValues("withdrawn").Set(t.TotalWithdrawn.InexactFloat64())
	TreasuryBalance.WithLabelValues("available").Set(t.AvailableBalance().InexactFloat64())
}

func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, statusClass(status)).Observe(elapsed.Seconds())
}

func EventPublished(ok bool) {
	if ok {
		EventsPublished.WithLabelValues("ok").Inc()
		return
	}
	EventsPublished.WithLabelValues("error").Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
