package metrics

import (
	"testing"
	"time"

	"cacaowallet/internal/reserve"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestSettlementCounters(t *testing.T) {
	before := testutil.ToFloat64(SettlementsResolved.WithLabelValues("SELL", "approve"))
	SettlementResolved("SELL", "approve")
	assert.Equal(t, before+1, testutil.ToFloat64(SettlementsResolved.WithLabelValues("SELL", "approve")))

	before = testutil.ToFloat64(SettlementFailures.WithLabelValues("insufficient_funds"))
	SettlementFailed("insufficient_funds")
	assert.Equal(t, before+1, testutil.ToFloat64(SettlementFailures.WithLabelValues("insufficient_funds")))
}

func TestObserveReserveAndTreasury(t *testing.T) {
	ObserveReserve(reserve.Reserve{
		TotalCacaoStock: decimal.NewFromInt(50000),
		TokensIssued:    decimal.NewFromInt(45000),
		AvailableStock:  decimal.NewFromInt(5000),
	})
	assert.Equal(t, 45000.0, testutil.ToFloat64(ReserveGrams.WithLabelValues("tokens_issued")))
	assert.Equal(t, 5000.0, testutil.ToFloat64(ReserveGrams.WithLabelValues("available_stock")))

	ObserveTreasury(reserve.Treasury{TotalFeesCollected: decimal.RequireFromString("12.50"), TotalWithdrawn: decimal.NewFromInt(2)})
	assert.Equal(t, 10.5, testutil.ToFloat64(TreasuryBalance.WithLabelValues("available")))
}

func TestStatusClass(t *testing.T) {
	assert.Equal(t, "2xx", statusClass(201))
	assert.Equal(t, "4xx", statusClass(409))
	assert.Equal(t, "5xx", statusClass(503))
	ObserveRequest("GET", "/reserve", 200, 5*time.Millisecond)
}
