package metrics

import (
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"defil/core/events"
)

func TestMarketMetricsTrackRecords(t *testing.T) {
	m := Market()
	if Market() != m {
		t.Fatalf("registry must be a singleton")
	}

	before := testutil.ToFloat64(m.rewardEmitted)
	m.Emit(events.AccrueReward{Height: 10, Rate: big.NewInt(5), Amount: big.NewInt(50), SupplyIndex: big.NewInt(7)})
	m.Emit(events.AccrueInterest{Height: 10, BorrowIndex: big.NewInt(2), TotalBorrows: big.NewInt(300), TotalReserves: big.NewInt(3)})
	m.Emit(events.Transfer{Asset: " efil", Amount: big.NewInt(1)})
	m.Emit(events.Failure{Operation: "borrow", CodeName: "INSUFFICIENT_COLLATERAL", InfoName: "BORROW_INSUFFICIENT_COLLATERAL"})

	if got := testutil.ToFloat64(m.rewardEmitted) - before; got != 50 {
		t.Fatalf("reward emitted delta %v", got)
	}
	if got := testutil.ToFloat64(m.emissionRate); got != 5 {
		t.Fatalf("emission rate %v", got)
	}
	if got := testutil.ToFloat64(m.totalBorrows); got != 300 {
		t.Fatalf("total borrows %v", got)
	}
	if got := testutil.ToFloat64(m.height); got != 10 {
		t.Fatalf("height %v", got)
	}
	if got := testutil.ToFloat64(m.transfers.WithLabelValues("EFIL")); got < 1 {
		t.Fatalf("transfer counter %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("borrow", "INSUFFICIENT_COLLATERAL", "BORROW_INSUFFICIENT_COLLATERAL")); got < 1 {
		t.Fatalf("failure counter %v", got)
	}
	if got := testutil.ToFloat64(m.operations.WithLabelValues(events.TypeAccrueReward)); got < 1 {
		t.Fatalf("operations counter %v", got)
	}
}

func TestMarketMetricsNilSafe(t *testing.T) {
	var m *MarketMetrics
	m.Emit(events.Transfer{Asset: "EFIL"})
	Market().Emit(nil)
}

func TestBigToFloat(t *testing.T) {
	if bigToFloat(nil) != 0 || bigToFloat(big.NewInt(-4)) != 0 {
		t.Fatalf("nil and negative must map to zero")
	}
	huge := new(big.Int).Lsh(big.NewInt(1), 2000)
	if bigToFloat(huge) != 0 {
		t.Fatalf("overflowing values must map to zero")
	}
	if bigToFloat(big.NewInt(12)) != 12 {
		t.Fatalf("exact conversion")
	}
}
