package metrics

import (
	"math"
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"defil/core/events"
)

// MarketMetrics mirrors committed market records into Prometheus collectors.
// It implements events.Emitter so it can be attached next to other sinks.
type MarketMetrics struct {
	operations    *prometheus.CounterVec
	failures      *prometheus.CounterVec
	transfers     *prometheus.CounterVec
	rewardEmitted prometheus.Counter
	emissionRate  prometheus.Gauge
	supplyIndex   prometheus.Gauge
	borrowIndex   prometheus.Gauge
	totalBorrows  prometheus.Gauge
	totalReserves prometheus.Gauge
	height        prometheus.Gauge
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketMetrics
)

// Market returns the process wide market metrics registry.
func Market() *MarketMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "defil",
				Subsystem: "market",
				Name:      "operations_total",
				Help:      "Count of committed market records by type.",
			}, []string{"type"}),
			failures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "defil",
				Subsystem: "market",
				Name:      "failures_total",
				Help:      "Count of rejected operations by operation, error code and failure info.",
			}, []string{"operation", "code", "info"}),
			transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "defil",
				Subsystem: "market",
				Name:      "transfers_total",
				Help:      "Count of asset transfers performed by the market segmented by asset.",
			}, []string{"asset"}),
			rewardEmitted: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "defil",
				Subsystem: "market",
				Name:      "reward_emitted",
				Help:      "Reward asset emitted so far, in base units.",
			}),
			emissionRate: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "defil",
				Subsystem: "market",
				Name:      "emission_rate",
				Help:      "Reward emitted per height in the latest segment.",
			}),
			supplyIndex: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "defil",
				Subsystem: "market",
				Name:      "supply_index",
				Help:      "Supply reward index (1e36 mantissa).",
			}),
			borrowIndex: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "defil",
				Subsystem: "market",
				Name:      "borrow_index",
				Help:      "Borrow interest index (1e18 mantissa).",
			}),
			totalBorrows: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "defil",
				Subsystem: "market",
				Name:      "total_borrows",
				Help:      "Outstanding borrows including accrued interest.",
			}),
			totalReserves: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "defil",
				Subsystem: "market",
				Name:      "total_reserves",
				Help:      "Interest set aside as reserves.",
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "defil",
				Subsystem: "market",
				Name:      "height",
				Help:      "Height of the latest committed record.",
			}),
		}
		prometheus.MustRegister(
			marketRegistry.operations,
			marketRegistry.failures,
			marketRegistry.transfers,
			marketRegistry.rewardEmitted,
			marketRegistry.emissionRate,
			marketRegistry.supplyIndex,
			marketRegistry.borrowIndex,
			marketRegistry.totalBorrows,
			marketRegistry.totalReserves,
			marketRegistry.height,
		)
	})
	return marketRegistry
}

// Emit implements events.Emitter.
func (m *MarketMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	m.operations.WithLabelValues(evt.EventType()).Inc()
	switch e := evt.(type) {
	case events.AccrueInterest:
		m.height.Set(float64(e.Height))
		m.borrowIndex.Set(bigToFloat(e.BorrowIndex))
		m.totalBorrows.Set(bigToFloat(e.TotalBorrows))
		m.totalReserves.Set(bigToFloat(e.TotalReserves))
	case events.AccrueReward:
		m.height.Set(float64(e.Height))
		m.rewardEmitted.Add(bigToFloat(e.Amount))
		m.emissionRate.Set(bigToFloat(e.Rate))
		m.supplyIndex.Set(bigToFloat(e.SupplyIndex))
	case events.Borrow:
		m.totalBorrows.Set(bigToFloat(e.TotalBorrows))
	case events.RepayBorrow:
		m.totalBorrows.Set(bigToFloat(e.TotalBorrows))
	case events.Transfer:
		m.transfers.WithLabelValues(labelAsset(e.Asset)).Inc()
	case events.Failure:
		op := strings.TrimSpace(e.Operation)
		if op == "" {
			op = "unknown"
		}
		m.failures.WithLabelValues(op, e.CodeName, e.InfoName).Inc()
	}
}

func labelAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return "UNKNOWN"
	}
	return strings.ToUpper(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil || value.Sign() < 0 {
		return 0
	}
	floatVal, _ := new(big.Float).SetInt(value).Float64()
	if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
		return 0
	}
	return floatVal
}
