package ledger

import (
	"math"
	"sort"

	"github.com/senthilts9/smart-order-routing/internal/order"
)

// VenueStat 为单一场所的路由统计。
type VenueStat struct {
	Children  int     `json:"children"`
	FilledQty int64   `json:"filled_qty"`
	Share     float64 `json:"share"`
}

// PerformanceStats 为账本回放得到的整体执行质量统计。
type PerformanceStats struct {
	TotalOrders  int                  `json:"total_orders"`
	TotalVolume  int64                `json:"total_volume"`
	SuccessRate  float64              `json:"success_rate"`
	AvgFillRate  float64              `json:"avg_fill_rate"`
	LatencyP50Ms float64              `json:"latency_p50_ms"`
	LatencyP95Ms float64              `json:"latency_p95_ms"`
	LatencyP99Ms float64              `json:"latency_p99_ms"`
	VenueStats   map[string]VenueStat `json:"venue_stats"`
}

// Analyze 对账本快照做纯函数回放，不修改任何状态。
func Analyze(events []Event) PerformanceStats {
	stats := PerformanceStats{
		VenueStats: make(map[string]VenueStat),
	}

	var latenciesMs []float64
	var fillRateSum float64
	var successCount int
	var totalFilled int64

	for _, e := range events {
		switch payload := e.Payload.(type) {
		case DispatchPayload:
			stat := stats.VenueStats[payload.Child.VenueID]
			stat.Children++
			stats.VenueStats[payload.Child.VenueID] = stat
		case OutcomePayload:
			if payload.Outcome.FilledQty > 0 {
				stat := stats.VenueStats[payload.VenueID]
				stat.FilledQty += payload.Outcome.FilledQty
				stats.VenueStats[payload.VenueID] = stat
			}
			if payload.Outcome.Latency > 0 {
				latenciesMs = append(latenciesMs, float64(payload.Outcome.Latency.Microseconds())/1000)
			}
		case ReportPayload:
			stats.TotalOrders++
			report := payload.Report
			totalFilled += report.TotalFilledQty
			if report.Status == order.StatusFilled || report.TotalFilledQty > 0 {
				successCount++
			}
			if ordered := decisionQty(events, e.OrderID); ordered > 0 {
				fillRateSum += float64(report.TotalFilledQty) / float64(ordered)
			}
		}
	}

	stats.TotalVolume = totalFilled
	if stats.TotalOrders > 0 {
		stats.SuccessRate = float64(successCount) / float64(stats.TotalOrders)
		stats.AvgFillRate = fillRateSum / float64(stats.TotalOrders)
	}
	if totalFilled > 0 {
		for id, stat := range stats.VenueStats {
			stat.Share = float64(stat.FilledQty) / float64(totalFilled)
			stats.VenueStats[id] = stat
		}
	}

	stats.LatencyP50Ms = Percentile(latenciesMs, 0.50)
	stats.LatencyP95Ms = Percentile(latenciesMs, 0.95)
	stats.LatencyP99Ms = Percentile(latenciesMs, 0.99)

	return stats
}

// OrderVWAP 从账本成交事件独立重算指定订单的 VWAP，
// 用于与 ExecutionReport 交叉校验。
func OrderVWAP(events []Event, orderID string) float64 {
	var notional float64
	var qty int64
	for _, e := range events {
		if e.OrderID != orderID || e.Type != EventFillOutcome {
			continue
		}
		payload, ok := e.Payload.(OutcomePayload)
		if !ok || payload.Outcome.FilledQty <= 0 {
			continue
		}
		notional += float64(payload.Outcome.FilledQty) * payload.Outcome.FillPrice
		qty += payload.Outcome.FilledQty
	}
	if qty == 0 {
		return 0
	}
	return notional / float64(qty)
}

// Percentile 返回样本的 p 分位数，p 位于 [0,1]，使用最近秩法。
func Percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}

// decisionQty 取该订单首次路由决策的下单总量。
func decisionQty(events []Event, orderID string) int64 {
	for _, e := range events {
		if e.OrderID != orderID || e.Type != EventRoutingDecision {
			continue
		}
		if payload, ok := e.Payload.(DecisionPayload); ok && payload.Attempt == 1 {
			return payload.Decision.TotalQuantity()
		}
	}
	return 0
}
