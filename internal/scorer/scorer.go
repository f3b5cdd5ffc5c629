package scorer

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/senthilts9/smart-order-routing/internal/order"
	"github.com/senthilts9/smart-order-routing/internal/venue"
)

// Scorer 依据场所画像给出排序与份额分配。
type Scorer struct {
	strategy Strategy
	logger   *zap.Logger
}

// New 创建 Scorer。
func New(strategy Strategy, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		strategy: strategy,
		logger:   logger,
	}
}

type ranked struct {
	profile venue.Profile
	score   float64
}

// Decide 对可用场所打分排序，并按深度贪心分配订单数量。
// 全部场所不可用时返回 ErrNoEligibleVenue。
func (s *Scorer) Decide(o order.Order, profiles []venue.Profile) (RoutingDecision, error) {
	candidates := make([]ranked, 0, len(profiles))
	for _, p := range profiles {
		if p.Halted {
			continue
		}
		candidates = append(candidates, ranked{
			profile: p,
			score:   s.strategy.Score(o, p),
		})
	}

	if len(candidates) == 0 {
		return RoutingDecision{}, ErrNoEligibleVenue
	}

	// 分数降序，平分时按 VenueID 字典序升序，保证结果可复现。
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].profile.VenueID < candidates[j].profile.VenueID
	})

	allocations := allocate(o.Quantity, candidates)

	decision := RoutingDecision{
		OrderID:     o.OrderID,
		Allocations: allocations,
		CreatedAt:   time.Now().UTC(),
	}

	s.logger.Debug("路由决策完成",
		zap.String("order_id", o.OrderID),
		zap.String("strategy", s.strategy.Name()),
		zap.Int("venue_count", len(allocations)),
	)

	return decision, nil
}

// allocate 贪心分配：自榜首起每个场所分得 min(剩余量, 深度估计)，
// 场所耗尽仍有剩余时，余量全部压到榜首场所，接受排队风险。
func allocate(quantity int64, candidates []ranked) []Allocation {
	allocations := make([]Allocation, 0, len(candidates))
	remaining := quantity

	for _, c := range candidates {
		if remaining <= 0 {
			break
		}
		qty := c.profile.DepthEstimate
		if qty > remaining {
			qty = remaining
		}
		if qty <= 0 {
			continue
		}
		allocations = append(allocations, Allocation{
			VenueID:  c.profile.VenueID,
			Quantity: qty,
			Score:    c.score,
		})
		remaining -= qty
	}

	if remaining > 0 {
		if len(allocations) > 0 {
			allocations[0].Quantity += remaining
		} else {
			allocations = append(allocations, Allocation{
				VenueID:  candidates[0].profile.VenueID,
				Quantity: remaining,
				Score:    candidates[0].score,
			})
		}
	}

	return allocations
}
