package scorer

import (
	"errors"
	"time"

	"github.com/senthilts9/smart-order-routing/internal/order"
	"github.com/senthilts9/smart-order-routing/internal/venue"
)

// ErrNoEligibleVenue 表示当前没有可用场所，编排器据此直接拒绝订单。
var ErrNoEligibleVenue = errors.New("scorer: 没有可用场所")

// Strategy 为打分能力接口，规则与模型两种实现均满足它。
// 返回值归一化到 [0,1]，编排器只依赖该接口而非具体实现。
type Strategy interface {
	Name() string
	Score(o order.Order, p venue.Profile) float64
}

// Allocation 为决策中单个场所的份额。
type Allocation struct {
	VenueID  string  `json:"venue_id"`
	Quantity int64   `json:"quantity"`
	Score    float64 `json:"score"`
}

// RoutingDecision 为一次打分的不可变结果，由编排器消费。
type RoutingDecision struct {
	OrderID     string       `json:"order_id"`
	Allocations []Allocation `json:"allocations"`
	CreatedAt   time.Time    `json:"created_at"`
}

// TotalQuantity 汇总决策分配的总量。
func (d RoutingDecision) TotalQuantity() int64 {
	var total int64
	for _, a := range d.Allocations {
		total += a.Quantity
	}
	return total
}
