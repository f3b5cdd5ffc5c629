package order

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidOrder 表示订单未通过基础校验。
var ErrInvalidOrder = errors.New("order: 订单参数非法")

// Side 表示订单方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// TimeInForce 表示订单有效期语义。
type TimeInForce string

const (
	// TIFImmediateOrCancel 立即成交可成交部分，其余取消。
	TIFImmediateOrCancel TimeInForce = "IOC"
	// TIFFillOrKill 首次派发必须全部成交，否则整单拒绝。
	TIFFillOrKill TimeInForce = "FOK"
	// TIFDay 在截止时间内允许多次重试。
	TIFDay TimeInForce = "DAY"
)

// Order 为进入路由核心的父订单，接受后不可变。
type Order struct {
	OrderID     string      `json:"order_id"`
	Symbol      string      `json:"symbol"`
	Side        Side        `json:"side"`
	Quantity    int64       `json:"quantity"`
	LimitPrice  float64     `json:"limit_price,omitempty"` // 0 表示市价单
	TimeInForce TimeInForce `json:"time_in_force"`
	SubmittedAt time.Time   `json:"submitted_at"`
}

// Validate 校验订单基础约束。
func (o Order) Validate() error {
	var errs []string
	if strings.TrimSpace(o.OrderID) == "" {
		errs = append(errs, "order_id 不能为空")
	}
	if strings.TrimSpace(o.Symbol) == "" {
		errs = append(errs, "symbol 不能为空")
	}
	if o.Side != SideBuy && o.Side != SideSell {
		errs = append(errs, fmt.Sprintf("side %q 非法", o.Side))
	}
	if o.Quantity <= 0 {
		errs = append(errs, "quantity 必须大于0")
	}
	if o.LimitPrice < 0 {
		errs = append(errs, "limit_price 不能为负")
	}
	switch o.TimeInForce {
	case TIFImmediateOrCancel, TIFFillOrKill, TIFDay:
	default:
		errs = append(errs, fmt.Sprintf("time_in_force %q 非法", o.TimeInForce))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOrder, strings.Join(errs, "; "))
	}
	return nil
}

// ChildStatus 表示子订单状态。
type ChildStatus string

const (
	ChildPending  ChildStatus = "PENDING"
	ChildFilled   ChildStatus = "FILLED"
	ChildPartial  ChildStatus = "PARTIAL"
	ChildRejected ChildStatus = "REJECTED"
	ChildTimedOut ChildStatus = "TIMED_OUT"
)

// ChildOrder 为派发到单一场所的子订单，由编排器独占管理。
type ChildOrder struct {
	ChildID       string      `json:"child_id"`
	ParentOrderID string      `json:"parent_order_id"`
	VenueID       string      `json:"venue_id"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Quantity      int64       `json:"quantity"`
	LimitPrice    float64     `json:"limit_price,omitempty"`
	TimeInForce   TimeInForce `json:"time_in_force"`
	Attempt       int         `json:"attempt"`
	Status        ChildStatus `json:"status"`
	DispatchedAt  time.Time   `json:"dispatched_at"`
}

// ChildID 生成幂等子订单ID：同一 (父单, 场所, 轮次) 至多派发一次。
func ChildID(parentOrderID, venueID string, attempt int) string {
	return fmt.Sprintf("%s:%s:a%d", parentOrderID, venueID, attempt)
}

// Fill 为一次成交记录，写入后不可变。
type Fill struct {
	ChildID   string    `json:"child_id"`
	VenueID   string    `json:"venue_id"`
	FilledQty int64     `json:"filled_qty"`
	FillPrice float64   `json:"fill_price"`
	Fee       float64   `json:"fee,omitempty"`
	FilledAt  time.Time `json:"filled_at"`
}

// ReportStatus 表示父订单终态。
type ReportStatus string

const (
	StatusFilled          ReportStatus = "FILLED"
	StatusPartiallyFilled ReportStatus = "PARTIALLY_FILLED"
	StatusRejected        ReportStatus = "REJECTED"
	StatusCancelled       ReportStatus = "CANCELLED"
)

// ExecutionReport 为一次 SubmitOrder 的唯一终态结果。
type ExecutionReport struct {
	OrderID        string       `json:"order_id"`
	Status         ReportStatus `json:"status"`
	Fills          []Fill       `json:"fills"`
	TotalFilledQty int64        `json:"total_filled_qty"`
	VWAP           float64      `json:"vwap"`
	TotalFees      float64      `json:"total_fees"`
	Reason         string       `json:"reason,omitempty"`
	CompletedAt    time.Time    `json:"completed_at"`
}

// VWAP 按成交量加权计算平均成交价，无成交时返回 0。
func VWAP(fills []Fill) float64 {
	var notional float64
	var qty int64
	for _, f := range fills {
		notional += float64(f.FilledQty) * f.FillPrice
		qty += f.FilledQty
	}
	if qty == 0 {
		return 0
	}
	return notional / float64(qty)
}

// TotalFilled 汇总成交数量。
func TotalFilled(fills []Fill) int64 {
	var qty int64
	for _, f := range fills {
		qty += f.FilledQty
	}
	return qty
}
