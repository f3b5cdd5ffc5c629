package risk

import "fmt"

// Reason 表示风控拒绝原因。
type Reason string

const (
	ReasonNotionalExceeded Reason = "NOTIONAL_EXCEEDED"
	ReasonQtyExceeded      Reason = "QTY_EXCEEDED"
	ReasonSymbolBlocked    Reason = "SYMBOL_BLOCKED"
	ReasonFatFinger        Reason = "FAT_FINGER"
)

// Rejection 为事前风控的拒绝结果，实现 error 以便沿调用链透传。
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("risk: %s: %s", r.Reason, r.Detail)
}

// ReferenceSource 提供风控使用的参考价。
type ReferenceSource interface {
	RefPrice(symbol string) (float64, error)
}
