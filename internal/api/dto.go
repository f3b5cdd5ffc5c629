package api

// SubmitOrderRequest 为下单接口的请求体。order_id 缺省时由服务端生成。
type SubmitOrderRequest struct {
	OrderID     string  `json:"order_id"`
	Symbol      string  `json:"symbol" binding:"required"`
	Side        string  `json:"side" binding:"required"`
	Quantity    int64   `json:"quantity" binding:"required"`
	LimitPrice  float64 `json:"limit_price"`
	TimeInForce string  `json:"time_in_force"`
}

// CancelOrderResponse 为撤单接口的响应体。
type CancelOrderResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// ErrorResponse 为统一的错误响应体。
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	errCodeInvalidArgument = "INVALID_ARGUMENT"
	errCodeDuplicateOrder  = "DUPLICATE_ORDER"
	errCodeOrderNotFound   = "ORDER_NOT_FOUND"
	errCodeNoEligibleVenue = "NO_ELIGIBLE_VENUE"
	errCodeLedgerFailure   = "LEDGER_FAILURE"
	errCodeInternal        = "INTERNAL_ERROR"
)
