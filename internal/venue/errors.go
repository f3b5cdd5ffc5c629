package venue

import (
	"errors"

	ccxt "github.com/ccxt/ccxt/go/v4"
)

// IsRetryable 判断真实场所返回的错误是否可重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var ccxtErr *ccxt.Error
	if errors.As(err, &ccxtErr) {
		switch ccxtErr.Type {
		case ccxt.NetworkErrorErrType,
			ccxt.RequestTimeoutErrType,
			ccxt.ExchangeNotAvailableErrType,
			ccxt.RateLimitExceededErrType,
			ccxt.DDoSProtectionErrType,
			ccxt.BadResponseErrType,
			ccxt.NullResponseErrType:
			return true
		default:
			return false
		}
	}

	return false
}
