package risk

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/senthilts9/smart-order-routing/internal/config"
	"github.com/senthilts9/smart-order-routing/internal/order"
)

// Gate 执行事前风控。除读取配置与参考价外没有任何副作用：
// 相同订单与相同参考状态必然得到相同结论。
type Gate struct {
	cfg     config.RiskConfig
	ref     ReferenceSource
	allowed map[string]struct{}
	logger  *zap.Logger
}

// NewGate 创建风控闸门。
func NewGate(cfg config.RiskConfig, ref ReferenceSource, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedSymbols))
	for _, sym := range cfg.AllowedSymbols {
		allowed[sym] = struct{}{}
	}
	return &Gate{
		cfg:     cfg,
		ref:     ref,
		allowed: allowed,
		logger:  logger,
	}
}

// Check 顺序执行各项检查，首个失败即返回对应 *Rejection。
// 名义金额允许恰等于上限。
func (g *Gate) Check(o order.Order) error {
	refPrice, refErr := g.ref.RefPrice(o.Symbol)

	notionalPrice := o.LimitPrice
	if notionalPrice <= 0 {
		if refErr != nil || refPrice <= 0 {
			return &Rejection{
				Reason: ReasonSymbolBlocked,
				Detail: fmt.Sprintf("标的 %s 缺少参考价，无法估算名义金额", o.Symbol),
			}
		}
		notionalPrice = refPrice
	}

	if notional := float64(o.Quantity) * notionalPrice; notional > g.cfg.MaxNotional {
		return &Rejection{
			Reason: ReasonNotionalExceeded,
			Detail: fmt.Sprintf("名义金额 %.2f 超过上限 %.2f", notional, g.cfg.MaxNotional),
		}
	}

	if maxQty := g.cfg.MaxQtyFor(o.Symbol); o.Quantity > maxQty {
		return &Rejection{
			Reason: ReasonQtyExceeded,
			Detail: fmt.Sprintf("数量 %d 超过标的上限 %d", o.Quantity, maxQty),
		}
	}

	if _, ok := g.allowed[o.Symbol]; !ok {
		return &Rejection{
			Reason: ReasonSymbolBlocked,
			Detail: fmt.Sprintf("标的 %s 不在白名单内", o.Symbol),
		}
	}

	if o.LimitPrice > 0 {
		if refErr != nil || refPrice <= 0 {
			return &Rejection{
				Reason: ReasonFatFinger,
				Detail: fmt.Sprintf("标的 %s 缺少参考价，无法校验限价", o.Symbol),
			}
		}
		lower := refPrice * (1 - g.cfg.PriceBand)
		upper := refPrice * (1 + g.cfg.PriceBand)
		if o.LimitPrice < lower || o.LimitPrice > upper {
			return &Rejection{
				Reason: ReasonFatFinger,
				Detail: fmt.Sprintf("限价 %.4f 超出区间 [%.4f, %.4f]", o.LimitPrice, lower, upper),
			}
		}
	}

	return nil
}
