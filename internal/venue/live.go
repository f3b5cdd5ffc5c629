package venue

import (
	"context"
	"fmt"
	"strings"
	"time"

	ccxt "github.com/ccxt/ccxt/go/v4"
	"go.uber.org/zap"

	"github.com/senthilts9/smart-order-routing/internal/config"
	"github.com/senthilts9/smart-order-routing/internal/order"
)

type orderClient interface {
	CreateMarketOrder(symbol string, side string, amount float64, options ...ccxt.CreateMarketOrderOptions) (ccxt.Order, error)
	CreateLimitOrder(symbol string, side string, amount float64, price float64, options ...ccxt.CreateLimitOrderOptions) (ccxt.Order, error)
}

// Live 通过 ccxt 将子订单转译为真实场所的委托。
type Live struct {
	venueID string
	market  string
	client  orderClient
	logger  *zap.Logger
}

// NewLive 按配置构建真实场所适配器。
func NewLive(venueID string, cfg config.LiveVenueConfig, logger *zap.Logger) (*Live, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	userConfig := map[string]interface{}{
		"enableRateLimit": true,
	}
	if cfg.APIKey != "" {
		userConfig["apiKey"] = cfg.APIKey
	}
	if cfg.APISecret != "" {
		userConfig["secret"] = cfg.APISecret
	}
	if cfg.Wallet != "" {
		userConfig["walletAddress"] = cfg.Wallet
	}
	if cfg.PrivateKey != "" {
		userConfig["privateKey"] = cfg.PrivateKey
	}

	var client orderClient
	switch strings.ToLower(cfg.Exchange) {
	case "hyperliquid":
		hl := ccxt.NewHyperliquid(userConfig)
		if cfg.UseSandbox {
			hl.SetSandboxMode(true)
		}
		client = hl
	case "binanceusdm":
		bn := ccxt.NewBinanceusdm(userConfig)
		if cfg.UseSandbox {
			bn.SetSandboxMode(true)
		}
		client = bn
	default:
		return nil, fmt.Errorf("venue: 不支持的真实场所 %q", cfg.Exchange)
	}

	return &Live{
		venueID: venueID,
		market:  cfg.Market,
		client:  client,
		logger:  logger,
	}, nil
}

// VenueID 返回场所标识。
func (l *Live) VenueID() string {
	return l.venueID
}

// Execute 提交委托并把场所应答归一化为 FillOutcome。
// 可重试类错误（网络/限流/超时）归为 TIMEOUT，由编排器的重试池接管。
func (l *Live) Execute(ctx context.Context, child order.ChildOrder) (FillOutcome, error) {
	start := time.Now()

	params := map[string]interface{}{
		"clientOrderId": child.ChildID,
		"timeInForce":   strings.ToLower(string(child.TimeInForce)),
	}

	var (
		ord ccxt.Order
		err error
	)
	side := strings.ToLower(string(child.Side))
	amount := float64(child.Quantity)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if child.LimitPrice > 0 {
			ord, err = l.client.CreateLimitOrder(l.market, side, amount, child.LimitPrice,
				ccxt.WithCreateLimitOrderParams(params))
		} else {
			ord, err = l.client.CreateMarketOrder(l.market, side, amount,
				ccxt.WithCreateMarketOrderParams(params))
		}
	}()

	select {
	case <-ctx.Done():
		return FillOutcome{Kind: OutcomeTimeout, Reason: "场所应答超时", Latency: time.Since(start)}, nil
	case <-done:
	}

	latency := time.Since(start)
	if err != nil {
		kind := OutcomeRejected
		if IsRetryable(err) {
			kind = OutcomeTimeout
		}
		l.logger.Warn("真实场所下单失败",
			zap.String("venue", l.venueID),
			zap.String("child_id", child.ChildID),
			zap.Error(err),
		)
		return FillOutcome{Kind: kind, Reason: err.Error(), Latency: latency}, nil
	}

	filled := int64(derefFloat(ord.Filled))
	price := firstPositive(derefFloat(ord.Average), derefFloat(ord.Price), child.LimitPrice)

	outcome := FillOutcome{
		FilledQty: filled,
		FillPrice: price,
		Fee:       derefFloat(ord.Fee.Cost),
		Latency:   latency,
	}
	switch {
	case filled >= child.Quantity:
		outcome.Kind = OutcomeFilled
		outcome.FilledQty = child.Quantity
	case filled > 0:
		outcome.Kind = OutcomePartial
	default:
		outcome.Kind = OutcomeRejected
		outcome.Reason = "场所未成交"
	}
	return outcome, nil
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func firstPositive(values ...float64) float64 {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
