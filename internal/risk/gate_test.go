package risk

import (
	"errors"
	"fmt"
	"testing"

	"github.com/senthilts9/smart-order-routing/internal/config"
	"github.com/senthilts9/smart-order-routing/internal/order"
)

type stubRef struct {
	prices map[string]float64
}

func (s stubRef) RefPrice(symbol string) (float64, error) {
	price, ok := s.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no reference price for %s", symbol)
	}
	return price, nil
}

func testGate() *Gate {
	cfg := config.RiskConfig{
		MaxNotional:     1_000_000,
		DefaultMaxQty:   10_000,
		MaxQtyPerSymbol: map[string]int64{"TSLA": 500},
		AllowedSymbols:  []string{"AAPL", "TSLA"},
		PriceBand:       0.05,
	}
	ref := stubRef{prices: map[string]float64{"AAPL": 100, "TSLA": 200}}
	return NewGate(cfg, ref, nil)
}

func baseOrder() order.Order {
	return order.Order{
		OrderID:     "ORD-1",
		Symbol:      "AAPL",
		Side:        order.SideBuy,
		Quantity:    1000,
		TimeInForce: order.TIFDay,
	}
}

func TestGateCheck_AcceptsValidOrder(t *testing.T) {
	if err := testGate().Check(baseOrder()); err != nil {
		t.Fatalf("expected order to pass, got %v", err)
	}
}

func TestGateCheck_NotionalAtLimitAccepted(t *testing.T) {
	o := baseOrder()
	o.Quantity = 10_000
	o.LimitPrice = 100 // notional == max_notional exactly

	if err := testGate().Check(o); err != nil {
		t.Fatalf("expected notional == limit to pass, got %v", err)
	}
}

func TestGateCheck_NotionalExceeded(t *testing.T) {
	o := baseOrder()
	o.Quantity = 10_000
	o.LimitPrice = 100.01

	err := testGate().Check(o)
	assertReason(t, err, ReasonNotionalExceeded)
}

func TestGateCheck_NotionalUsesReferenceForMarketOrders(t *testing.T) {
	o := baseOrder()
	o.Quantity = 10_000
	o.LimitPrice = 0 // market order, 10000 * ref(100) == limit

	if err := testGate().Check(o); err != nil {
		t.Fatalf("expected market order at limit to pass, got %v", err)
	}

	o.Symbol = "TSLA" // ref price 200 pushes notional over the cap
	err := testGate().Check(o)
	assertReason(t, err, ReasonNotionalExceeded)
}

func TestGateCheck_QtyExceeded(t *testing.T) {
	o := baseOrder()
	o.Symbol = "TSLA"
	o.Quantity = 501

	err := testGate().Check(o)
	assertReason(t, err, ReasonQtyExceeded)
}

func TestGateCheck_SymbolBlocked(t *testing.T) {
	gate := testGate()
	o := baseOrder()
	o.Symbol = "GME"
	o.LimitPrice = 10 // keep notional/qty checks satisfied despite missing ref

	err := gate.Check(o)
	assertReason(t, err, ReasonSymbolBlocked)
}

func TestGateCheck_MarketOrderWithoutReferenceBlocked(t *testing.T) {
	gate := NewGate(config.RiskConfig{
		MaxNotional:    1_000_000,
		DefaultMaxQty:  10_000,
		AllowedSymbols: []string{"MSFT"},
		PriceBand:      0.05,
	}, stubRef{}, nil)

	o := baseOrder()
	o.Symbol = "MSFT"

	err := gate.Check(o)
	assertReason(t, err, ReasonSymbolBlocked)
}

func TestGateCheck_FatFinger(t *testing.T) {
	cases := []struct {
		name  string
		price float64
		pass  bool
	}{
		{"below band", 94.99, false},
		{"lower bound", 95.0, true},
		{"upper bound", 105.0, true},
		{"above band", 105.01, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := baseOrder()
			o.LimitPrice = tc.price
			err := testGate().Check(o)
			if tc.pass {
				if err != nil {
					t.Fatalf("expected limit %.2f to pass, got %v", tc.price, err)
				}
				return
			}
			assertReason(t, err, ReasonFatFinger)
		})
	}
}

func TestGateCheck_CheckOrderPrecedence(t *testing.T) {
	// 同时违反名义额与数量上限时，名义额检查先命中。
	o := baseOrder()
	o.Symbol = "TSLA"
	o.Quantity = 100_000
	o.LimitPrice = 500

	err := testGate().Check(o)
	assertReason(t, err, ReasonNotionalExceeded)
}

func TestGateCheck_Deterministic(t *testing.T) {
	gate := testGate()
	o := baseOrder()
	o.LimitPrice = 105.01

	first := gate.Check(o)
	for i := 0; i < 10; i++ {
		err := gate.Check(o)
		if (err == nil) != (first == nil) || (err != nil && err.Error() != first.Error()) {
			t.Fatalf("check not deterministic: first=%v now=%v", first, err)
		}
	}
}

func assertReason(t *testing.T, err error, want Reason) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected rejection %s, got nil", want)
	}
	var rej *Rejection
	if !errors.As(err, &rej) {
		t.Fatalf("expected *Rejection, got %T: %v", err, err)
	}
	if rej.Reason != want {
		t.Fatalf("unexpected reason: got %s want %s", rej.Reason, want)
	}
}
