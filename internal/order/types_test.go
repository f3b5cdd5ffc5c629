package order

import (
	"errors"
	"strings"
	"testing"
)

func validOrder() Order {
	return Order{
		OrderID:     "ORD-1",
		Symbol:      "AAPL",
		Side:        SideBuy,
		Quantity:    1000,
		TimeInForce: TIFDay,
	}
}

func TestOrderValidate(t *testing.T) {
	if err := validOrder().Validate(); err != nil {
		t.Fatalf("valid order rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Order)
	}{
		{"missing order id", func(o *Order) { o.OrderID = " " }},
		{"missing symbol", func(o *Order) { o.Symbol = "" }},
		{"bad side", func(o *Order) { o.Side = "HOLD" }},
		{"zero quantity", func(o *Order) { o.Quantity = 0 }},
		{"negative quantity", func(o *Order) { o.Quantity = -5 }},
		{"negative limit", func(o *Order) { o.LimitPrice = -1 }},
		{"bad tif", func(o *Order) { o.TimeInForce = "GTC" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := validOrder()
			tc.mutate(&o)
			err := o.Validate()
			if !errors.Is(err, ErrInvalidOrder) {
				t.Fatalf("expected ErrInvalidOrder, got %v", err)
			}
		})
	}
}

func TestChildID_Format(t *testing.T) {
	id := ChildID("ORD-1", "NYSE", 2)
	if id != "ORD-1:NYSE:a2" {
		t.Fatalf("unexpected child id: %s", id)
	}
	if !strings.HasPrefix(id, "ORD-1:") {
		t.Fatalf("child id must embed parent order id: %s", id)
	}
	if ChildID("ORD-1", "NYSE", 1) == ChildID("ORD-1", "NYSE", 2) {
		t.Fatalf("attempts must yield distinct child ids")
	}
}

func TestVWAPAndTotalFilled(t *testing.T) {
	fills := []Fill{
		{VenueID: "NYSE", FilledQty: 600, FillPrice: 100},
		{VenueID: "NASDAQ", FilledQty: 400, FillPrice: 101},
	}

	if got := TotalFilled(fills); got != 1000 {
		t.Fatalf("total filled: got %d want 1000", got)
	}
	if got, want := VWAP(fills), 100.4; got != want {
		t.Fatalf("vwap: got %f want %f", got, want)
	}
	if got := VWAP(nil); got != 0 {
		t.Fatalf("vwap of no fills must be zero, got %f", got)
	}
}
