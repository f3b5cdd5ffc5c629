package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/senthilts9/smart-order-routing/internal/config"
	"github.com/senthilts9/smart-order-routing/internal/ledger"
	"github.com/senthilts9/smart-order-routing/internal/order"
	"github.com/senthilts9/smart-order-routing/internal/risk"
	"github.com/senthilts9/smart-order-routing/internal/router"
	"github.com/senthilts9/smart-order-routing/internal/scorer"
	"github.com/senthilts9/smart-order-routing/internal/venue"
)

type stubRef struct{}

func (stubRef) RefPrice(symbol string) (float64, error) {
	if symbol != "AAPL" {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return 100, nil
}

// fillAdapter 全额成交一切子订单。
type fillAdapter struct{ id string }

func (a fillAdapter) VenueID() string { return a.id }

func (a fillAdapter) Execute(ctx context.Context, child order.ChildOrder) (venue.FillOutcome, error) {
	return venue.FillOutcome{Kind: venue.OutcomeFilled, FilledQty: child.Quantity, FillPrice: 100}, nil
}

func newTestHandler(t *testing.T) (*Handler, *ledger.Ledger) {
	t.Helper()

	registry := venue.NewRegistry(0.2)
	registry.Register(venue.Profile{VenueID: "NYSE", AvgLatencyMs: 1, DepthEstimate: 2000})

	gate := risk.NewGate(config.RiskConfig{
		MaxNotional:    10_000_000,
		DefaultMaxQty:  100_000,
		AllowedSymbols: []string{"AAPL"},
		PriceBand:      0.05,
	}, stubRef{}, nil)
	sc := scorer.New(scorer.NewRuleBased(config.RuleWeights{Latency: 0.35, Depth: 0.30, Slippage: 0.20, Queue: 0.15}), nil)
	led := ledger.New(nil, nil)
	rt := router.New(router.Config{}, gate, sc, registry, []venue.Adapter{fillAdapter{id: "NYSE"}}, led, stubRef{}, nil, nil)

	return NewHandler(rt, led, nil), led
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmitOrderEndpoint_FillsOrder(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/orders",
		`{"symbol":"aapl","side":"buy","quantity":1000,"time_in_force":"day"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	var report order.ExecutionReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if report.Status != order.StatusFilled || report.TotalFilledQty != 1000 {
		t.Fatalf("unexpected report: %+v", report)
	}
	// 未提供 order_id 时服务端必须生成一个。
	if report.OrderID == "" {
		t.Fatalf("server must assign an order id")
	}
}

func TestSubmitOrderEndpoint_InvalidBody(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/orders", `{"symbol":`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmitOrderEndpoint_RiskRejection(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/orders",
		`{"order_id":"ORD-1","symbol":"GME","side":"BUY","quantity":100}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), string(risk.ReasonSymbolBlocked)) {
		t.Fatalf("expected rejection reason in body: %s", rec.Body.String())
	}
}

func TestCancelOrderEndpoint_NotFound(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodDelete, "/orders/ORD-404", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestVenuesEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodGet, "/venues", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	var body struct {
		Venues []venue.Profile `json:"venues"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Venues) != 1 || body.Venues[0].VenueID != "NYSE" {
		t.Fatalf("unexpected venues: %+v", body.Venues)
	}
}

func TestPerformanceEndpoint_ReflectsExecutions(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := doJSON(t, h, http.MethodPost, "/orders",
		`{"order_id":"ORD-1","symbol":"AAPL","side":"BUY","quantity":500,"time_in_force":"DAY"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("order submit failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/analytics/performance", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	var stats ledger.PerformanceStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.TotalOrders != 1 || stats.TotalVolume != 500 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestLedgerEventsEndpoint_FilterByOrder(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, id := range []string{"ORD-1", "ORD-2"} {
		rec := doJSON(t, h, http.MethodPost, "/orders",
			fmt.Sprintf(`{"order_id":%q,"symbol":"AAPL","side":"BUY","quantity":100}`, id))
		if rec.Code != http.StatusOK {
			t.Fatalf("order submit failed: %d", rec.Code)
		}
	}

	rec := doJSON(t, h, http.MethodGet, "/ledger/events?order_id=ORD-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	var body struct {
		Events []ledger.Event `json:"events"`
		Count  int            `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Count == 0 {
		t.Fatalf("expected events for ORD-1")
	}
	for _, e := range body.Events {
		if e.OrderID != "ORD-1" {
			t.Fatalf("filter leaked event for %s", e.OrderID)
		}
	}
}
