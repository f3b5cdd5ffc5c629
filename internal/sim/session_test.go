package sim

import (
	"context"
	"testing"
	"time"

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
	return 100, nil
}

type fillAdapter struct{ id string }

func (a fillAdapter) VenueID() string { return a.id }

func (a fillAdapter) Execute(ctx context.Context, child order.ChildOrder) (venue.FillOutcome, error) {
	return venue.FillOutcome{Kind: venue.OutcomeFilled, FilledQty: child.Quantity, FillPrice: 100, Latency: time.Millisecond}, nil
}

func newSessionRouter(t *testing.T) *router.Router {
	t.Helper()

	registry := venue.NewRegistry(0.2)
	registry.Register(venue.Profile{VenueID: "NYSE", AvgLatencyMs: 1, DepthEstimate: 100_000})

	gate := risk.NewGate(config.RiskConfig{
		MaxNotional:    100_000_000,
		DefaultMaxQty:  100_000,
		AllowedSymbols: []string{"AAPL", "TSLA"},
		PriceBand:      0.05,
	}, stubRef{}, nil)
	sc := scorer.New(scorer.NewRuleBased(config.RuleWeights{Latency: 0.35, Depth: 0.30, Slippage: 0.20, Queue: 0.15}), nil)

	return router.New(router.Config{}, gate, sc, registry,
		[]venue.Adapter{fillAdapter{id: "NYSE"}}, ledger.New(nil, nil), stubRef{}, nil, nil)
}

func TestSessionRun_FillsAllOrders(t *testing.T) {
	cfg := config.SimulationConfig{
		Enabled:  true,
		Orders:   10,
		Symbols:  []string{"AAPL", "TSLA"},
		MaxQty:   1000,
		Seed:     42,
		Interval: time.Millisecond,
	}

	session := NewSession(cfg, newSessionRouter(t), nil)
	result, err := session.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if result.Submitted != 10 {
		t.Fatalf("expected 10 submissions, got %d", result.Submitted)
	}
	if result.Filled != 10 {
		t.Fatalf("expected every order filled, got %d", result.Filled)
	}
	if result.FillRate() != 1 {
		t.Fatalf("expected fill rate 1, got %f", result.FillRate())
	}
	if result.TotalRequested != result.TotalFilled {
		t.Fatalf("requested %d != filled %d", result.TotalRequested, result.TotalFilled)
	}
}

func TestSessionRun_CountsRejections(t *testing.T) {
	cfg := config.SimulationConfig{
		Orders:   5,
		Symbols:  []string{"GME"}, // 不在白名单,全部被风控拒绝
		MaxQty:   1000,
		Seed:     7,
		Interval: time.Millisecond,
	}

	session := NewSession(cfg, newSessionRouter(t), nil)
	result, err := session.Run(context.Background())
	if err != nil {
		t.Fatalf("risk rejections must not abort the session: %v", err)
	}
	if result.Rejected != 5 {
		t.Fatalf("expected 5 rejections, got %d", result.Rejected)
	}
	if result.TotalFilled != 0 {
		t.Fatalf("expected zero fills, got %d", result.TotalFilled)
	}
}

func TestSessionRun_DeterministicWithSeed(t *testing.T) {
	run := func() Result {
		cfg := config.SimulationConfig{Orders: 8, Symbols: []string{"AAPL"}, MaxQty: 500, Seed: 99, Interval: time.Millisecond}
		session := NewSession(cfg, newSessionRouter(t), nil)
		result, err := session.Run(context.Background())
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
		return result
	}

	first := run()
	second := run()
	if first.TotalRequested != second.TotalRequested {
		t.Fatalf("same seed must generate the same order flow: %d vs %d",
			first.TotalRequested, second.TotalRequested)
	}
}
