package venue

import (
	"math"
	"sync"
	"testing"
)

func seededRegistry() *Registry {
	r := NewRegistry(0.2)
	r.Register(Profile{VenueID: "NYSE", AvgLatencyMs: 3, DepthEstimate: 600})
	r.Register(Profile{VenueID: "NASDAQ", AvgLatencyMs: 2.5, DepthEstimate: 500})
	r.Register(Profile{VenueID: "ARCA", AvgLatencyMs: 3.5, DepthEstimate: 400})
	return r
}

func TestSnapshot_SortedByVenueID(t *testing.T) {
	r := seededRegistry()

	profiles := r.Snapshot()
	want := []string{"ARCA", "NASDAQ", "NYSE"}
	if len(profiles) != len(want) {
		t.Fatalf("unexpected snapshot size: got %d want %d", len(profiles), len(want))
	}
	for i, p := range profiles {
		if p.VenueID != want[i] {
			t.Errorf("snapshot[%d]: got %s want %s", i, p.VenueID, want[i])
		}
	}
}

func TestRecordFill_EMAUpdatesLatencyAndSlippage(t *testing.T) {
	r := seededRegistry()

	r.RecordFill("NYSE", 13, 10)
	p, ok := r.Get("NYSE")
	if !ok {
		t.Fatalf("venue missing from registry")
	}
	if want := 0.2*13 + 0.8*3; math.Abs(p.AvgLatencyMs-want) > 1e-9 {
		t.Errorf("latency ema: got %f want %f", p.AvgLatencyMs, want)
	}
	// 滑点历史为零时首个样本直接生效,避免长期被零值拖累。
	if p.HistoricalSlippageBps != 10 {
		t.Errorf("first slippage sample should seed the average, got %f", p.HistoricalSlippageBps)
	}

	r.RecordFill("NYSE", 13, 20)
	p, _ = r.Get("NYSE")
	if want := 0.2*20 + 0.8*10; math.Abs(p.HistoricalSlippageBps-want) > 1e-9 {
		t.Errorf("slippage ema: got %f want %f", p.HistoricalSlippageBps, want)
	}
}

func TestRecordRejection_IgnoresZeroLatency(t *testing.T) {
	r := seededRegistry()

	r.RecordRejection("NASDAQ", 0)
	p, _ := r.Get("NASDAQ")
	if p.AvgLatencyMs != 2.5 {
		t.Fatalf("zero latency sample must not move the average, got %f", p.AvgLatencyMs)
	}

	r.RecordRejection("NASDAQ", 12.5)
	p, _ = r.Get("NASDAQ")
	if want := 0.2*12.5 + 0.8*2.5; math.Abs(p.AvgLatencyMs-want) > 1e-9 {
		t.Fatalf("latency ema after rejection: got %f want %f", p.AvgLatencyMs, want)
	}
}

func TestAdjustQueue_NeverNegative(t *testing.T) {
	r := seededRegistry()

	r.AdjustQueue("ARCA", 3)
	r.AdjustQueue("ARCA", -10)
	p, _ := r.Get("ARCA")
	if p.CurrentQueuePosition != 0 {
		t.Fatalf("queue position must clamp at zero, got %d", p.CurrentQueuePosition)
	}
}

func TestSetHaltedAndDepth(t *testing.T) {
	r := seededRegistry()

	r.SetHalted("NYSE", true)
	r.SetDepth("NYSE", 50)

	p, _ := r.Get("NYSE")
	if !p.Halted {
		t.Errorf("expected NYSE halted")
	}
	if p.DepthEstimate != 50 {
		t.Errorf("depth not updated: got %d", p.DepthEstimate)
	}
}

func TestUpdate_UnknownVenueIsNoop(t *testing.T) {
	r := seededRegistry()
	r.RecordFill("CBOE", 5, 5)
	r.AdjustQueue("CBOE", 1)

	if _, ok := r.Get("CBOE"); ok {
		t.Fatalf("unregistered venue must not appear after updates")
	}
}

func TestRegistry_ConcurrentUpdates(t *testing.T) {
	r := seededRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.RecordFill("NYSE", 5, 5)
				r.AdjustQueue("NASDAQ", 1)
				r.AdjustQueue("NASDAQ", -1)
				_ = r.Snapshot()
			}
		}()
	}
	wg.Wait()

	p, _ := r.Get("NASDAQ")
	if p.CurrentQueuePosition != 0 {
		t.Fatalf("queue adjustments must balance out, got %d", p.CurrentQueuePosition)
	}
}

func TestNewRegistry_InvalidGainFallsBack(t *testing.T) {
	r := NewRegistry(2.5)
	r.Register(Profile{VenueID: "X", AvgLatencyMs: 10})

	r.RecordFill("X", 20, 0)
	p, _ := r.Get("X")
	if want := 0.2*20 + 0.8*10.0; math.Abs(p.AvgLatencyMs-want) > 1e-9 {
		t.Fatalf("expected fallback gain 0.2: got %f want %f", p.AvgLatencyMs, want)
	}
}
