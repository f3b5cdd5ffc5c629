package venue

import (
	"sort"
	"sync"
)

// Profile 为场所画像，由 Registry 持有，打分与编排只读共享其快照。
type Profile struct {
	VenueID               string  `json:"venue_id"`
	AvgLatencyMs          float64 `json:"avg_latency_ms"`
	DepthEstimate         int64   `json:"depth_estimate"`
	HistoricalSlippageBps float64 `json:"historical_slippage_bps"`
	CurrentQueuePosition  int64   `json:"current_queue_position"`
	FeeRate               float64 `json:"fee_rate"`
	Halted                bool    `json:"halted"`
}

// Registry 维护跨订单共享的场所状态，是核心内唯一的共享可变资源。
// 每个场所的更新以该场所自己的锁保证原子性，场所之间互不阻塞。
type Registry struct {
	gain float64

	mu     sync.RWMutex
	venues map[string]*venueState
}

type venueState struct {
	mu      sync.Mutex
	profile Profile
}

// NewRegistry 创建场所注册表，gain 为延迟/滑点指数移动平均的更新增益。
func NewRegistry(gain float64) *Registry {
	if gain <= 0 || gain > 1 {
		gain = 0.2
	}
	return &Registry{
		gain:   gain,
		venues: make(map[string]*venueState),
	}
}

// Register 登记或覆盖一个场所画像。
func (r *Registry) Register(p Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.venues[p.VenueID] = &venueState{profile: p}
}

// Get 返回指定场所画像的副本。
func (r *Registry) Get(venueID string) (Profile, bool) {
	r.mu.RLock()
	state, ok := r.venues[venueID]
	r.mu.RUnlock()
	if !ok {
		return Profile{}, false
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	return state.profile, true
}

// Snapshot 返回按 VenueID 升序排列的只读快照。
func (r *Registry) Snapshot() []Profile {
	r.mu.RLock()
	states := make([]*venueState, 0, len(r.venues))
	for _, s := range r.venues {
		states = append(states, s)
	}
	r.mu.RUnlock()

	profiles := make([]Profile, 0, len(states))
	for _, s := range states {
		s.mu.Lock()
		profiles = append(profiles, s.profile)
		s.mu.Unlock()
	}

	sort.Slice(profiles, func(i, j int) bool {
		return profiles[i].VenueID < profiles[j].VenueID
	})
	return profiles
}

// RecordFill 在成交后以指数移动平均更新延迟与历史滑点。
func (r *Registry) RecordFill(venueID string, latencyMs, slippageBps float64) {
	r.update(venueID, func(p *Profile) {
		p.AvgLatencyMs = r.ema(p.AvgLatencyMs, latencyMs)
		p.HistoricalSlippageBps = r.ema(p.HistoricalSlippageBps, slippageBps)
	})
}

// RecordRejection 在拒单/超时后更新延迟估计。
func (r *Registry) RecordRejection(venueID string, latencyMs float64) {
	r.update(venueID, func(p *Profile) {
		if latencyMs > 0 {
			p.AvgLatencyMs = r.ema(p.AvgLatencyMs, latencyMs)
		}
	})
}

// SetHalted 更新场所可用标记，由外部行情/状态源推送。
func (r *Registry) SetHalted(venueID string, halted bool) {
	r.update(venueID, func(p *Profile) {
		p.Halted = halted
	})
}

// SetDepth 更新深度估计。
func (r *Registry) SetDepth(venueID string, depth int64) {
	r.update(venueID, func(p *Profile) {
		p.DepthEstimate = depth
	})
}

// AdjustQueue 调整在途队列深度，打分策略据此降权饱和场所。
func (r *Registry) AdjustQueue(venueID string, delta int64) {
	r.update(venueID, func(p *Profile) {
		p.CurrentQueuePosition += delta
		if p.CurrentQueuePosition < 0 {
			p.CurrentQueuePosition = 0
		}
	})
}

func (r *Registry) update(venueID string, fn func(*Profile)) {
	r.mu.RLock()
	state, ok := r.venues[venueID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	state.mu.Lock()
	fn(&state.profile)
	state.mu.Unlock()
}

func (r *Registry) ema(avg, sample float64) float64 {
	if avg == 0 {
		return sample
	}
	return r.gain*sample + (1-r.gain)*avg
}
