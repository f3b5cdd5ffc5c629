package scorer

import (
	"math"

	"github.com/senthilts9/smart-order-routing/internal/config"
	"github.com/senthilts9/smart-order-routing/internal/order"
	"github.com/senthilts9/smart-order-routing/internal/venue"
)

// RuleBased 为加权规则打分：延迟、深度、滑点、队列位置四项
// 先各自压缩到 [0,1] 再加权求和。
type RuleBased struct {
	weights config.RuleWeights
}

// NewRuleBased 创建规则打分策略。
func NewRuleBased(weights config.RuleWeights) *RuleBased {
	return &RuleBased{weights: weights}
}

// Name 返回策略名。
func (s *RuleBased) Name() string {
	return "rule"
}

// Score 计算场所得分，确定性：相同输入必得相同输出。
func (s *RuleBased) Score(o order.Order, p venue.Profile) float64 {
	latencyTerm := 1 - math.Tanh(p.AvgLatencyMs/20)
	depthTerm := math.Min(float64(p.DepthEstimate)/float64(o.Quantity), 1)
	slippageTerm := 1 / (1 + p.HistoricalSlippageBps/10)
	queueTerm := 1 / (1 + float64(p.CurrentQueuePosition))

	w := s.weights
	total := w.Latency + w.Depth + w.Slippage + w.Queue
	if total <= 0 {
		return 0
	}
	score := w.Latency*latencyTerm + w.Depth*depthTerm + w.Slippage*slippageTerm + w.Queue*queueTerm
	return score / total
}

// ModelBased 为学习模型打分：对特征向量
// [latency, depth, slippage, queue_position, order_size]
// 做线性组合后经 sigmoid 压缩到 (0,1)。系数可从离线训练结果加载。
type ModelBased struct {
	weights [5]float64
	bias    float64
}

// defaultModelWeights 来自离线回归的一组基线系数。
var defaultModelWeights = [5]float64{-0.08, 0.0004, -0.05, -0.30, -0.0001}

// NewModelBased 创建模型打分策略，系数数量不符时退回基线系数。
func NewModelBased(coef config.ModelCoefficient) *ModelBased {
	m := &ModelBased{
		weights: defaultModelWeights,
		bias:    1.2,
	}
	if len(coef.Weights) == 5 {
		copy(m.weights[:], coef.Weights)
		m.bias = coef.Bias
	}
	return m
}

// Name 返回策略名。
func (s *ModelBased) Name() string {
	return "model"
}

// Score 计算场所得分。
func (s *ModelBased) Score(o order.Order, p venue.Profile) float64 {
	features := [5]float64{
		p.AvgLatencyMs,
		float64(p.DepthEstimate),
		p.HistoricalSlippageBps,
		float64(p.CurrentQueuePosition),
		float64(o.Quantity),
	}

	z := s.bias
	for i, f := range features {
		z += s.weights[i] * f
	}
	return 1 / (1 + math.Exp(-z))
}

// FromConfig 按配置选择打分策略。
func FromConfig(cfg config.ScorerConfig) Strategy {
	if cfg.Strategy == "model" {
		return NewModelBased(cfg.Model)
	}
	return NewRuleBased(cfg.Weights)
}
