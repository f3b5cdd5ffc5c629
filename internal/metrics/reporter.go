package metrics

import (
	"time"

	"go.uber.org/zap"
)

// Reporter 为通用指标出口：核心只负责上报计数与耗时，
// 具体格式与传输由外部采集方决定。
type Reporter interface {
	IncCounter(name string, delta int64, tags map[string]string)
	ObserveDuration(name string, d time.Duration, tags map[string]string)
}

// ZapReporter 把指标写入结构化日志，作为默认采集出口。
type ZapReporter struct {
	logger *zap.Logger
}

// NewZapReporter 创建日志指标出口。
func NewZapReporter(logger *zap.Logger) *ZapReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapReporter{logger: logger}
}

// IncCounter 上报计数。
func (r *ZapReporter) IncCounter(name string, delta int64, tags map[string]string) {
	r.logger.Debug("metric.counter",
		zap.String("name", name),
		zap.Int64("delta", delta),
		zap.Any("tags", tags),
	)
}

// ObserveDuration 上报耗时。
func (r *ZapReporter) ObserveDuration(name string, d time.Duration, tags map[string]string) {
	r.logger.Debug("metric.duration",
		zap.String("name", name),
		zap.Duration("value", d),
		zap.Any("tags", tags),
	)
}

// Nop 为空实现，测试与关闭采集时使用。
type Nop struct{}

// IncCounter 不做任何事。
func (Nop) IncCounter(string, int64, map[string]string) {}

// ObserveDuration 不做任何事。
func (Nop) ObserveDuration(string, time.Duration, map[string]string) {}
