package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config 聚合了路由核心运行所需的全部配置项。
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Server     ServerConfig     `mapstructure:"server"`
	Risk       RiskConfig       `mapstructure:"risk"`
	Scorer     ScorerConfig     `mapstructure:"scorer"`
	Router     RouterConfig     `mapstructure:"router"`
	Venues     []VenueConfig    `mapstructure:"venues"`
	Reference  ReferenceConfig  `mapstructure:"reference"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Simulation SimulationConfig `mapstructure:"simulation"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// ServerConfig 控制对外 HTTP 接入层。
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// RiskConfig 管理事前风控参数。
type RiskConfig struct {
	MaxNotional     float64          `mapstructure:"max_notional"`
	DefaultMaxQty   int64            `mapstructure:"default_max_qty"`
	MaxQtyPerSymbol map[string]int64 `mapstructure:"max_qty_per_symbol"`
	AllowedSymbols  []string         `mapstructure:"allowed_symbols"`
	PriceBand       float64          `mapstructure:"price_band"`
}

// MaxQtyFor 返回指定标的的数量上限，无专属配置时退回默认值。
func (r RiskConfig) MaxQtyFor(symbol string) int64 {
	if qty, ok := r.MaxQtyPerSymbol[symbol]; ok {
		return qty
	}
	return r.DefaultMaxQty
}

// ScorerConfig 选择打分策略并提供各自参数。
type ScorerConfig struct {
	Strategy string           `mapstructure:"strategy"` // rule | model
	Weights  RuleWeights      `mapstructure:"weights"`
	Model    ModelCoefficient `mapstructure:"model"`
}

// RuleWeights 为规则打分的加权项。
type RuleWeights struct {
	Latency  float64 `mapstructure:"latency"`
	Depth    float64 `mapstructure:"depth"`
	Slippage float64 `mapstructure:"slippage"`
	Queue    float64 `mapstructure:"queue"`
}

// ModelCoefficient 为模型打分的线性系数，特征顺序为
// [latency, depth, slippage, queue_position, order_size]。
type ModelCoefficient struct {
	Weights []float64 `mapstructure:"weights"`
	Bias    float64   `mapstructure:"bias"`
}

// RouterConfig 控制编排器的重试与超时行为。
type RouterConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	OrderDeadline   time.Duration `mapstructure:"order_deadline"`
	ChildTimeout    time.Duration `mapstructure:"child_timeout"`
	RegistryEMAGain float64       `mapstructure:"registry_ema_gain"`
}

// VenueConfig 描述单个执行场所。
type VenueConfig struct {
	ID            string          `mapstructure:"id"`
	Mode          string          `mapstructure:"mode"` // simulated | live
	BaseLatencyMs float64         `mapstructure:"base_latency_ms"`
	Depth         int64           `mapstructure:"depth"`
	FeeRate       float64         `mapstructure:"fee_rate"`
	SlippageBps   float64         `mapstructure:"slippage_bps"`
	RejectRate    float64         `mapstructure:"reject_rate"`
	QueueCapacity int64           `mapstructure:"queue_capacity"`
	Live          LiveVenueConfig `mapstructure:"live"`
}

// LiveVenueConfig 为真实场所接入所需的凭证。
type LiveVenueConfig struct {
	Exchange   string `mapstructure:"exchange"`
	Market     string `mapstructure:"market"`
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	Wallet     string `mapstructure:"wallet_address"`
	PrivateKey string `mapstructure:"private_key"`
	UseSandbox bool   `mapstructure:"use_sandbox"`
}

// ReferenceConfig 提供参考价表，供风控与模拟场所共用。
type ReferenceConfig struct {
	Prices map[string]float64 `mapstructure:"prices"`
}

// LedgerConfig 控制执行账本的落盘行为。
type LedgerConfig struct {
	Durable bool `mapstructure:"durable"`
}

// DatabaseConfig 管理数据库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// SimulationConfig 控制启动时的交易会话模拟。
type SimulationConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Orders   int           `mapstructure:"orders"`
	Symbols  []string      `mapstructure:"symbols"`
	MaxQty   int64         `mapstructure:"max_qty"`
	Seed     int64         `mapstructure:"seed"`
	Interval time.Duration `mapstructure:"interval"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		err = multierr.Append(err, errors.New("server.port 必须位于(0,65535]"))
	}
	if c.Risk.MaxNotional <= 0 {
		err = multierr.Append(err, errors.New("risk.max_notional 必须大于0"))
	}
	if c.Risk.DefaultMaxQty <= 0 {
		err = multierr.Append(err, errors.New("risk.default_max_qty 必须大于0"))
	}
	for sym, qty := range c.Risk.MaxQtyPerSymbol {
		if qty <= 0 {
			err = multierr.Append(err, fmt.Errorf("risk.max_qty_per_symbol[%s] 必须大于0", sym))
		}
	}
	if c.Risk.PriceBand <= 0 || c.Risk.PriceBand >= 1 {
		err = multierr.Append(err, errors.New("risk.price_band 必须位于(0,1)"))
	}
	if len(c.Risk.AllowedSymbols) == 0 {
		err = multierr.Append(err, errors.New("risk.allowed_symbols 至少包含一个标的"))
	}

	switch strings.ToLower(c.Scorer.Strategy) {
	case "rule":
		w := c.Scorer.Weights
		if w.Latency < 0 || w.Depth < 0 || w.Slippage < 0 || w.Queue < 0 {
			err = multierr.Append(err, errors.New("scorer.weights 各项不能为负"))
		}
		if w.Latency+w.Depth+w.Slippage+w.Queue <= 0 {
			err = multierr.Append(err, errors.New("scorer.weights 至少一项为正"))
		}
	case "model":
		if len(c.Scorer.Model.Weights) != 5 {
			err = multierr.Append(err, errors.New("scorer.model.weights 必须包含5个系数"))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("scorer.strategy %q 非法，应为 rule 或 model", c.Scorer.Strategy))
	}

	if c.Router.MaxRetries < 0 {
		err = multierr.Append(err, errors.New("router.max_retries 不能为负"))
	}
	if c.Router.OrderDeadline <= 0 {
		err = multierr.Append(err, errors.New("router.order_deadline 必须大于0"))
	}
	if c.Router.ChildTimeout <= 0 {
		err = multierr.Append(err, errors.New("router.child_timeout 必须大于0"))
	}
	if c.Router.ChildTimeout > c.Router.OrderDeadline {
		err = multierr.Append(err, errors.New("router.child_timeout 不应大于 order_deadline"))
	}
	if c.Router.RegistryEMAGain <= 0 || c.Router.RegistryEMAGain > 1 {
		err = multierr.Append(err, errors.New("router.registry_ema_gain 必须位于(0,1]"))
	}

	if len(c.Venues) == 0 {
		err = multierr.Append(err, errors.New("venues 至少配置一个场所"))
	}
	seen := make(map[string]struct{}, len(c.Venues))
	for i, v := range c.Venues {
		if v.ID == "" {
			err = multierr.Append(err, fmt.Errorf("venues[%d].id 不能为空", i))
			continue
		}
		if _, dup := seen[v.ID]; dup {
			err = multierr.Append(err, fmt.Errorf("venues[%d].id %q 重复", i, v.ID))
		}
		seen[v.ID] = struct{}{}
		switch strings.ToLower(v.Mode) {
		case "simulated":
			if v.Depth <= 0 {
				err = multierr.Append(err, fmt.Errorf("venues[%s].depth 必须大于0", v.ID))
			}
			if v.RejectRate < 0 || v.RejectRate >= 1 {
				err = multierr.Append(err, fmt.Errorf("venues[%s].reject_rate 必须位于[0,1)", v.ID))
			}
		case "live":
			if v.Live.Exchange == "" || v.Live.Market == "" {
				err = multierr.Append(err, fmt.Errorf("venues[%s].live 需要配置 exchange 与 market", v.ID))
			}
		default:
			err = multierr.Append(err, fmt.Errorf("venues[%s].mode %q 非法，应为 simulated 或 live", v.ID, v.Mode))
		}
		if v.BaseLatencyMs <= 0 {
			err = multierr.Append(err, fmt.Errorf("venues[%s].base_latency_ms 必须大于0", v.ID))
		}
		if v.QueueCapacity <= 0 {
			err = multierr.Append(err, fmt.Errorf("venues[%s].queue_capacity 必须大于0", v.ID))
		}
	}

	if len(c.Reference.Prices) == 0 {
		err = multierr.Append(err, errors.New("reference.prices 至少包含一个标的"))
	}
	for sym, px := range c.Reference.Prices {
		if px <= 0 {
			err = multierr.Append(err, fmt.Errorf("reference.prices[%s] 必须大于0", sym))
		}
	}

	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Database.ConnMaxLifetime < 0 {
		err = multierr.Append(err, errors.New("database.conn_max_lifetime 不能为负"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if len(c.Logging.OutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.output_paths 至少包含一个输出目标"))
	}
	if len(c.Logging.ErrorOutputPaths) == 0 {
		err = multierr.Append(err, errors.New("logging.error_output_paths 至少包含一个输出目标"))
	}

	if c.Simulation.Enabled {
		if c.Simulation.Orders <= 0 {
			err = multierr.Append(err, errors.New("simulation.orders 必须大于0"))
		}
		if len(c.Simulation.Symbols) == 0 {
			err = multierr.Append(err, errors.New("simulation.symbols 至少包含一个标的"))
		}
		if c.Simulation.MaxQty <= 0 {
			err = multierr.Append(err, errors.New("simulation.max_qty 必须大于0"))
		}
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}
