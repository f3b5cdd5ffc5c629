package config

import (
	"errors"
	"fmt"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.yaml"
	envPrefix         = "sor"
)

// Load 读取配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envPrefix)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.port", 8080)

	v.SetDefault("risk.max_notional", 1_000_000.0)
	v.SetDefault("risk.default_max_qty", 10_000)
	v.SetDefault("risk.price_band", 0.05)

	v.SetDefault("scorer.strategy", "rule")
	v.SetDefault("scorer.weights.latency", 0.35)
	v.SetDefault("scorer.weights.depth", 0.30)
	v.SetDefault("scorer.weights.slippage", 0.20)
	v.SetDefault("scorer.weights.queue", 0.15)

	v.SetDefault("router.max_retries", 3)
	v.SetDefault("router.order_deadline", "2s")
	v.SetDefault("router.child_timeout", "500ms")
	v.SetDefault("router.registry_ema_gain", 0.2)

	v.SetDefault("ledger.durable", true)

	v.SetDefault("database.path", "data/sor.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("simulation.enabled", false)
	v.SetDefault("simulation.orders", 50)
	v.SetDefault("simulation.max_qty", 5000)
	v.SetDefault("simulation.interval", "50ms")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}
