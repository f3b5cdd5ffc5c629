package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/senthilts9/smart-order-routing/internal/api"
	"github.com/senthilts9/smart-order-routing/internal/config"
	"github.com/senthilts9/smart-order-routing/internal/ledger"
	"github.com/senthilts9/smart-order-routing/internal/metrics"
	"github.com/senthilts9/smart-order-routing/internal/risk"
	"github.com/senthilts9/smart-order-routing/internal/router"
	"github.com/senthilts9/smart-order-routing/internal/scorer"
	"github.com/senthilts9/smart-order-routing/internal/sim"
	"github.com/senthilts9/smart-order-routing/internal/store"
	"github.com/senthilts9/smart-order-routing/internal/venue"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。store 可为 nil,此时账本只保留内存副本。
func New(cfg *config.Config, logger *zap.Logger, st *store.Store) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  st,
	}
}

// Run 装配路由核心并阻塞运行,直至上下文取消。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("智能订单路由已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("scorer", a.cfg.Scorer.Strategy),
		zap.Int("venues", len(a.cfg.Venues)),
	)

	refs := newReferenceTable(a.cfg.Reference.Prices)

	registry := venue.NewRegistry(a.cfg.Router.RegistryEMAGain)
	adapters, err := a.buildAdapters(registry, refs)
	if err != nil {
		return err
	}

	led, err := a.buildLedger()
	if err != nil {
		return err
	}

	gate := risk.NewGate(a.cfg.Risk, refs, a.logger)
	sc := scorer.New(scorer.FromConfig(a.cfg.Scorer), a.logger)
	rt := router.New(
		router.Config{
			MaxRetries:    a.cfg.Router.MaxRetries,
			OrderDeadline: a.cfg.Router.OrderDeadline,
			ChildTimeout:  a.cfg.Router.ChildTimeout,
		},
		gate, sc, registry, adapters, led, refs,
		metrics.NewZapReporter(a.logger), a.logger,
	)

	if a.cfg.Simulation.Enabled {
		session := sim.NewSession(a.cfg.Simulation, rt, a.logger)
		if _, err := session.Run(ctx); err != nil {
			a.logger.Error("模拟会话异常中断", zap.Error(err))
		}
	}

	if !a.cfg.Server.Enabled {
		a.logger.Info("HTTP 接入层未启用，等待退出信号")
		<-ctx.Done()
		return a.exitErr(ctx)
	}

	handler := api.NewHandler(rt, led, a.logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP 服务启动", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("HTTP 服务异常: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP 服务关闭超时", zap.Error(err))
	}
	return a.exitErr(ctx)
}

// buildAdapters 根据配置装配场所适配器并注册初始画像。
// 所有适配器都套上有界队列,队列深度反馈到打分。
func (a *App) buildAdapters(registry *venue.Registry, refs *referenceTable) ([]venue.Adapter, error) {
	if len(a.cfg.Venues) == 0 {
		return nil, errors.New("app: 至少需要配置一个场所")
	}

	adapters := make([]venue.Adapter, 0, len(a.cfg.Venues))
	for _, vc := range a.cfg.Venues {
		registry.Register(venue.Profile{
			VenueID:       vc.ID,
			AvgLatencyMs:  vc.BaseLatencyMs,
			DepthEstimate: vc.Depth,
			FeeRate:       vc.FeeRate,
		})

		var inner venue.Adapter
		switch vc.Mode {
		case "live":
			live, err := venue.NewLive(vc.ID, vc.Live, a.logger)
			if err != nil {
				return nil, fmt.Errorf("app: 装配场所 %s 失败: %w", vc.ID, err)
			}
			inner = live
		default:
			inner = venue.NewSimulated(vc.ID, venue.SimulatedOptions{
				BaseLatency: time.Duration(vc.BaseLatencyMs * float64(time.Millisecond)),
				Depth:       vc.Depth,
				FeeRate:     vc.FeeRate,
				SlippageBps: vc.SlippageBps,
				RejectRate:  vc.RejectRate,
			}, refs, rand.New(rand.NewSource(time.Now().UnixNano())), a.logger)
		}

		adapters = append(adapters, venue.WithQueue(inner, vc.QueueCapacity, registry, a.logger))
	}
	return adapters, nil
}

// buildLedger 创建执行账本。开启持久化时事件同步写入 SQLite。
func (a *App) buildLedger() (*ledger.Ledger, error) {
	if !a.cfg.Ledger.Durable || a.store == nil {
		return ledger.New(nil, a.logger), nil
	}
	sink, err := ledger.NewSQLiteSink(a.store)
	if err != nil {
		return nil, fmt.Errorf("app: 初始化账本存储失败: %w", err)
	}
	return ledger.New(sink, a.logger), nil
}

func (a *App) exitErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}
	a.logger.Info("系统收到退出信号，正在停止")
	return nil
}
