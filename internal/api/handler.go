package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/senthilts9/smart-order-routing/internal/ledger"
	"github.com/senthilts9/smart-order-routing/internal/order"
	"github.com/senthilts9/smart-order-routing/internal/risk"
	"github.com/senthilts9/smart-order-routing/internal/router"
	"github.com/senthilts9/smart-order-routing/internal/scorer"
)

// Handler 暴露路由核心的 HTTP 接口：下单、撤单、场所快照与执行分析。
type Handler struct {
	engine *gin.Engine
	router *router.Router
	ledger *ledger.Ledger
	logger *zap.Logger
}

// NewHandler 创建 HTTP 处理器并注册路由。
func NewHandler(rt *router.Router, led *ledger.Ledger, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	h := &Handler{
		engine: engine,
		router: rt,
		ledger: led,
		logger: logger,
	}
	h.registerRoutes()
	return h
}

// ServeHTTP 实现 http.Handler。
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.engine.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h.engine.POST("/orders", h.submitOrder)
	h.engine.DELETE("/orders/:id", h.cancelOrder)
	h.engine.GET("/venues", h.listVenues)
	h.engine.GET("/analytics/performance", h.performance)
	h.engine.GET("/ledger/events", h.ledgerEvents)
}

// submitOrder 处理 POST /orders。同步等待执行终态并返回执行回报。
func (h *Handler) submitOrder(c *gin.Context) {
	var req SubmitOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Code: errCodeInvalidArgument, Message: "请求体解析失败: " + err.Error()})
		return
	}

	if req.OrderID == "" {
		req.OrderID = uuid.NewString()
	}
	if req.TimeInForce == "" {
		req.TimeInForce = string(order.TIFDay)
	}

	o := order.Order{
		OrderID:     req.OrderID,
		Symbol:      strings.ToUpper(req.Symbol),
		Side:        order.Side(strings.ToUpper(req.Side)),
		Quantity:    req.Quantity,
		LimitPrice:  req.LimitPrice,
		TimeInForce: order.TimeInForce(strings.ToUpper(req.TimeInForce)),
		SubmittedAt: time.Now().UTC(),
	}

	report, err := h.router.SubmitOrder(c.Request.Context(), o)
	if err != nil {
		status, body := mapError(err)
		// 风控拒绝等场景编排器仍会产出终态回报，一并返回便于排查。
		if report.OrderID != "" {
			c.JSON(status, gin.H{"error": body, "report": report})
			return
		}
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusOK, report)
}

// cancelOrder 处理 DELETE /orders/:id。撤单只停止后续派发，
// 已经上报的成交保留在最终回报中。
func (h *Handler) cancelOrder(c *gin.Context) {
	orderID := c.Param("id")
	if err := h.router.CancelOrder(orderID); err != nil {
		status, body := mapError(err)
		c.JSON(status, body)
		return
	}
	c.JSON(http.StatusAccepted, CancelOrderResponse{OrderID: orderID, Status: "CANCELLING"})
}

// listVenues 处理 GET /venues,返回按 VenueID 排序的场所画像快照。
func (h *Handler) listVenues(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"venues": h.router.VenueProfiles()})
}

// performance 处理 GET /analytics/performance,基于账本回放计算统计。
func (h *Handler) performance(c *gin.Context) {
	stats := ledger.Analyze(h.ledger.Snapshot())
	c.JSON(http.StatusOK, stats)
}

// ledgerEvents 处理 GET /ledger/events,支持按 order_id 过滤。
func (h *Handler) ledgerEvents(c *gin.Context) {
	events := h.ledger.Snapshot()
	if orderID := c.Query("order_id"); orderID != "" {
		filtered := events[:0:0]
		for _, ev := range events {
			if ev.OrderID == orderID {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

// mapError 将核心错误映射为 HTTP 状态码与统一错误体。
func mapError(err error) (int, ErrorResponse) {
	var rej *risk.Rejection
	switch {
	case errors.As(err, &rej):
		return http.StatusUnprocessableEntity, ErrorResponse{Code: string(rej.Reason), Message: rej.Detail}
	case errors.Is(err, router.ErrDuplicateOrder):
		return http.StatusConflict, ErrorResponse{Code: errCodeDuplicateOrder, Message: err.Error()}
	case errors.Is(err, router.ErrOrderNotFound):
		return http.StatusNotFound, ErrorResponse{Code: errCodeOrderNotFound, Message: err.Error()}
	case errors.Is(err, scorer.ErrNoEligibleVenue):
		return http.StatusServiceUnavailable, ErrorResponse{Code: errCodeNoEligibleVenue, Message: err.Error()}
	case errors.Is(err, ledger.ErrLedgerWrite):
		return http.StatusInternalServerError, ErrorResponse{Code: errCodeLedgerFailure, Message: err.Error()}
	case errors.Is(err, order.ErrInvalidOrder):
		return http.StatusBadRequest, ErrorResponse{Code: errCodeInvalidArgument, Message: err.Error()}
	default:
		return http.StatusInternalServerError, ErrorResponse{Code: errCodeInternal, Message: err.Error()}
	}
}
