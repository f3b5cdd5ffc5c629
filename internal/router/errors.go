package router

import "errors"

var (
	// ErrDuplicateOrder 表示同一 orderId 已有在途执行，拒绝重复提交。
	ErrDuplicateOrder = errors.New("router: 订单已在执行中")
	// ErrOrderNotFound 表示撤单目标不存在或已终结。
	ErrOrderNotFound = errors.New("router: 订单不存在")
)
