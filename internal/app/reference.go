package app

import (
	"fmt"
	"strings"
	"sync"
)

// referenceTable 是配置驱动的参考价表，同时服务于风控名义额
// 校验与模拟场所定价。
type referenceTable struct {
	mu     sync.RWMutex
	prices map[string]float64
}

func newReferenceTable(prices map[string]float64) *referenceTable {
	table := make(map[string]float64, len(prices))
	for symbol, price := range prices {
		table[strings.ToUpper(symbol)] = price
	}
	return &referenceTable{prices: table}
}

// RefPrice 返回标的参考价，未知标的返回错误。
func (t *referenceTable) RefPrice(symbol string) (float64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	price, ok := t.prices[strings.ToUpper(symbol)]
	if !ok || price <= 0 {
		return 0, fmt.Errorf("reference: 缺少标的 %s 的参考价", symbol)
	}
	return price, nil
}

// SetPrice 更新参考价，供运行期行情刷新使用。
func (t *referenceTable) SetPrice(symbol string, price float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prices[strings.ToUpper(symbol)] = price
}
