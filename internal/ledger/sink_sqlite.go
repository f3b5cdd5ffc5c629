package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/senthilts9/smart-order-routing/internal/store"
)

// SQLiteSink 把账本事件转发到 SQLite，用于审计与重启后回放。
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink 初始化落盘出口并建表。
func NewSQLiteSink(st *store.Store) (*SQLiteSink, error) {
	if st == nil {
		return nil, fmt.Errorf("ledger: store 不能为空")
	}

	s := &SQLiteSink{db: st.DB()}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSink) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS ledger_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	seq INTEGER NOT NULL,
	event_type TEXT NOT NULL,
	order_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_ledger_events_order ON ledger_events(order_id);
CREATE INDEX IF NOT EXISTS idx_ledger_events_type ON ledger_events(event_type);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("ledger: 初始化表失败: %w", err)
	}
	return nil
}

// Append 写入单条事件。
func (s *SQLiteSink) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("ledger: 序列化事件失败: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ledger_events (seq, event_type, order_id, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		event.Seq, string(event.Type), event.OrderID, string(payload), event.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("ledger: 写入事件失败: %w", err)
	}

	return nil
}
