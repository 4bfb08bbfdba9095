package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/rota/pkg/model"
)

// EventRepository 审计事件仓储，只追加
type EventRepository struct {
	db DB
}

// NewEventRepository 创建审计事件仓储
func NewEventRepository(db DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append 追加事件
func (r *EventRepository) Append(ctx context.Context, e *model.Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	payload := e.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, schedule_id, type, payload, created_at) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.ScheduleID, string(e.Type), []byte(payload), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("追加审计事件失败: %w", err)
	}
	return nil
}
