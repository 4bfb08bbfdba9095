package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType 审计事件类型
type EventType string

const (
	EventSolveCompleted  EventType = "solve_completed"
	EventSolveFailed     EventType = "solve_failed"
	EventRepairCompleted EventType = "repair_completed"
	EventRepairFailed    EventType = "repair_failed"
)

// Event 不可变的审计记录
type Event struct {
	ID         uuid.UUID       `json:"id" db:"id"`
	ScheduleID uuid.UUID       `json:"scheduleId" db:"schedule_id"`
	Type       EventType       `json:"type" db:"type"`
	Payload    json.RawMessage `json:"payload" db:"payload"`
	CreatedAt  time.Time       `json:"createdAt" db:"created_at"`
}

// 扰动事件类型
const (
	DisruptionStaffUnavailable = "staff_unavailable"
	DisruptionSickness         = "sickness"
	DisruptionDemandChange     = "demand_change"
)

// DisruptionEvent 修复求解的扰动事件
type DisruptionEvent struct {
	Type    string                 `json:"type"`
	Date    string                 `json:"date"`
	Slot    string                 `json:"slot,omitempty"`
	StaffID *uuid.UUID             `json:"staffId,omitempty"`
	WardID  *uuid.UUID             `json:"wardId,omitempty"`
	Payload map[string]interface{} `json:"payload"`
}
