package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ScheduleStatus 排班生命周期状态
type ScheduleStatus string

const (
	ScheduleDraft     ScheduleStatus = "draft"
	SchedulePublished ScheduleStatus = "published"
	ScheduleArchived  ScheduleStatus = "archived"
)

// SolveStatus 最近一次求解状态，与生命周期状态相互独立
type SolveStatus string

const (
	SolveStatusNone     SolveStatus = "none"
	SolveStatusSolved   SolveStatus = "solved"
	SolveStatusRepaired SolveStatus = "repaired"
)

// Schedule 排班计划
type Schedule struct {
	BaseModel
	WardID       uuid.UUID       `json:"wardId" db:"ward_id"`
	Name         string          `json:"name" db:"name"`
	HorizonStart string          `json:"horizonStart" db:"horizon_start"`
	HorizonEnd   string          `json:"horizonEnd" db:"horizon_end"`
	Status       ScheduleStatus  `json:"status" db:"status"`
	SolveStatus  SolveStatus     `json:"solveStatus" db:"solve_status"`
	Metrics      json.RawMessage `json:"metrics,omitempty" db:"metrics"`
	LastSolvedAt *time.Time      `json:"lastSolvedAt,omitempty" db:"last_solved_at"`
	PublishedAt  *time.Time      `json:"publishedAt,omitempty" db:"published_at"`
}

// Horizon 返回排班周期
func (s *Schedule) Horizon() DateRange {
	return DateRange{Start: s.HorizonStart, End: s.HorizonEnd}
}

// RuleSet 病区规则集
type RuleSet struct {
	ID       uuid.UUID `json:"id" db:"id"`
	WardID   uuid.UUID `json:"wardId" db:"ward_id"`
	Name     string    `json:"name" db:"name"`
	Position int       `json:"position" db:"position"`
	IsActive bool      `json:"isActive" db:"is_active"`
	Rules    []Rule    `json:"rules" db:"-"`
}

// Rule 键值规则
type Rule struct {
	Key   string `json:"key" db:"key"`
	Value string `json:"value" db:"value"`
}
