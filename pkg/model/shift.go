package model

import (
	"time"

	"github.com/google/uuid"
)

// ShiftType 班次类型
type ShiftType struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	Name      string    `json:"name" db:"name"`
	Slot      string    `json:"slot" db:"slot"`             // Day/Evening/Night, Early/Late/Night
	StartTime string    `json:"startTime" db:"start_time"` // HH:MM
	EndTime   string    `json:"endTime" db:"end_time"`     // HH:MM
	IsNight   bool      `json:"isNight" db:"is_night"`
}

// DurationHours 返回班次时长，跨天班次按次日结束计算
func (s *ShiftType) DurationHours() float64 {
	start, err1 := time.Parse("15:04", s.StartTime)
	end, err2 := time.Parse("15:04", s.EndTime)
	if err1 != nil || err2 != nil {
		return 0
	}
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}
	return end.Sub(start).Hours()
}

// Demand 某病区某日某时段对某技能的人数需求
type Demand struct {
	ID       uuid.UUID `json:"id" db:"id"`
	WardID   uuid.UUID `json:"wardId" db:"ward_id"`
	Date     string    `json:"date" db:"date"`
	Slot     string    `json:"slot" db:"slot"`
	Skill    string    `json:"skill" db:"skill"`
	Required int       `json:"required" db:"required"`
}

// Assignment 排班分配：某员工在某病区某日某时段上某班次
type Assignment struct {
	BaseModel
	ScheduleID  uuid.UUID `json:"scheduleId" db:"schedule_id"`
	StaffID     uuid.UUID `json:"staffId" db:"staff_id"`
	WardID      uuid.UUID `json:"wardId" db:"ward_id"`
	Date        string    `json:"date" db:"date"`
	Slot        string    `json:"slot" db:"slot"`
	ShiftTypeID uuid.UUID `json:"shiftTypeId" db:"shift_type_id"`
}

// Lock 固定分配，求解时作为硬约束
type Lock struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	ScheduleID  uuid.UUID  `json:"scheduleId" db:"schedule_id"`
	StaffID     uuid.UUID  `json:"staffId" db:"staff_id"`
	WardID      uuid.UUID  `json:"wardId" db:"ward_id"`
	Date        string     `json:"date" db:"date"`
	Slot        string     `json:"slot" db:"slot"`
	ShiftTypeID *uuid.UUID `json:"shiftTypeId,omitempty" db:"shift_type_id"`
}
