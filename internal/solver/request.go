// Package solver 组装求解请求并调用远程求解引擎
package solver

import (
	"github.com/google/uuid"

	"github.com/paiban/rota/pkg/model"
)

// Objective 求解目标模式
type Objective string

const (
	ObjectiveFull   Objective = "full"
	ObjectiveRepair Objective = "repair"
)

// Request 发送给求解引擎的完整问题描述
//
// 所有集合字段都保持数据源查询顺序，空集合序列化为 []，不会出现 null。
type Request struct {
	Horizon      Horizon             `json:"horizon"`
	Ward         WardRef             `json:"ward"`
	ShiftTypes   []model.ShiftType   `json:"shiftTypes"`
	Staff        []StaffMember       `json:"staff"`
	Demand       []DemandSlot        `json:"demand"`
	Rules        Rules               `json:"rules"`
	Locks        []LockedSlot        `json:"locks"`
	Preferences  []PreferenceSlot    `json:"preferences"`
	Objective    Objective           `json:"objective"`
	TimeBudgetMs int                 `json:"timeBudgetMs"`
	Weights      model.Weights       `json:"weights"`
	Limits       model.Limits        `json:"limits"`
	Toggles      model.Toggles       `json:"toggles"`
	Substitution map[string][]string `json:"substitution"`
}

// repairRequest 修复模式请求体：完整请求加上归一化后的扰动事件
type repairRequest struct {
	*Request
	Events []model.DisruptionEvent `json:"events"`
}

// Horizon 排班周期，闭区间
type Horizon struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WardRef 病区标识
type WardRef struct {
	ID         uuid.UUID `json:"id"`
	HospitalID uuid.UUID `json:"hospitalId"`
	Name       string    `json:"name"`
	Code       string    `json:"code"`
}

// StaffMember 可排班员工
type StaffMember struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Role          string    `json:"role"`
	ContractHours float64   `json:"contractHours"`
	Skills        []string  `json:"skills"`
}

// DemandSlot 某日某时段某技能的需求人数
type DemandSlot struct {
	Date     string `json:"date"`
	Slot     string `json:"slot"`
	Skill    string `json:"skill"`
	Required int    `json:"required"`
}

// LockedSlot 固定分配
type LockedSlot struct {
	StaffID     uuid.UUID  `json:"staffId"`
	WardID      uuid.UUID  `json:"wardId"`
	Date        string     `json:"date"`
	Slot        string     `json:"slot"`
	ShiftTypeID *uuid.UUID `json:"shiftTypeId,omitempty"`
}

// PreferenceSlot 员工偏好
type PreferenceSlot struct {
	StaffID uuid.UUID            `json:"staffId"`
	Date    string               `json:"date"`
	Slot    string               `json:"slot"`
	Kind    model.PreferenceKind `json:"kind"`
	Weight  int                  `json:"weight"`
}

// Response 求解引擎返回结果
type Response struct {
	SolutionID  string           `json:"solutionId"`
	Assignments []AssignmentSlot `json:"assignments"`
	Metrics     Metrics          `json:"metrics"`
	Diagnostics Diagnostics      `json:"diagnostics"`
}

// AssignmentSlot 引擎给出的单条分配
type AssignmentSlot struct {
	StaffID     uuid.UUID `json:"staffId"`
	ShiftTypeID uuid.UUID `json:"shiftTypeId"`
	WardID      uuid.UUID `json:"wardId"`
	Date        string    `json:"date"`
	Slot        string    `json:"slot"`
}

// Metrics 求解质量指标
type Metrics struct {
	HardViolations         int     `json:"hardViolations"`
	SolveMs                int64   `json:"solveMs"`
	FairnessNightStd       float64 `json:"fairnessNightStd"`
	PreferenceSatisfaction float64 `json:"preferenceSatisfaction"`
}

// Diagnostics 求解诊断
type Diagnostics struct {
	Unfilled   []Unfilled `json:"unfilled"`
	Infeasible bool       `json:"infeasible"`
	Notes      []string   `json:"notes"`
}

// Unfilled 未满足的需求
type Unfilled struct {
	Date    string `json:"date"`
	Slot    string `json:"slot"`
	Skill   string `json:"skill"`
	Missing int    `json:"missing"`
}

// normalize 补齐空集合
func (r *Response) normalize() {
	if r.Assignments == nil {
		r.Assignments = []AssignmentSlot{}
	}
	r.Diagnostics.normalize()
}

func (d *Diagnostics) normalize() {
	if d.Unfilled == nil {
		d.Unfilled = []Unfilled{}
	}
	if d.Notes == nil {
		d.Notes = []string{}
	}
}

// ToAssignments 转换为待写入的分配行，引擎未返回病区时使用排班所属病区
func (r *Response) ToAssignments(scheduleID, wardID uuid.UUID) []model.Assignment {
	rows := make([]model.Assignment, 0, len(r.Assignments))
	for _, a := range r.Assignments {
		ward := a.WardID
		if ward == uuid.Nil {
			ward = wardID
		}
		rows = append(rows, model.Assignment{
			ScheduleID:  scheduleID,
			StaffID:     a.StaffID,
			WardID:      ward,
			Date:        a.Date,
			Slot:        a.Slot,
			ShiftTypeID: a.ShiftTypeID,
		})
	}
	return rows
}
