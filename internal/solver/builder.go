package solver

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/paiban/rota/pkg/errors"
	"github.com/paiban/rota/pkg/logger"
	"github.com/paiban/rota/pkg/model"
)

// PolicySource 解析有效策略
type PolicySource interface {
	GetEffectivePolicy(ctx context.Context, wardID, scheduleID *uuid.UUID) (*model.Policy, error)
}

// WardSource 读取病区，不存在时返回 nil, nil
type WardSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Ward, error)
}

// StaffSource 读取病区可排班员工
type StaffSource interface {
	ListEligibleForWard(ctx context.Context, wardID uuid.UUID) ([]model.Staff, error)
}

// DemandSource 读取周期内的需求
type DemandSource interface {
	ListForWard(ctx context.Context, wardID uuid.UUID, horizon model.DateRange) ([]model.Demand, error)
}

// ShiftTypeSource 读取班次目录
type ShiftTypeSource interface {
	ListAll(ctx context.Context) ([]model.ShiftType, error)
}

// RuleSetSource 读取病区有效规则集
type RuleSetSource interface {
	ListActiveForWard(ctx context.Context, wardID uuid.UUID) ([]model.RuleSet, error)
}

// PreferenceSource 读取员工偏好
type PreferenceSource interface {
	ListForStaff(ctx context.Context, staffIDs []uuid.UUID, horizon model.DateRange) ([]model.Preference, error)
}

// LockSource 读取排班固定分配
type LockSource interface {
	ListForSchedule(ctx context.Context, scheduleID uuid.UUID) ([]model.Lock, error)
}

// Sources 组装请求所需的全部数据源
type Sources struct {
	Policies    PolicySource
	Wards       WardSource
	Staff       StaffSource
	Demand      DemandSource
	ShiftTypes  ShiftTypeSource
	RuleSets    RuleSetSource
	Preferences PreferenceSource
	Locks       LockSource
}

// Builder 求解请求构建器，只读不写
type Builder struct {
	src Sources
}

// NewBuilder 创建构建器
func NewBuilder(src Sources) *Builder {
	return &Builder{src: src}
}

// Build 为排班组装完整的求解请求
func (b *Builder) Build(ctx context.Context, wardID uuid.UUID, schedule *model.Schedule) (*Request, error) {
	log := logger.WithContext(ctx).With().
		Str("component", "request_builder").
		Str("schedule_id", schedule.ID.String()).
		Logger()

	horizon := schedule.Horizon()
	if err := horizon.Validate(); err != nil {
		return nil, apperrors.InvalidInput("horizon", err.Error())
	}

	scheduleID := schedule.ID
	policy, err := b.src.Policies.GetEffectivePolicy(ctx, &wardID, &scheduleID)
	if err != nil {
		return nil, fmt.Errorf("解析有效策略失败: %w", err)
	}

	ward, err := b.src.Wards.GetByID(ctx, wardID)
	if err != nil {
		return nil, fmt.Errorf("查询病区失败: %w", err)
	}
	if ward == nil {
		return nil, apperrors.NotFound("病区", wardID.String())
	}

	staff, err := b.src.Staff.ListEligibleForWard(ctx, wardID)
	if err != nil {
		return nil, fmt.Errorf("查询员工失败: %w", err)
	}

	demand, err := b.src.Demand.ListForWard(ctx, wardID, horizon)
	if err != nil {
		return nil, fmt.Errorf("查询需求失败: %w", err)
	}

	shiftTypes, err := b.src.ShiftTypes.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询班次失败: %w", err)
	}

	ruleSets, err := b.src.RuleSets.ListActiveForWard(ctx, wardID)
	if err != nil {
		return nil, fmt.Errorf("查询规则集失败: %w", err)
	}

	staffIDs := make([]uuid.UUID, 0, len(staff))
	for _, s := range staff {
		staffIDs = append(staffIDs, s.ID)
	}
	prefs, err := b.src.Preferences.ListForStaff(ctx, staffIDs, horizon)
	if err != nil {
		return nil, fmt.Errorf("查询偏好失败: %w", err)
	}

	locks, err := b.src.Locks.ListForSchedule(ctx, schedule.ID)
	if err != nil {
		return nil, fmt.Errorf("查询固定分配失败: %w", err)
	}

	req := &Request{
		Horizon: Horizon{Start: horizon.Start, End: horizon.End},
		Ward: WardRef{
			ID:         ward.ID,
			HospitalID: ward.HospitalID,
			Name:       ward.Name,
			Code:       ward.Code,
		},
		ShiftTypes:   nonNil(shiftTypes),
		Staff:        toStaffMembers(staff),
		Demand:       toDemandSlots(demand, horizon),
		Rules:        FoldRules(ruleSets, &log),
		Locks:        toLockedSlots(locks),
		Preferences:  toPreferenceSlots(prefs),
		Objective:    ObjectiveFull,
		TimeBudgetMs: policy.TimeBudgetMs,
		Weights:      policy.Weights,
		Limits:       policy.Limits,
		Toggles:      policy.Toggles,
		Substitution: model.CopySubstitution(policy.Substitution),
	}

	log.Debug().
		Int("staff", len(req.Staff)).
		Int("demand", len(req.Demand)).
		Int("locks", len(req.Locks)).
		Int("preferences", len(req.Preferences)).
		Msg("求解请求已组装")
	return req, nil
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

func toStaffMembers(staff []model.Staff) []StaffMember {
	out := make([]StaffMember, 0, len(staff))
	for _, s := range staff {
		out = append(out, StaffMember{
			ID:            s.ID,
			Name:          s.Name,
			Role:          s.Role,
			ContractHours: s.ContractHours,
			Skills:        nonNil(s.Skills),
		})
	}
	return out
}

// toDemandSlots 只保留周期内的需求
func toDemandSlots(demand []model.Demand, horizon model.DateRange) []DemandSlot {
	out := make([]DemandSlot, 0, len(demand))
	for _, d := range demand {
		if !horizon.Contains(d.Date) {
			continue
		}
		out = append(out, DemandSlot{Date: d.Date, Slot: d.Slot, Skill: d.Skill, Required: d.Required})
	}
	return out
}

func toLockedSlots(locks []model.Lock) []LockedSlot {
	out := make([]LockedSlot, 0, len(locks))
	for _, l := range locks {
		out = append(out, LockedSlot{
			StaffID:     l.StaffID,
			WardID:      l.WardID,
			Date:        l.Date,
			Slot:        l.Slot,
			ShiftTypeID: l.ShiftTypeID,
		})
	}
	return out
}

func toPreferenceSlots(prefs []model.Preference) []PreferenceSlot {
	out := make([]PreferenceSlot, 0, len(prefs))
	for _, p := range prefs {
		out = append(out, PreferenceSlot{StaffID: p.StaffID, Date: p.Date, Slot: p.Slot, Kind: p.Kind, Weight: p.Weight})
	}
	return out
}
