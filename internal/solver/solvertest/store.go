// Package solvertest 提供求解请求构建所需数据源的内存实现
package solvertest

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/paiban/rota/pkg/model"
)

// Store 内存数据源，同时满足构建器的全部数据源接口
type Store struct {
	mu sync.Mutex

	Policy      *model.Policy
	Ward        *model.Ward
	Staff       []model.Staff
	Demand      []model.Demand
	ShiftTypes  []model.ShiftType
	RuleSets    []model.RuleSet
	Preferences []model.Preference
	Locks       []model.Lock

	// Errors 按数据源名称注入错误：policy ward staff demand shift_types rule_sets preferences locks
	Errors map[string]error
	calls  []string
}

func (s *Store) record(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, name)
	return s.Errors[name]
}

// Calls 按调用顺序返回访问过的数据源
func (s *Store) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// GetEffectivePolicy 返回固定策略，未设置时返回内置默认策略
func (s *Store) GetEffectivePolicy(_ context.Context, _, _ *uuid.UUID) (*model.Policy, error) {
	if err := s.record("policy"); err != nil {
		return nil, err
	}
	if s.Policy == nil {
		return model.DefaultPolicy(), nil
	}
	return s.Policy.Clone(), nil
}

func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*model.Ward, error) {
	if err := s.record("ward"); err != nil {
		return nil, err
	}
	if s.Ward == nil || s.Ward.ID != id {
		return nil, nil
	}
	return s.Ward, nil
}

func (s *Store) ListEligibleForWard(_ context.Context, _ uuid.UUID) ([]model.Staff, error) {
	if err := s.record("staff"); err != nil {
		return nil, err
	}
	return s.Staff, nil
}

func (s *Store) ListForWard(_ context.Context, _ uuid.UUID, horizon model.DateRange) ([]model.Demand, error) {
	if err := s.record("demand"); err != nil {
		return nil, err
	}
	var out []model.Demand
	for _, d := range s.Demand {
		if horizon.Contains(d.Date) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Store) ListAll(_ context.Context) ([]model.ShiftType, error) {
	if err := s.record("shift_types"); err != nil {
		return nil, err
	}
	return s.ShiftTypes, nil
}

func (s *Store) ListActiveForWard(_ context.Context, _ uuid.UUID) ([]model.RuleSet, error) {
	if err := s.record("rule_sets"); err != nil {
		return nil, err
	}
	return s.RuleSets, nil
}

func (s *Store) ListForStaff(_ context.Context, _ []uuid.UUID, _ model.DateRange) ([]model.Preference, error) {
	if err := s.record("preferences"); err != nil {
		return nil, err
	}
	return s.Preferences, nil
}

func (s *Store) ListForSchedule(_ context.Context, _ uuid.UUID) ([]model.Lock, error) {
	if err := s.record("locks"); err != nil {
		return nil, err
	}
	return s.Locks, nil
}

// NightScenario 两周周期、每晚需要 1 名 GeneralCare 的病区，staffCount 名具备该技能的员工
func NightScenario(staffCount int) (*Store, *model.Schedule) {
	ward := &model.Ward{BaseModel: model.NewBaseModel(), HospitalID: uuid.New(), Name: "7号病区", Code: "W7"}
	schedule := &model.Schedule{
		BaseModel:    model.NewBaseModel(),
		WardID:       ward.ID,
		Name:         "2025年1月上半月",
		HorizonStart: "2025-01-01",
		HorizonEnd:   "2025-01-14",
		Status:       model.ScheduleDraft,
		SolveStatus:  model.SolveStatusNone,
	}

	store := &Store{
		Ward:  ward,
		Staff: []model.Staff{},
		ShiftTypes: []model.ShiftType{
			{ID: uuid.New(), Code: "D", Name: "白班", Slot: "Day", StartTime: "08:00", EndTime: "20:00"},
			{ID: uuid.New(), Code: "N", Name: "夜班", Slot: "Night", StartTime: "20:00", EndTime: "08:00", IsNight: true},
		},
		RuleSets:    []model.RuleSet{},
		Preferences: []model.Preference{},
		Locks:       []model.Lock{},
	}
	for i := 0; i < staffCount; i++ {
		store.Staff = append(store.Staff, model.Staff{
			BaseModel:     model.NewBaseModel(),
			Name:          "护士",
			Role:          "nurse",
			ContractHours: 37.5,
			IsActive:      true,
			Skills:        []string{"GeneralCare"},
		})
	}
	for _, day := range schedule.Horizon().Days() {
		store.Demand = append(store.Demand, model.Demand{
			ID: uuid.New(), WardID: ward.ID, Date: day, Slot: "Night", Skill: "GeneralCare", Required: 1,
		})
	}
	return store, schedule
}
