package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/paiban/rota/pkg/model"
)

// ShiftTypeRepository 班次类型仓储
type ShiftTypeRepository struct {
	db DB
}

// NewShiftTypeRepository 创建班次类型仓储
func NewShiftTypeRepository(db DB) *ShiftTypeRepository {
	return &ShiftTypeRepository{db: db}
}

// ListAll 列出全部班次类型
func (r *ShiftTypeRepository) ListAll(ctx context.Context) ([]model.ShiftType, error) {
	query := `
		SELECT id, code, name, slot, start_time, end_time, is_night
		FROM shift_types
		ORDER BY start_time, code
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询班次类型失败: %w", err)
	}
	defer rows.Close()

	types := make([]model.ShiftType, 0)
	for rows.Next() {
		var st model.ShiftType
		if err := rows.Scan(&st.ID, &st.Code, &st.Name, &st.Slot, &st.StartTime, &st.EndTime, &st.IsNight); err != nil {
			return nil, fmt.Errorf("扫描班次类型失败: %w", err)
		}
		types = append(types, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历班次类型失败: %w", err)
	}
	return types, nil
}

// DemandRepository 需求仓储
type DemandRepository struct {
	db DB
}

// NewDemandRepository 创建需求仓储
func NewDemandRepository(db DB) *DemandRepository {
	return &DemandRepository{db: db}
}

// ListForWard 查询病区在日期范围内的需求
func (r *DemandRepository) ListForWard(ctx context.Context, wardID uuid.UUID, horizon model.DateRange) ([]model.Demand, error) {
	query := `
		SELECT id, ward_id, to_char(date, 'YYYY-MM-DD'), slot, skill, required
		FROM demands
		WHERE ward_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date, slot, skill
	`

	rows, err := r.db.QueryContext(ctx, query, wardID, horizon.Start, horizon.End)
	if err != nil {
		return nil, fmt.Errorf("查询需求失败: %w", err)
	}
	defer rows.Close()

	demand := make([]model.Demand, 0)
	for rows.Next() {
		var d model.Demand
		if err := rows.Scan(&d.ID, &d.WardID, &d.Date, &d.Slot, &d.Skill, &d.Required); err != nil {
			return nil, fmt.Errorf("扫描需求失败: %w", err)
		}
		demand = append(demand, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历需求失败: %w", err)
	}
	return demand, nil
}

// RuleSetRepository 规则集仓储
type RuleSetRepository struct {
	db DB
}

// NewRuleSetRepository 创建规则集仓储
func NewRuleSetRepository(db DB) *RuleSetRepository {
	return &RuleSetRepository{db: db}
}

// ListActiveForWard 按顺序列出病区的有效规则集及其规则
func (r *RuleSetRepository) ListActiveForWard(ctx context.Context, wardID uuid.UUID) ([]model.RuleSet, error) {
	query := `
		SELECT rs.id, rs.ward_id, rs.name, rs.position, rs.is_active, ru.key, ru.value
		FROM rule_sets rs
		LEFT JOIN rules ru ON ru.rule_set_id = rs.id
		WHERE rs.ward_id = $1 AND rs.is_active = TRUE
		ORDER BY rs.position, rs.id, ru.position, ru.id
	`

	rows, err := r.db.QueryContext(ctx, query, wardID)
	if err != nil {
		return nil, fmt.Errorf("查询规则集失败: %w", err)
	}
	defer rows.Close()

	sets := make([]model.RuleSet, 0)
	for rows.Next() {
		var rs model.RuleSet
		var key, value *string
		if err := rows.Scan(&rs.ID, &rs.WardID, &rs.Name, &rs.Position, &rs.IsActive, &key, &value); err != nil {
			return nil, fmt.Errorf("扫描规则集失败: %w", err)
		}
		if n := len(sets); n == 0 || sets[n-1].ID != rs.ID {
			rs.Rules = make([]model.Rule, 0)
			sets = append(sets, rs)
		}
		if key != nil && value != nil {
			last := &sets[len(sets)-1]
			last.Rules = append(last.Rules, model.Rule{Key: *key, Value: *value})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历规则集失败: %w", err)
	}
	return sets, nil
}
