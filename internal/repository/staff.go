package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/paiban/rota/pkg/model"
)

// StaffRepository 员工仓储
type StaffRepository struct {
	db DB
}

// NewStaffRepository 创建员工仓储
func NewStaffRepository(db DB) *StaffRepository {
	return &StaffRepository{db: db}
}

// ListEligibleForWard 列出可在病区排班的在职员工及其技能
func (r *StaffRepository) ListEligibleForWard(ctx context.Context, wardID uuid.UUID) ([]model.Staff, error) {
	query := `
		SELECT s.id, s.name, s.role, s.contract_hours, s.is_active, s.created_at, s.updated_at,
			COALESCE(array_agg(sk.code ORDER BY sk.code) FILTER (WHERE sk.code IS NOT NULL), '{}')
		FROM staff s
		JOIN staff_wards sw ON sw.staff_id = s.id
		LEFT JOIN staff_skills ss ON ss.staff_id = s.id
		LEFT JOIN skills sk ON sk.id = ss.skill_id
		WHERE sw.ward_id = $1 AND s.is_active = TRUE
		GROUP BY s.id
		ORDER BY s.name, s.id
	`

	rows, err := r.db.QueryContext(ctx, query, wardID)
	if err != nil {
		return nil, fmt.Errorf("查询病区员工失败: %w", err)
	}
	defer rows.Close()

	staff := make([]model.Staff, 0)
	for rows.Next() {
		var s model.Staff
		var skills []string
		if err := rows.Scan(
			&s.ID, &s.Name, &s.Role, &s.ContractHours, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
			pq.Array(&skills),
		); err != nil {
			return nil, fmt.Errorf("扫描员工失败: %w", err)
		}
		if skills == nil {
			skills = []string{}
		}
		s.Skills = skills
		staff = append(staff, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历员工失败: %w", err)
	}
	return staff, nil
}

// PreferenceRepository 员工偏好仓储
type PreferenceRepository struct {
	db DB
}

// NewPreferenceRepository 创建偏好仓储
func NewPreferenceRepository(db DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// ListForStaff 查询一组员工在日期范围内的偏好
func (r *PreferenceRepository) ListForStaff(ctx context.Context, staffIDs []uuid.UUID, horizon model.DateRange) ([]model.Preference, error) {
	prefs := make([]model.Preference, 0)
	if len(staffIDs) == 0 {
		return prefs, nil
	}

	ids := make([]string, len(staffIDs))
	for i, id := range staffIDs {
		ids[i] = id.String()
	}

	query := `
		SELECT id, staff_id, to_char(date, 'YYYY-MM-DD'), slot, kind, weight
		FROM preferences
		WHERE staff_id = ANY($1::uuid[]) AND date BETWEEN $2 AND $3
		ORDER BY date, staff_id, slot
	`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids), horizon.Start, horizon.End)
	if err != nil {
		return nil, fmt.Errorf("查询员工偏好失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p model.Preference
		if err := rows.Scan(&p.ID, &p.StaffID, &p.Date, &p.Slot, &p.Kind, &p.Weight); err != nil {
			return nil, fmt.Errorf("扫描员工偏好失败: %w", err)
		}
		prefs = append(prefs, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历员工偏好失败: %w", err)
	}
	return prefs, nil
}
