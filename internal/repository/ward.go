package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/paiban/rota/pkg/model"
)

// WardRepository 病区仓储
type WardRepository struct {
	db DB
}

// NewWardRepository 创建病区仓储
func NewWardRepository(db DB) *WardRepository {
	return &WardRepository{db: db}
}

// GetByID 根据ID获取病区，不存在时返回 nil, nil
func (r *WardRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Ward, error) {
	query := `
		SELECT id, hospital_id, name, code, created_at, updated_at
		FROM wards
		WHERE id = $1
	`

	w := &model.Ward{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&w.ID, &w.HospitalID, &w.Name, &w.Code, &w.CreatedAt, &w.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询病区失败: %w", err)
	}
	return w, nil
}

// GetLineage 获取病区所属医院与集团
func (r *WardRepository) GetLineage(ctx context.Context, wardID uuid.UUID) (*model.WardLineage, error) {
	query := `
		SELECT w.id, h.id, h.trust_id
		FROM wards w
		JOIN hospitals h ON h.id = w.hospital_id
		WHERE w.id = $1
	`

	l := &model.WardLineage{}
	err := r.db.QueryRowContext(ctx, query, wardID).Scan(&l.WardID, &l.HospitalID, &l.TrustID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询病区组织链失败: %w", err)
	}
	return l, nil
}
