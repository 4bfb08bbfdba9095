package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/rota/pkg/model"
)

const policyColumns = `
	id, name, scope, entity_id, weights, limits, toggles, substitution,
	time_budget_ms, is_active, created_at, updated_at
`

// PolicyRepository 策略仓储
type PolicyRepository struct {
	db DB
}

// NewPolicyRepository 创建策略仓储
func NewPolicyRepository(db DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// FindActive 查找作用域内最近创建的有效策略，未命中时返回 nil, nil
func (r *PolicyRepository) FindActive(ctx context.Context, scope model.PolicyScope, entityID *uuid.UUID) (*model.Policy, error) {
	var row *sql.Row
	if entityID == nil {
		row = r.db.QueryRowContext(ctx, `
			SELECT `+policyColumns+`
			FROM policies
			WHERE scope = $1 AND entity_id IS NULL AND is_active = TRUE
			ORDER BY created_at DESC
			LIMIT 1
		`, string(scope))
	} else {
		row = r.db.QueryRowContext(ctx, `
			SELECT `+policyColumns+`
			FROM policies
			WHERE scope = $1 AND entity_id = $2 AND is_active = TRUE
			ORDER BY created_at DESC
			LIMIT 1
		`, string(scope), *entityID)
	}
	return scanPolicy(row)
}

// GetByID 根据ID获取策略
func (r *PolicyRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Policy, error) {
	return scanPolicy(r.db.QueryRowContext(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = $1`, id))
}

// Create 创建策略
func (r *PolicyRepository) Create(ctx context.Context, p *model.Policy) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now

	docs, err := marshalPolicyDocs(p)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO policies (
			id, name, scope, entity_id, weights, limits, toggles, substitution,
			time_budget_ms, is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = r.db.ExecContext(ctx, query,
		p.ID, p.Name, string(p.Scope), nullableUUID(p.EntityID), docs[0], docs[1], docs[2], docs[3],
		p.TimeBudgetMs, p.IsActive, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("创建策略失败: %w", err)
	}
	return nil
}

// Update 更新策略内容，作用域与实体不可修改
func (r *PolicyRepository) Update(ctx context.Context, p *model.Policy) error {
	p.UpdatedAt = time.Now()

	docs, err := marshalPolicyDocs(p)
	if err != nil {
		return err
	}

	query := `
		UPDATE policies SET
			name = $2, weights = $3, limits = $4, toggles = $5, substitution = $6,
			time_budget_ms = $7, is_active = $8, updated_at = $9
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query,
		p.ID, p.Name, docs[0], docs[1], docs[2], docs[3], p.TimeBudgetMs, p.IsActive, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("更新策略失败: %w", err)
	}
	return requireAffected(res)
}

// Deactivate 停用策略
func (r *PolicyRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE policies SET is_active = FALSE, updated_at = $2 WHERE id = $1`,
		id, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("停用策略失败: %w", err)
	}
	return requireAffected(res)
}

func marshalPolicyDocs(p *model.Policy) ([4][]byte, error) {
	var docs [4][]byte
	substitution := p.Substitution
	if substitution == nil {
		substitution = map[string][]string{}
	}
	for i, v := range []interface{}{p.Weights, p.Limits, p.Toggles, substitution} {
		b, err := json.Marshal(v)
		if err != nil {
			return docs, fmt.Errorf("序列化策略失败: %w", err)
		}
		docs[i] = b
	}
	return docs, nil
}

func scanPolicy(row Scanner) (*model.Policy, error) {
	p := &model.Policy{}
	var scope string
	var entityID uuid.NullUUID
	var weights, limits, toggles, substitution []byte

	err := row.Scan(
		&p.ID, &p.Name, &scope, &entityID, &weights, &limits, &toggles, &substitution,
		&p.TimeBudgetMs, &p.IsActive, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询策略失败: %w", err)
	}

	p.Scope = model.PolicyScope(scope)
	if entityID.Valid {
		id := entityID.UUID
		p.EntityID = &id
	}
	for _, doc := range []struct {
		raw  []byte
		dest interface{}
	}{
		{weights, &p.Weights},
		{limits, &p.Limits},
		{toggles, &p.Toggles},
		{substitution, &p.Substitution},
	} {
		if len(doc.raw) == 0 {
			continue
		}
		if err := json.Unmarshal(doc.raw, doc.dest); err != nil {
			return nil, fmt.Errorf("解析策略失败: %w", err)
		}
	}
	p.Substitution = model.CopySubstitution(p.Substitution)
	return p, nil
}

func nullableUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
