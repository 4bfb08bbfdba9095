package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paiban/rota/pkg/model"
)

// ErrPublishedExists 病区已存在发布中的排班
var ErrPublishedExists = errors.New("病区已存在发布中的排班")

const publishedIndex = "uq_schedules_ward_published"

const scheduleColumns = `
	id, ward_id, name, to_char(horizon_start, 'YYYY-MM-DD'), to_char(horizon_end, 'YYYY-MM-DD'),
	status, solve_status, metrics, last_solved_at, published_at, created_at, updated_at
`

// ScheduleRepository 排班仓储
type ScheduleRepository struct {
	db DB
	tx TxRunner
}

// NewScheduleRepository 创建排班仓储
func NewScheduleRepository(db DB, tx TxRunner) *ScheduleRepository {
	return &ScheduleRepository{db: db, tx: tx}
}

// GetByID 根据ID获取排班，不存在时返回 nil, nil
func (r *ScheduleRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = $1`
	return scanSchedule(r.db.QueryRowContext(ctx, query, id))
}

// Create 创建排班；以 published 状态创建时同一病区不得已有发布中的排班
func (r *ScheduleRepository) Create(ctx context.Context, s *model.Schedule) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	if s.Status == "" {
		s.Status = model.ScheduleDraft
	}
	if s.SolveStatus == "" {
		s.SolveStatus = model.SolveStatusNone
	}
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	if s.Status == model.SchedulePublished {
		s.PublishedAt = &now
	}

	return r.tx.Transaction(ctx, func(tx *sql.Tx) error {
		if s.Status == model.SchedulePublished {
			if err := checkNoPublished(ctx, tx, s.WardID, s.ID); err != nil {
				return err
			}
		}

		query := `
			INSERT INTO schedules (
				id, ward_id, name, horizon_start, horizon_end, status, solve_status,
				published_at, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`
		_, err := tx.ExecContext(ctx, query,
			s.ID, s.WardID, s.Name, s.HorizonStart, s.HorizonEnd, string(s.Status), string(s.SolveStatus),
			s.PublishedAt, s.CreatedAt, s.UpdatedAt,
		)
		if isUniqueViolation(err, publishedIndex) {
			return ErrPublishedExists
		}
		if err != nil {
			return fmt.Errorf("创建排班失败: %w", err)
		}
		return nil
	})
}

// Publish 发布排班，同一病区同一时间只允许一个发布中的排班
func (r *ScheduleRepository) Publish(ctx context.Context, id uuid.UUID) (*model.Schedule, error) {
	var published *model.Schedule
	err := r.tx.Transaction(ctx, func(tx *sql.Tx) error {
		s, err := scanSchedule(tx.QueryRowContext(ctx,
			`SELECT `+scheduleColumns+` FROM schedules WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if s == nil {
			return ErrNotFound
		}
		if s.Status == model.SchedulePublished {
			published = s
			return nil
		}
		if err := checkNoPublished(ctx, tx, s.WardID, s.ID); err != nil {
			return err
		}

		now := time.Now()
		_, err = tx.ExecContext(ctx,
			`UPDATE schedules SET status = $2, published_at = $3, updated_at = $3 WHERE id = $1`,
			id, string(model.SchedulePublished), now,
		)
		if isUniqueViolation(err, publishedIndex) {
			return ErrPublishedExists
		}
		if err != nil {
			return fmt.Errorf("发布排班失败: %w", err)
		}
		s.Status = model.SchedulePublished
		s.PublishedAt = &now
		s.UpdatedAt = now
		published = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return published, nil
}

// UpdateSolveStatus 更新最近一次求解状态，不影响生命周期状态
func (r *ScheduleRepository) UpdateSolveStatus(ctx context.Context, id uuid.UUID, status model.SolveStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE schedules SET solve_status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("更新求解状态失败: %w", err)
	}
	return requireAffected(res)
}

func checkNoPublished(ctx context.Context, tx *sql.Tx, wardID, exceptID uuid.UUID) error {
	var exists bool
	err := tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM schedules WHERE ward_id = $1 AND status = 'published' AND id <> $2)`,
		wardID, exceptID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("检查发布中的排班失败: %w", err)
	}
	if exists {
		return ErrPublishedExists
	}
	return nil
}

func scanSchedule(row Scanner) (*model.Schedule, error) {
	s := &model.Schedule{}
	var status, solveStatus string
	var metrics []byte
	var lastSolved, publishedAt sql.NullTime

	err := row.Scan(
		&s.ID, &s.WardID, &s.Name, &s.HorizonStart, &s.HorizonEnd,
		&status, &solveStatus, &metrics, &lastSolved, &publishedAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("查询排班失败: %w", err)
	}

	s.Status = model.ScheduleStatus(status)
	s.SolveStatus = model.SolveStatus(solveStatus)
	if len(metrics) > 0 {
		s.Metrics = metrics
	}
	if lastSolved.Valid {
		s.LastSolvedAt = &lastSolved.Time
	}
	if publishedAt.Valid {
		s.PublishedAt = &publishedAt.Time
	}
	return s, nil
}

// LockRepository 固定分配仓储
type LockRepository struct {
	db DB
}

// NewLockRepository 创建固定分配仓储
func NewLockRepository(db DB) *LockRepository {
	return &LockRepository{db: db}
}

// ListForSchedule 列出排班的全部固定分配
func (r *LockRepository) ListForSchedule(ctx context.Context, scheduleID uuid.UUID) ([]model.Lock, error) {
	query := `
		SELECT id, schedule_id, staff_id, ward_id, to_char(date, 'YYYY-MM-DD'), slot, shift_type_id
		FROM locks
		WHERE schedule_id = $1
		ORDER BY date, slot, staff_id
	`

	rows, err := r.db.QueryContext(ctx, query, scheduleID)
	if err != nil {
		return nil, fmt.Errorf("查询固定分配失败: %w", err)
	}
	defer rows.Close()

	locks := make([]model.Lock, 0)
	for rows.Next() {
		var l model.Lock
		var shiftTypeID uuid.NullUUID
		if err := rows.Scan(&l.ID, &l.ScheduleID, &l.StaffID, &l.WardID, &l.Date, &l.Slot, &shiftTypeID); err != nil {
			return nil, fmt.Errorf("扫描固定分配失败: %w", err)
		}
		if shiftTypeID.Valid {
			id := shiftTypeID.UUID
			l.ShiftTypeID = &id
		}
		locks = append(locks, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历固定分配失败: %w", err)
	}
	return locks, nil
}
