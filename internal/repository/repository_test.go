package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/paiban/rota/internal/database"
	"github.com/paiban/rota/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*database.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return database.Wrap(sqlDB), mock
}

var scheduleCols = []string{
	"id", "ward_id", "name", "horizon_start", "horizon_end", "status", "solve_status",
	"metrics", "last_solved_at", "published_at", "created_at", "updated_at",
}

func TestScheduleRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleRepository(db, db)
	id, ward := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery("FROM schedules WHERE id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(scheduleCols).
			AddRow(id.String(), ward.String(), "一月", "2025-01-01", "2025-01-14", "draft", "none", nil, nil, nil, now, now))

	s, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, ward, s.WardID)
	assert.Equal(t, model.ScheduleDraft, s.Status)
	assert.Equal(t, model.DateRange{Start: "2025-01-01", End: "2025-01-14"}, s.Horizon())
	assert.Nil(t, s.PublishedAt)
}

func TestScheduleRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleRepository(db, db)

	mock.ExpectQuery("FROM schedules WHERE id").WillReturnError(sql.ErrNoRows)

	s, err := repo.GetByID(context.Background(), uuid.New())
	assert.NoError(t, err)
	assert.Nil(t, s)
}

func TestScheduleRepository_CreatePublishedConflict(t *testing.T) {
	ward := uuid.New()

	t.Run("预检查命中", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewScheduleRepository(db, db)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(ward, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		err := repo.Create(context.Background(), &model.Schedule{
			WardID: ward, HorizonStart: "2025-01-01", HorizonEnd: "2025-01-14", Status: model.SchedulePublished,
		})
		assert.ErrorIs(t, err, ErrPublishedExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("唯一索引兜底", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewScheduleRepository(db, db)
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT EXISTS").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec("INSERT INTO schedules").
			WillReturnError(&pq.Error{Code: "23505", Constraint: publishedIndex})
		mock.ExpectRollback()

		err := repo.Create(context.Background(), &model.Schedule{
			WardID: ward, HorizonStart: "2025-01-01", HorizonEnd: "2025-01-14", Status: model.SchedulePublished,
		})
		assert.ErrorIs(t, err, ErrPublishedExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestScheduleRepository_CreateDraftSkipsCheck(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleRepository(db, db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO schedules").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s := &model.Schedule{WardID: uuid.New(), HorizonStart: "2025-01-01", HorizonEnd: "2025-01-14"}
	require.NoError(t, repo.Create(context.Background(), s))

	assert.NotEqual(t, uuid.Nil, s.ID)
	assert.Equal(t, model.ScheduleDraft, s.Status)
	assert.Equal(t, model.SolveStatusNone, s.SolveStatus)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepository_Publish(t *testing.T) {
	id, ward := uuid.New(), uuid.New()
	now := time.Now()
	draftRow := func() *sqlmock.Rows {
		return sqlmock.NewRows(scheduleCols).
			AddRow(id.String(), ward.String(), "", "2025-01-01", "2025-01-14", "draft", "solved", []byte(`{}`), now, nil, now, now)
	}

	t.Run("发布成功", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewScheduleRepository(db, db)
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WithArgs(id).WillReturnRows(draftRow())
		mock.ExpectQuery("SELECT EXISTS").WithArgs(ward, id).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec("UPDATE schedules SET status").
			WithArgs(id, "published", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		s, err := repo.Publish(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, model.SchedulePublished, s.Status)
		assert.Equal(t, model.SolveStatusSolved, s.SolveStatus)
		assert.NotNil(t, s.PublishedAt)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("已有发布排班", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewScheduleRepository(db, db)
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WithArgs(id).WillReturnRows(draftRow())
		mock.ExpectQuery("SELECT EXISTS").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		_, err := repo.Publish(context.Background(), id)
		assert.ErrorIs(t, err, ErrPublishedExists)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("排班不存在", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewScheduleRepository(db, db)
		mock.ExpectBegin()
		mock.ExpectQuery("FOR UPDATE").WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := repo.Publish(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestScheduleRepository_UpdateSolveStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewScheduleRepository(db, db)
	id := uuid.New()

	mock.ExpectExec("UPDATE schedules SET solve_status").
		WithArgs(id, "repaired", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateSolveStatus(context.Background(), id, model.SolveStatusRepaired))

	mock.ExpectExec("UPDATE schedules SET solve_status").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, repo.UpdateSolveStatus(context.Background(), id, model.SolveStatusSolved), ErrNotFound)
}

var policyCols = []string{
	"id", "name", "scope", "entity_id", "weights", "limits", "toggles", "substitution",
	"time_budget_ms", "is_active", "created_at", "updated_at",
}

func TestPolicyRepository_FindActive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPolicyRepository(db)
	ward := uuid.New()
	now := time.Now()

	mock.ExpectQuery("entity_id = \\$2 AND is_active = TRUE").
		WithArgs("ward", ward).
		WillReturnRows(sqlmock.NewRows(policyCols).AddRow(
			uuid.NewString(), "ward-night", "ward", ward.String(),
			[]byte(`{"unmetDemand":500,"fairness":7}`),
			[]byte(`{"overtimeCapPerWeek":4,"flexShiftCapPerWeek":1}`),
			[]byte(`{"substitutionEnabled":false}`),
			[]byte(`{"RN":["SeniorRN"]}`),
			120000, true, now, now,
		))

	p, err := repo.FindActive(context.Background(), model.ScopeWard, &ward)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, model.ScopeWard, p.Scope)
	assert.Equal(t, ward, *p.EntityID)
	assert.Equal(t, 500.0, p.Weights.UnmetDemand)
	assert.Equal(t, 4.0, p.Limits.OvertimeCapPerWeek)
	assert.False(t, p.Toggles.SubstitutionEnabled)
	assert.Equal(t, []string{"SeniorRN"}, p.Substitution["RN"])
	assert.Equal(t, 120000, p.TimeBudgetMs)
}

func TestPolicyRepository_NullSubstituteListBecomesEmpty(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPolicyRepository(db)
	now := time.Now()

	mock.ExpectQuery("entity_id IS NULL").
		WithArgs("global").
		WillReturnRows(sqlmock.NewRows(policyCols).AddRow(
			uuid.NewString(), "global", "global", nil,
			[]byte(`{}`), []byte(`{}`), []byte(`{}`),
			[]byte(`{"RN":null}`),
			0, true, now, now,
		))

	p, err := repo.FindActive(context.Background(), model.ScopeGlobal, nil)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Contains(t, p.Substitution, "RN")
	assert.NotNil(t, p.Substitution["RN"])
	assert.Empty(t, p.Substitution["RN"])
}

func TestPolicyRepository_FindActiveGlobalMiss(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPolicyRepository(db)

	mock.ExpectQuery("entity_id IS NULL").
		WithArgs("global").
		WillReturnRows(sqlmock.NewRows(policyCols))

	p, err := repo.FindActive(context.Background(), model.ScopeGlobal, nil)
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestPolicyRepository_DeactivateMissing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPolicyRepository(db)

	mock.ExpectExec("UPDATE policies SET is_active = FALSE").WillReturnResult(sqlmock.NewResult(0, 0))

	assert.ErrorIs(t, repo.Deactivate(context.Background(), uuid.New()), ErrNotFound)
}

func TestRuleSetRepository_GroupsRulesInOrder(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRuleSetRepository(db)
	ward := uuid.New()
	base, override, empty := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery("FROM rule_sets").
		WithArgs(ward).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ward_id", "name", "position", "is_active", "key", "value"}).
			AddRow(base.String(), ward.String(), "基础", 0, true, "minRestHours", "12").
			AddRow(base.String(), ward.String(), "基础", 0, true, "oneShiftPerDay", "true").
			AddRow(override.String(), ward.String(), "冬季", 1, true, "minRestHours", "10").
			AddRow(empty.String(), ward.String(), "空", 2, true, nil, nil))

	sets, err := repo.ListActiveForWard(context.Background(), ward)
	require.NoError(t, err)
	require.Len(t, sets, 3)
	assert.Len(t, sets[0].Rules, 2)
	assert.Equal(t, model.Rule{Key: "minRestHours", Value: "10"}, sets[1].Rules[0])
	assert.NotNil(t, sets[2].Rules)
	assert.Empty(t, sets[2].Rules)
}

func TestStaffRepository_ListEligibleForWard(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewStaffRepository(db)
	ward := uuid.New()
	now := time.Now()

	mock.ExpectQuery("FROM staff s").
		WithArgs(ward).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "name", "role", "contract_hours", "is_active", "created_at", "updated_at", "skills",
		}).
			AddRow(uuid.NewString(), "Alice", "nurse", 37.5, true, now, now, "{GeneralCare,RN}").
			AddRow(uuid.NewString(), "Bob", "hca", 30.0, true, now, now, "{}"))

	staff, err := repo.ListEligibleForWard(context.Background(), ward)
	require.NoError(t, err)
	require.Len(t, staff, 2)
	assert.Equal(t, []string{"GeneralCare", "RN"}, staff[0].Skills)
	assert.NotNil(t, staff[1].Skills)
	assert.Empty(t, staff[1].Skills)
}

func TestPreferenceRepository_EmptyStaffSkipsQuery(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPreferenceRepository(db)

	prefs, err := repo.ListForStaff(context.Background(), nil, model.DateRange{Start: "2025-01-01", End: "2025-01-14"})
	require.NoError(t, err)
	assert.NotNil(t, prefs)
	assert.Empty(t, prefs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEventRepository_Append(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewEventRepository(db)
	scheduleID := uuid.New()

	mock.ExpectExec("INSERT INTO events").
		WithArgs(sqlmock.AnyArg(), scheduleID, "solve_completed", []byte(`{"assignmentsCount":14}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	e := &model.Event{ScheduleID: scheduleID, Type: model.EventSolveCompleted, Payload: []byte(`{"assignmentsCount":14}`)}
	require.NoError(t, repo.Append(context.Background(), e))
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.False(t, e.CreatedAt.IsZero())
}
