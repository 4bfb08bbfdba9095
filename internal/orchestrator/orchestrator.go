// Package orchestrator 编排求解与修复流程：构建请求、调用引擎、整体替换分配并记录审计事件
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/paiban/rota/internal/metrics"
	"github.com/paiban/rota/internal/solver"
	apperrors "github.com/paiban/rota/pkg/errors"
	"github.com/paiban/rota/pkg/logger"
	"github.com/paiban/rota/pkg/model"
)

// 求解模式
const (
	ModeSolve  = "solve"
	ModeRepair = "repair"
)

// ScheduleStore 排班读取与状态更新
type ScheduleStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Schedule, error)
	UpdateSolveStatus(ctx context.Context, id uuid.UUID, status model.SolveStatus) error
}

// RequestBuilder 求解请求构建
type RequestBuilder interface {
	Build(ctx context.Context, wardID uuid.UUID, schedule *model.Schedule) (*solver.Request, error)
}

// Gateway 求解引擎调用
type Gateway interface {
	SolveFull(ctx context.Context, req *solver.Request) (*solver.Response, error)
	SolveRepair(ctx context.Context, req *solver.Request, events []model.DisruptionEvent) (*solver.Response, error)
}

// AssignmentWriter 整体替换排班分配
type AssignmentWriter interface {
	Persist(ctx context.Context, scheduleID uuid.UUID, rows []model.Assignment, metricsJSON []byte) (int, error)
}

// EventStore 审计事件追加
type EventStore interface {
	Append(ctx context.Context, e *model.Event) error
}

// Result 求解与修复的返回结构
type Result struct {
	Schedule         *model.Schedule    `json:"schedule"`
	AssignmentsCount int                `json:"assignmentsCount"`
	Metrics          solver.Metrics     `json:"metrics"`
	Diagnostics      solver.Diagnostics `json:"diagnostics"`
}

// Orchestrator 求解编排器
//
// 同一排班的并发求解之间没有协调，最后提交的事务生效。
type Orchestrator struct {
	schedules ScheduleStore
	builder   RequestBuilder
	gateway   Gateway
	writer    AssignmentWriter
	events    EventStore
	now       func() time.Time
}

// New 创建编排器
func New(schedules ScheduleStore, builder RequestBuilder, gateway Gateway, writer AssignmentWriter, events EventStore) *Orchestrator {
	return &Orchestrator{
		schedules: schedules,
		builder:   builder,
		gateway:   gateway,
		writer:    writer,
		events:    events,
		now:       time.Now,
	}
}

// attempt 一次求解或修复的上下文
type attempt struct {
	mode        string
	scheduleID  uuid.UUID
	budgetMs    int
	events      []model.DisruptionEvent
	solveStatus model.SolveStatus
	completed   model.EventType
	failed      model.EventType
}

// Solve 全量求解排班
func (o *Orchestrator) Solve(ctx context.Context, scheduleID uuid.UUID, timeBudgetMs int) (*Result, error) {
	return o.run(ctx, attempt{
		mode:        ModeSolve,
		scheduleID:  scheduleID,
		budgetMs:    timeBudgetMs,
		solveStatus: model.SolveStatusSolved,
		completed:   model.EventSolveCompleted,
		failed:      model.EventSolveFailed,
	})
}

// Repair 根据扰动事件修复排班，结果同样整体替换原分配
func (o *Orchestrator) Repair(ctx context.Context, scheduleID uuid.UUID, events []model.DisruptionEvent, timeBudgetMs int) (*Result, error) {
	if events == nil {
		events = []model.DisruptionEvent{}
	}
	return o.run(ctx, attempt{
		mode:        ModeRepair,
		scheduleID:  scheduleID,
		budgetMs:    timeBudgetMs,
		events:      events,
		solveStatus: model.SolveStatusRepaired,
		completed:   model.EventRepairCompleted,
		failed:      model.EventRepairFailed,
	})
}

func (o *Orchestrator) run(ctx context.Context, a attempt) (*Result, error) {
	start := o.now()
	solveLog := logger.NewSolveLogger(ctx)

	schedule, err := o.schedules.GetByID(ctx, a.scheduleID)
	if err != nil {
		return nil, o.fail(ctx, solveLog, a, start, false, apperrors.Wrap(err, apperrors.CodeInternal, "查询排班失败"))
	}
	if schedule == nil {
		return nil, o.fail(ctx, solveLog, a, start, false, apperrors.NotFound("排班", a.scheduleID.String()))
	}

	req, err := o.builder.Build(ctx, schedule.WardID, schedule)
	if err != nil {
		return nil, o.fail(ctx, solveLog, a, start, true, err)
	}
	if a.budgetMs > 0 {
		req.TimeBudgetMs = a.budgetMs
	} else if a.mode == ModeRepair {
		req.TimeBudgetMs = solver.DefaultRepairBudgetMs
	}
	solveLog.Start(a.scheduleID.String(), a.mode, req.TimeBudgetMs)

	var resp *solver.Response
	if a.mode == ModeRepair {
		req.Objective = solver.ObjectiveRepair
		resp, err = o.gateway.SolveRepair(ctx, req, NormalizeEvents(a.events))
	} else {
		resp, err = o.gateway.SolveFull(ctx, req)
	}
	if err != nil {
		return nil, o.fail(ctx, solveLog, a, start, true, err)
	}
	if resp.Diagnostics.Infeasible {
		return nil, o.fail(ctx, solveLog, a, start, true, apperrors.Infeasible(resp.Diagnostics))
	}

	metricsJSON, err := json.Marshal(resp.Metrics)
	if err != nil {
		return nil, o.fail(ctx, solveLog, a, start, true, apperrors.Wrap(err, apperrors.CodeInternal, "序列化求解指标失败"))
	}
	count, err := o.writer.Persist(ctx, schedule.ID, resp.ToAssignments(schedule.ID, schedule.WardID), metricsJSON)
	if err != nil {
		return nil, o.fail(ctx, solveLog, a, start, true, apperrors.PersistenceFailure(err))
	}
	metrics.AddAssignmentsPersisted(count)

	if err := o.schedules.UpdateSolveStatus(ctx, schedule.ID, a.solveStatus); err != nil {
		return nil, o.fail(ctx, solveLog, a, start, true, apperrors.PersistenceFailure(err))
	}
	schedule.SolveStatus = a.solveStatus
	schedule.Metrics = metricsJSON

	payload := map[string]interface{}{
		"solutionId":       resp.SolutionID,
		"assignmentsCount": count,
		"metrics":          resp.Metrics,
		"diagnostics":      resp.Diagnostics,
	}
	if a.mode == ModeRepair {
		payload["events"] = a.events
	}
	if err := o.appendEvent(ctx, schedule.ID, a.completed, payload); err != nil {
		return nil, o.fail(ctx, solveLog, a, start, false, apperrors.PersistenceFailure(err))
	}

	duration := o.now().Sub(start)
	solveLog.Complete(a.scheduleID.String(), a.mode, count, duration)
	metrics.RecordSolve(a.mode, "ok", duration)

	return &Result{
		Schedule:         schedule,
		AssignmentsCount: count,
		Metrics:          resp.Metrics,
		Diagnostics:      resp.Diagnostics,
	}, nil
}

// fail 记录失败并返回原错误；audit 为 true 时尽力追加失败事件，写入失败只记日志
func (o *Orchestrator) fail(ctx context.Context, solveLog *logger.SolveLogger, a attempt, start time.Time, audit bool, err error) error {
	code := apperrors.GetCode(err)
	solveLog.Failed(a.scheduleID.String(), a.mode, string(code), err)
	metrics.RecordSolve(a.mode, string(code), o.now().Sub(start))

	if !audit {
		return err
	}
	payload := map[string]interface{}{
		"code":    code,
		"message": err.Error(),
	}
	if appErr, ok := apperrors.As(err); ok {
		if diag, ok := appErr.Fields["diagnostics"]; ok {
			payload["diagnostics"] = diag
		}
	}
	if a.mode == ModeRepair {
		payload["events"] = a.events
	}
	if auditErr := o.appendEvent(ctx, a.scheduleID, a.failed, payload); auditErr != nil {
		logger.WithContext(ctx).Warn().Err(auditErr).
			Str("schedule_id", a.scheduleID.String()).
			Msg("写入失败审计事件失败")
	}
	return err
}

func (o *Orchestrator) appendEvent(ctx context.Context, scheduleID uuid.UUID, typ model.EventType, payload map[string]interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	return o.events.Append(ctx, &model.Event{
		ID:         uuid.New(),
		ScheduleID: scheduleID,
		Type:       typ,
		Payload:    raw,
		CreatedAt:  o.now(),
	})
}

// NormalizeEvents 把 staff_unavailable 映射为引擎词汇 sickness，其余原样保留
func NormalizeEvents(events []model.DisruptionEvent) []model.DisruptionEvent {
	out := make([]model.DisruptionEvent, 0, len(events))
	for _, ev := range events {
		if ev.Type == model.DisruptionStaffUnavailable {
			ev.Type = model.DisruptionSickness
		}
		if ev.Payload == nil {
			ev.Payload = map[string]interface{}{}
		}
		out = append(out, ev)
	}
	return out
}
