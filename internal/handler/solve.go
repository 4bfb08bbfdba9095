package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/paiban/rota/internal/orchestrator"
	"github.com/paiban/rota/internal/solver"
	apperrors "github.com/paiban/rota/pkg/errors"
	"github.com/paiban/rota/pkg/model"
)

// 端点默认时间预算
const (
	defaultSolveBudgetMs  = 300000
	defaultRepairBudgetMs = 60000
)

// SolveService 求解编排
type SolveService interface {
	Solve(ctx context.Context, scheduleID uuid.UUID, timeBudgetMs int) (*orchestrator.Result, error)
	Repair(ctx context.Context, scheduleID uuid.UUID, events []model.DisruptionEvent, timeBudgetMs int) (*orchestrator.Result, error)
}

// DebugSource 求解调试记录
type DebugSource interface {
	Last() (*solver.Artifacts, error)
}

// SolveHandler 求解与修复处理器
type SolveHandler struct {
	service SolveService
	debug   DebugSource
}

// NewSolveHandler 创建处理器，debug 为 nil 表示未开启调试记录
func NewSolveHandler(service SolveService, debug DebugSource) *SolveHandler {
	return &SolveHandler{service: service, debug: debug}
}

// SolveRequest 全量求解请求
type SolveRequest struct {
	ScheduleID   string `json:"scheduleId" validate:"required,uuid"`
	TimeBudgetMs *int   `json:"timeBudgetMs,omitempty" validate:"omitempty,min=10000,max=600000"`
}

// RepairRequest 修复求解请求
type RepairRequest struct {
	ScheduleID   string       `json:"scheduleId" validate:"required,uuid"`
	Events       []EventInput `json:"events" validate:"required,dive"`
	TimeBudgetMs *int         `json:"timeBudgetMs,omitempty" validate:"omitempty,min=10000,max=120000"`
}

// EventInput 扰动事件
type EventInput struct {
	Type    string                 `json:"type" validate:"required"`
	Date    string                 `json:"date" validate:"required,datetime=2006-01-02"`
	Slot    string                 `json:"slot,omitempty"`
	StaffID *string                `json:"staffId,omitempty" validate:"omitempty,uuid"`
	WardID  *string                `json:"wardId,omitempty" validate:"omitempty,uuid"`
	Payload map[string]interface{} `json:"payload"`
}

func (e EventInput) toModel() model.DisruptionEvent {
	payload := e.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	return model.DisruptionEvent{
		Type:    e.Type,
		Date:    e.Date,
		Slot:    e.Slot,
		StaffID: parseOptionalUUID(e.StaffID),
		WardID:  parseOptionalUUID(e.WardID),
		Payload: payload,
	}
}

func budgetOrDefault(budget *int, fallback int) int {
	if budget == nil {
		return fallback
	}
	return *budget
}

// Solve 全量求解
func (h *SolveHandler) Solve(w http.ResponseWriter, r *http.Request) {
	var req SolveRequest
	if appErr := decodeAndValidate(r, &req); appErr != nil {
		respondError(w, r, appErr)
		return
	}

	res, err := h.service.Solve(r.Context(), uuid.MustParse(req.ScheduleID), budgetOrDefault(req.TimeBudgetMs, defaultSolveBudgetMs))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Repair 修复求解
func (h *SolveHandler) Repair(w http.ResponseWriter, r *http.Request) {
	var req RepairRequest
	if appErr := decodeAndValidate(r, &req); appErr != nil {
		respondError(w, r, appErr)
		return
	}

	events := make([]model.DisruptionEvent, 0, len(req.Events))
	for _, e := range req.Events {
		events = append(events, e.toModel())
	}

	res, err := h.service.Repair(r.Context(), uuid.MustParse(req.ScheduleID), events, budgetOrDefault(req.TimeBudgetMs, defaultRepairBudgetMs))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Debug 返回最近一次求解的请求与响应
func (h *SolveHandler) Debug(w http.ResponseWriter, r *http.Request) {
	if h.debug == nil {
		respondError(w, r, apperrors.New(apperrors.CodeNotFound, "求解调试未开启，设置 DEBUG_SOLVER=true 后重启服务"))
		return
	}

	artifacts, err := h.debug.Last()
	if errors.Is(err, solver.ErrNoDebugArtifacts) {
		respondError(w, r, apperrors.New(apperrors.CodeNotFound, "暂无求解调试记录"))
		return
	}
	if err != nil {
		respondError(w, r, apperrors.Wrap(err, apperrors.CodeInternal, "读取求解调试记录失败"))
		return
	}
	respondJSON(w, http.StatusOK, artifacts)
}
