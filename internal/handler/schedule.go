package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/paiban/rota/internal/repository"
	apperrors "github.com/paiban/rota/pkg/errors"
	"github.com/paiban/rota/pkg/model"
)

// ScheduleStore 排班创建与发布
type ScheduleStore interface {
	Create(ctx context.Context, s *model.Schedule) error
	Publish(ctx context.Context, id uuid.UUID) (*model.Schedule, error)
}

// ScheduleHandler 排班处理器
type ScheduleHandler struct {
	store ScheduleStore
}

// NewScheduleHandler 创建排班处理器
func NewScheduleHandler(store ScheduleStore) *ScheduleHandler {
	return &ScheduleHandler{store: store}
}

// CreateScheduleRequest 创建排班请求
type CreateScheduleRequest struct {
	WardID       string `json:"wardId" validate:"required,uuid"`
	Name         string `json:"name" validate:"required,max=200"`
	HorizonStart string `json:"horizonStart" validate:"required,datetime=2006-01-02"`
	HorizonEnd   string `json:"horizonEnd" validate:"required,datetime=2006-01-02"`
	Status       string `json:"status,omitempty" validate:"omitempty,oneof=draft published"`
}

// Create 创建排班
func (h *ScheduleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if appErr := decodeAndValidate(r, &req); appErr != nil {
		respondError(w, r, appErr)
		return
	}

	s := &model.Schedule{
		BaseModel:    model.NewBaseModel(),
		WardID:       uuid.MustParse(req.WardID),
		Name:         req.Name,
		HorizonStart: req.HorizonStart,
		HorizonEnd:   req.HorizonEnd,
		Status:       model.ScheduleDraft,
		SolveStatus:  model.SolveStatusNone,
	}
	if req.Status != "" {
		s.Status = model.ScheduleStatus(req.Status)
	}
	if err := s.Horizon().Validate(); err != nil {
		respondError(w, r, apperrors.InvalidInput("horizonEnd", err.Error()))
		return
	}

	if err := h.store.Create(r.Context(), s); err != nil {
		respondError(w, r, scheduleError(err, s.WardID))
		return
	}
	respondJSON(w, http.StatusCreated, s)
}

// Publish 发布排班
func (h *ScheduleHandler) Publish(w http.ResponseWriter, r *http.Request) {
	id, appErr := pathUUID(mux.Vars(r)["id"], "id")
	if appErr != nil {
		respondError(w, r, appErr)
		return
	}

	s, err := h.store.Publish(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, r, apperrors.NotFound("排班", id.String()))
			return
		}
		respondError(w, r, scheduleError(err, uuid.Nil))
		return
	}
	respondJSON(w, http.StatusOK, s)
}

func scheduleError(err error, wardID uuid.UUID) error {
	if errors.Is(err, repository.ErrPublishedExists) {
		ward := "?"
		if wardID != uuid.Nil {
			ward = wardID.String()
		}
		return apperrors.ScheduleConflict(ward, err.Error())
	}
	return apperrors.Wrap(err, apperrors.CodeInternal, "保存排班失败")
}
