package handler

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/paiban/rota/pkg/model"
)

// PolicyService 策略写入
type PolicyService interface {
	Create(ctx context.Context, p *model.Policy) (*model.Policy, error)
	Update(ctx context.Context, id uuid.UUID, p *model.Policy) (*model.Policy, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// PolicyHandler 策略处理器
type PolicyHandler struct {
	service PolicyService
}

// NewPolicyHandler 创建策略处理器
func NewPolicyHandler(service PolicyService) *PolicyHandler {
	return &PolicyHandler{service: service}
}

// PolicyInput 策略请求体
type PolicyInput struct {
	Name         string              `json:"name" validate:"required,max=200"`
	Scope        string              `json:"scope" validate:"required,oneof=schedule ward hospital trust global"`
	EntityID     *string             `json:"entityId,omitempty" validate:"omitempty,uuid"`
	Weights      model.Weights       `json:"weights"`
	Limits       model.Limits        `json:"limits"`
	Toggles      model.Toggles       `json:"toggles"`
	Substitution map[string][]string `json:"substitution"`
	TimeBudgetMs int                 `json:"timeBudgetMs" validate:"min=0,max=600000"`
	IsActive     *bool               `json:"isActive,omitempty"`
}

func (in PolicyInput) toModel() *model.Policy {
	p := &model.Policy{
		BaseModel:    model.NewBaseModel(),
		Name:         in.Name,
		Scope:        model.PolicyScope(in.Scope),
		EntityID:     parseOptionalUUID(in.EntityID),
		Weights:      in.Weights,
		Limits:       in.Limits,
		Toggles:      in.Toggles,
		Substitution: in.Substitution,
		TimeBudgetMs: in.TimeBudgetMs,
		IsActive:     true,
	}
	if p.Substitution == nil {
		p.Substitution = map[string][]string{}
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	return p
}

// Create 创建策略
func (h *PolicyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in PolicyInput
	if appErr := decodeAndValidate(r, &in); appErr != nil {
		respondError(w, r, appErr)
		return
	}

	p, err := h.service.Create(r.Context(), in.toModel())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

// Update 更新策略
func (h *PolicyHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, appErr := pathUUID(mux.Vars(r)["id"], "id")
	if appErr != nil {
		respondError(w, r, appErr)
		return
	}
	var in PolicyInput
	if appErr := decodeAndValidate(r, &in); appErr != nil {
		respondError(w, r, appErr)
		return
	}

	p, err := h.service.Update(r.Context(), id, in.toModel())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// Deactivate 停用策略
func (h *PolicyHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, appErr := pathUUID(mux.Vars(r)["id"], "id")
	if appErr != nil {
		respondError(w, r, appErr)
		return
	}

	if err := h.service.Deactivate(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "isActive": false})
}
