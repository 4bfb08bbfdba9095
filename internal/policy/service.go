package policy

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/paiban/rota/internal/repository"
	apperrors "github.com/paiban/rota/pkg/errors"
	"github.com/paiban/rota/pkg/logger"
	"github.com/paiban/rota/pkg/model"
)

// Writer 策略写入存储
type Writer interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Policy, error)
	Create(ctx context.Context, p *model.Policy) error
	Update(ctx context.Context, p *model.Policy) error
	Deactivate(ctx context.Context, id uuid.UUID) error
}

// Service 策略写入服务，每次写入后清空有效策略缓存
type Service struct {
	store Writer
	cache *Cache
}

// NewService 创建策略服务
func NewService(store Writer, cache *Cache) *Service {
	return &Service{store: store, cache: cache}
}

// Create 创建策略
func (s *Service) Create(ctx context.Context, p *model.Policy) (*model.Policy, error) {
	if err := p.Validate(); err != nil {
		return nil, apperrors.InvalidInput("policy", err.Error())
	}
	if err := s.store.Create(ctx, p); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "创建策略失败")
	}
	s.invalidate(ctx, "create", p.ID)
	return p, nil
}

// Update 整体更新策略
func (s *Service) Update(ctx context.Context, id uuid.UUID, p *model.Policy) (*model.Policy, error) {
	existing, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "查询策略失败")
	}
	if existing == nil {
		return nil, apperrors.NotFound("策略", id.String())
	}

	p.ID = id
	p.CreatedAt = existing.CreatedAt
	if err := p.Validate(); err != nil {
		return nil, apperrors.InvalidInput("policy", err.Error())
	}
	if err := s.store.Update(ctx, p); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NotFound("策略", id.String())
		}
		return nil, apperrors.Wrap(err, apperrors.CodeInternal, "更新策略失败")
	}
	s.invalidate(ctx, "update", id)
	return p, nil
}

// Deactivate 停用策略
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Deactivate(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NotFound("策略", id.String())
		}
		return apperrors.Wrap(err, apperrors.CodeInternal, "停用策略失败")
	}
	s.invalidate(ctx, "deactivate", id)
	return nil
}

func (s *Service) invalidate(ctx context.Context, op string, id uuid.UUID) {
	s.cache.InvalidateAll()
	logger.WithContext(ctx).Info().
		Str("op", op).
		Str("policy_id", id.String()).
		Msg("策略已变更，清空有效策略缓存")
}
