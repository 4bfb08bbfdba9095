// Package policy 解析排班求解使用的有效策略
package policy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/paiban/rota/internal/metrics"
	"github.com/paiban/rota/pkg/logger"
	"github.com/paiban/rota/pkg/model"
)

// Store 按作用域查找有效策略，未命中返回 nil, nil
type Store interface {
	FindActive(ctx context.Context, scope model.PolicyScope, entityID *uuid.UUID) (*model.Policy, error)
}

// LineageSource 读取病区向上的组织链
type LineageSource interface {
	GetLineage(ctx context.Context, wardID uuid.UUID) (*model.WardLineage, error)
}

// resolveTimeout 单次共享解析的上限
const resolveTimeout = 10 * time.Second

// lookup 阶梯中的一级，返回 nil 表示该级未命中
type lookup struct {
	scope model.PolicyScope
	find  func(ctx context.Context) (*model.Policy, error)
}

// Resolver 有效策略解析器
type Resolver struct {
	store            Store
	lineage          LineageSource
	cache            *Cache
	hierarchyEnabled bool
	group            singleflight.Group
}

// NewResolver 创建解析器
func NewResolver(store Store, lineage LineageSource, cache *Cache, hierarchyEnabled bool) *Resolver {
	if cache == nil {
		cache = NewCache()
	}
	return &Resolver{
		store:            store,
		lineage:          lineage,
		cache:            cache,
		hierarchyEnabled: hierarchyEnabled,
	}
}

// Cache 返回解析器使用的缓存
func (r *Resolver) Cache() *Cache {
	return r.cache
}

// GetEffectivePolicy 按 排班 > 病区 > (医院 > 集团) > 全局 > 内置默认 的顺序解析策略
//
// 返回值是副本，调用方可以自由修改。存储错误原样返回，不会被当成未配置。
func (r *Resolver) GetEffectivePolicy(ctx context.Context, wardID, scheduleID *uuid.UUID) (*model.Policy, error) {
	key := keyOf(wardID, scheduleID)
	if p, ok := r.cache.get(key); ok {
		metrics.RecordPolicyCache(true)
		return p.Clone(), nil
	}
	metrics.RecordPolicyCache(false)

	// 同一键的并发请求共享一次解析，解析不随首个调用方取消
	ch := r.group.DoChan(key.ward.String()+"/"+key.schedule.String(), func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), resolveTimeout)
		defer cancel()

		gen := r.cache.currentGeneration()
		p, err := r.resolve(flightCtx, wardID, scheduleID)
		if err != nil {
			return nil, err
		}
		p = p.Clone()
		r.cache.put(key, p, gen)
		return p, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.Policy).Clone(), nil
	}
}

func (r *Resolver) resolve(ctx context.Context, wardID, scheduleID *uuid.UUID) (*model.Policy, error) {
	for _, step := range r.ladder(wardID, scheduleID) {
		p, err := step.find(ctx)
		if err != nil {
			return nil, fmt.Errorf("解析 %s 级策略失败: %w", step.scope, err)
		}
		if p != nil {
			logger.WithContext(ctx).Debug().
				Str("scope", string(step.scope)).
				Str("policy_id", p.ID.String()).
				Msg("命中策略")
			return p, nil
		}
	}

	logger.WithContext(ctx).Debug().Msg("未配置策略，使用内置默认策略")
	return model.DefaultPolicy(), nil
}

// ladder 按优先级构造查找阶梯
func (r *Resolver) ladder(wardID, scheduleID *uuid.UUID) []lookup {
	steps := make([]lookup, 0, 5)
	if scheduleID != nil {
		steps = append(steps, r.scoped(model.ScopeSchedule, scheduleID))
	}
	if wardID != nil {
		steps = append(steps, r.scoped(model.ScopeWard, wardID))
		if r.hierarchyEnabled && r.lineage != nil {
			lineage := r.lazyLineage(*wardID)
			steps = append(steps,
				r.fromLineage(model.ScopeHospital, lineage, func(l *model.WardLineage) uuid.UUID { return l.HospitalID }),
				r.fromLineage(model.ScopeTrust, lineage, func(l *model.WardLineage) uuid.UUID { return l.TrustID }),
			)
		}
	}
	return append(steps, r.scoped(model.ScopeGlobal, nil))
}

func (r *Resolver) scoped(scope model.PolicyScope, entityID *uuid.UUID) lookup {
	return lookup{
		scope: scope,
		find: func(ctx context.Context) (*model.Policy, error) {
			return r.store.FindActive(ctx, scope, entityID)
		},
	}
}

// lazyLineage 组织链只在真正走到上级作用域时读取一次
func (r *Resolver) lazyLineage(wardID uuid.UUID) func(ctx context.Context) (*model.WardLineage, error) {
	var (
		loaded bool
		cached *model.WardLineage
	)
	return func(ctx context.Context) (*model.WardLineage, error) {
		if loaded {
			return cached, nil
		}
		l, err := r.lineage.GetLineage(ctx, wardID)
		if err != nil {
			return nil, err
		}
		loaded, cached = true, l
		return l, nil
	}
}

func (r *Resolver) fromLineage(
	scope model.PolicyScope,
	lineage func(ctx context.Context) (*model.WardLineage, error),
	pick func(*model.WardLineage) uuid.UUID,
) lookup {
	return lookup{
		scope: scope,
		find: func(ctx context.Context) (*model.Policy, error) {
			l, err := lineage(ctx)
			if err != nil || l == nil {
				return nil, err
			}
			id := pick(l)
			return r.store.FindActive(ctx, scope, &id)
		},
	}
}
