package policy

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paiban/rota/internal/repository"
	apperrors "github.com/paiban/rota/pkg/errors"
	"github.com/paiban/rota/pkg/model"
)

// memStore 内存策略存储
type memStore struct {
	mu       sync.Mutex
	policies []*model.Policy
	calls    int
	err      error
}

func (s *memStore) add(scope model.PolicyScope, entity *uuid.UUID, name string) *model.Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := model.DefaultPolicy()
	p.BaseModel = model.NewBaseModel()
	p.CreatedAt = time.Now().Add(time.Duration(len(s.policies)) * time.Second)
	p.Name = name
	p.Scope = scope
	p.EntityID = entity
	s.policies = append(s.policies, p)
	return p
}

func (s *memStore) FindActive(_ context.Context, scope model.PolicyScope, entityID *uuid.UUID) (*model.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	var best *model.Policy
	for _, p := range s.policies {
		if !p.IsActive || p.Scope != scope {
			continue
		}
		if (entityID == nil) != (p.EntityID == nil) {
			continue
		}
		if entityID != nil && *entityID != *p.EntityID {
			continue
		}
		if best == nil || p.CreatedAt.After(best.CreatedAt) {
			best = p
		}
	}
	return best, nil
}

func (s *memStore) GetByID(_ context.Context, id uuid.UUID) (*model.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.policies {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

func (s *memStore) Create(_ context.Context, p *model.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now().Add(time.Hour)
	s.policies = append(s.policies, p)
	return nil
}

func (s *memStore) Update(_ context.Context, p *model.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.policies {
		if existing.ID == p.ID {
			s.policies[i] = p
			return nil
		}
	}
	return repository.ErrNotFound
}

func (s *memStore) Deactivate(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.policies {
		if p.ID == id {
			p.IsActive = false
			return nil
		}
	}
	return repository.ErrNotFound
}

type fixedLineage struct {
	lineage *model.WardLineage
	calls   int
}

func (f *fixedLineage) GetLineage(_ context.Context, _ uuid.UUID) (*model.WardLineage, error) {
	f.calls++
	return f.lineage, nil
}

func TestGetEffectivePolicy_Precedence(t *testing.T) {
	ctx := context.Background()
	wardID, scheduleID := uuid.New(), uuid.New()

	store := &memStore{}
	scheduleP := store.add(model.ScopeSchedule, &scheduleID, "schedule")
	wardP := store.add(model.ScopeWard, &wardID, "ward")
	globalP := store.add(model.ScopeGlobal, nil, "global")

	cache := NewCache()
	r := NewResolver(store, nil, cache, false)
	svc := NewService(store, cache)

	got, err := r.GetEffectivePolicy(ctx, &wardID, &scheduleID)
	require.NoError(t, err)
	assert.Equal(t, "schedule", got.Name)

	require.NoError(t, svc.Deactivate(ctx, scheduleP.ID))
	got, err = r.GetEffectivePolicy(ctx, &wardID, &scheduleID)
	require.NoError(t, err)
	assert.Equal(t, "ward", got.Name)

	require.NoError(t, svc.Deactivate(ctx, wardP.ID))
	got, err = r.GetEffectivePolicy(ctx, &wardID, &scheduleID)
	require.NoError(t, err)
	assert.Equal(t, "global", got.Name)

	require.NoError(t, svc.Deactivate(ctx, globalP.ID))
	got, err = r.GetEffectivePolicy(ctx, &wardID, &scheduleID)
	require.NoError(t, err)
	assert.Equal(t, "default", got.Name)
	assert.Equal(t, model.DefaultPolicy().Weights, got.Weights)
	assert.NotEmpty(t, got.Substitution)
}

func TestGetEffectivePolicy_NewestWithinScope(t *testing.T) {
	wardID := uuid.New()
	store := &memStore{}
	store.add(model.ScopeWard, &wardID, "older")
	store.add(model.ScopeWard, &wardID, "newer")

	got, err := NewResolver(store, nil, nil, false).GetEffectivePolicy(context.Background(), &wardID, nil)

	require.NoError(t, err)
	assert.Equal(t, "newer", got.Name)
}

func TestGetEffectivePolicy_NoInputsUsesGlobal(t *testing.T) {
	store := &memStore{}
	store.add(model.ScopeGlobal, nil, "global")

	got, err := NewResolver(store, nil, nil, false).GetEffectivePolicy(context.Background(), nil, nil)

	require.NoError(t, err)
	assert.Equal(t, "global", got.Name)
	assert.Equal(t, 1, store.calls)
}

func TestGetEffectivePolicy_Hierarchy(t *testing.T) {
	wardID, hospitalID, trustID := uuid.New(), uuid.New(), uuid.New()
	lineage := &fixedLineage{lineage: &model.WardLineage{WardID: wardID, HospitalID: hospitalID, TrustID: trustID}}

	tests := []struct {
		name    string
		enabled bool
		seed    func(s *memStore)
		want    string
	}{
		{
			name:    "开启层级时命中医院策略",
			enabled: true,
			seed: func(s *memStore) {
				s.add(model.ScopeHospital, &hospitalID, "hospital")
				s.add(model.ScopeTrust, &trustID, "trust")
				s.add(model.ScopeGlobal, nil, "global")
			},
			want: "hospital",
		},
		{
			name:    "医院未配置时向上到集团",
			enabled: true,
			seed: func(s *memStore) {
				s.add(model.ScopeTrust, &trustID, "trust")
				s.add(model.ScopeGlobal, nil, "global")
			},
			want: "trust",
		},
		{
			name:    "关闭层级时跳过组织链",
			enabled: false,
			seed: func(s *memStore) {
				s.add(model.ScopeHospital, &hospitalID, "hospital")
				s.add(model.ScopeGlobal, nil, "global")
			},
			want: "global",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &memStore{}
			tt.seed(store)

			got, err := NewResolver(store, lineage, nil, tt.enabled).GetEffectivePolicy(context.Background(), &wardID, nil)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Name)
		})
	}
}

func TestGetEffectivePolicy_LineageLoadedOnlyWhenReached(t *testing.T) {
	wardID := uuid.New()
	lineage := &fixedLineage{lineage: &model.WardLineage{WardID: wardID, HospitalID: uuid.New(), TrustID: uuid.New()}}
	store := &memStore{}
	store.add(model.ScopeWard, &wardID, "ward")

	_, err := NewResolver(store, lineage, nil, true).GetEffectivePolicy(context.Background(), &wardID, nil)

	require.NoError(t, err)
	assert.Equal(t, 0, lineage.calls)
}

func TestGetEffectivePolicy_CacheAndInvalidation(t *testing.T) {
	ctx := context.Background()
	wardID := uuid.New()
	store := &memStore{}
	store.add(model.ScopeWard, &wardID, "ward")

	cache := NewCache()
	r := NewResolver(store, nil, cache, false)

	_, err := r.GetEffectivePolicy(ctx, &wardID, nil)
	require.NoError(t, err)
	first := store.calls

	got, err := r.GetEffectivePolicy(ctx, &wardID, nil)
	require.NoError(t, err)
	assert.Equal(t, first, store.calls, "第二次应命中缓存")
	assert.Equal(t, 1, cache.Len())

	t.Run("返回副本", func(t *testing.T) {
		got.Substitution["HCA"] = []string{"X"}
		again, err := r.GetEffectivePolicy(ctx, &wardID, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"RN"}, again.Substitution["HCA"])
	})

	t.Run("写入后整体失效", func(t *testing.T) {
		newer := model.DefaultPolicy()
		newer.Name = "ward-v2"
		newer.Scope = model.ScopeWard
		newer.EntityID = &wardID

		_, err := NewService(store, cache).Create(ctx, newer)
		require.NoError(t, err)
		assert.Equal(t, 0, cache.Len())

		got, err := r.GetEffectivePolicy(ctx, &wardID, nil)
		require.NoError(t, err)
		assert.Equal(t, "ward-v2", got.Name)
	})
}

func TestGetEffectivePolicy_EmptySubstituteListsStayArrays(t *testing.T) {
	store := &memStore{}
	global := store.add(model.ScopeGlobal, nil, "global")
	global.Substitution = map[string][]string{"RN": {}}

	got, err := NewResolver(store, nil, nil, false).GetEffectivePolicy(context.Background(), nil, nil)
	require.NoError(t, err)

	raw, err := json.Marshal(got.Substitution)
	require.NoError(t, err)
	assert.JSONEq(t, `{"RN":[]}`, string(raw))
}

// blockingStore 在 release 关闭前阻塞，ctx 取消时返回取消错误
type blockingStore struct {
	entered chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (s *blockingStore) FindActive(ctx context.Context, _ model.PolicyScope, _ *uuid.UUID) (*model.Policy, error) {
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first {
		close(s.entered)
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.release:
	}
	p := model.DefaultPolicy()
	p.Name = "global"
	return p, nil
}

func TestGetEffectivePolicy_SharedFillSurvivesCallerCancel(t *testing.T) {
	store := &blockingStore{entered: make(chan struct{}), release: make(chan struct{})}
	r := NewResolver(store, nil, nil, false)

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := r.GetEffectivePolicy(leaderCtx, nil, nil)
		leaderErr <- err
	}()
	<-store.entered

	cancel()
	assert.ErrorIs(t, <-leaderErr, context.Canceled)

	// 解析仍在进行，后到的调用方加入同一次解析
	followerDone := make(chan struct{})
	var got *model.Policy
	var err error
	go func() {
		defer close(followerDone)
		got, err = r.GetEffectivePolicy(context.Background(), nil, nil)
	}()
	time.Sleep(20 * time.Millisecond)
	close(store.release)
	<-followerDone

	require.NoError(t, err)
	assert.Equal(t, "global", got.Name)
	store.mu.Lock()
	assert.Equal(t, 1, store.calls)
	store.mu.Unlock()
	assert.Equal(t, 1, r.Cache().Len())
}

func TestCache_StalePutDropped(t *testing.T) {
	c := NewCache()
	k := keyOf(nil, nil)
	gen := c.currentGeneration()

	c.InvalidateAll()

	assert.False(t, c.put(k, model.DefaultPolicy(), gen))
	assert.Equal(t, 0, c.Len())
	assert.True(t, c.put(k, model.DefaultPolicy(), c.currentGeneration()))
}

func TestGetEffectivePolicy_StoreErrorPropagates(t *testing.T) {
	wardID := uuid.New()
	store := &memStore{err: errors.New("connection refused")}
	cache := NewCache()

	_, err := NewResolver(store, nil, cache, false).GetEffectivePolicy(context.Background(), &wardID, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, 0, cache.Len())
}

func TestService_Validation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(&memStore{}, NewCache())

	t.Run("病区作用域缺少实体", func(t *testing.T) {
		p := model.DefaultPolicy()
		p.Scope = model.ScopeWard
		_, err := svc.Create(ctx, p)
		assert.True(t, apperrors.Is(err, apperrors.CodeInvalidInput))
	})

	t.Run("停用不存在的策略", func(t *testing.T) {
		err := svc.Deactivate(ctx, uuid.New())
		assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	})

	t.Run("更新不存在的策略", func(t *testing.T) {
		_, err := svc.Update(ctx, uuid.New(), model.DefaultPolicy())
		assert.True(t, apperrors.Is(err, apperrors.CodeNotFound))
	})
}
