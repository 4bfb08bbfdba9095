package policy

import (
	"sync"

	"github.com/google/uuid"
	"github.com/paiban/rota/pkg/model"
)

// cacheKey 以 (病区, 排班) 精确组合为键，缺省值用 uuid.Nil 表示
type cacheKey struct {
	ward     uuid.UUID
	schedule uuid.UUID
}

func keyOf(wardID, scheduleID *uuid.UUID) cacheKey {
	var k cacheKey
	if wardID != nil {
		k.ward = *wardID
	}
	if scheduleID != nil {
		k.schedule = *scheduleID
	}
	return k
}

// Cache 有效策略缓存
//
// 任何策略写入都会调用 InvalidateAll 清空整个缓存。读者与写者之间没有协调，
// 失效前已开始的解析仍可能返回旧策略；generation 只保证这类结果不会在失效后写回缓存。
type Cache struct {
	mu         sync.RWMutex
	entries    map[cacheKey]*model.Policy
	generation uint64
}

// NewCache 创建缓存
func NewCache() *Cache {
	return &Cache{entries: make(map[cacheKey]*model.Policy)}
}

func (c *Cache) get(k cacheKey) (*model.Policy, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.entries[k]
	return p, ok
}

func (c *Cache) currentGeneration() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}

// put 写入缓存，gen 与当前代数不一致时丢弃
func (c *Cache) put(k cacheKey, p *model.Policy, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return false
	}
	c.entries[k] = p
	return true
}

// InvalidateAll 清空全部缓存
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[cacheKey]*model.Policy)
	c.generation++
	c.mu.Unlock()
}

// Len 缓存条目数
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
