package model

import (
	"fmt"

	"github.com/google/uuid"
)

// PolicyScope 策略作用域，由窄到宽排列
type PolicyScope string

const (
	ScopeSchedule PolicyScope = "schedule"
	ScopeWard     PolicyScope = "ward"
	ScopeHospital PolicyScope = "hospital"
	ScopeTrust    PolicyScope = "trust"
	ScopeGlobal   PolicyScope = "global"
)

// Valid 作用域是否合法
func (s PolicyScope) Valid() bool {
	switch s {
	case ScopeSchedule, ScopeWard, ScopeHospital, ScopeTrust, ScopeGlobal:
		return true
	}
	return false
}

// Weights 目标函数权重
type Weights struct {
	UnmetDemand  float64 `json:"unmetDemand" yaml:"unmet_demand"`
	Overtime     float64 `json:"overtime" yaml:"overtime"`
	Fairness     float64 `json:"fairness" yaml:"fairness"`
	Preference   float64 `json:"preference" yaml:"preference"`
	Substitution float64 `json:"substitution" yaml:"substitution"`
	Flex         float64 `json:"flex" yaml:"flex"`
}

// Limits 每周上限
type Limits struct {
	OvertimeCapPerWeek  float64 `json:"overtimeCapPerWeek" yaml:"overtime_cap_per_week"`
	FlexShiftCapPerWeek int     `json:"flexShiftCapPerWeek" yaml:"flex_shift_cap_per_week"`
}

// Toggles 功能开关
type Toggles struct {
	WardFlexEnabled     bool `json:"wardFlexEnabled" yaml:"ward_flex_enabled"`
	SubstitutionEnabled bool `json:"substitutionEnabled" yaml:"substitution_enabled"`
}

// Policy 作用域化的求解配置
type Policy struct {
	BaseModel
	Name         string              `json:"name" db:"name"`
	Scope        PolicyScope         `json:"scope" db:"scope"`
	EntityID     *uuid.UUID          `json:"entityId,omitempty" db:"entity_id"`
	Weights      Weights             `json:"weights" db:"weights"`
	Limits       Limits              `json:"limits" db:"limits"`
	Toggles      Toggles             `json:"toggles" db:"toggles"`
	Substitution map[string][]string `json:"substitution" db:"substitution"` // 技能 -> 可替代技能（有序）
	TimeBudgetMs int                 `json:"timeBudgetMs" db:"time_budget_ms"`
	IsActive     bool                `json:"isActive" db:"is_active"`
}

// DefaultPolicy 没有任何配置命中时使用的内置策略
func DefaultPolicy() *Policy {
	return &Policy{
		Name:  "default",
		Scope: ScopeGlobal,
		Weights: Weights{
			UnmetDemand:  1000,
			Overtime:     10,
			Fairness:     5,
			Preference:   2,
			Substitution: 3,
			Flex:         4,
		},
		Limits: Limits{
			OvertimeCapPerWeek:  8,
			FlexShiftCapPerWeek: 2,
		},
		Toggles: Toggles{
			WardFlexEnabled:     false,
			SubstitutionEnabled: true,
		},
		Substitution: map[string][]string{
			"HCA": {"RN"},
			"RN":  {"SeniorRN"},
		},
		TimeBudgetMs: 300000,
		IsActive:     true,
	}
}

// Validate 校验作用域与实体的对应关系
func (p *Policy) Validate() error {
	if !p.Scope.Valid() {
		return fmt.Errorf("未知作用域 %q", p.Scope)
	}
	if p.Scope == ScopeGlobal && p.EntityID != nil {
		return fmt.Errorf("global 作用域不能关联实体")
	}
	if p.Scope != ScopeGlobal && (p.EntityID == nil || *p.EntityID == uuid.Nil) {
		return fmt.Errorf("%s 作用域必须关联实体", p.Scope)
	}
	if p.TimeBudgetMs < 0 {
		return fmt.Errorf("timeBudgetMs 不能为负数")
	}
	return nil
}

// Clone 深拷贝，缓存中的策略不会被调用方修改
func (p *Policy) Clone() *Policy {
	if p == nil {
		return nil
	}
	c := *p
	if p.EntityID != nil {
		id := *p.EntityID
		c.EntityID = &id
	}
	c.Substitution = CopySubstitution(p.Substitution)
	return &c
}

// CopySubstitution 复制替代表，nil 表与 nil 列表都转为空值
func CopySubstitution(src map[string][]string) map[string][]string {
	out := make(map[string][]string, len(src))
	for skill, subs := range src {
		out[skill] = append(make([]string, 0, len(subs)), subs...)
	}
	return out
}
