package solver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/paiban/rota/pkg/model"
)

// Rules 折叠后的病区规则
type Rules struct {
	MinRestHours         int  `json:"minRestHours"`
	MaxConsecutiveNights int  `json:"maxConsecutiveNights"`
	OneShiftPerDay       bool `json:"oneShiftPerDay"`
}

// DefaultRules 未配置规则时的默认值
func DefaultRules() Rules {
	return Rules{
		MinRestHours:         11,
		MaxConsecutiveNights: 4,
		OneShiftPerDay:       true,
	}
}

type ruleSetter func(r *Rules, value string) error

var ruleSetters = map[string]ruleSetter{
	"minresthours": func(r *Rules, v string) error {
		n, err := parseNonNegative(v)
		r.MinRestHours = pick(err, n, r.MinRestHours)
		return err
	},
	"maxconsecutivenights": func(r *Rules, v string) error {
		n, err := parseNonNegative(v)
		r.MaxConsecutiveNights = pick(err, n, r.MaxConsecutiveNights)
		return err
	},
	"oneshiftperday": func(r *Rules, v string) error {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err == nil {
			r.OneShiftPerDay = b
		}
		return err
	},
}

func parseNonNegative(v string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("不能为负数: %d", n)
	}
	return n, nil
}

func pick(err error, next, current int) int {
	if err != nil {
		return current
	}
	return next
}

// ruleKey 规则键不区分大小写，兼容 min_rest_hours 写法
func ruleKey(key string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(key), "_", ""))
}

// FoldRules 依次把规则集中的键值规则应用到默认值上，同一键后写覆盖先写
//
// 未知键和无法解析的值会被忽略并记录警告。
func FoldRules(sets []model.RuleSet, log *zerolog.Logger) Rules {
	rules := DefaultRules()
	for _, set := range sets {
		for _, rule := range set.Rules {
			setter, ok := ruleSetters[ruleKey(rule.Key)]
			if !ok {
				log.Warn().Str("rule_set", set.Name).Str("key", rule.Key).Msg("忽略未知规则")
				continue
			}
			if err := setter(&rules, rule.Value); err != nil {
				log.Warn().Err(err).Str("rule_set", set.Name).Str("key", rule.Key).Str("value", rule.Value).Msg("忽略无效规则值")
			}
		}
	}
	return rules
}
