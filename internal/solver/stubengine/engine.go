// Package stubengine 本地贪心求解引擎，实现与远程引擎相同的 RPC 接口，用于开发与场景测试
package stubengine

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/paiban/rota/internal/solver"
	"github.com/paiban/rota/pkg/model"
)

// Engine 贪心求解引擎
type Engine struct {
	// Delay 每次求解前的人为延迟，用于模拟慢引擎
	Delay time.Duration
}

// New 创建引擎
func New() *Engine {
	return &Engine{}
}

// slotKey 某日某时段
type slotKey struct {
	date string
	slot string
}

// staffDay 某员工某日
type staffDay struct {
	staff uuid.UUID
	date  string
}

// UnknownSlotError 需求时段没有对应班次，属于结构性不可解
type UnknownSlotError struct {
	Slot string
}

func (e *UnknownSlotError) Error() string {
	return "没有时段为 " + e.Slot + " 的班次"
}

// state 求解过程中的工作量跟踪
type state struct {
	req         *solver.Request
	shiftBySlot map[string]model.ShiftType
	used        map[staffDay][]string
	placed      map[slotKey][]uuid.UUID
	hours       map[uuid.UUID]float64
	nights      map[uuid.UUID]int
	unavailable map[staffDay][]string
	avoid       map[staffDay]map[string]bool
	assignments []solver.AssignmentSlot
}

// Solve 贪心求解，events 非空时按修复模式处理
func (e *Engine) Solve(ctx context.Context, req *solver.Request, events []model.DisruptionEvent) (*solver.Response, error) {
	start := time.Now()

	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s := newState(req)
	demand := applyDemandChanges(req.Demand, events)
	for _, d := range demand {
		if _, ok := s.shiftBySlot[d.Slot]; !ok {
			return nil, &UnknownSlotError{Slot: d.Slot}
		}
	}
	s.markUnavailable(events)
	s.placeLocks()

	// 日期早的需求先排
	sort.SliceStable(demand, func(i, j int) bool {
		return demand[i].Date < demand[j].Date
	})

	diag := solver.Diagnostics{Unfilled: []solver.Unfilled{}, Notes: []string{}}
	for _, d := range demand {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if missing := s.fill(d); missing > 0 {
			diag.Unfilled = append(diag.Unfilled, solver.Unfilled{Date: d.Date, Slot: d.Slot, Skill: d.Skill, Missing: missing})
		}
	}
	if len(diag.Unfilled) > 0 {
		diag.Infeasible = true
		diag.Notes = append(diag.Notes, "存在无法满足的需求")
	}
	if len(events) > 0 {
		diag.Notes = append(diag.Notes, "修复模式")
	}

	return &solver.Response{
		SolutionID:  uuid.NewString(),
		Assignments: s.assignments,
		Metrics: solver.Metrics{
			HardViolations:         len(diag.Unfilled),
			SolveMs:                time.Since(start).Milliseconds(),
			FairnessNightStd:       s.nightStd(),
			PreferenceSatisfaction: s.preferenceSatisfaction(),
		},
		Diagnostics: diag,
	}, nil
}

func newState(req *solver.Request) *state {
	s := &state{
		req:         req,
		shiftBySlot: make(map[string]model.ShiftType),
		used:        make(map[staffDay][]string),
		placed:      make(map[slotKey][]uuid.UUID),
		hours:       make(map[uuid.UUID]float64),
		nights:      make(map[uuid.UUID]int),
		unavailable: make(map[staffDay][]string),
		avoid:       make(map[staffDay]map[string]bool),
		assignments: []solver.AssignmentSlot{},
	}
	for _, st := range req.ShiftTypes {
		if _, ok := s.shiftBySlot[st.Slot]; !ok {
			s.shiftBySlot[st.Slot] = st
		}
	}
	for _, p := range req.Preferences {
		if p.Kind != model.PreferenceAvoid {
			continue
		}
		k := staffDay{p.StaffID, p.Date}
		if s.avoid[k] == nil {
			s.avoid[k] = make(map[string]bool)
		}
		s.avoid[k][p.Slot] = true
	}
	return s
}

// applyDemandChanges 修复事件中的需求变更覆盖原需求，payload 需包含 skill 与 required
func applyDemandChanges(demand []solver.DemandSlot, events []model.DisruptionEvent) []solver.DemandSlot {
	out := append([]solver.DemandSlot(nil), demand...)
	for _, ev := range events {
		if ev.Type != model.DisruptionDemandChange {
			continue
		}
		skill, _ := ev.Payload["skill"].(string)
		required, ok := ev.Payload["required"].(float64)
		if skill == "" || !ok {
			continue
		}
		replaced := false
		for i := range out {
			if out[i].Date == ev.Date && out[i].Slot == ev.Slot && out[i].Skill == skill {
				out[i].Required = int(required)
				replaced = true
			}
		}
		if !replaced {
			out = append(out, solver.DemandSlot{Date: ev.Date, Slot: ev.Slot, Skill: skill, Required: int(required)})
		}
	}
	return out
}

// markUnavailable 病假事件未指定时段时整天不可用
func (s *state) markUnavailable(events []model.DisruptionEvent) {
	for _, ev := range events {
		if ev.Type != model.DisruptionSickness || ev.StaffID == nil {
			continue
		}
		k := staffDay{*ev.StaffID, ev.Date}
		s.unavailable[k] = append(s.unavailable[k], ev.Slot)
	}
}

func (s *state) isUnavailable(staff uuid.UUID, date, slot string) bool {
	for _, sl := range s.unavailable[staffDay{staff, date}] {
		if sl == "" || sl == slot {
			return true
		}
	}
	return false
}

func (s *state) placeLocks() {
	for _, l := range s.req.Locks {
		shiftID := s.shiftBySlot[l.Slot].ID
		if l.ShiftTypeID != nil {
			shiftID = *l.ShiftTypeID
		}
		s.place(l.StaffID, l.WardID, l.Date, l.Slot, shiftID)
	}
}

func (s *state) place(staff, ward uuid.UUID, date, slot string, shiftTypeID uuid.UUID) {
	s.assignments = append(s.assignments, solver.AssignmentSlot{
		StaffID: staff, ShiftTypeID: shiftTypeID, WardID: ward, Date: date, Slot: slot,
	})
	s.used[staffDay{staff, date}] = append(s.used[staffDay{staff, date}], slot)
	s.placed[slotKey{date, slot}] = append(s.placed[slotKey{date, slot}], staff)

	st := s.shiftBySlot[slot]
	s.hours[staff] += st.DurationHours()
	if st.IsNight {
		s.nights[staff]++
	}
}

// fill 为一条需求分配人员，返回缺口人数
func (s *state) fill(d solver.DemandSlot) int {
	need := d.Required
	for _, id := range s.placed[slotKey{d.Date, d.Slot}] {
		if m := s.member(id); m != nil && hasSkill(m.Skills, d.Skill) {
			need--
		}
	}
	if need <= 0 {
		return 0
	}

	shift := s.shiftBySlot[d.Slot]
	for _, c := range s.candidates(d) {
		if need == 0 {
			break
		}
		s.place(c.ID, s.req.Ward.ID, d.Date, d.Slot, shift.ID)
		need--
	}
	return need
}

type candidate struct {
	*solver.StaffMember
	substitute bool
	avoids     bool
}

// candidates 技能完全匹配者优先，其次工作量少者，回避该时段者最后
func (s *state) candidates(d solver.DemandSlot) []candidate {
	var out []candidate
	for i := range s.req.Staff {
		m := &s.req.Staff[i]
		exact := hasSkill(m.Skills, d.Skill)
		if !exact && !s.canSubstitute(m, d.Skill) {
			continue
		}
		if s.isUnavailable(m.ID, d.Date, d.Slot) || s.busy(m.ID, d.Date, d.Slot) {
			continue
		}
		out = append(out, candidate{
			StaffMember: m,
			substitute:  !exact,
			avoids:      s.avoid[staffDay{m.ID, d.Date}][d.Slot],
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].substitute != out[j].substitute {
			return !out[i].substitute
		}
		if out[i].avoids != out[j].avoids {
			return !out[i].avoids
		}
		return s.hours[out[i].ID] < s.hours[out[j].ID]
	})
	return out
}

func (s *state) busy(staff uuid.UUID, date, slot string) bool {
	for _, sl := range s.used[staffDay{staff, date}] {
		if s.req.Rules.OneShiftPerDay || sl == slot {
			return true
		}
	}
	return false
}

func (s *state) canSubstitute(m *solver.StaffMember, skill string) bool {
	if !s.req.Toggles.SubstitutionEnabled {
		return false
	}
	for _, sub := range s.req.Substitution[skill] {
		if hasSkill(m.Skills, sub) {
			return true
		}
	}
	return false
}

func (s *state) member(id uuid.UUID) *solver.StaffMember {
	for i := range s.req.Staff {
		if s.req.Staff[i].ID == id {
			return &s.req.Staff[i]
		}
	}
	return nil
}

// nightStd 全体员工夜班数的标准差
func (s *state) nightStd() float64 {
	n := len(s.req.Staff)
	if n == 0 {
		return 0
	}
	var sum float64
	for _, m := range s.req.Staff {
		sum += float64(s.nights[m.ID])
	}
	mean := sum / float64(n)
	var variance float64
	for _, m := range s.req.Staff {
		diff := float64(s.nights[m.ID]) - mean
		variance += diff * diff
	}
	return math.Sqrt(variance / float64(n))
}

// preferenceSatisfaction 满足的偏好占比，没有偏好时为 1
func (s *state) preferenceSatisfaction() float64 {
	if len(s.req.Preferences) == 0 {
		return 1
	}
	satisfied := 0
	for _, p := range s.req.Preferences {
		worked := false
		for _, sl := range s.used[staffDay{p.StaffID, p.Date}] {
			if sl == p.Slot {
				worked = true
				break
			}
		}
		if worked == (p.Kind == model.PreferenceWant) {
			satisfied++
		}
	}
	return float64(satisfied) / float64(len(s.req.Preferences))
}

func hasSkill(skills []string, skill string) bool {
	for _, sk := range skills {
		if sk == skill {
			return true
		}
	}
	return false
}
