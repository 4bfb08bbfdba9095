package model

import "github.com/google/uuid"

// Skill 技能
type Skill struct {
	ID   uuid.UUID `json:"id" db:"id"`
	Code string    `json:"code" db:"code"` // GeneralCare/HCA/RN/SeniorRN...
	Name string    `json:"name" db:"name"`
}

// Staff 员工
type Staff struct {
	BaseModel
	Name          string   `json:"name" db:"name"`
	Role          string   `json:"role" db:"role"` // 组织角色，如 nurse/hca/doctor
	ContractHours float64  `json:"contractHours" db:"contract_hours"`
	IsActive      bool     `json:"isActive" db:"is_active"`
	Skills        []string `json:"skills" db:"-"`
}

// HasSkill 检查员工是否具备技能
func (s *Staff) HasSkill(skill string) bool {
	for _, sk := range s.Skills {
		if sk == skill {
			return true
		}
	}
	return false
}

// PreferenceKind 偏好类型
type PreferenceKind string

const (
	PreferenceWant  PreferenceKind = "prefer"
	PreferenceAvoid PreferenceKind = "avoid"
)

// Preference 员工对某日某时段的偏好，属于软约束
type Preference struct {
	ID      uuid.UUID      `json:"id" db:"id"`
	StaffID uuid.UUID      `json:"staffId" db:"staff_id"`
	Date    string         `json:"date" db:"date"`
	Slot    string         `json:"slot" db:"slot"`
	Kind    PreferenceKind `json:"kind" db:"kind"`
	Weight  int            `json:"weight" db:"weight"`
}
