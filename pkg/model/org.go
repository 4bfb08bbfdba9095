package model

import "github.com/google/uuid"

// Trust 医疗集团
type Trust struct {
	BaseModel
	Name string `json:"name" db:"name"`
	Code string `json:"code" db:"code"`
}

// Hospital 医院，隶属于 Trust
type Hospital struct {
	BaseModel
	TrustID uuid.UUID `json:"trustId" db:"trust_id"`
	Name    string    `json:"name" db:"name"`
	Code    string    `json:"code" db:"code"`
}

// Ward 病区，隶属于 Hospital
type Ward struct {
	BaseModel
	HospitalID uuid.UUID `json:"hospitalId" db:"hospital_id"`
	Name       string    `json:"name" db:"name"`
	Code       string    `json:"code" db:"code"`
}

// WardLineage 病区向上的组织链
type WardLineage struct {
	WardID     uuid.UUID `json:"wardId"`
	HospitalID uuid.UUID `json:"hospitalId"`
	TrustID    uuid.UUID `json:"trustId"`
}
