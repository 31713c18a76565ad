package domain

import (
	"time"
)

// Client type tags understood by the CRM.
const (
	ClientTypeLegalEntity    = 0
	ClientTypeSoleProprietor = 1
	ClientTypeNaturalPerson  = 2
)

// ContactPerson is the person the CRM should attach to a new deal.
type ContactPerson struct {
	Name  string `json:"name" validate:"required,max=255"`
	Phone string `json:"phone,omitempty" validate:"omitempty,phone"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
}

// Client is the counterparty a deal is created for.  FaceID references an
// existing party on the CRM side and short-circuits creation.
type Client struct {
	FaceID     string `json:"face_id,omitempty"`
	INN        string `json:"inn,omitempty" validate:"omitempty,inn"`
	KPP        string `json:"kpp,omitempty" validate:"omitempty,kpp"`
	Name       string `json:"name" validate:"required,max=255"`
	ClientType []int  `json:"client_type,omitempty"`
}

// Nomenclature is a single line item on a deal.
type Nomenclature struct {
	Code  string  `json:"code" validate:"required,max=50"`
	Price float64 `json:"price" validate:"required,gt=0"`
	Count int     `json:"count" validate:"required,gt=0"`
}

type CreateDealRequest struct {
	Regulation       int                    `json:"regulation" validate:"required,gt=0"`
	Responsible      string                 `json:"responsible,omitempty"`
	Client           *Client                `json:"client,omitempty"`
	ContactPerson    *ContactPerson         `json:"contact_person,omitempty"`
	Note             string                 `json:"note,omitempty" validate:"max=1000"`
	Source           *int                   `json:"source,omitempty"`
	Notify           bool                   `json:"notify"`
	UseRules         bool                   `json:"use_rules"`
	UserConditions   map[string]string      `json:"user_conditions,omitempty"`
	Nomenclatures    []Nomenclature         `json:"nomenclatures,omitempty" validate:"omitempty,dive"`
	AdditionalFields map[string]interface{} `json:"additional_fields,omitempty"`
}

// DealResponse is what callers get back after a deal has been created.  State
// and Source stay null when the CRM omits them.
type DealResponse struct {
	DocumentID    int                    `json:"document_id"`
	UUID          string                 `json:"uuid"`
	Regulation    int                    `json:"regulation"`
	Client        map[string]interface{} `json:"client,omitempty"`
	ContactPerson map[string]interface{} `json:"contact_person,omitempty"`
	Note          string                 `json:"note,omitempty"`
	State         *string                `json:"state"`
	Source        *int                   `json:"source"`
	CreatedAt     time.Time              `json:"created_at"`
}

// ThemeInfo is the decoded reply of the CRM's theme-by-name lookup.  The CRM
// does not tag these values, so they stay opaque; all four are null when the
// theme is unknown.
type ThemeInfo struct {
	ThemeID    interface{} `json:"theme_id"`
	ThemeName  interface{} `json:"theme_name"`
	Error      interface{} `json:"error"`
	Regulation interface{} `json:"regulation"`
}
