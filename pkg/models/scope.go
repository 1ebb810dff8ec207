package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// Scope Status
// ============================================================================

// ScopeStatus is the lifecycle status stored in project_scopes.status.
type ScopeStatus string

const (
	ScopeStatusNew        ScopeStatus = "new"
	ScopeStatusConfirming ScopeStatus = "confirming"
	ScopeStatusFinalized  ScopeStatus = "finalized"
)

// IsActive reports whether a scope can still receive facts through the
// create-if-absent path. Any status other than finalized is active.
func (s ScopeStatus) IsActive() bool {
	return s != ScopeStatusFinalized
}

// ============================================================================
// Scope Fields
// ============================================================================

// ScopeField names a recognized ScopeRecord column.
type ScopeField string

const (
	FieldTitle                  ScopeField = "title"
	FieldDescription            ScopeField = "description"
	FieldBudgetRange            ScopeField = "budget_range"
	FieldTimeline               ScopeField = "timeline"
	FieldZipCode                ScopeField = "zip_code"
	FieldContractorNotes        ScopeField = "contractor_notes"
	FieldGroupBiddingPreference ScopeField = "group_bidding_preference"
	FieldImageURL               ScopeField = "image_url"
	FieldStatus                 ScopeField = "status"
	FieldSummary                ScopeField = "summary"
)

// ScopeFields lists every recognized field in column order.
var ScopeFields = []ScopeField{
	FieldTitle,
	FieldDescription,
	FieldBudgetRange,
	FieldTimeline,
	FieldZipCode,
	FieldContractorNotes,
	FieldGroupBiddingPreference,
	FieldImageURL,
	FieldStatus,
	FieldSummary,
}

// fieldAliases maps normalized fact names to fields.
var fieldAliases = map[string]ScopeField{
	"title":                    FieldTitle,
	"project_title":            FieldTitle,
	"description":              FieldDescription,
	"project_description":      FieldDescription,
	"budget_range":             FieldBudgetRange,
	"budget":                   FieldBudgetRange,
	"timeline":                 FieldTimeline,
	"zip_code":                 FieldZipCode,
	"zip":                      FieldZipCode,
	"location":                 FieldZipCode,
	"contractor_notes":         FieldContractorNotes,
	"group_bidding_preference": FieldGroupBiddingPreference,
	"image_url":                FieldImageURL,
	"status":                   FieldStatus,
	"summary":                  FieldSummary,
	"project_summary":          FieldSummary,
	"conversation_summary":     FieldSummary,
}

// NormalizeFactName trims and lower-cases a fact name.
func NormalizeFactName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// LookupField resolves a fact name (or alias) to a recognized field.
// Matching is case-insensitive and ignores surrounding whitespace.
func LookupField(name string) (ScopeField, bool) {
	f, ok := fieldAliases[NormalizeFactName(name)]
	return f, ok
}

// IsBoolean reports whether the field is stored as a boolean column.
func (f ScopeField) IsBoolean() bool {
	return f == FieldGroupBiddingPreference
}

// ============================================================================
// Scope Record
// ============================================================================

// MiscFacts holds facts that do not map to a ScopeRecord column, keyed by
// normalized fact name. Stored in project_scope_facts.
type MiscFacts map[string]any

// ScopeRecord is the durable representation of one homeowner project.
// Stored in project_scopes table. Unset fields are nil.
type ScopeRecord struct {
	ID                     uuid.UUID   `json:"project_scope_id"`
	OwnerID                string      `json:"owner_id"`
	Title                  *string     `json:"title,omitempty"`
	Description            *string     `json:"description,omitempty"`
	BudgetRange            *string     `json:"budget_range,omitempty"`
	Timeline               *string     `json:"timeline,omitempty"`
	ZipCode                *string     `json:"zip_code,omitempty"`
	ContractorNotes        *string     `json:"contractor_notes,omitempty"`
	GroupBiddingPreference *bool       `json:"group_bidding_preference,omitempty"`
	ImageURL               *string     `json:"image_url,omitempty"`
	Status                 ScopeStatus `json:"status"`
	Summary                *string     `json:"summary,omitempty"`
	CreatedAt              time.Time   `json:"created_at"`
	UpdatedAt              time.Time   `json:"updated_at"`

	// Populated by GetScope / GetLatestScope only.
	Misc   MiscFacts    `json:"misc_facts,omitempty"`
	Images []ImageAsset `json:"images,omitempty"`
}

// textField returns the storage slot of a text field, nil for the boolean and status fields.
func (r *ScopeRecord) textField(f ScopeField) **string {
	switch f {
	case FieldTitle:
		return &r.Title
	case FieldDescription:
		return &r.Description
	case FieldBudgetRange:
		return &r.BudgetRange
	case FieldTimeline:
		return &r.Timeline
	case FieldZipCode:
		return &r.ZipCode
	case FieldContractorNotes:
		return &r.ContractorNotes
	case FieldImageURL:
		return &r.ImageURL
	case FieldSummary:
		return &r.Summary
	default:
		return nil
	}
}

// SetText sets a text field. It is a no-op for non-text fields.
func (r *ScopeRecord) SetText(f ScopeField, v string) {
	if f == FieldStatus {
		r.Status = ScopeStatus(v)
		return
	}
	if p := r.textField(f); p != nil {
		*p = &v
	}
}

// SetBool sets a boolean field. It is a no-op for non-boolean fields.
func (r *ScopeRecord) SetBool(f ScopeField, v bool) {
	if f == FieldGroupBiddingPreference {
		r.GroupBiddingPreference = &v
	}
}

// Value returns the current value of f, or nil when unset.
func (r *ScopeRecord) Value(f ScopeField) any {
	switch f {
	case FieldGroupBiddingPreference:
		if r.GroupBiddingPreference == nil {
			return nil
		}
		return *r.GroupBiddingPreference
	case FieldStatus:
		return string(r.Status)
	}
	if p := r.textField(f); p != nil && *p != nil {
		return **p
	}
	return nil
}

// IsSet reports whether f holds a value.
func (r *ScopeRecord) IsSet(f ScopeField) bool {
	return r.Value(f) != nil
}
