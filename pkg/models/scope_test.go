package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupField_Aliases(t *testing.T) {
	tests := []struct {
		name     string
		expected ScopeField
	}{
		{"title", FieldTitle},
		{"Project_Title", FieldTitle},
		{"  project_description ", FieldDescription},
		{"budget", FieldBudgetRange},
		{"BUDGET_RANGE", FieldBudgetRange},
		{"location", FieldZipCode},
		{"zip", FieldZipCode},
		{"project_summary", FieldSummary},
		{"conversation_summary", FieldSummary},
		{"group_bidding_preference", FieldGroupBiddingPreference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, ok := LookupField(tt.name)
			assert.True(t, ok)
			assert.Equal(t, tt.expected, f)
		})
	}
}

func TestLookupField_Unrecognized(t *testing.T) {
	for _, name := range []string{"preferred_contact_time", "", "titles", "pet_friendly"} {
		_, ok := LookupField(name)
		assert.False(t, ok, name)
	}
}

func TestScopeRecord_SetAndValue(t *testing.T) {
	r := &ScopeRecord{Status: ScopeStatusNew}

	assert.Nil(t, r.Value(FieldTitle))
	assert.False(t, r.IsSet(FieldBudgetRange))

	r.SetText(FieldTitle, "Kitchen remodel")
	r.SetText(FieldZipCode, "94110")
	r.SetBool(FieldGroupBiddingPreference, true)
	r.SetText(FieldStatus, "confirming")

	assert.Equal(t, "Kitchen remodel", r.Value(FieldTitle))
	assert.Equal(t, "94110", *r.ZipCode)
	assert.Equal(t, true, r.Value(FieldGroupBiddingPreference))
	assert.Equal(t, ScopeStatusConfirming, r.Status)
	assert.Nil(t, r.Description, "other fields stay unset")

	// Mismatched setters are ignored.
	r.SetBool(FieldTitle, false)
	r.SetText(FieldGroupBiddingPreference, "no")
	assert.Equal(t, "Kitchen remodel", r.Value(FieldTitle))
	assert.Equal(t, true, r.Value(FieldGroupBiddingPreference))
}

func TestScopeStatus_IsActive(t *testing.T) {
	assert.True(t, ScopeStatusNew.IsActive())
	assert.True(t, ScopeStatusConfirming.IsActive())
	assert.False(t, ScopeStatusFinalized.IsActive())
}
