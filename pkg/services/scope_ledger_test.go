package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/instabids/scope-engine/pkg/apperrors"
	"github.com/instabids/scope-engine/pkg/models"
)

type scopeLedgerTestContext struct {
	tx        *mockTxRunner
	scopeRepo *mockScopeRepo
	factRepo  *mockFactRepo
	imageRepo *mockImageRepo
	ledger    ScopeLedger
}

func setupScopeLedgerTest(t *testing.T) *scopeLedgerTestContext {
	t.Helper()
	tc := &scopeLedgerTestContext{
		tx:        &mockTxRunner{},
		scopeRepo: newMockScopeRepo(),
		factRepo:  newMockFactRepo(),
		imageRepo: &mockImageRepo{},
	}
	tc.ledger = NewScopeLedger(tc.tx, tc.scopeRepo, tc.factRepo, tc.imageRepo, time.Second, zap.NewNop())
	return tc
}

func TestResolveOwner(t *testing.T) {
	owner, generated := ResolveOwner("owner-1")
	assert.Equal(t, "owner-1", owner)
	assert.False(t, generated)

	for _, in := range []string{"", "   "} {
		owner, generated = ResolveOwner(in)
		assert.True(t, generated)
		_, err := uuid.Parse(owner)
		assert.NoError(t, err)
	}

	a, _ := ResolveOwner("")
	b, _ := ResolveOwner("")
	assert.NotEqual(t, a, b)
}

func TestScopeLedger_SubmitFact_CreatesScope(t *testing.T) {
	tc := setupScopeLedgerTest(t)

	res, err := tc.ledger.SubmitFact(context.Background(), &SubmitFactRequest{
		OwnerID:   "owner-1",
		FactName:  "title",
		FactValue: "Kitchen remodel",
	})
	require.NoError(t, err)

	assert.True(t, res.CreatedNewScope)
	assert.Equal(t, models.FieldTitle, res.Field)
	assert.False(t, res.Misc)
	assert.Equal(t, []string{"owner-1"}, tc.scopeRepo.lockedOwners)

	stored := tc.scopeRepo.get(res.ScopeID)
	require.NotNil(t, stored)
	assert.Equal(t, "owner-1", stored.OwnerID)
	assert.Equal(t, models.ScopeStatusNew, stored.Status)
	require.NotNil(t, stored.Title)
	assert.Equal(t, "Kitchen remodel", *stored.Title)
	assert.Nil(t, stored.Description)
	assert.Equal(t, 0, tc.scopeRepo.updateCalls)
}

func TestScopeLedger_SubmitFact_ReusesActiveScope(t *testing.T) {
	tc := setupScopeLedgerTest(t)
	active := tc.scopeRepo.seed("owner-1", models.ScopeStatusNew)

	res, err := tc.ledger.SubmitFact(context.Background(), &SubmitFactRequest{
		OwnerID:   "owner-1",
		FactName:  "budget",
		FactValue: "$5k-$10k",
	})
	require.NoError(t, err)

	assert.False(t, res.CreatedNewScope)
	assert.Equal(t, active, res.ScopeID)
	assert.Equal(t, models.FieldBudgetRange, res.Field)
	assert.Equal(t, "$5k-$10k", *tc.scopeRepo.get(active).BudgetRange)
}

func TestScopeLedger_SubmitFact_FinalizedScopeIsNotReused(t *testing.T) {
	tc := setupScopeLedgerTest(t)
	finalized := tc.scopeRepo.seed("owner-1", models.ScopeStatusFinalized)

	res, err := tc.ledger.SubmitFact(context.Background(), &SubmitFactRequest{
		OwnerID:   "owner-1",
		FactName:  "title",
		FactValue: "Deck",
	})
	require.NoError(t, err)
	assert.True(t, res.CreatedNewScope)
	assert.NotEqual(t, finalized, res.ScopeID)
}

func TestScopeLedger_SubmitFact_NewProjectForcesCreation(t *testing.T) {
	tc := setupScopeLedgerTest(t)
	active := tc.scopeRepo.seed("owner-1", models.ScopeStatusNew)

	res, err := tc.ledger.SubmitFact(context.Background(), &SubmitFactRequest{
		OwnerID:    "owner-1",
		FactName:   "title",
		FactValue:  "Second project",
		NewProject: true,
	})
	require.NoError(t, err)
	assert.True(t, res.CreatedNewScope)
	assert.NotEqual(t, active, res.ScopeID)
	assert.Nil(t, tc.scopeRepo.get(active).Title)
}

func TestScopeLedger_SubmitFact_ExplicitScope(t *testing.T) {
	tc := setupScopeLedgerTest(t)
	id := tc.scopeRepo.seed("owner-1", models.ScopeStatusNew)

	res, err := tc.ledger.SubmitFact(context.Background(), &SubmitFactRequest{
		OwnerID:   "owner-1",
		ScopeID:   &id,
		FactName:  " Zip ",
		FactValue: 94107,
	})
	require.NoError(t, err)

	assert.False(t, res.CreatedNewScope)
	assert.Equal(t, id, res.ScopeID)
	assert.Equal(t, models.FieldZipCode, res.Field)
	assert.Equal(t, "94107", *tc.scopeRepo.get(id).ZipCode)
	assert.Empty(t, tc.scopeRepo.lockedOwners, "explicit scope does not take the owner lock")
}

func TestScopeLedger_SubmitFact_UnknownScope(t *testing.T) {
	tc := setupScopeLedgerTest(t)
	id := uuid.New()

	_, err := tc.ledger.SubmitFact(context.Background(), &SubmitFactRequest{
		OwnerID:   "owner-1",
		ScopeID:   &id,
		FactName:  "title",
		FactValue: "x",
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NotErrorIs(t, err, apperrors.ErrStorageUnavailable)
	assert.Equal(t, 0, tc.scopeRepo.createCalls)
}

func TestScopeLedger_SubmitFact_OtherOwner(t *testing.T) {
	tc := setupScopeLedgerTest(t)
	id := tc.scopeRepo.seed("owner-1", models.ScopeStatusNew)

	_, err := tc.ledger.SubmitFact(context.Background(), &SubmitFactRequest{
		OwnerID:   "owner-2",
		ScopeID:   &id,
		FactName:  "title",
		FactValue: "hijack",
	})
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
	assert.Nil(t, tc.scopeRepo.get(id).Title)
	assert.Equal(t, 0, tc.scopeRepo.updateCalls)
	assert.Equal(t, 1, tc.tx.rolledBack)
}

func TestScopeLedger_SubmitFact_MiscFact(t *testing.T) {
	tc := setupScopeLedgerTest(t)
	id := tc.scopeRepo.seed("owner-1", models.ScopeStatusNew)

	res, err := tc.ledger.SubmitFact(context.Background(), &SubmitFactRequest{
		OwnerID:   "owner-1",
		ScopeID:   &id,
		FactName:  "Preferred_Material",
		FactValue: "oak",
	})
	require.NoError(t, err)

	assert.True(t, res.Misc)
	assert.Equal(t, "preferred_material", res.FactName)
	assert.Empty(t, res.Field)
	assert.Equal(t, "oak", tc.factRepo.facts[id]["preferred_material"])
	assert.Equal(t, 0, tc.scopeRepo.updateCalls)
}

func TestScopeLedger_SubmitFact_MiscFactOnNewScope(t *testing.T) {
	tc := setupScopeLedgerTest(t)

	res, err := tc.ledger.SubmitFact(context.Background(), &SubmitFactRequest{
		OwnerID:   "owner-1",
		FactName:  "pets",
		FactValue: []any{"dog"},
	})
	require.NoError(t, err)

	assert.True(t, res.CreatedNewScope)
	assert.True(t, res.Misc)
	assert.Equal(t, []any{"dog"}, tc.factRepo.facts[res.ScopeID]["pets"])
}

func TestScopeLedger_SubmitFact_RepeatIsNoOp(t *testing.T) {
	tc := setupScopeLedgerTest(t)
	id := tc.scopeRepo.seed("owner-1", models.ScopeStatusNew)
	req := &SubmitFactRequest{OwnerID: "owner-1", ScopeID: &id, FactName: "timeline", FactValue: "ASAP"}

	first, err := tc.ledger.SubmitFact(context.Background(), req)
	require.NoError(t, err)
	updatedAt := tc.scopeRepo.get(id).UpdatedAt

	second, err := tc.ledger.SubmitFact(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, first.Changed)
	assert.False(t, second.Changed)
	assert.Equal(t, first.ScopeID, second.ScopeID)
	assert.Equal(t, updatedAt, tc.scopeRepo.get(id).UpdatedAt)
}

func TestScopeLedger_SubmitFact_Coercion(t *testing.T) {
	tests := []struct {
		name          string
		factName      string
		value         any
		wantValue     any
		wantAmbiguous bool
	}{
		{"text string", "description", "Replace cabinets", "Replace cabinets", false},
		{"integer to text", "budget_range", float64(5000), "5000", false},
		{"bool to text", "contractor_notes", true, "true", false},
		{"raw json number", "zip_code", json.RawMessage(`94107`), "94107", false},
		{"bool passes through", "group_bidding_preference", true, true, false},
		{"yes", "group_bidding_preference", "Yes", true, false},
		{"true", "group_bidding_preference", " TRUE ", true, false},
		{"no", "group_bidding_preference", "no", false, false},
		{"false", "group_bidding_preference", "False", false, false},
		{"unclear string", "group_bidding_preference", "maybe", false, true},
		{"number", "group_bidding_preference", float64(1), false, true},
		{"null", "group_bidding_preference", nil, false, true},
		{"json null", "group_bidding_preference", json.RawMessage("null"), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := setupScopeLedgerTest(t)
			id := tc.scopeRepo.seed("owner-1", models.ScopeStatusNew)

			res, err := tc.ledger.SubmitFact(context.Background(), &SubmitFactRequest{
				OwnerID:   "owner-1",
				ScopeID:   &id,
				FactName:  tt.factName,
				FactValue: tt.value,
			})
			require.NoError(t, err)

			assert.Equal(t, tt.wantValue, res.Value)
			assert.Equal(t, tt.wantAmbiguous, res.Ambiguous)
			field, _ := models.LookupField(tt.factName)
			assert.Equal(t, tt.wantValue, tc.scopeRepo.get(id).Value(field))
		})
	}
}

func TestScopeLedger_SubmitFact_InvalidFacts(t *testing.T) {
	tests := []struct {
		name    string
		req     SubmitFactRequest
		wantErr error
	}{
		{"empty name", SubmitFactRequest{OwnerID: "o", FactName: "  ", FactValue: "x"}, apperrors.ErrInvalidFact},
		{"nil value", SubmitFactRequest{OwnerID: "o", FactName: "title"}, apperrors.ErrInvalidFact},
		{"json null", SubmitFactRequest{OwnerID: "o", FactName: "notes", FactValue: json.RawMessage("null")}, apperrors.ErrInvalidFact},
		{"missing owner", SubmitFactRequest{FactName: "title", FactValue: "x"}, apperrors.ErrInvalidParameters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc := setupScopeLedgerTest(t)
			_, err := tc.ledger.SubmitFact(context.Background(), &tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, 0, tc.tx.txCalls, "validation must not reach the backing store")
		})
	}
}

func TestScopeLedger_SubmitFact_NullBooleanWarns(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	tc := setupScopeLedgerTest(t)
	tc.ledger = NewScopeLedger(tc.tx, tc.scopeRepo, tc.factRepo, tc.imageRepo, time.Second, zap.New(core))
	id := tc.scopeRepo.seed("owner-1", models.ScopeStatusNew)

	res, err := tc.ledger.SubmitFact(context.Background(), &SubmitFactRequest{
		OwnerID:  "owner-1",
		ScopeID:  &id,
		FactName: "Group_Bidding_Preference",
	})
	require.NoError(t, err)

	assert.Equal(t, false, res.Value)
	assert.True(t, res.Ambiguous)
	assert.Equal(t, false, tc.scopeRepo.get(id).Value(models.FieldGroupBiddingPreference))
	require.Equal(t, 1, logs.FilterMessage("Ambiguous boolean fact value coerced to false").Len())
}

func TestScopeLedger_SubmitFact_StorageFailures(t *testing.T) {
	driverErr := errors.New("connection reset by peer")

	t.Run("create fails", func(t *testing.T) {
		tc := setupScopeLedgerTest(t)
		tc.scopeRepo.createErr = driverErr

		res, err := tc.ledger.SubmitFact(context.Background(), &SubmitFactRequest{OwnerID: "o", FactName: "title", FactValue: "x"})
		assert.Nil(t, res)
		assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
		assert.ErrorIs(t, err, driverErr)
		assert.Equal(t, 1, tc.tx.rolledBack)
	})

	t.Run("update fails", func(t *testing.T) {
		tc := setupScopeLedgerTest(t)
		id := tc.scopeRepo.seed("o", models.ScopeStatusNew)
		tc.scopeRepo.updateErr = driverErr

		_, err := tc.ledger.SubmitFact(context.Background(), &SubmitFactRequest{OwnerID: "o", ScopeID: &id, FactName: "title", FactValue: "x"})
		assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
		assert.Nil(t, tc.scopeRepo.get(id).Title)
	})

	t.Run("lock fails", func(t *testing.T) {
		tc := setupScopeLedgerTest(t)
		tc.scopeRepo.lockErr = driverErr

		_, err := tc.ledger.SubmitFact(context.Background(), &SubmitFactRequest{OwnerID: "o", FactName: "title", FactValue: "x"})
		assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
		assert.Equal(t, 0, tc.scopeRepo.createCalls)
	})

	t.Run("commit fails", func(t *testing.T) {
		tc := setupScopeLedgerTest(t)
		tc.tx.commitErr = driverErr

		res, err := tc.ledger.SubmitFact(context.Background(), &SubmitFactRequest{OwnerID: "o", FactName: "title", FactValue: "x"})
		assert.Nil(t, res)
		assert.ErrorIs(t, err, apperrors.ErrIndeterminate)
		assert.NotErrorIs(t, err, apperrors.ErrStorageUnavailable)
	})

	t.Run("deadline", func(t *testing.T) {
		tc := setupScopeLedgerTest(t)
		tc.ledger = NewScopeLedger(tc.tx, tc.scopeRepo, tc.factRepo, tc.imageRepo, 20*time.Millisecond, zap.NewNop())
		tc.scopeRepo.blockLock = true

		_, err := tc.ledger.SubmitFact(context.Background(), &SubmitFactRequest{OwnerID: "o", FactName: "title", FactValue: "x"})
		assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestScopeLedger_GetScope(t *testing.T) {
	tc := setupScopeLedgerTest(t)
	id := tc.scopeRepo.seed("owner-1", models.ScopeStatusNew)
	tc.factRepo.facts[id] = models.MiscFacts{"pets": "dog"}
	tc.imageRepo.assets = append(tc.imageRepo.assets, &models.ImageAsset{ID: uuid.New(), ScopeID: &id, Path: id.String() + ".png"})

	scope, err := tc.ledger.GetScope(context.Background(), "owner-1", id)
	require.NoError(t, err)
	assert.Equal(t, id, scope.ID)
	assert.Equal(t, "dog", scope.Misc["pets"])
	require.Len(t, scope.Images, 1)

	_, err = tc.ledger.GetScope(context.Background(), "owner-2", id)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)

	_, err = tc.ledger.GetScope(context.Background(), "owner-1", uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestScopeLedger_GetLatestScope(t *testing.T) {
	tc := setupScopeLedgerTest(t)

	_, err := tc.ledger.GetLatestScope(context.Background(), "owner-1")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	tc.scopeRepo.seed("owner-1", models.ScopeStatusNew)
	newest := tc.scopeRepo.seed("owner-1", models.ScopeStatusFinalized)
	tc.scopeRepo.seed("owner-2", models.ScopeStatusNew)

	scope, err := tc.ledger.GetLatestScope(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, newest, scope.ID)
	assert.NotNil(t, scope.Misc)

	tc.scopeRepo.getErr = errors.New("boom")
	_, err = tc.ledger.GetLatestScope(context.Background(), "owner-1")
	assert.ErrorIs(t, err, apperrors.ErrStorageUnavailable)
}

func TestScopeLedger_SetStatus(t *testing.T) {
	tc := setupScopeLedgerTest(t)
	id := tc.scopeRepo.seed("owner-1", models.ScopeStatusNew)

	require.NoError(t, tc.ledger.SetStatus(context.Background(), "owner-1", id, models.ScopeStatusConfirming))
	assert.Equal(t, models.ScopeStatusConfirming, tc.scopeRepo.get(id).Status)

	err := tc.ledger.SetStatus(context.Background(), "owner-2", id, models.ScopeStatusFinalized)
	assert.ErrorIs(t, err, apperrors.ErrPermissionDenied)
	assert.Equal(t, models.ScopeStatusConfirming, tc.scopeRepo.get(id).Status)
}
