package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padraicbc/mikebet/identity"
	"github.com/padraicbc/mikebet/models"
)

var testKey = RaceKey{Track: "Saratoga", Date: "2026-08-01", Number: 5}

func ptr[T any](v T) *T { return &v }

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func newTestReconciler(store *memStore) *Reconciler {
	r := New(store, identity.NewResolver(identity.DefaultMinContainLen, nil), nil)
	clock := time.Date(2026, 8, 1, 18, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return r
}

func TestReconcile_SameRecordTwiceIsIdempotent(t *testing.T) {
	store := newMemStore()
	r := newTestReconciler(store)
	ctx := context.Background()

	rec := EntryImportRecord{
		ProgramNumber:  "05",
		HorseName:      "Stayed in for Half",
		JockeyName:     ptr("J. Castellano"),
		FinishPosition: ptr(1),
		Payouts:        &Payouts{Win: dec("9.00"), Place: dec("4.20")},
		Odds:           ptr("7/2"),
	}

	first, err := r.Reconcile(ctx, testKey, []EntryImportRecord{rec})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	race := store.onlyRace()
	before := store.raceEntries(race.RaceID)
	require.Len(t, before, 1)

	second, err := r.Reconcile(ctx, testKey, []EntryImportRecord{rec})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 1, second.Unchanged)

	after := store.raceEntries(race.RaceID)
	require.Len(t, after, 1)
	assert.Equal(t, before[0], after[0])
	assert.Equal(t, "5", after[0].Pgm)
}

func TestReconcile_FeedsWithDifferentNameShapesConverge(t *testing.T) {
	store := newMemStore()
	r := newTestReconciler(store)
	ctx := context.Background()

	entries := []EntryImportRecord{{ProgramNumber: "08", HorseName: "Stayed in for Half", JockeyName: ptr("I. Ortiz Jr.")}}
	results := []EntryImportRecord{{
		ProgramNumber:  "8",
		HorseName:      "StayedinforHalf",
		FinishPosition: ptr(2),
		Payouts:        &Payouts{Place: dec("5.40"), Show: dec("3.10")},
	}}

	_, err := r.Reconcile(ctx, testKey, entries)
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, testKey, results)
	require.NoError(t, err)

	got := store.raceEntries(store.onlyRace().RaceID)
	require.Len(t, got, 1)
	assert.NotNil(t, got[0].JockeyID)
	require.NotNil(t, got[0].Finish)
	assert.Equal(t, 2, *got[0].Finish)
	assert.True(t, got[0].ShowPayout.Decimal.Equal(decimal.RequireFromString("3.10")))
	assert.Len(t, store.horses, 1)
}

func TestReconcile_NeverOverwritesPopulatedFields(t *testing.T) {
	store := newMemStore()
	r := newTestReconciler(store)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, testKey, []EntryImportRecord{{
		ProgramNumber: "3", HorseName: "Golden Arrow", FinishPosition: ptr(1),
		Payouts: &Payouts{Win: dec("12.60")}, Odds: ptr("5/1"),
	}})
	require.NoError(t, err)

	// A later entries feed knows nothing about the result.
	_, err = r.Reconcile(ctx, testKey, []EntryImportRecord{{
		ProgramNumber: "3", HorseName: "Golden Arrow", Odds: ptr("9/2"), Comment: ptr("morning line"),
	}})
	require.NoError(t, err)

	got := store.raceEntries(store.onlyRace().RaceID)
	require.Len(t, got, 1)
	require.NotNil(t, got[0].Finish)
	assert.Equal(t, 1, *got[0].Finish)
	assert.True(t, got[0].WinPayout.Valid)
	assert.Equal(t, "5/1", *got[0].Odds)
	assert.Equal(t, "morning line", *got[0].Comment)
}

func TestReconcile_ScratchIsMonotonic(t *testing.T) {
	store := newMemStore()
	r := newTestReconciler(store)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, testKey, []EntryImportRecord{{ProgramNumber: "3", HorseName: "Golden Arrow", Scratched: ptr(true)}})
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, testKey, []EntryImportRecord{{ProgramNumber: "3", HorseName: "Golden Arrow", Scratched: ptr(false)}})
	require.NoError(t, err)

	got := store.raceEntries(store.onlyRace().RaceID)
	require.Len(t, got, 1)
	assert.True(t, got[0].Scratched)
}

func TestReconcile_SkipsEmptyHorseName(t *testing.T) {
	store := newMemStore()
	r := newTestReconciler(store)

	rep, err := r.Reconcile(context.Background(), testKey, []EntryImportRecord{
		{ProgramNumber: "1", HorseName: "  "},
		{ProgramNumber: "2", HorseName: "Warrior's Way"},
		{ProgramNumber: "3", HorseName: "Other", RaceKey: RaceKey{Track: "Belmont", Date: "2026-08-01", Number: 5}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Skipped)
	assert.Equal(t, 1, rep.Created)
}

func TestReconcile_MalformedKey(t *testing.T) {
	store := newMemStore()
	r := newTestReconciler(store)

	for _, key := range []RaceKey{
		{Track: "", Date: "2026-08-01", Number: 1},
		{Track: "Saratoga", Date: "08/01/2026", Number: 1},
		{Track: "Saratoga", Date: "2026-08-01", Number: 0},
	} {
		_, err := r.Reconcile(context.Background(), key, []EntryImportRecord{{ProgramNumber: "1", HorseName: "X"}})
		assert.ErrorIs(t, err, ErrMalformedKey)
	}
	assert.Empty(t, store.races)
}

func TestReconcile_ContainmentWithinRace(t *testing.T) {
	store := newMemStore()
	r := newTestReconciler(store)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, testKey, []EntryImportRecord{{ProgramNumber: "4", HorseName: "Northern Dancer (CAN)"}})
	require.NoError(t, err)
	_, err = r.Reconcile(ctx, testKey, []EntryImportRecord{{ProgramNumber: "4", HorseName: "NorthernDancer", FinishPosition: ptr(3)}})
	require.NoError(t, err)

	got := store.raceEntries(store.onlyRace().RaceID)
	require.Len(t, got, 1)
	assert.Equal(t, "Northern Dancer (CAN)", got[0].Horse.Name)
	assert.Len(t, store.horses, 1)
}

func TestReconcile_PgmHeldByAnotherHorse(t *testing.T) {
	store := newMemStore()
	r := newTestReconciler(store)
	ctx := context.Background()

	_, err := r.Reconcile(ctx, testKey, []EntryImportRecord{{ProgramNumber: "4", HorseName: "Seabiscuit"}})
	require.NoError(t, err)
	rep, err := r.Reconcile(ctx, testKey, []EntryImportRecord{{ProgramNumber: "4", HorseName: "War Admiral"}})
	require.NoError(t, err)

	require.Len(t, rep.Conflicts, 1)
	assert.Equal(t, ConflictReassign, rep.Conflicts[0].Kind)
	assert.Len(t, store.raceEntries(store.onlyRace().RaceID), 1)
}

func TestReconcile_CollapsesZombieEntries(t *testing.T) {
	store := newMemStore()
	r := newTestReconciler(store)
	ctx := context.Background()
	t0 := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)

	race := store.seedRace(testKey)
	padded := store.seedEntry(race.RaceID, "Stayed in for Half", "08", t0, func(e *models.Entry) {
		e.JockeyID = ptr[int64](900)
	})
	bare := store.seedEntry(race.RaceID, "Stayed in for Half", "8", t0.Add(time.Hour), func(e *models.Entry) {
		e.Finish = ptr(1)
		e.WinPayout = dec("9.00")
	})
	store.changes = append(store.changes, models.Change{ChangeID: 500, RaceID: race.RaceID, EntryID: padded.EntryID, ChangeType: models.ChangeJockey, Description: "rider change"})

	rep, err := r.Reconcile(ctx, testKey, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Merged)
	assert.Empty(t, rep.Conflicts)

	got := store.raceEntries(race.RaceID)
	require.Len(t, got, 1)
	kept := got[0]
	assert.Equal(t, bare.EntryID, kept.EntryID)
	assert.Equal(t, "8", kept.Pgm)
	require.NotNil(t, kept.JockeyID)
	assert.Equal(t, int64(900), *kept.JockeyID)
	assert.Equal(t, bare.EntryID, store.changes[0].EntryID)

	again, err := r.CollapseDuplicates(ctx, race.RaceID)
	require.NoError(t, err)
	assert.Zero(t, again.Merged)
	assert.Equal(t, got, store.raceEntries(race.RaceID))
}

func TestReconcile_DisagreeingFinishesAreReportedNotMerged(t *testing.T) {
	store := newMemStore()
	r := newTestReconciler(store)
	ctx := context.Background()
	t0 := time.Date(2026, 7, 30, 9, 0, 0, 0, time.UTC)

	race := store.seedRace(testKey)
	store.seedEntry(race.RaceID, "Dead Heat Dan", "2", t0, func(e *models.Entry) { e.Finish = ptr(2) })
	store.seedEntry(race.RaceID, "DeadHeatDan", "02", t0, func(e *models.Entry) { e.Finish = ptr(3) })
	before := store.raceEntries(race.RaceID)

	rep, err := r.CollapseDuplicates(ctx, race.RaceID)
	require.NoError(t, err)
	assert.Zero(t, rep.Merged)
	require.Len(t, rep.Conflicts, 1)
	assert.Equal(t, ConflictFinish, rep.Conflicts[0].Kind)
	assert.Len(t, rep.Conflicts[0].EntryIDs, 2)
	assert.Equal(t, before, store.raceEntries(race.RaceID))
}

func TestReconcile_ChangesAreDedupedAndScratch(t *testing.T) {
	store := newMemStore()
	r := newTestReconciler(store)
	ctx := context.Background()

	imp := RaceImport{
		Key:     testKey,
		Entries: []EntryImportRecord{{ProgramNumber: "6", HorseName: "Mine That Bird"}},
		Changes: []ChangeRecord{{ProgramNumber: ptr("06"), ChangeType: models.ChangeScratch, Description: "Scratched - Vet"}},
	}
	first, err := r.ReconcileRace(ctx, imp)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Changes)
	assert.Equal(t, 1, first.Scratched)

	second, err := r.ReconcileRace(ctx, imp)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Changes)
	assert.Equal(t, 1, second.DuplicateChanges)
	assert.Len(t, store.changes, 1)

	got := store.raceEntries(store.onlyRace().RaceID)
	require.Len(t, got, 1)
	assert.True(t, got[0].Scratched)
	assert.Equal(t, got[0].EntryID, store.changes[0].EntryID)
}

func TestReconcile_CancellationAndReopen(t *testing.T) {
	store := newMemStore()
	r := newTestReconciler(store)
	ctx := context.Background()

	_, err := r.ReconcileRace(ctx, RaceImport{
		Key:     testKey,
		Changes: []ChangeRecord{{ChangeType: models.ChangeCancellation, Description: "track condition"}},
	})
	require.NoError(t, err)
	race := store.onlyRace()
	assert.Equal(t, models.RaceCancelled, race.Status)
	assert.True(t, race.Cancelled)
	require.NotNil(t, race.CancelReason)

	// The pipeline cannot bring it back.
	_, err = r.ReconcileRace(ctx, RaceImport{Key: testKey, Status: ptr(models.RaceUpcoming)})
	require.NoError(t, err)
	assert.Equal(t, models.RaceCancelled, store.onlyRace().Status)

	require.NoError(t, r.Reopen(ctx, testKey))
	race = store.onlyRace()
	assert.Equal(t, models.RaceUpcoming, race.Status)
	assert.False(t, race.Cancelled)

	assert.ErrorIs(t, r.Reopen(ctx, testKey), ErrNotCancelled)
	assert.ErrorIs(t, r.Reopen(ctx, RaceKey{Track: "Nowhere", Date: "2026-08-01", Number: 1}), ErrRaceNotFound)
}

func TestReconcile_StatusOnlyMovesForward(t *testing.T) {
	store := newMemStore()
	r := newTestReconciler(store)
	ctx := context.Background()

	_, err := r.ReconcileRace(ctx, RaceImport{
		Key:     testKey,
		Entries: []EntryImportRecord{{ProgramNumber: "1", HorseName: "Alpha", FinishPosition: ptr(1)}},
	})
	require.NoError(t, err)
	assert.Equal(t, models.RacePartiallyKnown, store.onlyRace().Status)

	_, err = r.ReconcileRace(ctx, RaceImport{Key: testKey, Status: ptr(models.RaceCompleted)})
	require.NoError(t, err)
	assert.Equal(t, models.RaceCompleted, store.onlyRace().Status)

	_, err = r.ReconcileRace(ctx, RaceImport{Key: testKey, Status: ptr(models.RaceCancelled)})
	require.NoError(t, err)
	assert.Equal(t, models.RaceCompleted, store.onlyRace().Status)
}

func TestReconcile_ClaimsAndExotics(t *testing.T) {
	store := newMemStore()
	r := newTestReconciler(store)

	rep, err := r.ReconcileRace(context.Background(), RaceImport{
		Key: testKey,
		Entries: []EntryImportRecord{
			{ProgramNumber: "05", HorseName: "Alpha"},
			{ProgramNumber: "11", HorseName: "Bravo"},
		},
		Claims: []ClaimRecord{
			{HorseName: "ALPHA", NewTrainer: "S. Asmussen", Price: dec("25000")},
			{HorseName: "Nobody", NewTrainer: "T. Pletcher"},
		},
		Exotics: []ExoticRecord{
			{WagerType: "Exacta", Numbers: "5-11", Payout: decimal.RequireFromString("31.40")},
			{WagerType: "Trifecta", Numbers: "5-11-3", Payout: decimal.Zero},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Claims)
	assert.Equal(t, 1, rep.SkippedClaims)
	require.Len(t, store.claims, 1)
	assert.Equal(t, "5", store.claims[0].Pgm)
	assert.Equal(t, 1, rep.Exotics)
	assert.Len(t, store.exotics, 1)
}
