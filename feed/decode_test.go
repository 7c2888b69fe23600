package feed

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padraicbc/mikebet/models"
	"github.com/padraicbc/mikebet/reconcile"
)

const arrayDoc = `[
  {
    "key": {"track": "Belmont Park", "date": "2026-05-02", "number": 4},
    "status": "completed",
    "purse": "80000.00",
    "entries": [
      {"program_number": "05", "horse_name": "Stayed in for Half", "finish_position": 1,
       "payouts": {"win": "9.00", "place": "4.20", "show": "-1"}},
      {"program_number": "11", "horse_name": "Ridge Runner", "finish_position": 0}
    ],
    "changes": [{"program_number": "3", "change_type": "Scratch", "description": "vet"}],
    "exotics": [
      {"wager_type": "Exacta", "numbers": "5-11", "payout": "31.40"},
      {"wager_type": "", "numbers": "5-11-3", "payout": "210.00"}
    ]
  },
  {"key": {"track": "Belmont Park", "date": "05/02/2026", "number": 5}},
  {"key": {"track": "Belmont Park", "date": "2026-05-02", "number": 6}, "status": "abandoned"}
]`

func TestDecodeRacesArray(t *testing.T) {
	b, err := DecodeRaces(strings.NewReader(arrayDoc))
	require.NoError(t, err)

	require.Len(t, b.Races, 1)
	race := b.Races[0]
	assert.Equal(t, reconcile.RaceKey{Track: "Belmont Park", Date: "2026-05-02", Number: 4}, race.Key)
	require.NotNil(t, race.Status)
	assert.Equal(t, models.RaceCompleted, *race.Status)
	assert.True(t, decimal.RequireFromString("80000").Equal(race.Purse.Decimal))

	require.Len(t, race.Entries, 2)
	first := race.Entries[0]
	assert.Equal(t, "05", first.ProgramNumber, "raw program numbers are kept for the reconciler")
	assert.True(t, first.Payouts.Win.Valid)
	assert.False(t, first.Payouts.Show.Valid, "negative payout dropped")
	assert.Nil(t, race.Entries[1].FinishPosition, "finish 0 dropped")

	require.Len(t, race.Exotics, 1)
	assert.Equal(t, "Exacta", race.Exotics[0].WagerType)
	assert.Len(t, b.Dropped, 3)

	require.Len(t, b.Rejected, 2)
	assert.Equal(t, 1, b.Rejected[0].Index)
	assert.True(t, errors.Is(b.Rejected[0].Err, reconcile.ErrMalformedKey))
	assert.Equal(t, 2, b.Rejected[1].Index)
	assert.True(t, errors.Is(b.Rejected[1].Err, ErrInvalidRecord))
}

func TestDecodeRacesStream(t *testing.T) {
	doc := `
{"key": {"track": "Aqueduct", "date": "2026-01-10", "number": 1}, "entries": [{"program_number": "1", "horse_name": "A"}]}
{"key": {"track": "Aqueduct", "date": "2026-01-10", "number": 2}, "entries": []}
`
	b, err := DecodeRaces(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, b.Races, 2)
	assert.Equal(t, 2, b.Races[1].Key.Number)
	assert.Empty(t, b.Rejected)
}

func TestDecodeRacesEmptyAndBroken(t *testing.T) {
	b, err := DecodeRaces(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Empty(t, b.Races)

	_, err = DecodeRaces(strings.NewReader(`[{"key": {"track": "X"`))
	assert.Error(t, err)
}

func TestStaticServesOnce(t *testing.T) {
	b, err := DecodeRaces(strings.NewReader(arrayDoc))
	require.NoError(t, err)
	src := NewStatic(b)

	got, err := src.Pull(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.NoError(t, src.Ack(context.Background(), got[0]))

	again, err := src.Pull(context.Background())
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Equal(t, []reconcile.RaceKey{got[0].Import.Key}, src.Acked())
}
