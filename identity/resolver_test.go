package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/padraicbc/mikebet/models"
	"github.com/padraicbc/mikebet/normalize"
)

func TestResolveName_ExactBeforeContainment(t *testing.T) {
	r := NewResolver(DefaultMinContainLen, nil)
	keys := []string{"stayedinforhalfire", "stayedinforhalf"}

	m, err := r.ResolveName(normalize.Name("Stayed in for Half"), keys)
	require.NoError(t, err)
	assert.Equal(t, "exact", m.Strategy)
	assert.Equal(t, []int{1}, m.Indices)
}

func TestResolveName_Containment(t *testing.T) {
	r := NewResolver(DefaultMinContainLen, nil)
	keys := []string{"secretariat", "stayedinforhalfire"}

	m, err := r.ResolveName("stayedinforhalf", keys)
	require.NoError(t, err)
	assert.Equal(t, "containment", m.Strategy)
	assert.Equal(t, []int{1}, m.Indices)
}

func TestResolveName_ShortKeysSkipContainment(t *testing.T) {
	r := NewResolver(DefaultMinContainLen, nil)

	_, err := r.ResolveName("star", []string{"northernstar"})
	assert.ErrorIs(t, err, ErrNoMatch)

	_, err = r.ResolveName("northernstar", []string{"star"})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestResolveName_AmbiguousContainment(t *testing.T) {
	r := NewResolver(DefaultMinContainLen, nil)

	_, err := r.ResolveName("goldenarrow", []string{"goldenarrowire", "goldenarrowusa"})
	assert.ErrorIs(t, err, ErrAmbiguous)
}

func TestResolveName_DuplicateExactRows(t *testing.T) {
	r := NewResolver(DefaultMinContainLen, nil)

	m, err := r.ResolveName("seabiscuit", []string{"seabiscuit", "warAdmiral", "seabiscuit"})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, m.Indices)
}

func TestResolveName_EmptyKey(t *testing.T) {
	r := NewResolver(0, nil)
	_, err := r.ResolveName("", []string{""})
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestResolvePgm_ExactOnly(t *testing.T) {
	r := NewResolver(DefaultMinContainLen, nil)
	pgms := []string{"1", "1A", "11"}

	m, err := r.ResolvePgm(normalize.Pgm("01"), pgms)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, m.Indices)

	_, err = r.ResolvePgm("2", pgms)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func ptr[T any](v T) *T { return &v }

func TestRicher(t *testing.T) {
	early := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)

	tests := []struct {
		name string
		a, b models.Entry
		want bool
	}{
		{
			name: "finish beats fields",
			a:    models.Entry{EntryID: 2, Finish: ptr(3), CreatedAt: late},
			b:    models.Entry{EntryID: 1, Odds: ptr("5/1"), Comment: ptr("led"), JockeyID: ptr[int64](4), CreatedAt: early},
			want: true,
		},
		{
			name: "more fields",
			a:    models.Entry{EntryID: 2, Odds: ptr("5/1"), CreatedAt: late},
			b:    models.Entry{EntryID: 1, CreatedAt: early},
			want: true,
		},
		{
			name: "earliest created",
			a:    models.Entry{EntryID: 2, CreatedAt: late},
			b:    models.Entry{EntryID: 1, CreatedAt: early},
			want: false,
		},
		{
			name: "lowest id on full tie",
			a:    models.Entry{EntryID: 1, CreatedAt: early},
			b:    models.Entry{EntryID: 2, CreatedAt: early},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Richer(&tt.a, &tt.b))
		})
	}
}

func TestPickRichest(t *testing.T) {
	now := time.Now()
	entries := []*models.Entry{
		{EntryID: 1, Pgm: "8", CreatedAt: now},
		{EntryID: 2, Pgm: "9", CreatedAt: now},
		{EntryID: 3, Pgm: "8", Finish: ptr(1), CreatedAt: now.Add(time.Minute)},
	}
	assert.Equal(t, 2, PickRichest(entries, []int{0, 2}))
	assert.Equal(t, 0, PickRichest(entries, []int{0}))
}
