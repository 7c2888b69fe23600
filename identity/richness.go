package identity

import "github.com/padraicbc/mikebet/models"

// Richer reports whether a should be kept over b: a known finish wins, then
// more populated optional fields, then the earlier row.
func Richer(a, b *models.Entry) bool {
	if (a.Finish != nil) != (b.Finish != nil) {
		return a.Finish != nil
	}
	if na, nb := a.PopulatedFields(), b.PopulatedFields(); na != nb {
		return na > nb
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.EntryID < b.EntryID
}

// PickRichest returns the index of the richest entry among idx.
func PickRichest(entries []*models.Entry, idx []int) int {
	best := idx[0]
	for _, i := range idx[1:] {
		if Richer(entries[i], entries[best]) {
			best = i
		}
	}
	return best
}
