package reconcile

import "go.uber.org/zap"

// ConflictKind names the kind of unresolved identity conflict.
type ConflictKind string

const (
	ConflictFinish    ConflictKind = "finish_mismatch"
	ConflictPgm       ConflictKind = "pgm_mismatch"
	ConflictAmbiguous ConflictKind = "ambiguous_name"
	ConflictReassign  ConflictKind = "pgm_reassigned"
)

// Conflict is left for operator review; the records involved are untouched.
type Conflict struct {
	RaceID   int64        `json:"raceID"`
	Kind     ConflictKind `json:"kind"`
	HorseKey string       `json:"horseKey"`
	EntryIDs []int64      `json:"entryIDs,omitempty"`
	Detail   string       `json:"detail"`
}

// Report counts what one reconciliation did.
type Report struct {
	RaceID           int64      `json:"raceID"`
	Created          int        `json:"created"`
	Updated          int        `json:"updated"`
	Unchanged        int        `json:"unchanged"`
	Skipped          int        `json:"skipped"`
	Scratched        int        `json:"scratched"`
	Changes          int        `json:"changes"`
	DuplicateChanges int        `json:"duplicateChanges"`
	Claims           int        `json:"claims"`
	SkippedClaims    int        `json:"skippedClaims"`
	Exotics          int        `json:"exotics"`
	Merged           int        `json:"merged"`
	Conflicts        []Conflict `json:"conflicts,omitempty"`
}

func (r *Report) conflict(log *zap.Logger, c Conflict) {
	log.Warn("unresolved identity conflict",
		zap.Int64("race_id", c.RaceID),
		zap.String("kind", string(c.Kind)),
		zap.String("horse_key", c.HorseKey),
		zap.Int64s("entry_ids", c.EntryIDs),
		zap.String("detail", c.Detail),
	)
	r.Conflicts = append(r.Conflicts, c)
}

// Fields returns the report as zap fields.
func (r *Report) Fields() []zap.Field {
	return []zap.Field{
		zap.Int64("race_id", r.RaceID),
		zap.Int("created", r.Created),
		zap.Int("updated", r.Updated),
		zap.Int("unchanged", r.Unchanged),
		zap.Int("skipped", r.Skipped),
		zap.Int("scratched", r.Scratched),
		zap.Int("changes", r.Changes),
		zap.Int("duplicate_changes", r.DuplicateChanges),
		zap.Int("claims", r.Claims),
		zap.Int("skipped_claims", r.SkippedClaims),
		zap.Int("exotics", r.Exotics),
		zap.Int("merged", r.Merged),
		zap.Int("conflicts", len(r.Conflicts)),
	}
}
