package handlers

import (
	"context"

	"go.uber.org/zap"

	"github.com/padraicbc/mikebet/db"
	"github.com/padraicbc/mikebet/ledger"
	"github.com/padraicbc/mikebet/models"
	"github.com/padraicbc/mikebet/reconcile"
	"github.com/padraicbc/mikebet/settlement"
)

// Catalog is the read side of the race catalog plus track and trainer upkeep.
type Catalog interface {
	Roster(ctx context.Context, trackKey, date string, number int) (*db.Roster, error)
	RacesOn(ctx context.Context, date string) ([]models.Race, error)
	Tracks(ctx context.Context, date string) ([]models.Track, error)
	UpdateTrack(ctx context.Context, key, code, timezone string) (bool, error)
	Dates(ctx context.Context, trackKey string) ([]string, error)
	SearchTrainers(ctx context.Context, q string) ([]string, error)
	Trainer(ctx context.Context, key string) (*models.Trainer, error)
	SaveTrainerNotes(ctx context.Context, key, info string) (bool, error)
}

// Wallets reads wallets and their history.
type Wallets interface {
	ForUser(ctx context.Context, userID int64) (*models.Wallet, error)
	Transactions(ctx context.Context, walletID, beforeID int64, limit int) ([]models.Transaction, error)
}

// Wagers places and lists wagers.
type Wagers interface {
	Place(ctx context.Context, eff *ledger.Effector, w *models.Wager) error
	ForUser(ctx context.Context, userID int64, limit int) ([]models.Wager, error)
}

// Users finds API users.
type Users interface {
	ByName(ctx context.Context, username string) (*models.User, error)
}

// Reconciler is the catalog write path the operator endpoints trigger.
type Reconciler interface {
	ReconcileRace(ctx context.Context, imp reconcile.RaceImport) (*reconcile.Report, error)
	Reopen(ctx context.Context, key reconcile.RaceKey) error
	CollapseDuplicates(ctx context.Context, raceID int64) (*reconcile.Report, error)
}

// Settler runs a settlement pass.
type Settler interface {
	SettlePending(ctx context.Context) (*settlement.Summary, error)
}

// Deps are the collaborators a Handler needs.
type Deps struct {
	Catalog    Catalog
	Wallets    Wallets
	Wagers     Wagers
	Users      Users
	Reconciler Reconciler
	Settler    Settler
	Effector   *ledger.Effector
	JWTKey     []byte
	Log        *zap.Logger
}

// Handler holds shared dependencies used by all route handlers.
type Handler struct {
	catalog    Catalog
	wallets    Wallets
	wagers     Wagers
	users      Users
	reconciler Reconciler
	settler    Settler
	effector   *ledger.Effector
	JWTKey     []byte
	log        *zap.Logger
}

// New creates a Handler.
func New(d Deps) *Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Handler{
		catalog:    d.Catalog,
		wallets:    d.Wallets,
		wagers:     d.Wagers,
		users:      d.Users,
		reconciler: d.Reconciler,
		settler:    d.Settler,
		effector:   d.Effector,
		JWTKey:     d.JWTKey,
		log:        d.Log.With(zap.String("component", "http")),
	}
}
