// Package cycle drives the pipeline: pull feed races, reconcile them track by
// track, then run a settlement pass.
package cycle

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/padraicbc/mikebet/feed"
	"github.com/padraicbc/mikebet/normalize"
	"github.com/padraicbc/mikebet/reconcile"
	"github.com/padraicbc/mikebet/settlement"
)

// ErrBusy is returned when a cycle is already running.
var ErrBusy = errors.New("cycle: already running")

// Source yields staged races and is told which ones were reconciled.
type Source interface {
	Pull(ctx context.Context) ([]feed.Staged, error)
	Ack(ctx context.Context, s feed.Staged) error
}

// Reconciler reconciles one race.
type Reconciler interface {
	ReconcileRace(ctx context.Context, imp reconcile.RaceImport) (*reconcile.Report, error)
}

// Settler runs one settlement pass.
type Settler interface {
	SettlePending(ctx context.Context) (*settlement.Summary, error)
}

// Options tune a Runner.
type Options struct {
	Interval     time.Duration
	TrackWorkers int
	OpTimeout    time.Duration
	Attempts     int
	Backoff      time.Duration
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Minute
	}
	if o.TrackWorkers < 1 {
		o.TrackWorkers = 1
	}
	if o.OpTimeout <= 0 {
		o.OpTimeout = 30 * time.Second
	}
	if o.Attempts < 1 {
		o.Attempts = 1
	}
	return o
}

// Result counts one cycle.
type Result struct {
	ID         uuid.UUID           `json:"id"`
	Races      int                 `json:"races"`
	Reconciled int                 `json:"reconciled"`
	Rejected   int                 `json:"rejected"`
	Failed     int                 `json:"failed"`
	Merged     int                 `json:"merged"`
	Conflicts  int                 `json:"conflicts"`
	PullErr    error               `json:"-"`
	Settlement *settlement.Summary `json:"settlement,omitempty"`
	SettleErr  error               `json:"-"`
	Duration   time.Duration       `json:"duration"`
}

func (r *Result) fields() []zap.Field {
	f := []zap.Field{
		zap.Int("races", r.Races),
		zap.Int("reconciled", r.Reconciled),
		zap.Int("rejected", r.Rejected),
		zap.Int("failed", r.Failed),
		zap.Int("merged", r.Merged),
		zap.Int("conflicts", r.Conflicts),
		zap.Duration("took", r.Duration),
	}
	if r.PullErr != nil {
		f = append(f, zap.NamedError("pull_error", r.PullErr))
	}
	if r.SettleErr != nil {
		f = append(f, zap.NamedError("settle_error", r.SettleErr))
	}
	return f
}

// Runner executes cycles. At most one cycle runs at a time.
type Runner struct {
	src     Source
	rec     Reconciler
	settler Settler
	opts    Options
	log     *zap.Logger
	running atomic.Bool
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a Runner. src may be nil for settle-only cycles.
func New(src Source, rec Reconciler, settler Settler, opts Options, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		src:     src,
		rec:     rec,
		settler: settler,
		opts:    opts.withDefaults(),
		log:     log.With(zap.String("component", "cycle")),
		sleep:   sleepCtx,
	}
}

// Start runs a cycle immediately and then every interval until ctx ends.
// Ticks that land while a cycle is running are skipped.
func (r *Runner) Start(ctx context.Context) {
	r.log.Info("starting cycle runner",
		zap.Duration("interval", r.opts.Interval),
		zap.Int("track_workers", r.opts.TrackWorkers),
	)
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()

	r.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("shutting down cycle runner")
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	_, err := r.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrBusy):
		r.log.Info("previous cycle still running, tick skipped")
	case err != nil && ctx.Err() == nil:
		r.log.Error("cycle failed", zap.Error(err))
	}
}

// RunOnce runs one reconcile-then-settle cycle. Individual race and wager
// failures are counted in the Result, not returned.
func (r *Runner) RunOnce(ctx context.Context) (*Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer r.running.Store(false)

	res := &Result{ID: uuid.New()}
	log := r.log.With(zap.Stringer("cycle_id", res.ID))
	start := time.Now()

	if r.src != nil {
		r.reconcileAll(ctx, log, res)
	}
	if err := ctx.Err(); err != nil {
		res.Duration = time.Since(start)
		return res, err
	}

	if r.settler != nil {
		res.SettleErr = r.retry(ctx, "settlement pass", log, func(ctx context.Context) error {
			sum, err := r.settler.SettlePending(ctx)
			if sum != nil {
				res.Settlement = sum
			}
			return err
		})
	}

	res.Duration = time.Since(start)
	log.Info("cycle done", res.fields()...)
	return res, ctx.Err()
}

func (r *Runner) reconcileAll(ctx context.Context, log *zap.Logger, res *Result) {
	var staged []feed.Staged
	res.PullErr = r.retry(ctx, "feed pull", log, func(ctx context.Context) error {
		var err error
		staged, err = r.src.Pull(ctx)
		return err
	})
	if res.PullErr != nil {
		log.Error("feed pull gave up", zap.Error(res.PullErr))
		return
	}
	res.Races = len(staged)

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(r.opts.TrackWorkers)
	for _, group := range byTrack(staged) {
		p.Go(func() {
			for _, s := range group {
				if ctx.Err() != nil {
					return
				}
				outcome, rep := r.reconcileOne(ctx, log, s)
				mu.Lock()
				switch outcome {
				case reconciled:
					res.Reconciled++
					res.Merged += rep.Merged
					res.Conflicts += len(rep.Conflicts)
				case rejected:
					res.Rejected++
				case failed:
					res.Failed++
				}
				mu.Unlock()
			}
		})
	}
	p.Wait()
}

type outcome int

const (
	reconciled outcome = iota
	rejected
	failed
)

func (r *Runner) reconcileOne(ctx context.Context, log *zap.Logger, s feed.Staged) (outcome, *reconcile.Report) {
	log = log.With(zap.Stringer("race", s.Import.Key))

	var rep *reconcile.Report
	err := r.retry(ctx, "reconcile", log, func(ctx context.Context) error {
		var err error
		rep, err = r.rec.ReconcileRace(ctx, s.Import)
		return err
	})

	result := reconciled
	switch {
	case errors.Is(err, reconcile.ErrMalformedKey):
		// Acked anyway so a bad staging row is not pulled forever.
		log.Error("race rejected", zap.Error(err))
		result = rejected
	case err != nil:
		log.Error("race skipped after retries", zap.Error(err))
		return failed, nil
	}

	ackErr := r.retry(ctx, "ack", log, func(ctx context.Context) error {
		return r.src.Ack(ctx, s)
	})
	if ackErr != nil {
		log.Warn("ack failed; race will be reconciled again", zap.Error(ackErr))
	}
	return result, rep
}

// byTrack groups races per normalized track, keeping feed order in and
// across groups.
func byTrack(staged []feed.Staged) [][]feed.Staged {
	var groups [][]feed.Staged
	index := map[string]int{}
	for _, s := range staged {
		key := normalize.Name(s.Import.Key.Track)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], s)
	}
	return groups
}
