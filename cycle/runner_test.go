package cycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/padraicbc/mikebet/feed"
	"github.com/padraicbc/mikebet/reconcile"
	"github.com/padraicbc/mikebet/settlement"
)

type fakeSource struct {
	mu       sync.Mutex
	staged   []feed.Staged
	pullErrs int
	acked    []reconcile.RaceKey
}

func (f *fakeSource) Pull(context.Context) ([]feed.Staged, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pullErrs > 0 {
		f.pullErrs--
		return nil, errors.New("mysql: connection refused")
	}
	return f.staged, nil
}

func (f *fakeSource) Ack(_ context.Context, s feed.Staged) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, s.Import.Key)
	return nil
}

type fakeReconciler struct {
	mu       sync.Mutex
	calls    map[string]int
	order    map[string][]int
	failures map[string]int // transient failures before success, -1 forever
	block    chan struct{}
	started  chan struct{}
}

func newFakeReconciler() *fakeReconciler {
	return &fakeReconciler{calls: map[string]int{}, order: map[string][]int{}, failures: map[string]int{}}
}

func (f *fakeReconciler) ReconcileRace(ctx context.Context, imp reconcile.RaceImport) (*reconcile.Report, error) {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if err := imp.Key.Validate(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	k := imp.Key.String()
	f.calls[k]++
	if n := f.failures[k]; n != 0 {
		if n > 0 {
			f.failures[k]--
		}
		return nil, context.DeadlineExceeded
	}
	f.order[imp.Key.Track] = append(f.order[imp.Key.Track], imp.Key.Number)
	return &reconcile.Report{Merged: 1}, nil
}

type fakeSettler struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSettler) SettlePending(context.Context) (*settlement.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return &settlement.Summary{Scanned: 3}, nil
}

func staged(track string, numbers ...int) []feed.Staged {
	var out []feed.Staged
	for _, n := range numbers {
		out = append(out, feed.Staged{Import: reconcile.RaceImport{Key: reconcile.RaceKey{Track: track, Date: "2026-05-02", Number: n}}})
	}
	return out
}

func newTestRunner(src Source, rec Reconciler, set Settler, workers int) (*Runner, *[]time.Duration) {
	r := New(src, rec, set, Options{TrackWorkers: workers, Attempts: 3, Backoff: 10 * time.Millisecond, OpTimeout: time.Second}, zap.NewNop())
	var pauses []time.Duration
	var mu sync.Mutex
	r.sleep = func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		pauses = append(pauses, d)
		mu.Unlock()
		return ctx.Err()
	}
	return r, &pauses
}

func TestRunOnceReconcilesThenSettles(t *testing.T) {
	src := &fakeSource{staged: append(append(staged("Belmont Park", 1, 2, 3), staged("Aqueduct", 1, 2)...), staged("BELMONT  PARK", 4)...)}
	rec := newFakeReconciler()
	set := &fakeSettler{}
	r, _ := newTestRunner(src, rec, set, 3)

	res, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 6, res.Races)
	assert.Equal(t, 6, res.Reconciled)
	assert.Equal(t, 6, res.Merged)
	assert.Equal(t, 1, set.calls)
	require.NotNil(t, res.Settlement)
	assert.Equal(t, 3, res.Settlement.Scanned)
	assert.Len(t, src.acked, 6)

	// Races of one track run in feed order even with several workers.
	assert.Equal(t, []int{1, 2, 3}, rec.order["Belmont Park"])
	assert.Equal(t, []int{4}, rec.order["BELMONT  PARK"])
	assert.Equal(t, []int{1, 2}, rec.order["Aqueduct"])
}

func TestRunOnceRetriesWithBackoff(t *testing.T) {
	src := &fakeSource{staged: staged("Belmont Park", 1, 2), pullErrs: 1}
	rec := newFakeReconciler()
	rec.failures["Belmont Park/2026-05-02/R1"] = 2
	rec.failures["Belmont Park/2026-05-02/R2"] = -1
	r, pauses := newTestRunner(src, rec, &fakeSettler{}, 1)

	res, err := r.RunOnce(context.Background())
	require.NoError(t, err)

	assert.NoError(t, res.PullErr)
	assert.Equal(t, 1, res.Reconciled)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 3, rec.calls["Belmont Park/2026-05-02/R1"])
	assert.Equal(t, 3, rec.calls["Belmont Park/2026-05-02/R2"], "retry budget is three attempts")
	assert.Equal(t, []reconcile.RaceKey{{Track: "Belmont Park", Date: "2026-05-02", Number: 1}}, src.acked, "a failed race stays staged")
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,                         // pull
		10 * time.Millisecond, 20 * time.Millisecond, // R1
		10 * time.Millisecond, 20 * time.Millisecond, // R2
	}, *pauses)
}

func TestRunOnceRejectsMalformedWithoutRetry(t *testing.T) {
	bad := feed.Staged{Import: reconcile.RaceImport{Key: reconcile.RaceKey{Track: "Belmont Park", Date: "yesterday", Number: 1}}}
	src := &fakeSource{staged: []feed.Staged{bad}}
	r, pauses := newTestRunner(src, newFakeReconciler(), &fakeSettler{}, 1)

	res, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rejected)
	assert.Empty(t, *pauses)
	assert.Len(t, src.acked, 1)
}

func TestRunOnceSettlesWhenPullGivesUp(t *testing.T) {
	src := &fakeSource{pullErrs: 10}
	set := &fakeSettler{}
	r, _ := newTestRunner(src, newFakeReconciler(), set, 1)

	res, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Error(t, res.PullErr)
	assert.Equal(t, 1, set.calls)
}

func TestRunOnceSkipsOverlap(t *testing.T) {
	rec := newFakeReconciler()
	rec.block = make(chan struct{})
	rec.started = make(chan struct{}, 1)
	r, _ := newTestRunner(&fakeSource{staged: staged("Belmont Park", 1)}, rec, &fakeSettler{}, 1)

	done := make(chan error, 1)
	go func() {
		_, err := r.RunOnce(context.Background())
		done <- err
	}()
	<-rec.started

	_, err := r.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(rec.block)
	require.NoError(t, <-done)

	_, err = r.RunOnce(context.Background())
	assert.NoError(t, err, "runner is free again")
}

func TestByTrack(t *testing.T) {
	in := append(append(staged("Belmont Park", 1), staged("Aqueduct", 1)...), staged("belmont park", 2)...)
	groups := byTrack(in)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Len(t, groups[1], 1)
}
