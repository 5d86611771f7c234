package changes

import (
	"context"
	"sync"
	"testing"
	"time"

	codeerrors "codeintel/internal/core/errors"
	"codeintel/internal/shared/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeCommitter struct {
	base *fakeBaseline

	mu       sync.Mutex
	batches  []Batch
	onCommit func(Batch)
}

func (f *fakeCommitter) Baseline() Baseline { return f.base }

func (f *fakeCommitter) Commit(_ context.Context, b Batch) ([]ChangeAnalysis, error) {
	f.mu.Lock()
	f.batches = append(f.batches, b)
	hook := f.onCommit
	f.mu.Unlock()

	if hook != nil {
		hook(b)
	}
	var applied []ChangeAnalysis
	for _, a := range b.Analyses {
		if b.IsCurrent(a) {
			applied = append(applied, a)
		}
	}
	return applied, nil
}

func (f *fakeCommitter) Batches() []Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Batch(nil), f.batches...)
}

func newTestAnalyzer(t *testing.T) (*Analyzer, *fakeCommitter, *ManualClock) {
	t.Helper()
	clock := NewManualClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	target := &fakeCommitter{base: newBaseline(t)}
	a := NewAnalyzer(target, Config{Clock: clock})
	t.Cleanup(a.Close)
	return a, target, clock
}

func TestAnalyzer_DebouncesBurstIntoOneAnalysis(t *testing.T) {
	a, target, clock := newTestAnalyzer(t)
	assert.Equal(t, StateIdle, a.State())

	require.NoError(t, a.Submit(FileChange{Type: ChangeModify, Path: "leaf/alone.go", Hash: "v1"}))
	assert.Equal(t, StateDebouncing, a.State())
	clock.Advance(20 * time.Millisecond)
	require.NoError(t, a.Submit(FileChange{Type: ChangeModify, Path: "leaf/alone.go", Hash: "v2"}))
	clock.Advance(25 * time.Millisecond)
	require.NoError(t, a.Submit(FileChange{Type: ChangeModify, Path: "./leaf/alone.go", Hash: "v3"}))

	clock.Advance(99 * time.Millisecond)
	assert.Empty(t, target.Batches(), "window is still open")
	assert.True(t, a.Busy())

	clock.Advance(time.Millisecond)
	batches := target.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Analyses, 1)
	assert.Equal(t, "v3", batches[0].Analyses[0].Hash, "last write wins")
	assert.Equal(t, uint64(3), batches[0].Analyses[0].Generation)
	assert.Equal(t, 1, a.Committed())
	assert.Equal(t, StateIdle, a.State())
	assert.Zero(t, clock.Pending())

	last, ok := a.Last("leaf/alone.go")
	require.True(t, ok)
	assert.Equal(t, "v3", last.Hash)
	assert.NotEmpty(t, last.ID)
	assert.Equal(t, clock.Now(), last.AnalyzedAt)
}

func TestAnalyzer_BatchesDistinctPaths(t *testing.T) {
	a, target, clock := newTestAnalyzer(t)
	require.NoError(t, a.Submit(FileChange{Type: ChangeModify, Path: "lib/y.go", Hash: "n"}))
	require.NoError(t, a.Submit(FileChange{Type: ChangeAdd, Path: "leaf/new.go", Hash: "n"}))
	require.NoError(t, a.Submit(FileChange{Type: ChangeModify, Path: "leaf/new.go", Hash: "m"}))
	clock.Advance(DefaultDebounce)

	batches := target.Batches()
	require.Len(t, batches, 1)
	require.Len(t, batches[0].Analyses, 2)
	assert.Equal(t, "leaf/new.go", batches[0].Analyses[0].Path)
	assert.Equal(t, ChangeAdd, batches[0].Analyses[0].Type, "an add followed by a change stays an add")
	assert.Equal(t, "lib/y.go", batches[0].Analyses[1].Path)
}

func TestAnalyzer_UnlinkDirExpands(t *testing.T) {
	a, target, clock := newTestAnalyzer(t)
	require.NoError(t, a.Submit(FileChange{Type: ChangeUnlinkDir, Path: "svc"}))
	clock.Advance(DefaultDebounce)

	batches := target.Batches()
	require.Len(t, batches, 1)
	var paths []string
	for _, an := range batches[0].Analyses {
		paths = append(paths, an.Path)
		assert.Equal(t, ChangeUnlink, an.Type)
		assert.True(t, an.Has(ActionRemoveEntities))
	}
	assert.Equal(t, []string{"svc/one.go", "svc/two.go"}, paths)
}

func TestAnalyzer_DiscardsResultSupersededDuringAnalysis(t *testing.T) {
	a, target, clock := newTestAnalyzer(t)
	target.onCommit = func(b Batch) {
		if len(target.Batches()) == 1 {
			require.NoError(t, a.Submit(FileChange{Type: ChangeModify, Path: "leaf/alone.go", Hash: "v2"}))
			assert.Equal(t, StateAnalyzing, a.State())
		}
	}

	require.NoError(t, a.Submit(FileChange{Type: ChangeModify, Path: "leaf/alone.go", Hash: "v1"}))
	clock.Advance(DefaultDebounce)
	assert.Zero(t, a.Committed(), "first result was superseded before commit")
	assert.Equal(t, StateDebouncing, a.State(), "the newer event opened a new window")

	clock.Advance(DefaultDebounce)
	require.Len(t, target.Batches(), 2)
	assert.Equal(t, 1, a.Committed())
	last, ok := a.Last("leaf/alone.go")
	require.True(t, ok)
	assert.Equal(t, "v2", last.Hash)
	assert.Equal(t, StateIdle, a.State())
}

func TestAnalyzer_ThrottlesProjectRescans(t *testing.T) {
	clock := NewManualClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	target := &fakeCommitter{base: newBaseline(t)}
	a := NewAnalyzer(target, Config{Clock: clock, Limiter: util.PerMinute(1)})
	defer a.Close()

	require.NoError(t, a.Submit(FileChange{Type: ChangeModify, Path: "lib/y.go", Hash: "1"}))
	clock.Advance(DefaultDebounce)
	require.NoError(t, a.Submit(FileChange{Type: ChangeModify, Path: "lib/y.go", Hash: "2"}))
	clock.Advance(DefaultDebounce)

	batches := target.Batches()
	require.Len(t, batches, 2)
	first, second := batches[0].Analyses[0], batches[1].Analyses[0]
	assert.Equal(t, ScopeProject, first.Scope)
	assert.True(t, first.Has(ActionFullRescan))
	assert.Equal(t, ScopeProject, second.Scope)
	assert.False(t, second.Has(ActionFullRescan))
	assert.True(t, second.Has(ActionReanalyzeDependents))
}

func TestAnalyzer_RejectsInvalidChanges(t *testing.T) {
	a, _, _ := newTestAnalyzer(t)
	err := a.Submit(FileChange{Type: "rename", Path: "a.go"})
	assert.True(t, codeerrors.IsCode(err, codeerrors.CodeValidationError))
	err = a.Submit(FileChange{Type: ChangeModify, Path: "  "})
	assert.True(t, codeerrors.IsCode(err, codeerrors.CodeValidationError))
	assert.Equal(t, StateIdle, a.State())
}

func TestAnalyzer_CloseDropsPending(t *testing.T) {
	clock := NewManualClock(time.Now())
	target := &fakeCommitter{base: newBaseline(t)}
	a := NewAnalyzer(target, Config{Clock: clock})

	require.NoError(t, a.Submit(FileChange{Type: ChangeModify, Path: "leaf/alone.go", Hash: "x"}))
	a.Close()
	clock.Advance(time.Second)

	assert.Empty(t, target.Batches())
	assert.Equal(t, StateIdle, a.State())
	assert.Error(t, a.Submit(FileChange{Type: ChangeModify, Path: "leaf/alone.go"}))
}

func TestAnalyzer_RunWithRealClock(t *testing.T) {
	target := &fakeCommitter{base: newBaseline(t)}
	a := NewAnalyzer(target, Config{Debounce: 10 * time.Millisecond})
	defer a.Close()

	events := make(chan FileChange)
	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), events) }()

	for i := 0; i < 3; i++ {
		events <- FileChange{Type: ChangeModify, Path: "leaf/alone.go", Hash: "burst"}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.Eventually(t, func() bool { return len(target.Batches()) == 1 }, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, a.WaitIdle(ctx))

	close(events)
	require.NoError(t, <-done)
	assert.Equal(t, 1, a.Committed())
}

func TestAnalyzer_FlushAnalyzesImmediately(t *testing.T) {
	a, target, _ := newTestAnalyzer(t)
	require.NoError(t, a.Submit(FileChange{Type: ChangeModify, Path: "leaf/alone.go", Hash: "x"}))
	a.Flush()
	assert.Len(t, target.Batches(), 1)
	assert.Equal(t, StateIdle, a.State())
	a.Flush()
	assert.Len(t, target.Batches(), 1)
}

func TestManualClock(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	var fired []int
	clock.AfterFunc(30*time.Millisecond, func() { fired = append(fired, 2) })
	clock.AfterFunc(10*time.Millisecond, func() {
		fired = append(fired, 1)
		clock.AfterFunc(5*time.Millisecond, func() { fired = append(fired, 3) })
	})
	stopped := clock.AfterFunc(20*time.Millisecond, func() { fired = append(fired, 99) })
	assert.True(t, stopped.Stop())
	assert.False(t, stopped.Stop())

	clock.Advance(30 * time.Millisecond)
	assert.Equal(t, []int{1, 3, 2}, fired)
	assert.Equal(t, time.Unix(0, 0).Add(30*time.Millisecond), clock.Now())
	assert.Zero(t, clock.Pending())
}
