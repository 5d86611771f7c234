package changes

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	codeerrors "codeintel/internal/core/errors"
	"codeintel/internal/engine/facts"
	"codeintel/internal/shared/observability"
	"codeintel/internal/shared/util"

	"github.com/google/uuid"
)

const DefaultDebounce = 100 * time.Millisecond

// Batch is one debounce window worth of analyzed changes, sorted by path.
type Batch struct {
	Changes  []FileChange
	Analyses []ChangeAnalysis

	current func(path string, gen uint64) bool
}

// IsCurrent reports whether no newer event arrived for the analysis' path
// since the batch was taken. Committers check it right before applying.
func (b Batch) IsCurrent(a ChangeAnalysis) bool {
	if b.current == nil {
		return true
	}
	return b.current(a.Path, a.Generation)
}

// Committer applies analyzed batches to the shared state.
type Committer interface {
	Baseline() Baseline
	// Commit performs the recomputation the analyses ask for and returns
	// the analyses that were applied. Analyses left out are discarded.
	Commit(ctx context.Context, batch Batch) ([]ChangeAnalysis, error)
}

type Config struct {
	Debounce time.Duration
	Options  Options
	Clock    Clock
	// Limiter paces full rescans. Nil means unlimited.
	Limiter *util.Limiter
}

// Analyzer is the debounce state machine: Idle -> Debouncing -> Analyzing
// -> Idle. Events arriving while Analyzing are held for the next window.
type Analyzer struct {
	target   Committer
	clock    Clock
	debounce time.Duration
	opts     Options
	limiter  *util.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       State
	pending     map[string]FileChange
	generations map[string]uint64
	timer       Timer
	timerSeq    uint64
	idle        chan struct{}
	closed      bool
	last        map[string]ChangeAnalysis
	committed   int
}

func NewAnalyzer(target Committer, cfg Config) *Analyzer {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Analyzer{
		target:      target,
		clock:       cfg.Clock,
		debounce:    cfg.Debounce,
		opts:        cfg.Options.withDefaults(),
		limiter:     cfg.Limiter,
		ctx:         ctx,
		cancel:      cancel,
		state:       StateIdle,
		pending:     make(map[string]FileChange),
		generations: make(map[string]uint64),
		idle:        idle,
		last:        make(map[string]ChangeAnalysis),
	}
}

var errClosed = codeerrors.New(codeerrors.CodeValidationError, "change analyzer is closed")

// Submit queues a change. A later change for the same path within the
// window replaces the earlier one and restarts the debounce timer.
func (a *Analyzer) Submit(c FileChange) error {
	c.Path = facts.NormalizePath(c.Path)
	if c.Path == "" {
		return codeerrors.New(codeerrors.CodeValidationError, "change path is empty")
	}
	if !c.Type.Valid() {
		return codeerrors.AddContext(
			codeerrors.Newf(codeerrors.CodeValidationError, "unknown change type %q", c.Type),
			codeerrors.CtxPath, c.Path)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errClosed
	}

	if prev, ok := a.pending[c.Path]; ok && prev.Type == ChangeAdd && c.Type == ChangeModify {
		c.Type = ChangeAdd
	}
	a.generations[c.Path]++
	a.pending[c.Path] = c

	switch a.state {
	case StateIdle:
		a.setStateLocked(StateDebouncing)
		a.armLocked()
	case StateDebouncing:
		a.armLocked()
	case StateAnalyzing:
		// picked up when the running pass finishes
	}
	return nil
}

func (a *Analyzer) setStateLocked(s State) {
	if a.state == s {
		return
	}
	if a.state == StateIdle {
		a.idle = make(chan struct{})
	}
	a.state = s
	if s == StateIdle {
		close(a.idle)
	}
}

func (a *Analyzer) armLocked() {
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timerSeq++
	seq := a.timerSeq
	a.timer = a.clock.AfterFunc(a.debounce, func() { a.fire(seq) })
}

func (a *Analyzer) fire(seq uint64) {
	a.mu.Lock()
	if a.closed || seq != a.timerSeq || a.state != StateDebouncing {
		a.mu.Unlock()
		return
	}
	a.timer = nil
	changes := a.takePendingLocked()
	a.setStateLocked(StateAnalyzing)
	a.wg.Add(1)
	a.mu.Unlock()

	defer a.wg.Done()
	a.analyze(changes)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		a.setStateLocked(StateIdle)
		return
	}
	if len(a.pending) > 0 {
		a.setStateLocked(StateDebouncing)
		a.armLocked()
		return
	}
	a.setStateLocked(StateIdle)
}

func (a *Analyzer) takePendingLocked() []FileChange {
	changes := make([]FileChange, 0, len(a.pending))
	for _, c := range a.pending {
		changes = append(changes, c)
	}
	a.pending = make(map[string]FileChange)
	sort.Slice(changes, func(i, j int) bool { return changes[i].Path < changes[j].Path })
	return changes
}

func (a *Analyzer) generation(path string) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.generations[path]
}

func (a *Analyzer) analyze(changes []FileChange) {
	start := time.Now()
	defer func() {
		observability.AnalysisDuration.WithLabelValues("change_batch").Observe(time.Since(start).Seconds())
	}()

	baseline := a.target.Baseline()
	expanded := Expand(baseline, changes)
	sort.SliceStable(expanded, func(i, j int) bool { return expanded[i].Path < expanded[j].Path })

	now := a.clock.Now()
	batch := Batch{
		Changes:  expanded,
		Analyses: make([]ChangeAnalysis, 0, len(expanded)),
		current:  func(path string, gen uint64) bool { return a.generation(path) == gen },
	}
	for _, c := range expanded {
		res := Assess(baseline, c, a.opts)
		res.ID = uuid.NewString()
		res.Generation = a.generation(c.Path)
		res.AnalyzedAt = now
		if res.Has(ActionFullRescan) && !a.limiter.AllowAt(now) {
			downgradeRescan(&res)
			observability.ThrottledRescansTotal.Inc()
			slog.Info("project rescan throttled", "path", res.Path)
		}
		batch.Analyses = append(batch.Analyses, res)
	}

	applied, err := a.target.Commit(a.ctx, batch)
	if err != nil {
		slog.Error("commit change batch", "changes", len(expanded), "error", err)
	}

	kept := make(map[string]bool, len(applied))
	a.mu.Lock()
	for _, res := range applied {
		kept[res.ID] = true
		a.last[res.Path] = res
		a.committed++
		observability.ChangeAnalysesTotal.WithLabelValues(string(res.Scope)).Inc()
	}
	a.mu.Unlock()

	for _, res := range batch.Analyses {
		if !kept[res.ID] {
			observability.DiscardedResultsTotal.Inc()
			slog.Info("discarding stale analysis", "path", res.Path, "generation", res.Generation)
		}
	}
}

// Flush analyzes pending changes now instead of waiting for the timer. It
// returns once that pass has finished.
func (a *Analyzer) Flush() {
	a.mu.Lock()
	if a.state != StateDebouncing || a.closed {
		a.mu.Unlock()
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.timerSeq++
	seq := a.timerSeq
	a.mu.Unlock()
	a.fire(seq)
}

// Run feeds events into the analyzer until ctx is done or events closes.
// Pending changes are flushed when events closes.
func (a *Analyzer) Run(ctx context.Context, events <-chan FileChange) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-events:
			if !ok {
				a.Flush()
				return nil
			}
			if err := a.Submit(c); err != nil {
				slog.Warn("rejecting file change", "path", c.Path, "type", c.Type, "error", err)
			}
		}
	}
}

// WaitIdle blocks until the analyzer is idle or ctx is done.
func (a *Analyzer) WaitIdle(ctx context.Context) error {
	for {
		a.mu.Lock()
		if a.state == StateIdle {
			a.mu.Unlock()
			return nil
		}
		ch := a.idle
		a.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
	}
}

// Close stops the timer, drops pending changes and waits for a running pass.
func (a *Analyzer) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.pending = make(map[string]FileChange)
	if a.state == StateDebouncing {
		a.setStateLocked(StateIdle)
	}
	a.mu.Unlock()

	a.cancel()
	a.wg.Wait()
}

func (a *Analyzer) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Busy reports whether results may be stale: a window is open or a pass is
// running.
func (a *Analyzer) Busy() bool {
	return a.State() != StateIdle
}

// Last returns the most recent committed analysis of path.
func (a *Analyzer) Last(path string) (ChangeAnalysis, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, ok := a.last[facts.NormalizePath(path)]
	return res, ok
}

// Committed returns how many analyses have been committed so far.
func (a *Analyzer) Committed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.committed
}

// Restore seeds the last-analysis table, e.g. from a persisted snapshot.
func (a *Analyzer) Restore(list []ChangeAnalysis) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, res := range list {
		if cur, ok := a.last[res.Path]; !ok || res.AnalyzedAt.After(cur.AnalyzedAt) {
			a.last[res.Path] = res
		}
	}
}
