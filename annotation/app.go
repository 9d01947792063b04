package annotation

import (
	"context"
	"fmt"
	"log"

	billy "github.com/go-git/go-billy/v6"
)

// App ties the cursor, the store and the configuration into the single
// actor the presentation layer drives: navigation with auto-save on leave,
// store re-pointing at unit boundaries, and the pair mutations.
type App struct {
	Config *Config
	Store  *Store

	cursor *Cursor
}

// NewSessionApp builds an app walking every session under the dataset
// filesystem, in session order.
func NewSessionApp(ctx context.Context, cfg *Config, fs billy.Filesystem) (*App, error) {
	sessions, err := DiscoverSessions(fs, ".")
	if err != nil {
		return nil, err
	}
	units := make([]Unit, len(sessions))
	for i, s := range sessions {
		units[i] = s
	}
	return newApp(ctx, cfg, fs, units)
}

// NewBatchApp builds an app walking one review batch.
func NewBatchApp(ctx context.Context, cfg *Config, fs billy.Filesystem, batch *BatchUnit) (*App, error) {
	return newApp(ctx, cfg, fs, []Unit{batch})
}

func newApp(ctx context.Context, cfg *Config, fs billy.Filesystem, units []Unit) (*App, error) {
	cursor, err := NewCursor(ctx, units)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Store: NewStore(fs), cursor: cursor}
	if err := a.repoint(a.cursor.Current().Unit); err != nil {
		return nil, err
	}
	a.hydrate()
	return a, nil
}

// repoint directs the store at the unit's document. This must finish before
// any save lands in the new unit.
func (a *App) repoint(u Unit) error {
	switch unit := u.(type) {
	case *SessionUnit:
		a.Store.OpenSession(unit.DocumentPath(), unit.Root, unit.Len())
	case *BatchUnit:
		a.Store.OpenBatch(unit.DocumentPath(), unit.Meta())
	default:
		return fmt.Errorf("unknown unit type %T", u)
	}
	return nil
}

// hydrate restores the current pair from its persisted entry, so resuming a
// half-done session picks up where it left off.
func (a *App) hydrate() {
	p := a.cursor.CurrentPair()
	if p.State != StateUnset || len(p.Boxes) > 0 {
		return
	}
	entry, ok := a.Store.Entry(p, a.pairContext())
	if !ok {
		return
	}
	loaded, err := entry.Pair()
	if err != nil {
		log.Printf("store: stale entry for pair %s ignored: %s", p.ID, err)
		return
	}
	p.State = loaded.State
	p.Boxes = loaded.Boxes
	if p.Image1Size == nil {
		p.Image1Size = loaded.Image1Size
	}
	if p.Image2Size == nil {
		p.Image2Size = loaded.Image2Size
	}
}

// pairContext locates the current pair inside the open document.
func (a *App) pairContext() PairContext {
	pos := a.cursor.Current()
	if unit, ok := pos.Unit.(*BatchUnit); ok {
		item := unit.Item(pos.Inner)
		return PairContext{
			SessionPath: item.SessionPath,
			Review: &ReviewInfo{
				Expected:    item.Expected,
				Predicted:   item.Predicted,
				AnnotatedBy: item.AnnotatedBy,
				ModelName:   item.ModelName,
			},
		}
	}
	return PairContext{Index: pos.Inner}
}

// Current returns the pair under the cursor.
func (a *App) Current() *Pair { return a.cursor.CurrentPair() }

// Position returns the cursor's position.
func (a *App) Position() Position { return a.cursor.Current() }

// HasNextGlobal reports whether Next can move anywhere at all.
func (a *App) HasNextGlobal() bool { return a.cursor.HasNextGlobal() }

// HasPrevGlobal reports whether Prev can move anywhere at all.
func (a *App) HasPrevGlobal() bool { return a.cursor.HasPrevGlobal() }

// leaveCurrent applies the auto-save-on-leave default to the pair being
// left, persisting it when the default fired.
func (a *App) leaveCurrent(ctx context.Context) error {
	p := a.cursor.CurrentPair()
	if !p.DefaultOnLeave() {
		return nil
	}
	return a.Store.SavePair(ctx, p, a.pairContext())
}

// Next moves forward one pair, auto-saving the pair being left and
// re-pointing the store when a unit boundary is crossed. The caller can read
// the crossing off the returned step to prompt for upload or skip.
func (a *App) Next(ctx context.Context) (Step, error) {
	if err := a.leaveCurrent(ctx); err != nil {
		return Step{}, err
	}
	step, err := a.cursor.Next(ctx)
	if err != nil {
		return Step{}, err
	}
	if step.CrossedUnit() {
		if err := a.repoint(step.To.Unit); err != nil {
			return Step{}, err
		}
	}
	a.hydrate()
	return step, nil
}

// Prev moves backward one pair, with the same leave and re-point behavior
// as Next.
func (a *App) Prev(ctx context.Context) (Step, error) {
	if err := a.leaveCurrent(ctx); err != nil {
		return Step{}, err
	}
	step, err := a.cursor.Prev(ctx)
	if err != nil {
		return Step{}, err
	}
	if step.CrossedUnit() {
		if err := a.repoint(step.To.Unit); err != nil {
			return Step{}, err
		}
	}
	a.hydrate()
	return step, nil
}

// Classify applies an explicit classification to the current pair and
// persists it.
func (a *App) Classify(ctx context.Context, state PairState) error {
	p := a.cursor.CurrentPair()
	if err := p.Classify(state); err != nil {
		return err
	}
	return a.Store.SavePair(ctx, p, a.pairContext())
}

// AddBox creates a mirrored box pair from a completed draw gesture on the
// current pair and persists it. A degenerate gesture creates nothing.
func (a *App) AddBox(ctx context.Context, x1, y1, x2, y2 float64) (MirroredBoxPair, error) {
	bp, err := NewMirroredBoxPair(x1, y1, x2, y2, a.Config.MinBoxEdge)
	if err != nil {
		return MirroredBoxPair{}, err
	}
	p := a.cursor.CurrentPair()
	if err := a.Store.SaveBox(ctx, p, bp, a.pairContext()); err != nil {
		return MirroredBoxPair{}, err
	}
	return bp, nil
}

// DeleteBox removes both halves of a box from the current pair and persists
// the result.
func (a *App) DeleteBox(ctx context.Context, boxID string) error {
	return a.Store.SaveDeleteBox(ctx, a.cursor.CurrentPair(), boxID, a.pairContext())
}

// MoveBox translates both halves of a box on the current pair and persists
// the result.
func (a *App) MoveBox(ctx context.Context, boxID string, dx, dy float64) error {
	p := a.cursor.CurrentPair()
	if err := p.MoveBox(boxID, dx, dy); err != nil {
		return err
	}
	return a.Store.SavePair(ctx, p, a.pairContext())
}

// Reset clears the current pair back to no_annotation and persists it.
func (a *App) Reset(ctx context.Context) error {
	return a.Store.ResetPair(ctx, a.cursor.CurrentPair(), a.pairContext())
}

// SkipSession marks the current session unusable. The flag is sticky; only
// this action changes it.
func (a *App) SkipSession(ctx context.Context) error {
	return a.Store.MarkUnusable(ctx)
}

// MergeBatchItems folds freshly fetched items into the current batch,
// deduplicated by key, without disturbing the cursor.
func (a *App) MergeBatchItems(items []BatchItem) (int, error) {
	unit, ok := a.cursor.Current().Unit.(*BatchUnit)
	if !ok {
		return 0, fmt.Errorf("current unit is not a batch")
	}
	return unit.Merge(items), nil
}
