package annotation

import (
	"context"
	"errors"
	"fmt"
)

// ErrNoMoreData is returned by Next and Prev at the end of the hierarchy;
// the cursor does not wrap and does not move.
var ErrNoMoreData = errors.New("no more data")

// Unit is one outer element of the navigation hierarchy: a session or a
// batch. Load fills the unit's pair list and is idempotent.
type Unit interface {
	ID() string
	Load(ctx context.Context) error
	Len() int
	Pair(i int) *Pair
}

// Position is one cursor position: a unit and a pair index within it.
type Position struct {
	Unit  Unit
	Outer int
	Inner int
}

// Step is one observed cursor move. Whether a unit boundary was crossed is
// read off the unit identities before and after the move.
type Step struct {
	From Position
	To   Position
}

// CrossedUnit reports whether the step moved into a different unit.
func (s Step) CrossedUnit() bool {
	return s.From.Unit.ID() != s.To.Unit.ID()
}

// Cursor walks an ordered list of units and, inside each, its ordered pair
// list. Movement is bounded: the boundary of the whole hierarchy is signaled
// with ErrNoMoreData rather than wrapping around.
type Cursor struct {
	units []Unit
	outer int
	inner int
}

// NewCursor positions a cursor on the first pair of the first unit, loading
// that unit.
func NewCursor(ctx context.Context, units []Unit) (*Cursor, error) {
	if len(units) == 0 {
		return nil, fmt.Errorf("cursor: no units to navigate")
	}
	if err := loadUnit(ctx, units[0]); err != nil {
		return nil, err
	}
	return &Cursor{units: units}, nil
}

func loadUnit(ctx context.Context, u Unit) error {
	if err := u.Load(ctx); err != nil {
		return fmt.Errorf("while loading unit %s: %w", u.ID(), err)
	}
	if u.Len() == 0 {
		return fmt.Errorf("unit %s has no pairs", u.ID())
	}
	return nil
}

// Current returns the cursor's position.
func (c *Cursor) Current() Position {
	return Position{Unit: c.units[c.outer], Outer: c.outer, Inner: c.inner}
}

// CurrentPair returns the pair under the cursor.
func (c *Cursor) CurrentPair() *Pair {
	return c.units[c.outer].Pair(c.inner)
}

// HasNextGlobal reports whether Next can move anywhere at all, across unit
// boundaries included.
func (c *Cursor) HasNextGlobal() bool {
	return c.inner+1 < c.units[c.outer].Len() || c.outer+1 < len(c.units)
}

// HasPrevGlobal reports whether Prev can move anywhere at all.
func (c *Cursor) HasPrevGlobal() bool {
	return c.inner > 0 || c.outer > 0
}

// Next advances to the next pair, stepping into the first pair of the next
// unit when the current one is exhausted. The next unit is loaded before the
// move becomes visible, so a failed load leaves the cursor in place.
func (c *Cursor) Next(ctx context.Context) (Step, error) {
	from := c.Current()
	switch {
	case c.inner+1 < c.units[c.outer].Len():
		c.inner++
	case c.outer+1 < len(c.units):
		if err := loadUnit(ctx, c.units[c.outer+1]); err != nil {
			return Step{}, err
		}
		c.outer++
		c.inner = 0
	default:
		return Step{}, ErrNoMoreData
	}
	return Step{From: from, To: c.Current()}, nil
}

// Prev is symmetric to Next, landing on the last pair of the previous unit
// when the current one is exhausted.
func (c *Cursor) Prev(ctx context.Context) (Step, error) {
	from := c.Current()
	switch {
	case c.inner > 0:
		c.inner--
	case c.outer > 0:
		if err := loadUnit(ctx, c.units[c.outer-1]); err != nil {
			return Step{}, err
		}
		c.outer--
		c.inner = c.units[c.outer].Len() - 1
	default:
		return Step{}, ErrNoMoreData
	}
	return Step{From: from, To: c.Current()}, nil
}
