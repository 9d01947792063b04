package annotation

import (
	"fmt"
)

// PairState is the single classification label covering an entire pair.
type PairState string

const (
	// StateUnset means the pair was never classified. It is not a legal
	// persisted state: leaving an unset pair defaults it first.
	StateUnset        PairState = ""
	StateNoAnnotation PairState = "no_annotation"
	StateNothing      PairState = "nothing"
	StateChaos        PairState = "chaos"
	StateAnnotated    PairState = "annotated"
	StateEdgeCase     PairState = "edge_case"
)

// NormalizeState folds the historical "added" alias into "annotated" and
// rejects anything outside the closed state set.
func NormalizeState(raw string) (PairState, error) {
	switch PairState(raw) {
	case StateUnset, StateNoAnnotation, StateNothing, StateChaos, StateAnnotated, StateEdgeCase:
		return PairState(raw), nil
	case "added":
		return StateAnnotated, nil
	}
	return StateUnset, fmt.Errorf("unknown pair state %q", raw)
}

// RequiresBoxes reports whether the state demands a non-empty box list.
// annotated is the only state that carries boxes; edge_case is treated like
// nothing and chaos.
func (s PairState) RequiresBoxes() bool {
	return s == StateAnnotated
}

// ValidationError reports a pair whose requested state and box set violate
// the state invariant. It names the pair and the rule broken rather than
// silently coercing either side.
type ValidationError struct {
	PairID   string
	Rule     string
	State    PairState
	BoxCount int
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("pair %s: %s (state %q with %d boxes)", e.PairID, e.Rule, e.State, e.BoxCount)
}

// ImageSize is the intrinsic size of a referenced image.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Pair is one before/after image combination under review, together with its
// classification state and mirrored boxes. Pairs are created implicitly on
// first navigation and never destroyed, only reset.
type Pair struct {
	ID         string
	Image1Ref  string
	Image2Ref  string
	Image1Size *ImageSize
	Image2Size *ImageSize
	State      PairState
	Boxes      []MirroredBoxPair

	// explicitlySaved suppresses the leave-time default exactly once after
	// an explicit save in the same navigation step.
	explicitlySaved bool
}

// Classify applies an explicit classification action. Only the box-free
// states are legal here; the annotated state is only ever reached through
// AddBox. Classifying clears all boxes.
func (p *Pair) Classify(state PairState) error {
	switch state {
	case StateNoAnnotation, StateNothing, StateChaos, StateEdgeCase:
	default:
		return &ValidationError{
			PairID:   p.ID,
			Rule:     "state is not an explicit classification",
			State:    state,
			BoxCount: len(p.Boxes),
		}
	}
	p.Boxes = nil
	p.State = state
	return nil
}

// AddBox attaches a mirrored box pair. Whatever the prior classification,
// holding boxes means the pair is annotated; box list and state change
// together.
func (p *Pair) AddBox(bp MirroredBoxPair) {
	p.Boxes = append(p.Boxes, bp)
	p.State = StateAnnotated
}

// DeleteBox removes both halves of the box with the given id. With boxes
// remaining the pair stays annotated; deleting the last box resets the
// state to no_annotation.
func (p *Pair) DeleteBox(boxID string) error {
	kept := p.Boxes[:0]
	found := false
	for _, bp := range p.Boxes {
		if bp.ID == boxID {
			found = true
			continue
		}
		kept = append(kept, bp)
	}
	if !found {
		return fmt.Errorf("pair %s has no box %s", p.ID, boxID)
	}
	p.Boxes = kept
	if len(p.Boxes) == 0 {
		p.Boxes = nil
		p.State = StateNoAnnotation
	} else {
		p.State = StateAnnotated
	}
	return nil
}

// MoveBox translates both halves of the box with the given id.
func (p *Pair) MoveBox(boxID string, dx, dy float64) error {
	for i := range p.Boxes {
		if p.Boxes[i].ID == boxID {
			p.Boxes[i] = p.Boxes[i].Move(dx, dy)
			return nil
		}
	}
	return fmt.Errorf("pair %s has no box %s", p.ID, boxID)
}

// Reset clears boxes and forces the state back to no_annotation, whatever
// it was.
func (p *Pair) Reset() {
	p.Boxes = nil
	p.State = StateNoAnnotation
}

// Validate checks the state invariant: boxes are non-empty exactly when the
// state is annotated.
func (p *Pair) Validate() error {
	if p.State.RequiresBoxes() && len(p.Boxes) == 0 {
		return &ValidationError{
			PairID:   p.ID,
			Rule:     "annotated pair must have boxes",
			State:    p.State,
			BoxCount: 0,
		}
	}
	if !p.State.RequiresBoxes() && len(p.Boxes) > 0 {
		return &ValidationError{
			PairID:   p.ID,
			Rule:     "only annotated pairs may have boxes",
			State:    p.State,
			BoxCount: len(p.Boxes),
		}
	}
	if p.Image1Ref != "" && p.Image1Ref == p.Image2Ref {
		return &ValidationError{
			PairID:   p.ID,
			Rule:     "pair references the same image twice",
			State:    p.State,
			BoxCount: len(p.Boxes),
		}
	}
	return nil
}

// markExplicitlySaved records that an explicit save landed in the current
// navigation step, so the leave-time default stands down once.
func (p *Pair) markExplicitlySaved() {
	p.explicitlySaved = true
}

// DefaultOnLeave applies the auto-save-on-leave rule: a still-unset pair
// defaults to annotated when it has boxes, no_annotation otherwise. The
// default is suppressed exactly once after an explicit save in the same
// navigation step. Reports whether the state changed.
func (p *Pair) DefaultOnLeave() bool {
	if p.explicitlySaved {
		p.explicitlySaved = false
		return false
	}
	if p.State != StateUnset {
		return false
	}
	if len(p.Boxes) > 0 {
		p.State = StateAnnotated
	} else {
		p.State = StateNoAnnotation
	}
	return true
}
