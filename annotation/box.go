package annotation

import (
	"fmt"

	"github.com/google/uuid"
)

// AnnotationType tags which side of a shelf change a box marks.
type AnnotationType string

const (
	ItemAdded   AnnotationType = "ITEM_ADDED"
	ItemRemoved AnnotationType = "ITEM_REMOVED"
)

// Inverted returns the type of the box on the opposite image.
func (t AnnotationType) Inverted() AnnotationType {
	if t == ItemAdded {
		return ItemRemoved
	}
	return ItemAdded
}

// DefaultMinBoxEdge is the smallest width or height, in pixels, a drawn box
// may have before it is rejected as a slipped click.
const DefaultMinBoxEdge = 4.0

// Box is one half of a mirrored annotation box, as it appears in a persisted
// document. Synced marks the derived half that mirrors a drawn box on the
// opposite image; a synced box is a read-only display view and is never
// persisted on its own.
type Box struct {
	ID     string         `json:"box_id"`
	X1     float64        `json:"x1"`
	Y1     float64        `json:"y1"`
	X2     float64        `json:"x2"`
	Y2     float64        `json:"y2"`
	Type   AnnotationType `json:"annotation_type"`
	Synced bool           `json:"synced,omitempty"`
}

// Mirror returns the derived copy of b on the opposite image: same id, same
// coordinates, inverted type.
func (b Box) Mirror() Box {
	m := b
	m.Type = b.Type.Inverted()
	m.Synced = true
	return m
}

// MirroredBoxPair is one drawn box together with its mirror, owned jointly:
// the two halves share one id and identical coordinates and are only ever
// created, moved and deleted together.
type MirroredBoxPair struct {
	ID string
	X1 float64
	Y1 float64
	X2 float64
	Y2 float64
}

// NewMirroredBoxPair creates a box pair from a completed draw gesture.
// Coordinates are normalized so that (x1,y1) is the top-left corner. A box
// narrower or shorter than minEdge is rejected and nothing is created.
func NewMirroredBoxPair(x1, y1, x2, y2, minEdge float64) (MirroredBoxPair, error) {
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	if x2-x1 < minEdge || y2-y1 < minEdge {
		return MirroredBoxPair{}, fmt.Errorf("box %gx%g is below the minimum edge of %g pixels", x2-x1, y2-y1, minEdge)
	}
	return MirroredBoxPair{
		ID: uuid.New().String(),
		X1: x1,
		Y1: y1,
		X2: x2,
		Y2: y2,
	}, nil
}

// Move translates both halves by the same offset.
func (p MirroredBoxPair) Move(dx, dy float64) MirroredBoxPair {
	p.X1 += dx
	p.X2 += dx
	p.Y1 += dy
	p.Y2 += dy
	return p
}

// Before is the projection attached to the "before" image.
func (p MirroredBoxPair) Before() Box {
	return Box{ID: p.ID, X1: p.X1, Y1: p.Y1, X2: p.X2, Y2: p.Y2, Type: ItemRemoved}
}

// After is the projection attached to the "after" image.
func (p MirroredBoxPair) After() Box {
	return Box{ID: p.ID, X1: p.X1, Y1: p.Y1, X2: p.X2, Y2: p.Y2, Type: ItemAdded}
}

// flattenBoxes expands box pairs into the combined per-image list a document
// stores: for every pair the ITEM_REMOVED half followed by the ITEM_ADDED one.
func flattenBoxes(pairs []MirroredBoxPair) []Box {
	if len(pairs) == 0 {
		return []Box{}
	}
	out := make([]Box, 0, 2*len(pairs))
	for _, p := range pairs {
		out = append(out, p.Before(), p.After())
	}
	return out
}

// pairsFromBoxes rebuilds box pairs from a document's combined list,
// enforcing mirror symmetry: every id occurs exactly twice, once per type,
// with identical coordinates.
func pairsFromBoxes(boxes []Box) ([]MirroredBoxPair, error) {
	pairs := make([]MirroredBoxPair, 0, len(boxes)/2)
	index := make(map[string]int, len(boxes)/2)
	seen := make(map[string]map[AnnotationType]bool, len(boxes)/2)
	for _, b := range boxes {
		if b.Type != ItemAdded && b.Type != ItemRemoved {
			return nil, fmt.Errorf("box %s has unknown annotation type %q", b.ID, b.Type)
		}
		i, ok := index[b.ID]
		if !ok {
			index[b.ID] = len(pairs)
			seen[b.ID] = map[AnnotationType]bool{b.Type: true}
			pairs = append(pairs, MirroredBoxPair{ID: b.ID, X1: b.X1, Y1: b.Y1, X2: b.X2, Y2: b.Y2})
			continue
		}
		if seen[b.ID][b.Type] {
			return nil, fmt.Errorf("box %s has more than one %s half", b.ID, b.Type)
		}
		seen[b.ID][b.Type] = true
		p := pairs[i]
		if p.X1 != b.X1 || p.Y1 != b.Y1 || p.X2 != b.X2 || p.Y2 != b.Y2 {
			return nil, fmt.Errorf("box %s halves have diverging coordinates", b.ID)
		}
	}
	for id, halves := range seen {
		if len(halves) != 2 {
			return nil, fmt.Errorf("box %s is missing its mirror half", id)
		}
	}
	return pairs, nil
}
