package annotation

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// Signature returns a content hash of (pair id, state, normalized box set).
// Two saves with the same signature would produce the same document entry,
// so the second flush can be skipped.
func Signature(p *Pair) string {
	hasher := sha256.New()
	fmt.Fprintf(hasher, "%s\x00%s", p.ID, p.State)
	boxes := make([]MirroredBoxPair, len(p.Boxes))
	copy(boxes, p.Boxes)
	sort.Slice(boxes, func(i, j int) bool { return boxes[i].ID < boxes[j].ID })
	for _, b := range boxes {
		fmt.Fprintf(hasher, "\x00%s:%g,%g,%g,%g", b.ID, b.X1, b.Y1, b.X2, b.Y2)
	}
	return fmt.Sprintf("%x", hasher.Sum(nil))
}
