package annotation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	billy "github.com/go-git/go-billy/v6"
)

// MetaKey is the reserved document key holding metadata; every other key
// addresses one pair entry.
const MetaKey = "_meta"

// SessionMeta is the metadata block of a per-session annotation document.
// Usable is sticky: it only changes through an explicit mark-unusable action,
// never through a normal save.
type SessionMeta struct {
	Completed bool      `json:"completed"`
	Usable    bool      `json:"usable"`
	Timestamp time.Time `json:"timestamp"`
	Root      string    `json:"root"`
}

// BatchMeta is the metadata block of a per-batch review document.
type BatchMeta struct {
	BatchID    string    `json:"batch_id"`
	BatchType  string    `json:"batch_type"`
	Reviewer   string    `json:"reviewer"`
	Completed  bool      `json:"completed"`
	Timestamp  time.Time `json:"timestamp"`
	TotalPairs int       `json:"total_pairs"`
}

// PairEntry is one pair's persisted form.
type PairEntry struct {
	PairID     string     `json:"pair_id"`
	Image1     string     `json:"image1"`
	Image2     string     `json:"image2"`
	Image1Size *ImageSize `json:"image1_size,omitempty"`
	Image2Size *ImageSize `json:"image2_size,omitempty"`
	State      string     `json:"state"`
	Boxes      []Box      `json:"boxes"`
}

// BatchItemEntry is the review-shaped entry a batch document stores,
// recording who annotated the pair and what the model predicted.
type BatchItemEntry struct {
	PairEntry
	SessionPath string `json:"session_path"`
	Expected    string `json:"expected,omitempty"`
	Predicted   string `json:"predicted,omitempty"`
	AnnotatedBy string `json:"annotated_by,omitempty"`
	ModelName   string `json:"model_name,omitempty"`
}

// BatchKey builds the key a batch document stores a pair under.
func BatchKey(sessionPath, pairID string) string {
	return sessionPath + "|" + pairID
}

// entryFromPair converts a pair into its persisted form, rejecting state
// invariant violations instead of coercing them.
func entryFromPair(p *Pair) (PairEntry, error) {
	if err := p.Validate(); err != nil {
		return PairEntry{}, err
	}
	return PairEntry{
		PairID:     p.ID,
		Image1:     p.Image1Ref,
		Image2:     p.Image2Ref,
		Image1Size: p.Image1Size,
		Image2Size: p.Image2Size,
		State:      string(p.State),
		Boxes:      flattenBoxes(p.Boxes),
	}, nil
}

// Pair rebuilds the in-memory pair from a persisted entry, normalizing the
// state alias and enforcing mirror symmetry on the box list.
func (e PairEntry) Pair() (*Pair, error) {
	state, err := NormalizeState(e.State)
	if err != nil {
		return nil, fmt.Errorf("while reading entry for pair %s: %w", e.PairID, err)
	}
	boxes, err := pairsFromBoxes(e.Boxes)
	if err != nil {
		return nil, fmt.Errorf("while reading entry for pair %s: %w", e.PairID, err)
	}
	p := &Pair{
		ID:         e.PairID,
		Image1Ref:  e.Image1,
		Image2Ref:  e.Image2,
		Image1Size: e.Image1Size,
		Image2Size: e.Image2Size,
		State:      state,
		Boxes:      boxes,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// SessionDocument is one session's annotation document: pair entries keyed
// by the decimal pair index, plus the "_meta" block.
type SessionDocument struct {
	Meta  SessionMeta
	Pairs map[string]PairEntry
}

// NewSessionDocument creates an empty document for a session rooted at root.
func NewSessionDocument(root string) *SessionDocument {
	return &SessionDocument{
		Meta:  SessionMeta{Usable: true, Root: root},
		Pairs: make(map[string]PairEntry),
	}
}

// MarshalJSON flattens the document into a single object whose keys are the
// decimal pair indices plus "_meta".
func (d *SessionDocument) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(d.Pairs)+1)
	out[MetaKey] = d.Meta
	for k, v := range d.Pairs {
		out[k] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON. A document without a "_meta"
// block keeps the usable default.
func (d *SessionDocument) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	d.Meta = SessionMeta{Usable: true}
	d.Pairs = make(map[string]PairEntry, len(raw))
	for k, v := range raw {
		if k == MetaKey {
			if err := json.Unmarshal(v, &d.Meta); err != nil {
				return fmt.Errorf("while decoding %s: %w", MetaKey, err)
			}
			continue
		}
		var entry PairEntry
		if err := json.Unmarshal(v, &entry); err != nil {
			return fmt.Errorf("while decoding entry %s: %w", k, err)
		}
		d.Pairs[k] = entry
	}
	return nil
}

// recompute derives completed from the entries: every one of the session's
// totalPairs indices must be present with a non-null state.
func (d *SessionDocument) recompute(totalPairs int) {
	d.Meta.Completed = totalPairs > 0
	for i := 0; i < totalPairs; i++ {
		entry, ok := d.Pairs[fmt.Sprintf("%d", i)]
		if !ok || entry.State == "" {
			d.Meta.Completed = false
			break
		}
	}
}

// Completed reports the derived completion flag.
func (d *SessionDocument) Completed() bool { return d.Meta.Completed }

// ImageRefs lists every image the document references, deduplicated and
// sorted, for the upload collaborator.
func (d *SessionDocument) ImageRefs() []string {
	return collectImageRefs(d.Pairs, nil)
}

// BatchDocument is one review batch's document: entries keyed by
// "<session_path>|<pair_id>" under "items", plus the "_meta" block.
type BatchDocument struct {
	Meta  BatchMeta                 `json:"_meta"`
	Items map[string]BatchItemEntry `json:"items"`
}

// NewBatchDocument creates an empty document for a batch.
func NewBatchDocument(meta BatchMeta) *BatchDocument {
	return &BatchDocument{
		Meta:  meta,
		Items: make(map[string]BatchItemEntry),
	}
}

// recompute derives completed: the batch is done once it holds at least the
// declared number of pairs.
func (d *BatchDocument) recompute() {
	d.Meta.Completed = d.Meta.TotalPairs > 0 && len(d.Items) >= d.Meta.TotalPairs
}

// Completed reports the derived completion flag.
func (d *BatchDocument) Completed() bool { return d.Meta.Completed }

// ImageRefs lists every image the document references, deduplicated and
// sorted, for the upload collaborator.
func (d *BatchDocument) ImageRefs() []string {
	entries := make(map[string]PairEntry, len(d.Items))
	for k, item := range d.Items {
		entries[k] = item.PairEntry
	}
	return collectImageRefs(entries, nil)
}

func collectImageRefs(entries map[string]PairEntry, refs []string) []string {
	seen := make(map[string]bool, 2*len(entries))
	for _, r := range refs {
		seen[r] = true
	}
	for _, e := range entries {
		for _, ref := range []string{e.Image1, e.Image2} {
			if ref != "" && !seen[ref] {
				seen[ref] = true
				refs = append(refs, ref)
			}
		}
	}
	sort.Strings(refs)
	return refs
}

// LoadSessionDocument reads a session document from fs. A missing or
// malformed file yields an empty document rather than an error, so a
// corrupted file never blocks further annotation; the loss is logged.
func LoadSessionDocument(fs billy.Filesystem, path, root string) *SessionDocument {
	doc := NewSessionDocument(root)
	if ok := loadDocument(fs, path, doc); !ok {
		return NewSessionDocument(root)
	}
	if doc.Meta.Root == "" {
		doc.Meta.Root = root
	}
	return doc
}

// LoadBatchDocument reads a batch document from fs with the same fail-soft
// contract as LoadSessionDocument.
func LoadBatchDocument(fs billy.Filesystem, path string, meta BatchMeta) *BatchDocument {
	doc := NewBatchDocument(meta)
	if ok := loadDocument(fs, path, doc); !ok {
		return NewBatchDocument(meta)
	}
	if doc.Items == nil {
		doc.Items = make(map[string]BatchItemEntry)
	}
	if doc.Meta.BatchID == "" {
		doc.Meta = meta
	}
	return doc
}

// loadDocument reads and decodes path into out. It reports false when the
// caller should fall back to an empty document.
func loadDocument(fs billy.Filesystem, path string, out any) bool {
	f, err := fs.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return false
	}
	if err != nil {
		log.Printf("store: cannot open document %s, starting empty: %s", path, err)
		return false
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		log.Printf("store: cannot read document %s, starting empty: %s", path, err)
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		log.Printf("store: document %s is malformed, prior data is lost: %s", path, err)
		return false
	}
	return true
}
