package annotation

import (
	"context"
	"fmt"
	"log"
	"path"
	"sort"
	"strings"

	billy "github.com/go-git/go-billy/v6"
)

// imageExtensions are the file types a session directory may contain, the
// same set the registered decoders understand.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// SessionDocName is the annotation document filename inside a session
// directory.
const SessionDocName = "annotations.json"

// SessionUnit is one camera run: an ordered image sequence whose pair i is
// built from images i and i+1. Pairs are created implicitly on load.
type SessionUnit struct {
	Root string

	fs     billy.Filesystem
	pairs  []*Pair
	loaded bool
}

// NewSessionUnit creates a session over the directory root, relative to the
// dataset filesystem.
func NewSessionUnit(fs billy.Filesystem, root string) *SessionUnit {
	return &SessionUnit{Root: root, fs: fs}
}

// ID returns the session's identity, its root path.
func (s *SessionUnit) ID() string { return s.Root }

// DocumentPath returns where the session's annotation document lives.
func (s *SessionUnit) DocumentPath() string {
	return path.Join(s.Root, SessionDocName)
}

// Load lists the session's images in name order and derives the pair list.
// Only names are touched; pixel data stays with the image source
// collaborator.
func (s *SessionUnit) Load(ctx context.Context) error {
	if s.loaded {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	infos, err := s.fs.ReadDir(s.Root)
	if err != nil {
		return fmt.Errorf("while listing session %s: %w", s.Root, err)
	}
	var images []string
	for _, fi := range infos {
		if fi.IsDir() {
			continue
		}
		if imageExtensions[strings.ToLower(path.Ext(fi.Name()))] {
			images = append(images, fi.Name())
		}
	}
	sort.Strings(images)
	if len(images) < 2 {
		return fmt.Errorf("session %s has %d images, need at least 2", s.Root, len(images))
	}
	s.pairs = make([]*Pair, 0, len(images)-1)
	for i := 0; i+1 < len(images); i++ {
		s.pairs = append(s.pairs, &Pair{
			ID:        fmt.Sprintf("%s@%d", s.Root, i),
			Image1Ref: path.Join(s.Root, images[i]),
			Image2Ref: path.Join(s.Root, images[i+1]),
		})
	}
	s.loaded = true
	log.Printf("cursor: session %s loaded, %d pairs", s.Root, len(s.pairs))
	return nil
}

// Len returns the number of pairs.
func (s *SessionUnit) Len() int { return len(s.pairs) }

// Pair returns the pair at index i.
func (s *SessionUnit) Pair(i int) *Pair { return s.pairs[i] }

// DiscoverSessions lists the dataset root's session directories in name
// order. Sessions are loaded lazily by the cursor.
func DiscoverSessions(fs billy.Filesystem, datasetRoot string) ([]*SessionUnit, error) {
	infos, err := fs.ReadDir(datasetRoot)
	if err != nil {
		return nil, fmt.Errorf("while listing dataset root %s: %w", datasetRoot, err)
	}
	var sessions []*SessionUnit
	for _, fi := range infos {
		if !fi.IsDir() {
			continue
		}
		sessions = append(sessions, NewSessionUnit(fs, path.Join(datasetRoot, fi.Name())))
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].Root < sessions[j].Root })
	if len(sessions) == 0 {
		return nil, fmt.Errorf("dataset root %s has no session directories", datasetRoot)
	}
	return sessions, nil
}

// BatchItem is one server-supplied element of a review batch.
type BatchItem struct {
	PairID      string `json:"pair_id"`
	SessionPath string `json:"session_path"`
	Image1Ref   string `json:"image1"`
	Image2Ref   string `json:"image2"`
	Expected    string `json:"expected"`
	Predicted   string `json:"predicted"`
	AnnotatedBy string `json:"annotated_by"`
	ModelName   string `json:"model_name"`
}

// Key returns the item's document key.
func (b BatchItem) Key() string { return BatchKey(b.SessionPath, b.PairID) }

// BatchUnit is a flat, server-assembled list of pairs drawn from multiple
// sessions. Its order is the server's, not an image order.
type BatchUnit struct {
	BatchID   string
	BatchType string
	Reviewer  string

	items []BatchItem
	pairs []*Pair
	keys  map[string]bool
}

// NewBatchUnit creates a batch from the server-supplied item list.
func NewBatchUnit(batchID, batchType, reviewer string, items []BatchItem) *BatchUnit {
	u := &BatchUnit{
		BatchID:   batchID,
		BatchType: batchType,
		Reviewer:  reviewer,
		keys:      make(map[string]bool, len(items)),
	}
	for _, item := range items {
		if u.keys[item.Key()] {
			continue
		}
		u.keys[item.Key()] = true
		u.items = append(u.items, item)
		u.pairs = append(u.pairs, pairFromBatchItem(item))
	}
	return u
}

func pairFromBatchItem(item BatchItem) *Pair {
	return &Pair{
		ID:        item.PairID,
		Image1Ref: item.Image1Ref,
		Image2Ref: item.Image2Ref,
	}
}

// ID returns the batch's identity.
func (b *BatchUnit) ID() string { return b.BatchID }

// DocumentPath returns where the batch's review document lives, under the
// batches directory of the dataset root.
func (b *BatchUnit) DocumentPath() string {
	return path.Join("batches", b.BatchID+".json")
}

// Meta builds the document metadata block for this batch.
func (b *BatchUnit) Meta() BatchMeta {
	return BatchMeta{
		BatchID:    b.BatchID,
		BatchType:  b.BatchType,
		Reviewer:   b.Reviewer,
		TotalPairs: len(b.items),
	}
}

// Load is a no-op beyond validation: batch pairs come with the item list.
func (b *BatchUnit) Load(ctx context.Context) error {
	if len(b.pairs) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}
	return nil
}

// Len returns the number of pairs.
func (b *BatchUnit) Len() int { return len(b.pairs) }

// Pair returns the pair at index i.
func (b *BatchUnit) Pair(i int) *Pair { return b.pairs[i] }

// Item returns the server-supplied item backing the pair at index i.
func (b *BatchUnit) Item(i int) BatchItem { return b.items[i] }

// Merge appends freshly fetched items, deduplicated by key. Existing items
// keep their indices, so a cursor mid-navigation is not disturbed. Returns
// how many items were new.
func (b *BatchUnit) Merge(items []BatchItem) int {
	added := 0
	for _, item := range items {
		if b.keys[item.Key()] {
			continue
		}
		b.keys[item.Key()] = true
		b.items = append(b.items, item)
		b.pairs = append(b.pairs, pairFromBatchItem(item))
		added++
	}
	if added > 0 {
		log.Printf("cursor: batch %s merged %d new items (%d total)", b.BatchID, added, len(b.items))
	}
	return added
}
