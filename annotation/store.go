package annotation

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strconv"
	"time"

	billy "github.com/go-git/go-billy/v6"
)

// ReviewInfo carries the review-workflow fields a batch entry records in
// addition to the pair itself.
type ReviewInfo struct {
	Expected    string
	Predicted   string
	AnnotatedBy string
	ModelName   string
}

// PairContext locates a pair's entry within the open document: the
// sequential index for session documents, the originating session path (and
// optional review fields) for batch documents.
type PairContext struct {
	Index       int
	SessionPath string
	Review      *ReviewInfo
}

// Store holds one annotation document at a time and persists pair mutations
// into it with an atomic read-modify-write-flush cycle. A store is used by a
// single actor; re-pointing it at another document must finish before the
// next save.
type Store struct {
	fs         billy.Filesystem
	path       string
	session    *SessionDocument
	batch      *BatchDocument
	totalPairs int

	// lastSig is the content signature of the last flushed pair entry,
	// kept alongside the document to short-circuit redundant flushes.
	lastSig string

	now func() time.Time
}

// NewStore creates a store over fs with no document open.
func NewStore(fs billy.Filesystem) *Store {
	return &Store{fs: fs, now: time.Now}
}

// OpenSession points the store at the document of a session with totalPairs
// pairs, loading it fail-soft.
func (s *Store) OpenSession(path, root string, totalPairs int) {
	s.path = path
	s.session = LoadSessionDocument(s.fs, path, root)
	s.batch = nil
	s.totalPairs = totalPairs
	s.lastSig = ""
	log.Printf("store: opened session document %s (%d entries)", path, len(s.session.Pairs))
}

// OpenBatch points the store at the document of a batch, loading it
// fail-soft.
func (s *Store) OpenBatch(path string, meta BatchMeta) {
	s.path = path
	s.batch = LoadBatchDocument(s.fs, path, meta)
	s.session = nil
	s.totalPairs = meta.TotalPairs
	s.lastSig = ""
	log.Printf("store: opened batch document %s (%d items)", path, len(s.batch.Items))
}

// Path returns the path of the open document.
func (s *Store) Path() string { return s.path }

// Session returns the open session document, or nil in batch mode.
func (s *Store) Session() *SessionDocument { return s.session }

// Batch returns the open batch document, or nil in session mode.
func (s *Store) Batch() *BatchDocument { return s.batch }

// Completed reports the open document's derived completion flag.
func (s *Store) Completed() bool {
	switch {
	case s.session != nil:
		return s.session.Completed()
	case s.batch != nil:
		return s.batch.Completed()
	}
	return false
}

// Entry returns the persisted entry for the pair addressed by pc, if any.
func (s *Store) Entry(p *Pair, pc PairContext) (PairEntry, bool) {
	switch {
	case s.session != nil:
		e, ok := s.session.Pairs[strconv.Itoa(pc.Index)]
		return e, ok
	case s.batch != nil:
		item, ok := s.batch.Items[BatchKey(pc.SessionPath, p.ID)]
		return item.PairEntry, ok
	}
	return PairEntry{}, false
}

// SavePair validates the pair, updates its entry in the in-memory document
// and flushes atomically. A save whose content signature matches the last
// flushed one is skipped. After a successful save of a classified pair the
// leave-time default is suppressed for the current navigation step.
func (s *Store) SavePair(ctx context.Context, p *Pair, pc PairContext) error {
	if s.session == nil && s.batch == nil {
		return fmt.Errorf("store: no document open")
	}
	entry, err := entryFromPair(p)
	if err != nil {
		return err
	}
	sig := Signature(p)
	if sig == s.lastSig {
		log.Printf("store: pair %s unchanged, skipping flush", p.ID)
		return nil
	}
	if s.session != nil {
		s.session.Pairs[strconv.Itoa(pc.Index)] = entry
		s.session.recompute(s.totalPairs)
		s.session.Meta.Timestamp = s.now()
	} else {
		key := BatchKey(pc.SessionPath, p.ID)
		item := s.batch.Items[key]
		item.PairEntry = entry
		item.SessionPath = pc.SessionPath
		if pc.Review != nil {
			item.Expected = pc.Review.Expected
			item.Predicted = pc.Review.Predicted
			item.AnnotatedBy = pc.Review.AnnotatedBy
			item.ModelName = pc.Review.ModelName
		}
		s.batch.Items[key] = item
		s.batch.recompute()
		s.batch.Meta.Timestamp = s.now()
	}
	if err := s.flush(ctx); err != nil {
		return err
	}
	s.lastSig = sig
	if p.State != StateUnset {
		p.markExplicitlySaved()
	}
	return nil
}

// SaveBox attaches a mirrored box pair to p and persists the result. Box
// list and state change together: the pair becomes annotated.
func (s *Store) SaveBox(ctx context.Context, p *Pair, bp MirroredBoxPair, pc PairContext) error {
	p.AddBox(bp)
	return s.SavePair(ctx, p, pc)
}

// SaveDeleteBox removes both halves of a box from p and persists the result.
func (s *Store) SaveDeleteBox(ctx context.Context, p *Pair, boxID string, pc PairContext) error {
	if err := p.DeleteBox(boxID); err != nil {
		return err
	}
	return s.SavePair(ctx, p, pc)
}

// ResetPair clears p back to no_annotation and persists the result.
func (s *Store) ResetPair(ctx context.Context, p *Pair, pc PairContext) error {
	p.Reset()
	return s.SavePair(ctx, p, pc)
}

// MarkUnusable flips the sticky usable flag of the open session document.
// This is the only operation that touches it.
func (s *Store) MarkUnusable(ctx context.Context) error {
	if s.session == nil {
		return fmt.Errorf("store: no session document open")
	}
	s.session.Meta.Usable = false
	s.session.Meta.Timestamp = s.now()
	return s.flush(ctx)
}

// flush serializes the full document and atomically replaces the target:
// write to a temp file in the same directory, force it to storage, then
// rename over the target. A crash at any point leaves either the old or the
// new document intact, never a partial file.
func (s *Store) flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var data []byte
	var err error
	if s.session != nil {
		data, err = json.MarshalIndent(s.session, "", "  ")
	} else {
		data, err = json.MarshalIndent(s.batch, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("while serializing document %s: %w", s.path, err)
	}
	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("while creating directory %s: %w", dir, err)
		}
	}
	tmp, err := s.fs.TempFile(dir, ".flush-")
	if err != nil {
		return fmt.Errorf("while creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.fs.Remove(tmpName)
		return fmt.Errorf("while writing %s: %w", tmpName, err)
	}
	if syncer, ok := tmp.(interface{ Sync() error }); ok {
		if err := syncer.Sync(); err != nil {
			tmp.Close()
			s.fs.Remove(tmpName)
			return fmt.Errorf("while syncing %s: %w", tmpName, err)
		}
	}
	if err := tmp.Close(); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("while closing %s: %w", tmpName, err)
	}
	if err := s.fs.Rename(tmpName, s.path); err != nil {
		s.fs.Remove(tmpName)
		return fmt.Errorf("while replacing %s: %w", s.path, err)
	}
	return nil
}
