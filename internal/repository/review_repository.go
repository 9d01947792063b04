package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lewtec/prateleira/internal/domain"
)

// ReviewRepository implements domain.ReviewRepository on SQLite. A single
// mutex serializes every mutation: the record lookup, the counter moves and
// the record write are one critical section, so the counters can never drift
// from the records.
type ReviewRepository struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewReviewRepository creates a ReviewRepository over db.
func NewReviewRepository(db *sql.DB) *ReviewRepository {
	return &ReviewRepository{db: db, now: time.Now}
}

// InsertOrUpdateReview records a decision for (pairID, reviewer).
// The decision is normalized and validated before anything is touched. A
// resubmission with the same decision short-circuits; a different decision
// moves one count from the old decision's counter to the new one and
// overwrites the record, all in one transaction under the mutex.
func (r *ReviewRepository) InsertOrUpdateReview(ctx context.Context, pairID, reviewer, predicted, expected, decision, modelName string) (*domain.ReviewRecord, error) {
	decision, err := domain.NormalizeDecision(decision)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("while starting review transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT decision FROM reviews WHERE pair_id = ? AND reviewer = ?`,
		pairID, reviewer).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		now := r.now().UTC()
		if err := bumpCounter(ctx, tx, decision, 1); err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO reviews (pair_id, reviewer, predicted, expected, decision, model_name, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			pairID, reviewer, predicted, expected, decision, modelName, now, now)
		if err != nil {
			return nil, fmt.Errorf("while inserting review for pair %s: %w", pairID, err)
		}
	case err != nil:
		return nil, fmt.Errorf("while looking up review for pair %s: %w", pairID, err)
	case existing == decision:
		// Same verdict again: nothing moves, counters and timestamps stay.
		return r.get(ctx, tx, pairID, reviewer)
	default:
		if err := bumpCounter(ctx, tx, existing, -1); err != nil {
			return nil, err
		}
		if err := bumpCounter(ctx, tx, decision, 1); err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE reviews SET predicted = ?, expected = ?, decision = ?, model_name = ?, updated_at = ?
			 WHERE pair_id = ? AND reviewer = ?`,
			predicted, expected, decision, modelName, r.now().UTC(), pairID, reviewer)
		if err != nil {
			return nil, fmt.Errorf("while updating review for pair %s: %w", pairID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("while committing review for pair %s: %w", pairID, err)
	}
	return r.get(ctx, r.db, pairID, reviewer)
}

// bumpCounter moves one decision counter by delta, creating the row on first
// use so absent decisions read as zero.
func bumpCounter(ctx context.Context, tx *sql.Tx, decision string, delta int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO review_counters (decision, count) VALUES (?, ?)
		 ON CONFLICT(decision) DO UPDATE SET count = count + excluded.count`,
		decision, delta)
	if err != nil {
		return fmt.Errorf("while moving counter %s by %d: %w", decision, delta, err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *ReviewRepository) get(ctx context.Context, q querier, pairID, reviewer string) (*domain.ReviewRecord, error) {
	rec := domain.ReviewRecord{}
	err := q.QueryRowContext(ctx,
		`SELECT pair_id, reviewer, predicted, expected, decision, model_name, created_at, updated_at
		 FROM reviews WHERE pair_id = ? AND reviewer = ?`,
		pairID, reviewer).Scan(
		&rec.PairID, &rec.Reviewer, &rec.Predicted, &rec.Expected,
		&rec.Decision, &rec.ModelName, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("while fetching review for pair %s: %w", pairID, err)
	}
	return &rec, nil
}

// Get retrieves the record for (pairID, reviewer), nil when absent.
func (r *ReviewRepository) Get(ctx context.Context, pairID, reviewer string) (*domain.ReviewRecord, error) {
	return r.get(ctx, r.db, pairID, reviewer)
}

// Counters returns the per-decision running counters.
func (r *ReviewRepository) Counters(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT decision, count FROM review_counters`)
	if err != nil {
		return nil, fmt.Errorf("while reading counters: %w", err)
	}
	defer rows.Close()
	counters := make(map[string]int64)
	for rows.Next() {
		var decision string
		var count int64
		if err := rows.Scan(&decision, &count); err != nil {
			return nil, err
		}
		counters[decision] = count
	}
	return counters, rows.Err()
}

// ReviewedPairIDs lists the pairs with a decision for a model.
func (r *ReviewRepository) ReviewedPairIDs(ctx context.Context, modelName string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT pair_id FROM reviews WHERE model_name = ? ORDER BY pair_id`, modelName)
	if err != nil {
		return nil, fmt.Errorf("while listing reviewed pairs for model %s: %w", modelName, err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// StatsByReviewer tallies accepted/corrected/total per reviewer.
func (r *ReviewRepository) StatsByReviewer(ctx context.Context) ([]*domain.ReviewerStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT reviewer,
		       COALESCE(SUM(CASE WHEN decision = 'accepted' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN decision = 'corrected' THEN 1 ELSE 0 END), 0),
		       COUNT(*)
		FROM reviews
		GROUP BY reviewer
		ORDER BY reviewer`)
	if err != nil {
		return nil, fmt.Errorf("while computing reviewer stats: %w", err)
	}
	defer rows.Close()
	var stats []*domain.ReviewerStats
	for rows.Next() {
		s := domain.ReviewerStats{}
		if err := rows.Scan(&s.Reviewer, &s.Accepted, &s.Corrected, &s.Total); err != nil {
			return nil, err
		}
		stats = append(stats, &s)
	}
	return stats, rows.Err()
}

// StatsByModel tallies accepted/corrected per model. Accuracy is nil when a
// model has no accepted or corrected decisions.
func (r *ReviewRepository) StatsByModel(ctx context.Context) ([]*domain.ModelStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT model_name,
		       COALESCE(SUM(CASE WHEN decision = 'accepted' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN decision = 'corrected' THEN 1 ELSE 0 END), 0)
		FROM reviews
		GROUP BY model_name
		ORDER BY model_name`)
	if err != nil {
		return nil, fmt.Errorf("while computing model stats: %w", err)
	}
	defer rows.Close()
	var stats []*domain.ModelStats
	for rows.Next() {
		s := domain.ModelStats{}
		if err := rows.Scan(&s.ModelName, &s.Accepted, &s.Corrected); err != nil {
			return nil, err
		}
		if total := s.Accepted + s.Corrected; total > 0 {
			accuracy := float64(s.Accepted) / float64(total)
			s.Accuracy = &accuracy
		}
		stats = append(stats, &s)
	}
	return stats, rows.Err()
}

// ClassErrorRates computes one model's per-expected-class error rates,
// sorted descending by error rate.
func (r *ReviewRepository) ClassErrorRates(ctx context.Context, modelName string) ([]*domain.ClassErrorRate, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT expected,
		       COALESCE(SUM(CASE WHEN decision = 'accepted' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN decision = 'corrected' THEN 1 ELSE 0 END), 0)
		FROM reviews
		WHERE model_name = ?
		GROUP BY expected`, modelName)
	if err != nil {
		return nil, fmt.Errorf("while computing class error rates for model %s: %w", modelName, err)
	}
	defer rows.Close()
	var rates []*domain.ClassErrorRate
	for rows.Next() {
		c := domain.ClassErrorRate{ModelName: modelName}
		if err := rows.Scan(&c.Class, &c.Correct, &c.Incorrect); err != nil {
			return nil, err
		}
		if total := c.Correct + c.Incorrect; total > 0 {
			c.ErrorRate = float64(c.Incorrect) / float64(total)
		}
		rates = append(rates, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(rates, func(i, j int) bool {
		if rates[i].ErrorRate != rates[j].ErrorRate {
			return rates[i].ErrorRate > rates[j].ErrorRate
		}
		return rates[i].Class < rates[j].Class
	})
	return rates, nil
}

// Verify that ReviewRepository implements domain.ReviewRepository
var _ domain.ReviewRepository = (*ReviewRepository)(nil)
