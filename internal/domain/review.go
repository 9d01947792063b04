package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Decisions a reviewer can record. The set is closed: anything else is
// rejected before counters are touched.
const (
	DecisionAccepted  = "accepted"
	DecisionCorrected = "corrected"
)

// ErrUnknownDecision marks a decision value outside the closed decision set.
var ErrUnknownDecision = errors.New("unknown decision")

// NormalizeDecision folds case and whitespace and validates the result
// against the closed decision set.
func NormalizeDecision(raw string) (string, error) {
	decision := strings.ToLower(strings.TrimSpace(raw))
	switch decision {
	case DecisionAccepted, DecisionCorrected:
		return decision, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDecision, raw)
}

// ReviewRecord is one reviewer's verdict on one pair. At most one record
// exists per (pair, reviewer); a later different decision replaces it.
type ReviewRecord struct {
	PairID    string
	Reviewer  string
	Predicted string
	Expected  string
	Decision  string
	ModelName string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReviewerStats tallies one reviewer's decisions.
type ReviewerStats struct {
	Reviewer  string
	Accepted  int64
	Corrected int64
	Total     int64
}

// ModelStats tallies decisions against one model's predictions. Accuracy is
// nil when the model has no decided pairs.
type ModelStats struct {
	ModelName string
	Accepted  int64
	Corrected int64
	Accuracy  *float64
}

// ClassErrorRate is one (model, expected class) error rate. ErrorRate is
// incorrect/(correct+incorrect), 0.0 with no data.
type ClassErrorRate struct {
	ModelName string
	Class     string
	Correct   int64
	Incorrect int64
	ErrorRate float64
}

// AnnotatorProgress is one annotator's review completion for one model.
type AnnotatorProgress struct {
	Total    int
	Reviewed int
	Left     int
	Progress float64
}

// ReviewRepository defines the review aggregation store: one decision per
// (pair, reviewer) plus running per-decision counters that always match the
// records.
type ReviewRepository interface {
	// InsertOrUpdateReview records a decision, replacing a prior different
	// one and keeping the counters consistent. Re-submitting the same
	// decision is a no-op.
	InsertOrUpdateReview(ctx context.Context, pairID, reviewer, predicted, expected, decision, modelName string) (*ReviewRecord, error)

	// Get retrieves the record for (pairID, reviewer), nil when absent.
	Get(ctx context.Context, pairID, reviewer string) (*ReviewRecord, error)

	// Counters returns the per-decision running counters. Absent decisions
	// read as zero.
	Counters(ctx context.Context) (map[string]int64, error)

	// ReviewedPairIDs lists the pairs with a decision for a model.
	ReviewedPairIDs(ctx context.Context, modelName string) ([]string, error)

	// StatsByReviewer tallies accepted/corrected/total per reviewer.
	StatsByReviewer(ctx context.Context) ([]*ReviewerStats, error)

	// StatsByModel tallies accepted/corrected/accuracy per model.
	StatsByModel(ctx context.Context) ([]*ModelStats, error)

	// ClassErrorRates computes one model's per-class error rates, sorted
	// descending by error rate.
	ClassErrorRates(ctx context.Context, modelName string) ([]*ClassErrorRate, error)
}
