package annotation

import (
	"context"
	"sort"

	"github.com/lewtec/prateleira/internal/domain"
)

// Progress derives review completion from the batch documents and the
// review aggregation store. All computations are read-only.
type Progress struct {
	Docs    []*BatchDocument
	Reviews domain.ReviewRepository
}

// LeftForReview returns the pairs of a model that no reviewer has decided
// yet: all pair ids seen in the batch documents minus the reviewed set.
func (p *Progress) LeftForReview(ctx context.Context, modelName string) ([]string, error) {
	all := p.pairIDs(func(item BatchItemEntry) bool { return item.ModelName == modelName })
	reviewed, err := p.Reviews.ReviewedPairIDs(ctx, modelName)
	if err != nil {
		return nil, err
	}
	return subtract(all, reviewed), nil
}

// AnnotatorProgress reports how much of one annotator's work has been
// reviewed for a model.
func (p *Progress) AnnotatorProgress(ctx context.Context, modelName, annotator string) (domain.AnnotatorProgress, error) {
	byAnnotator := p.pairIDs(func(item BatchItemEntry) bool { return item.AnnotatedBy == annotator })
	reviewed, err := p.Reviews.ReviewedPairIDs(ctx, modelName)
	if err != nil {
		return domain.AnnotatorProgress{}, err
	}
	reviewedSet := make(map[string]bool, len(reviewed))
	for _, id := range reviewed {
		reviewedSet[id] = true
	}
	done := 0
	for _, id := range byAnnotator {
		if reviewedSet[id] {
			done++
		}
	}
	progress := domain.AnnotatorProgress{
		Total:    len(byAnnotator),
		Reviewed: done,
		Left:     len(byAnnotator) - done,
	}
	if progress.Total > 0 {
		progress.Progress = float64(progress.Reviewed) / float64(progress.Total)
	}
	return progress, nil
}

// pairIDs collects the distinct pair ids of every batch item matching the
// filter, sorted.
func (p *Progress) pairIDs(match func(BatchItemEntry) bool) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, doc := range p.Docs {
		for _, item := range doc.Items {
			if !match(item) || seen[item.PairID] {
				continue
			}
			seen[item.PairID] = true
			ids = append(ids, item.PairID)
		}
	}
	sort.Strings(ids)
	return ids
}

// subtract returns the members of all that are not in remove, preserving
// the order of all.
func subtract(all, remove []string) []string {
	removed := make(map[string]bool, len(remove))
	for _, id := range remove {
		removed[id] = true
	}
	left := make([]string, 0, len(all))
	for _, id := range all {
		if !removed[id] {
			left = append(left, id)
		}
	}
	return left
}
