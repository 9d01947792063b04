package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/lewtec/prateleira/internal/domain"
)

func setupRepo(t *testing.T) *ReviewRepository {
	t.Helper()
	db := SetupTestDB(t)
	t.Cleanup(func() { CleanupTestDB(t, db) })
	return NewReviewRepository(db)
}

func TestInsertOrUpdateReview(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	t.Run("first decision inserts and counts", func(t *testing.T) {
		rec, err := repo.InsertOrUpdateReview(ctx, "p1", "rev1", "annotated", "nothing", domain.DecisionAccepted, "detector-v2")
		if err != nil {
			t.Fatalf("InsertOrUpdateReview() error = %v", err)
		}
		if rec.Decision != domain.DecisionAccepted {
			t.Errorf("decision = %q, want accepted", rec.Decision)
		}
		if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
			t.Error("timestamps must be set")
		}

		counters, err := repo.Counters(ctx)
		if err != nil {
			t.Fatalf("Counters() error = %v", err)
		}
		want := map[string]int64{domain.DecisionAccepted: 1}
		if !reflect.DeepEqual(counters, want) {
			t.Errorf("Counters() = %v, want %v", counters, want)
		}
	})

	t.Run("changed decision moves the count", func(t *testing.T) {
		rec, err := repo.InsertOrUpdateReview(ctx, "p1", "rev1", "annotated", "nothing", domain.DecisionCorrected, "detector-v2")
		if err != nil {
			t.Fatalf("InsertOrUpdateReview() error = %v", err)
		}
		if rec.Decision != domain.DecisionCorrected {
			t.Errorf("decision = %q, want corrected", rec.Decision)
		}

		counters, err := repo.Counters(ctx)
		if err != nil {
			t.Fatalf("Counters() error = %v", err)
		}
		want := map[string]int64{domain.DecisionAccepted: 0, domain.DecisionCorrected: 1}
		if !reflect.DeepEqual(counters, want) {
			t.Errorf("Counters() = %v, want %v", counters, want)
		}
	})

	t.Run("same decision again is a no-op", func(t *testing.T) {
		before, err := repo.Get(ctx, "p1", "rev1")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		rec, err := repo.InsertOrUpdateReview(ctx, "p1", "rev1", "annotated", "nothing", domain.DecisionCorrected, "detector-v2")
		if err != nil {
			t.Fatalf("InsertOrUpdateReview() error = %v", err)
		}
		if !rec.UpdatedAt.Equal(before.UpdatedAt) {
			t.Errorf("updated_at moved from %v to %v on a no-op", before.UpdatedAt, rec.UpdatedAt)
		}
		counters, err := repo.Counters(ctx)
		if err != nil {
			t.Fatalf("Counters() error = %v", err)
		}
		if counters[domain.DecisionCorrected] != 1 {
			t.Errorf("corrected counter = %d, want 1", counters[domain.DecisionCorrected])
		}
	})
}

func TestInsertOrUpdateReviewNormalizesDecision(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	rec, err := repo.InsertOrUpdateReview(ctx, "p1", "rev1", "", "", "  Accepted ", "detector-v2")
	if err != nil {
		t.Fatalf("InsertOrUpdateReview() error = %v", err)
	}
	if rec.Decision != domain.DecisionAccepted {
		t.Errorf("decision = %q, want the normalized form", rec.Decision)
	}
}

func TestInsertOrUpdateReviewRejectsUnknownDecision(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	_, err := repo.InsertOrUpdateReview(ctx, "p1", "rev1", "", "", "maybe", "detector-v2")
	if !errors.Is(err, domain.ErrUnknownDecision) {
		t.Fatalf("InsertOrUpdateReview() = %v, want ErrUnknownDecision", err)
	}

	// Nothing may have been touched.
	counters, err := repo.Counters(ctx)
	if err != nil {
		t.Fatalf("Counters() error = %v", err)
	}
	if len(counters) != 0 {
		t.Errorf("Counters() = %v, want empty", counters)
	}
	rec, err := repo.Get(ctx, "p1", "rev1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec != nil {
		t.Errorf("Get() = %+v, want nil", rec)
	}
}

func TestCountersStayConsistent(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	// A sequence of flips across pairs and reviewers; the counters must
	// always equal the decision distribution of the records.
	steps := []struct{ pair, reviewer, decision string }{
		{"p1", "rev1", domain.DecisionAccepted},
		{"p2", "rev1", domain.DecisionAccepted},
		{"p1", "rev2", domain.DecisionCorrected},
		{"p1", "rev1", domain.DecisionCorrected},
		{"p1", "rev1", domain.DecisionAccepted},
		{"p2", "rev1", domain.DecisionAccepted},
	}
	for i, s := range steps {
		if _, err := repo.InsertOrUpdateReview(ctx, s.pair, s.reviewer, "", "", s.decision, "m"); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	counters, err := repo.Counters(ctx)
	if err != nil {
		t.Fatalf("Counters() error = %v", err)
	}
	// Records: (p1,rev1)=accepted, (p2,rev1)=accepted, (p1,rev2)=corrected.
	if counters[domain.DecisionAccepted] != 2 || counters[domain.DecisionCorrected] != 1 {
		t.Errorf("Counters() = %v, want accepted=2 corrected=1", counters)
	}
}

func TestGetAbsentRecord(t *testing.T) {
	repo := setupRepo(t)

	rec, err := repo.Get(context.Background(), "nope", "rev1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if rec != nil {
		t.Errorf("Get() = %+v, want nil", rec)
	}
}

func TestReviewedPairIDs(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	seed := []struct{ pair, reviewer, model string }{
		{"p3", "rev1", "detector-v2"},
		{"p1", "rev1", "detector-v2"},
		{"p1", "rev2", "detector-v2"}, // second reviewer, same pair
		{"p9", "rev1", "detector-v1"},
	}
	for _, s := range seed {
		if _, err := repo.InsertOrUpdateReview(ctx, s.pair, s.reviewer, "", "", domain.DecisionAccepted, s.model); err != nil {
			t.Fatalf("seed %s: %v", s.pair, err)
		}
	}

	ids, err := repo.ReviewedPairIDs(ctx, "detector-v2")
	if err != nil {
		t.Fatalf("ReviewedPairIDs() error = %v", err)
	}
	if !reflect.DeepEqual(ids, []string{"p1", "p3"}) {
		t.Errorf("ReviewedPairIDs() = %v, want [p1 p3] distinct and sorted", ids)
	}
}

func TestStatsByReviewer(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	seed := []struct{ pair, reviewer, decision string }{
		{"p1", "rev1", domain.DecisionAccepted},
		{"p2", "rev1", domain.DecisionCorrected},
		{"p3", "rev1", domain.DecisionAccepted},
		{"p1", "rev2", domain.DecisionCorrected},
	}
	for _, s := range seed {
		if _, err := repo.InsertOrUpdateReview(ctx, s.pair, s.reviewer, "", "", s.decision, "m"); err != nil {
			t.Fatalf("seed %s/%s: %v", s.pair, s.reviewer, err)
		}
	}

	stats, err := repo.StatsByReviewer(ctx)
	if err != nil {
		t.Fatalf("StatsByReviewer() error = %v", err)
	}
	want := []*domain.ReviewerStats{
		{Reviewer: "rev1", Accepted: 2, Corrected: 1, Total: 3},
		{Reviewer: "rev2", Accepted: 0, Corrected: 1, Total: 1},
	}
	if !reflect.DeepEqual(stats, want) {
		t.Errorf("StatsByReviewer() = %v, want %v", dump(stats), dump(want))
	}
}

func TestStatsByModel(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	seed := []struct{ pair, decision, model string }{
		{"p1", domain.DecisionAccepted, "detector-v2"},
		{"p2", domain.DecisionAccepted, "detector-v2"},
		{"p3", domain.DecisionCorrected, "detector-v2"},
		{"p4", domain.DecisionCorrected, "detector-v1"},
	}
	for _, s := range seed {
		if _, err := repo.InsertOrUpdateReview(ctx, s.pair, "rev1", "", "", s.decision, s.model); err != nil {
			t.Fatalf("seed %s: %v", s.pair, err)
		}
	}

	stats, err := repo.StatsByModel(ctx)
	if err != nil {
		t.Fatalf("StatsByModel() error = %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("got %d models, want 2", len(stats))
	}
	v1, v2 := stats[0], stats[1]
	if v1.ModelName != "detector-v1" || v2.ModelName != "detector-v2" {
		t.Fatalf("model order = %s, %s", v1.ModelName, v2.ModelName)
	}
	if v1.Accuracy == nil || *v1.Accuracy != 0 {
		t.Errorf("detector-v1 accuracy = %v, want 0", v1.Accuracy)
	}
	if v2.Accuracy == nil || *v2.Accuracy != 2.0/3.0 {
		t.Errorf("detector-v2 accuracy = %v, want 2/3", v2.Accuracy)
	}
}

func TestClassErrorRates(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	seed := []struct{ pair, expected, decision string }{
		{"p1", "nothing", domain.DecisionAccepted},
		{"p2", "nothing", domain.DecisionAccepted},
		{"p3", "nothing", domain.DecisionCorrected},
		{"p4", "chaos", domain.DecisionCorrected},
		{"p5", "annotated", domain.DecisionAccepted},
	}
	for _, s := range seed {
		if _, err := repo.InsertOrUpdateReview(ctx, s.pair, "rev1", "", s.expected, s.decision, "detector-v2"); err != nil {
			t.Fatalf("seed %s: %v", s.pair, err)
		}
	}

	rates, err := repo.ClassErrorRates(ctx, "detector-v2")
	if err != nil {
		t.Fatalf("ClassErrorRates() error = %v", err)
	}
	if len(rates) != 3 {
		t.Fatalf("got %d classes, want 3", len(rates))
	}
	// Sorted descending by rate: chaos 1.0, nothing 1/3, annotated 0.
	if rates[0].Class != "chaos" || rates[0].ErrorRate != 1 {
		t.Errorf("rates[0] = %+v, want chaos at 1.0", rates[0])
	}
	if rates[1].Class != "nothing" || rates[1].ErrorRate != 1.0/3.0 {
		t.Errorf("rates[1] = %+v, want nothing at 1/3", rates[1])
	}
	if rates[2].Class != "annotated" || rates[2].ErrorRate != 0 {
		t.Errorf("rates[2] = %+v, want annotated at 0", rates[2])
	}
}

func dump(stats []*domain.ReviewerStats) string {
	out := ""
	for _, s := range stats {
		out += fmt.Sprintf("%+v ", *s)
	}
	return out
}

func BenchmarkInsertOrUpdateReview(b *testing.B) {
	db := SetupTestDB(b)
	defer CleanupTestDB(b, db)
	repo := NewReviewRepository(db)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pair := fmt.Sprintf("p%d", i)
		if _, err := repo.InsertOrUpdateReview(ctx, pair, "rev1", "", "", domain.DecisionAccepted, "m"); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCounters(b *testing.B) {
	db := SetupTestDB(b)
	defer CleanupTestDB(b, db)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		pair := fmt.Sprintf("p%d", i)
		if _, err := repo.InsertOrUpdateReview(ctx, pair, "rev1", "", "", domain.DecisionAccepted, "m"); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := repo.Counters(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
