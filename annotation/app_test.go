package annotation

import (
	"context"
	"testing"

	billy "github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/memfs"
)

func testConfig() *Config {
	return &Config{
		DatasetRoot: ".",
		Username:    "ann1",
		MinBoxEdge:  DefaultMinBoxEdge,
	}
}

func setupSessionApp(t *testing.T) (*App, billy.Filesystem) {
	t.Helper()
	fs := memfs.New()
	touchFiles(t, fs,
		"run_a/001.jpg", "run_a/002.jpg", "run_a/003.jpg",
		"run_b/001.jpg", "run_b/002.jpg",
	)
	app, err := NewSessionApp(context.Background(), testConfig(), fs)
	if err != nil {
		t.Fatalf("NewSessionApp() error = %v", err)
	}
	return app, fs
}

func TestAppAutoSaveOnLeave(t *testing.T) {
	app, fs := setupSessionApp(t)
	ctx := context.Background()

	// The untouched pair being left defaults to no_annotation.
	if _, err := app.Next(ctx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	doc := LoadSessionDocument(fs, "run_a/annotations.json", "run_a")
	entry, ok := doc.Pairs["0"]
	if !ok {
		t.Fatal("leaving the pair must persist an entry")
	}
	if entry.State != string(StateNoAnnotation) {
		t.Errorf("state = %q, want no_annotation", entry.State)
	}
}

func TestAppExplicitSaveSuppressesLeaveDefault(t *testing.T) {
	app, fs := setupSessionApp(t)
	ctx := context.Background()

	if err := app.Classify(ctx, StateChaos); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if _, err := app.Next(ctx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}

	doc := LoadSessionDocument(fs, "run_a/annotations.json", "run_a")
	if doc.Pairs["0"].State != string(StateChaos) {
		t.Errorf("state = %q, the explicit classification must survive the leave", doc.Pairs["0"].State)
	}
}

func TestAppRepointsAcrossSessionBoundary(t *testing.T) {
	app, fs := setupSessionApp(t)
	ctx := context.Background()

	// run_a has two pairs; the third move crosses into run_b.
	if _, err := app.Next(ctx); err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	step, err := app.Next(ctx)
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if !step.CrossedUnit() {
		t.Fatal("expected a unit crossing")
	}
	if got := app.Store.Path(); got != "run_b/annotations.json" {
		t.Errorf("store path = %q, want run_b/annotations.json", got)
	}

	// Every pair left on the way out of run_a got its leave default.
	doc := LoadSessionDocument(fs, "run_a/annotations.json", "run_a")
	for _, key := range []string{"0", "1"} {
		if doc.Pairs[key].State != string(StateNoAnnotation) {
			t.Errorf("run_a pair %s state = %q, want no_annotation", key, doc.Pairs[key].State)
		}
	}
	if !doc.Meta.Completed {
		t.Error("run_a must be completed after every pair was saved")
	}
}

func TestAppHydratesFromPersistedEntry(t *testing.T) {
	fs := memfs.New()
	touchFiles(t, fs, "run_a/001.jpg", "run_a/002.jpg")

	// A previous run classified the pair.
	st := NewStore(fs)
	st.OpenSession("run_a/annotations.json", "run_a", 1)
	prior := &Pair{ID: "run_a@0", Image1Ref: "run_a/001.jpg", Image2Ref: "run_a/002.jpg"}
	prior.Classify(StateChaos)
	if err := st.SavePair(context.Background(), prior, PairContext{Index: 0}); err != nil {
		t.Fatalf("SavePair() error = %v", err)
	}

	app, err := NewSessionApp(context.Background(), testConfig(), fs)
	if err != nil {
		t.Fatalf("NewSessionApp() error = %v", err)
	}
	if got := app.Current().State; got != StateChaos {
		t.Errorf("resumed pair state = %q, want chaos", got)
	}
}

func TestAppAddBox(t *testing.T) {
	app, fs := setupSessionApp(t)
	ctx := context.Background()

	t.Run("a draw gesture annotates the pair", func(t *testing.T) {
		bp, err := app.AddBox(ctx, 30, 40, 10, 20)
		if err != nil {
			t.Fatalf("AddBox() error = %v", err)
		}
		if bp.ID == "" {
			t.Error("box pair must get an id")
		}
		doc := LoadSessionDocument(fs, "run_a/annotations.json", "run_a")
		if doc.Pairs["0"].State != string(StateAnnotated) {
			t.Errorf("state = %q, want annotated", doc.Pairs["0"].State)
		}
	})

	t.Run("a degenerate gesture creates nothing", func(t *testing.T) {
		if _, err := app.AddBox(ctx, 10, 10, 11, 11); err == nil {
			t.Error("AddBox() must reject a box below the minimum edge")
		}
	})
}

func TestAppDeleteLastBoxFallsBack(t *testing.T) {
	app, fs := setupSessionApp(t)
	ctx := context.Background()

	bp, err := app.AddBox(ctx, 0, 0, 50, 50)
	if err != nil {
		t.Fatalf("AddBox() error = %v", err)
	}
	if err := app.DeleteBox(ctx, bp.ID); err != nil {
		t.Fatalf("DeleteBox() error = %v", err)
	}

	doc := LoadSessionDocument(fs, "run_a/annotations.json", "run_a")
	if doc.Pairs["0"].State != string(StateNoAnnotation) {
		t.Errorf("state = %q, want no_annotation after the last box is gone", doc.Pairs["0"].State)
	}
}

func TestAppSkipSession(t *testing.T) {
	app, fs := setupSessionApp(t)

	if err := app.SkipSession(context.Background()); err != nil {
		t.Fatalf("SkipSession() error = %v", err)
	}
	doc := LoadSessionDocument(fs, "run_a/annotations.json", "run_a")
	if doc.Meta.Usable {
		t.Error("skipped session must be marked unusable")
	}
}

func TestAppBatchMode(t *testing.T) {
	fs := memfs.New()
	items := []BatchItem{
		{PairID: "p1", SessionPath: "run_a", Image1Ref: "run_a/001.jpg", Image2Ref: "run_a/002.jpg",
			Expected: "nothing", Predicted: "annotated", AnnotatedBy: "ann1", ModelName: "detector-v2"},
		{PairID: "p2", SessionPath: "run_b", Image1Ref: "run_b/001.jpg", Image2Ref: "run_b/002.jpg"},
	}
	batch := NewBatchUnit("b1", "review", "rev1", items)
	app, err := NewBatchApp(context.Background(), testConfig(), fs, batch)
	if err != nil {
		t.Fatalf("NewBatchApp() error = %v", err)
	}
	ctx := context.Background()

	t.Run("saves carry the item's review fields", func(t *testing.T) {
		if err := app.Classify(ctx, StateNothing); err != nil {
			t.Fatalf("Classify() error = %v", err)
		}
		doc := LoadBatchDocument(fs, "batches/b1.json", batch.Meta())
		item, ok := doc.Items["run_a|p1"]
		if !ok {
			t.Fatal("item missing under the composite key")
		}
		if item.Predicted != "annotated" || item.ModelName != "detector-v2" {
			t.Errorf("review fields lost: %+v", item)
		}
	})

	t.Run("merge does not disturb the cursor", func(t *testing.T) {
		before := app.Position()
		added, err := app.MergeBatchItems([]BatchItem{{PairID: "p3", SessionPath: "run_c"}})
		if err != nil {
			t.Fatalf("MergeBatchItems() error = %v", err)
		}
		if added != 1 {
			t.Errorf("added = %d, want 1", added)
		}
		after := app.Position()
		if before.Inner != after.Inner || before.Outer != after.Outer {
			t.Error("merge moved the cursor")
		}
		if !app.HasNextGlobal() {
			t.Error("merged items must be reachable")
		}
	})

	t.Run("skip is a session-only action", func(t *testing.T) {
		if err := app.SkipSession(ctx); err == nil {
			t.Error("SkipSession() must fail in batch mode")
		}
	})
}
