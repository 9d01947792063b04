package main

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	billy "github.com/go-git/go-billy/v6"
	"github.com/go-git/go-billy/v6/osfs"
	"github.com/lewtec/prateleira/annotation"
	"github.com/lewtec/prateleira/internal/repository"
	"github.com/spf13/cobra"
)

// progressCmd reports which pairs are left to review for a model and,
// optionally, one annotator's completion.
var progressCmd = &cobra.Command{
	Use:   "progress --model <model> [--annotator <user>]",
	Short: "Show review progress for a model",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := repository.Open(cfg.ReviewDB)
		if err != nil {
			return err
		}
		defer db.Close()

		fs := osfs.New(cfg.DatasetRoot)
		docs, err := loadBatchDocuments(fs)
		if err != nil {
			return err
		}
		progress := &annotation.Progress{
			Docs:    docs,
			Reviews: repository.NewReviewRepository(db),
		}

		model, _ := cmd.Flags().GetString("model")
		left, err := progress.LeftForReview(cmd.Context(), model)
		if err != nil {
			return err
		}
		cmd.Printf("%d pairs left for review of %s\n", len(left), model)
		for _, id := range left {
			cmd.Printf("  %s\n", id)
		}

		annotator, _ := cmd.Flags().GetString("annotator")
		if annotator != "" {
			p, err := progress.AnnotatorProgress(cmd.Context(), model, annotator)
			if err != nil {
				return err
			}
			cmd.Printf("%s: %d of %d reviewed (%.1f%%), %d left\n",
				annotator, p.Reviewed, p.Total, 100*p.Progress, p.Left)
		}
		return nil
	},
}

// loadBatchDocuments reads every batch document under the batches directory
// of the dataset root.
func loadBatchDocuments(fs billy.Filesystem) ([]*annotation.BatchDocument, error) {
	infos, err := fs.ReadDir("batches")
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("while listing batch documents: %w", err)
	}
	var docs []*annotation.BatchDocument
	for _, fi := range infos {
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), ".json") {
			continue
		}
		docs = append(docs, annotation.LoadBatchDocument(fs, path.Join("batches", fi.Name()), annotation.BatchMeta{}))
	}
	return docs, nil
}

func init() {
	rootCmd.AddCommand(progressCmd)

	progressCmd.Flags().StringP("model", "m", "", "Model to report on")
	progressCmd.MarkFlagRequired("model")
	progressCmd.Flags().StringP("annotator", "a", "", "Also show this annotator's completion")
}
