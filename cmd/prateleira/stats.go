package main

import (
	"github.com/davecgh/go-spew/spew"
	"github.com/lewtec/prateleira/internal/repository"
	"github.com/spf13/cobra"
)

// statsCmd prints the review aggregates.
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-reviewer and per-model review statistics",
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
		repo := repository.NewReviewRepository(db)

		reviewers, err := repo.StatsByReviewer(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Println("Per reviewer:")
		for _, s := range reviewers {
			cmd.Printf("  %s: accepted %d, corrected %d, total %d\n", s.Reviewer, s.Accepted, s.Corrected, s.Total)
		}

		models, err := repo.StatsByModel(cmd.Context())
		if err != nil {
			return err
		}
		cmd.Println("Per model:")
		for _, s := range models {
			if s.Accuracy != nil {
				cmd.Printf("  %s: accepted %d, corrected %d, accuracy %.3f\n", s.ModelName, s.Accepted, s.Corrected, *s.Accuracy)
			} else {
				cmd.Printf("  %s: accepted %d, corrected %d, accuracy n/a\n", s.ModelName, s.Accepted, s.Corrected)
			}
		}

		model, _ := cmd.Flags().GetString("model")
		if model != "" {
			rates, err := repo.ClassErrorRates(cmd.Context(), model)
			if err != nil {
				return err
			}
			cmd.Printf("Error rates for %s:\n", model)
			for _, r := range rates {
				cmd.Printf("  %s: %.3f (%d wrong of %d)\n", r.Class, r.ErrorRate, r.Incorrect, r.Correct+r.Incorrect)
			}
		}

		if dump, _ := cmd.Flags().GetBool("dump"); dump {
			spew.Dump(reviewers, models)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().StringP("model", "m", "", "Also show per-class error rates for this model")
	statsCmd.Flags().Bool("dump", false, "Dump the raw aggregates")
}
