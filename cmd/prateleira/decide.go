package main

import (
	"log"

	"github.com/lewtec/prateleira/internal/repository"
	"github.com/spf13/cobra"
)

// decideCmd records one review decision and shows the updated counters.
var decideCmd = &cobra.Command{
	Use:   "decide <pair-id> <accepted|corrected>",
	Short: "Record a review decision for a pair",
	Long: `Record one reviewer verdict for a pair. Submitting a different decision for
the same pair replaces the earlier one; submitting the same decision again
changes nothing.`,
	Args: cobra.ExactArgs(2),
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

		model, _ := cmd.Flags().GetString("model")
		predicted, _ := cmd.Flags().GetString("predicted")
		expected, _ := cmd.Flags().GetString("expected")

		repo := repository.NewReviewRepository(db)
		rec, err := repo.InsertOrUpdateReview(cmd.Context(), args[0], cfg.Username, predicted, expected, args[1], model)
		if err != nil {
			return err
		}
		log.Printf("decide: pair %s is %s by %s", rec.PairID, rec.Decision, rec.Reviewer)

		counters, err := repo.Counters(cmd.Context())
		if err != nil {
			return err
		}
		for decision, count := range counters {
			cmd.Printf("%s: %d\n", decision, count)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decideCmd)

	decideCmd.Flags().StringP("model", "m", "", "Model whose prediction is under review")
	decideCmd.Flags().String("predicted", "", "State the model predicted")
	decideCmd.Flags().String("expected", "", "State the annotator assigned")
}
