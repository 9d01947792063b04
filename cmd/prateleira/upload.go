package main

import (
	"strings"

	"github.com/go-git/go-billy/v6/osfs"
	"github.com/lewtec/prateleira/annotation"
	"github.com/spf13/cobra"
)

// uploadCmd ships a completed document and its images to the server. A
// failed upload changes nothing locally and can simply be retried.
var uploadCmd = &cobra.Command{
	Use:   "upload <document-path>",
	Short: "Upload a completed annotation document to the server",
	Long: `Upload one annotation document, given by its path relative to the dataset
root, together with every image it references. Only documents whose metadata
says completed are accepted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		fs := osfs.New(cfg.DatasetRoot)
		docPath := args[0]

		var doc annotation.UploadableDocument
		if strings.HasPrefix(docPath, "batches/") {
			doc = annotation.LoadBatchDocument(fs, docPath, annotation.BatchMeta{})
		} else {
			doc = annotation.LoadSessionDocument(fs, docPath, "")
		}

		uploader := annotation.NewHTTPUploader(cfg.ServerURL, fs)
		return uploader.Upload(cmd.Context(), docPath, doc)
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}
