package annotation

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config carries everything the engine needs explicitly; there are no
// process-wide settings.
type Config struct {
	// DatasetRoot is the directory holding session directories and the
	// batches subdirectory.
	DatasetRoot string `yaml:"dataset_root"`
	// Username identifies the annotator or reviewer in saved documents and
	// review records.
	Username string `yaml:"username"`
	// ServerURL is the base URL of the upload/batch server.
	ServerURL string `yaml:"server_url"`
	// ReviewDB is the path of the review aggregation database.
	ReviewDB string `yaml:"review_db"`
	// MinBoxEdge is the smallest box width or height accepted from a draw
	// gesture, in pixels.
	MinBoxEdge float64 `yaml:"min_box_edge"`
}

// LoadConfig reads and validates a YAML config file, filling defaults.
func LoadConfig(filename string) (*Config, error) {
	var ret Config
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(data, &ret)
	if err != nil {
		return nil, err
	}
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return &ret, nil
}

// Validate checks required fields and fills defaults.
func (c *Config) Validate() error {
	if c.DatasetRoot == "" {
		return fmt.Errorf("config: dataset_root is required")
	}
	if c.Username == "" {
		return fmt.Errorf("config: username is required")
	}
	if c.MinBoxEdge == 0 {
		c.MinBoxEdge = DefaultMinBoxEdge
	}
	if c.MinBoxEdge < 0 {
		return fmt.Errorf("config: min_box_edge must be positive, got %g", c.MinBoxEdge)
	}
	if c.ReviewDB == "" {
		c.ReviewDB = filepath.Join(c.DatasetRoot, "reviews.db")
	}
	return nil
}
