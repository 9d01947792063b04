package annotation

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"

	billy "github.com/go-git/go-billy/v6"
)

// ImageSource resolves an image reference, a dataset-relative path or a
// remote URL, to its byte content and intrinsic size. The engine never
// decodes pixels; sizes are read from the image header.
type ImageSource struct {
	FS     billy.Filesystem
	Client *http.Client
}

// NewImageSource builds a source over the dataset filesystem that also
// follows http(s) references.
func NewImageSource(fs billy.Filesystem) *ImageSource {
	return &ImageSource{FS: fs, Client: http.DefaultClient}
}

// Resolve fetches ref and probes its intrinsic size.
func (s *ImageSource) Resolve(ctx context.Context, ref string) ([]byte, ImageSize, error) {
	var data []byte
	var err error
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		data, err = s.fetch(ctx, ref)
	} else {
		data, err = s.read(ref)
	}
	if err != nil {
		return nil, ImageSize{}, err
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, ImageSize{}, fmt.Errorf("while decoding image header of %s: %w", ref, err)
	}
	return data, ImageSize{Width: cfg.Width, Height: cfg.Height}, nil
}

func (s *ImageSource) read(ref string) ([]byte, error) {
	f, err := s.FS.Open(ref)
	if err != nil {
		return nil, fmt.Errorf("while opening image %s: %w", ref, err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("while reading image %s: %w", ref, err)
	}
	return data, nil
}

func (s *ImageSource) fetch(ctx context.Context, ref string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("while fetching image %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("while fetching image %s: status %d", ref, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("while reading image %s: %w", ref, err)
	}
	return data, nil
}
