package annotation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"time"

	billy "github.com/go-git/go-billy/v6"
)

// UploadableDocument is what the upload collaborator needs from a document:
// its completion flag and the images it references.
type UploadableDocument interface {
	Completed() bool
	ImageRefs() []string
}

// Uploader ships a completed annotation document plus its images to the
// remote store. A failed upload leaves the local document untouched and the
// attempt retryable.
type Uploader interface {
	Upload(ctx context.Context, name string, doc UploadableDocument) error
}

// HTTPUploader posts documents as multipart requests to the annotation
// server.
type HTTPUploader struct {
	BaseURL string
	FS      billy.Filesystem
	Client  *http.Client
}

// NewHTTPUploader builds an uploader against the server at baseURL, reading
// images from the dataset filesystem.
func NewHTTPUploader(baseURL string, fs billy.Filesystem) *HTTPUploader {
	return &HTTPUploader{
		BaseURL: baseURL,
		FS:      fs,
		Client:  &http.Client{Timeout: 5 * time.Minute},
	}
}

// Upload transmits the document and every image it references. Only
// completed documents are accepted; nothing local is mutated either way.
func (u *HTTPUploader) Upload(ctx context.Context, name string, doc UploadableDocument) error {
	if !doc.Completed() {
		return fmt.Errorf("document %s is not completed, refusing to upload", name)
	}
	docData, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("while serializing document %s: %w", name, err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("document", name)
	if err != nil {
		return err
	}
	if _, err := part.Write(docData); err != nil {
		return err
	}
	for _, ref := range doc.ImageRefs() {
		if err := u.addImage(writer, ref); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.BaseURL+"/upload", &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := u.Client.Do(req)
	if err != nil {
		return fmt.Errorf("while uploading %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("while uploading %s: server answered %d", name, resp.StatusCode)
	}
	log.Printf("upload: document %s shipped with %d images", name, len(doc.ImageRefs()))
	return nil
}

func (u *HTTPUploader) addImage(writer *multipart.Writer, ref string) error {
	f, err := u.FS.Open(ref)
	if err != nil {
		return fmt.Errorf("while opening image %s: %w", ref, err)
	}
	defer f.Close()
	part, err := writer.CreateFormFile("images", ref)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("while copying image %s: %w", ref, err)
	}
	return nil
}
