// Package objectstore provides durable blob storage with public URL issuance.
// Callers choose a path unique per logical asset; an upload either fully
// succeeds or leaves nothing retrievable under that path.
package objectstore

import "fmt"

// UploadError reports a failed blob upload.
type UploadError struct {
	Bucket  string
	Path    string
	Status  int
	Message string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload of %s/%s failed (status %d): %s", e.Bucket, e.Path, e.Status, e.Message)
}
