// Package objectstore uploads project attachments.
//
// Uploads happen outside the review and submission transactions. A failed
// upload is the caller's to log; the submission proceeds without a file.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrDisabled is returned by the Disabled store
var ErrDisabled = errors.New("object storage is disabled")

// Store puts and deletes objects
type Store interface {
	// Put uploads body under key and returns a URL for it
	Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error)
	Delete(ctx context.Context, key string) error
	HealthCheck(ctx context.Context) error
}

// AttachmentKey builds a unique object key for a user's upload, keeping a
// sanitized extension from the original file name.
func AttachmentKey(userID int64, filename string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filename, "\\", "/")))
	if len(ext) > 10 || strings.ContainsAny(ext, " /?#%") {
		ext = ""
	}
	return fmt.Sprintf("projects/%d/%s%s", userID, uuid.NewString(), ext)
}

// Disabled rejects every upload
type Disabled struct{}

// Put always fails with ErrDisabled
func (Disabled) Put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	return "", ErrDisabled
}

// Delete always fails with ErrDisabled
func (Disabled) Delete(ctx context.Context, key string) error {
	return ErrDisabled
}

// HealthCheck always succeeds
func (Disabled) HealthCheck(ctx context.Context) error {
	return nil
}
