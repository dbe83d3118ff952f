// Package storage holds image assets in object buckets. Assets are opaque
// binaries keyed by generated IDs; the referencing record (profile, team,
// sample) controls the asset's lifecycle.
package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ImageStore abstracts the object store for image assets.
type ImageStore interface {
	Upload(ctx context.Context, bucket, id string, data io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, bucket, id string) error
	// URL resolves an asset to a time-limited fetchable URL.
	URL(ctx context.Context, bucket, id string) (string, error)
}

// ImageUpload carries one inbound image through a service call.
type ImageUpload struct {
	Filename    string
	ContentType string
	Size        int64
	Data        io.Reader
}

// MaxImageSize is the maximum allowed image upload (5 MiB).
const MaxImageSize = 5 * 1024 * 1024

var allowedImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".webp": true,
}

// ValidateImage rejects uploads with a disallowed extension or oversize
// payload before any bytes reach the store.
func ValidateImage(filename string, size int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if !allowedImageExtensions[ext] {
		return fmt.Errorf("invalid file type %q, allowed: jpg, jpeg, png, gif, webp", ext)
	}
	if size > MaxImageSize {
		return fmt.Errorf("file too large, maximum size is 5MB")
	}
	return nil
}
