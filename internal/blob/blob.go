// Package blob defines the content store used for binary payloads such as kid photos.
// Documents never embed bytes; they hold the ContentRef string returned by Upload.
package blob

import (
	"context"
	"strings"
	"time"

	"carelog/internal/shared/errors"
)

const (
	SchemeS3     = "s3"
	SchemeMemory = "mem"
)

// DefaultURLExpiry applies when URL is called with a non-positive expiry.
const DefaultURLExpiry = 15 * time.Minute

// Store uploads, serves and removes blobs.
type Store interface {
	// Upload writes data under key, replacing any previous object.
	Upload(ctx context.Context, key string, data []byte, contentType string) (ContentRef, error)
	Download(ctx context.Context, ref ContentRef) ([]byte, error)
	// URL returns a time-limited address the client can fetch the blob from.
	URL(ctx context.Context, ref ContentRef, expiry time.Duration) (string, error)
	// Delete is idempotent.
	Delete(ctx context.Context, ref ContentRef) error
}

// ContentRef addresses one blob as scheme://bucket/key.
type ContentRef struct {
	Scheme string
	Bucket string
	Key    string
}

func (r ContentRef) String() string {
	return r.Scheme + "://" + r.Bucket + "/" + r.Key
}

func (r ContentRef) IsZero() bool {
	return r == ContentRef{}
}

// ParseContentRef parses the string form produced by ContentRef.String.
func ParseContentRef(s string) (ContentRef, error) {
	scheme, rest, ok := strings.Cut(s, "://")
	if !ok || scheme == "" {
		return ContentRef{}, errors.NewValidationError("content ref must look like scheme://bucket/key").
			WithDetail("ref", s)
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" {
		return ContentRef{}, errors.NewValidationError("content ref is missing its bucket").WithDetail("ref", s)
	}
	if err := ValidateKey(key); err != nil {
		return ContentRef{}, err
	}
	return ContentRef{Scheme: scheme, Bucket: bucket, Key: key}, nil
}

// ValidateKey rejects empty keys and keys with leading slashes.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.NewValidationError("blob key is required")
	}
	if strings.HasPrefix(key, "/") {
		return errors.NewValidationError("blob key must be relative").WithDetail("key", key)
	}
	return nil
}

// CheckRef verifies ref belongs to the store identified by scheme and bucket.
func CheckRef(ref ContentRef, scheme, bucket string) error {
	if ref.Scheme != scheme || ref.Bucket != bucket {
		return errors.NewValidationError("content ref belongs to another store").
			WithDetail("ref", ref.String())
	}
	return ValidateKey(ref.Key)
}
