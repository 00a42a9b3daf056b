// Package gcs provides an Archive backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS.
type Config struct {
	Bucket string
	Prefix string
}

// Archive writes raw payloads to a configured GCS bucket.
type Archive struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed archive.
func New(client *storage.Client, cfg Config) (*Archive, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Archive{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Store uploads the payload under its digest and returns a gs:// URI.
// DoesNotExist makes the write conditional, so redeliveries of an already
// archived payload cost one metadata round trip.
func (a *Archive) Store(ctx context.Context, digest string, payload []byte) (string, error) {
	if strings.TrimSpace(digest) == "" {
		return "", fmt.Errorf("digest is required")
	}
	path := a.objectPath(digest)
	obj := a.client.Bucket(a.bucket).Object(path).If(storage.Conditions{DoesNotExist: true})
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := io.Copy(writer, bytes.NewReader(payload)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		// A precondition failure means the digest is already archived.
		if strings.Contains(err.Error(), "conditionNotMet") {
			return fmt.Sprintf("gs://%s/%s", a.bucket, path), nil
		}
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, path), nil
}

func (a *Archive) objectPath(digest string) string {
	if a.prefix == "" {
		return digest + ".json"
	}
	return a.prefix + "/" + digest + ".json"
}
