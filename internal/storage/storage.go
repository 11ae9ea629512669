// Package storage manages batch output artifacts: downloaded videos and
// thumbnails land in a local output directory, and can optionally be
// archived to S3 for durable delivery.
package storage

import (
	"context"
)

// Store is where finished batch artifacts live. Downloads are written
// directly to ArtifactPath by the fetcher, which owns the temp-file and
// retry handling for the write.
type Store interface {
	// ArtifactPath returns the local path an artifact with the given
	// name would be written to. It does not create the file.
	ArtifactPath(name string) string

	// Archive uploads a previously downloaded artifact to S3 and returns the
	// object URL. Returns ErrS3NotConfigured when no bucket is set up.
	Archive(ctx context.Context, name string) (url string, err error)
}
