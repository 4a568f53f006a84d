package ports

import (
	"context"
	"time"
)

// RemoteMetadata describes the provider-hosted copy of the document.
type RemoteMetadata struct {
	ModifiedTime time.Time
}

// RemoteProvider is the external storage provider holding the remote
// copy of the CRM document. The provider owns the remote copy's
// lifecycle; the sync coordinator only reads its timestamp and moves
// bytes in either direction.
type RemoteProvider interface {
	// Available reports whether the provider is configured and usable.
	// Missing credentials are an availability condition, not an error.
	Available() bool

	// GetMetadata returns the remote file's metadata.
	GetMetadata(ctx context.Context, fileID string) (*RemoteMetadata, error)

	// Download writes the remote file's bytes to destPath.
	Download(ctx context.Context, fileID, destPath string) error

	// Upload replaces the remote file's content with the local file.
	Upload(ctx context.Context, fileID, sourcePath, mimeType string) error
}
