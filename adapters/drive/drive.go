// Package drive implements the remote provider over the Google Drive
// API using service-account credentials.
package drive

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"sheetcrm/ports"
)

// Client talks to Google Drive. A client built without usable
// credentials is still a valid value; it just reports unavailable so
// callers can degrade instead of failing.
type Client struct {
	service *drive.Service
}

// NewClient builds a Drive client from a service-account JSON file.
// A missing or empty credentials path yields an unavailable client,
// not an error.
func NewClient(ctx context.Context, credentialsFile string) *Client {
	if credentialsFile == "" {
		log.Info("[Drive] no credentials configured, remote sync disabled")
		return &Client{}
	}
	if _, err := os.Stat(credentialsFile); err != nil {
		log.Warnf("[Drive] credentials file not readable (%v), remote sync disabled", err)
		return &Client{}
	}

	service, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveScope),
	)
	if err != nil {
		log.Warnf("[Drive] unable to create Drive client (%v), remote sync disabled", err)
		return &Client{}
	}
	return &Client{service: service}
}

// Available reports whether the Drive service was built.
func (c *Client) Available() bool {
	return c != nil && c.service != nil
}

// GetMetadata fetches the remote file's modification timestamp.
func (c *Client) GetMetadata(ctx context.Context, fileID string) (*ports.RemoteMetadata, error) {
	if !c.Available() {
		return nil, fmt.Errorf("drive client not available")
	}

	file, err := c.service.Files.Get(fileID).
		Fields("id", "modifiedTime").
		SupportsAllDrives(true).
		Context(ctx).Do()
	if err != nil {
		return nil, wrapDriveErr("get metadata", fileID, err)
	}

	modified, err := time.Parse(time.RFC3339, file.ModifiedTime)
	if err != nil {
		return nil, fmt.Errorf("parse modifiedTime %q: %w", file.ModifiedTime, err)
	}
	return &ports.RemoteMetadata{ModifiedTime: modified}, nil
}

// Download streams the remote file's bytes to destPath.
func (c *Client) Download(ctx context.Context, fileID, destPath string) error {
	if !c.Available() {
		return fmt.Errorf("drive client not available")
	}

	resp, err := c.service.Files.Get(fileID).
		SupportsAllDrives(true).
		Context(ctx).Download()
	if err != nil {
		return wrapDriveErr("download", fileID, err)
	}
	defer resp.Body.Close()

	out, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", destPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write %s: %w", destPath, err)
	}
	return nil
}

// Upload replaces the remote file's content with the local file.
func (c *Client) Upload(ctx context.Context, fileID, sourcePath, mimeType string) error {
	if !c.Available() {
		return fmt.Errorf("drive client not available")
	}

	src, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", sourcePath, err)
	}
	defer src.Close()

	_, err = c.service.Files.Update(fileID, &drive.File{}).
		Media(src, googleapi.ContentType(mimeType)).
		SupportsAllDrives(true).
		Context(ctx).Do()
	if err != nil {
		return wrapDriveErr("upload", fileID, err)
	}
	return nil
}

func wrapDriveErr(op, fileID string, err error) error {
	if gErr, ok := err.(*googleapi.Error); ok {
		return fmt.Errorf("drive %s %s: HTTP %d: %w", op, fileID, gErr.Code, err)
	}
	return fmt.Errorf("drive %s %s: %w", op, fileID, err)
}
