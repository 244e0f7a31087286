package storage

import (
	"context"
	"io"
	"path"
	"time"
)

// Package storage archives original invoice uploads in an S3-compatible
// object store. Implementations stream; no local disk.

// PutOptions carries optional upload parameters. Size is the exact byte
// count when known, -1 otherwise.
type PutOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo describes a stored archive object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
}

// ArchiveKey builds the object key for an archived upload. Keys are
// namespaced per user and keyed by the usage-log entry id so repeated
// uploads of the same file name never collide.
func ArchiveKey(userID, entryID, fileName string) string {
	return path.Join(userID, entryID+"_"+path.Base(fileName))
}

// Archive is the object-store client used for original-upload retention.
type Archive interface {
	// Put uploads an object under key from the reader.
	Put(ctx context.Context, key string, r io.Reader, opt PutOptions) (ObjectInfo, error)
	// Delete removes an object by key.
	Delete(ctx context.Context, key string) error
	// PresignGet returns a time-limited download URL for the object.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}
