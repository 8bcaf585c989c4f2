package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// StorageResult represents the result of a storage operation
type StorageResult struct {
	// Location is the access URL/path for the stored content
	// For stdio mode: local file path
	// For HTTP mode with S3: presigned URL
	Location string

	// ObjectKey is the storage path (e.g., "2024/12/23/upload_abc123.png")
	ObjectKey string

	// ContentHash is the SHA256 hash of the content (first 16 chars used in filename)
	ContentHash string

	// ExpiresAt is the expiration time for presigned URL (nil for local storage)
	ExpiresAt *time.Time

	// MIMEType is the content type (e.g., "image/png", "video/mp4")
	MIMEType string

	// Size is the content size in bytes
	Size int64
}

// Storage defines the interface for storing uploaded media
type Storage interface {
	// Store saves content and returns the storage result
	// - data: the raw bytes to store
	// - mimeType: content type (e.g., "image/png", "video/mp4")
	// - prefix: prefix for the filename (e.g., "upload")
	Store(ctx context.Context, data []byte, mimeType string, prefix string) (*StorageResult, error)

	// Retrieve makes an object available as a local file path and returns
	// a cleanup function (nil or no-op when nothing was downloaded)
	Retrieve(ctx context.Context, objectKey string) (string, func(), error)

	// Delete removes an object by its key
	Delete(ctx context.Context, objectKey string) error

	// Close cleans up any resources (stops cleanup goroutines, etc.)
	Close() error

	// IsRemote returns true if storage is remote (S3), false for local
	IsRemote() bool
}

// contentFilename builds a content-addressed filename: the same bytes
// always map to the same name, so re-uploads are idempotent. Returns the
// filename and the full content hash.
func contentFilename(data []byte, mimeType, prefix string) (string, string) {
	hash := sha256.Sum256(data)
	contentHash := hex.EncodeToString(hash[:])
	filename := fmt.Sprintf("%s_%s%s", prefix, contentHash[:16], ExtensionFromMIME(mimeType))
	return filename, contentHash
}

// ExtensionFromMIME returns the file extension for a given MIME type
func ExtensionFromMIME(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "image/bmp":
		return ".bmp"
	case "image/heic":
		return ".heic"
	case "image/tiff":
		return ".tiff"
	case "video/mp4":
		return ".mp4"
	case "video/mpeg":
		return ".mpeg"
	case "video/quicktime":
		return ".mov"
	case "video/x-msvideo":
		return ".avi"
	case "video/webm":
		return ".webm"
	case "video/wmv":
		return ".wmv"
	case "video/3gpp":
		return ".3gp"
	case "video/x-m4v":
		return ".m4v"
	default:
		return ""
	}
}
