package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
)

// Archive stores the raw source documents volumes are ingested from, keyed
// by volume number. Keeping the originals means a volume can be reprocessed
// after a pipeline fix without asking the operator for the file again.
type Archive interface {
	// Put stores a volume's source document and returns the archive key
	Put(ctx context.Context, volume int, filename string, data io.Reader) (string, error)

	// Get retrieves the archived document for a volume, returning the
	// content and the original filename
	Get(ctx context.Context, volume int) (io.ReadCloser, string, error)

	// Remove deletes a volume's archived document
	Remove(ctx context.Context, volume int) error
}

// ArchiveType selects the backing store
type ArchiveType string

const (
	ArchiveTypeLocal ArchiveType = "local"
	ArchiveTypeS3    ArchiveType = "s3"
)

// ArchiveConfig holds configuration for the archive
type ArchiveConfig struct {
	Type         ArchiveType
	LocalPath    string
	S3Bucket     string
	S3Region     string
	AWSAccessKey string
	AWSSecretKey string
}

var ErrNotArchived = errors.New("no archived document for volume")

// NewArchive creates an archive from configuration
func NewArchive(cfg ArchiveConfig) (Archive, error) {
	switch cfg.Type {
	case ArchiveTypeLocal:
		return NewLocalArchive(cfg.LocalPath)
	case ArchiveTypeS3:
		return NewS3Archive(cfg)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}

// NewArchiveFromEnv creates an archive from environment variables
func NewArchiveFromEnv() (Archive, error) {
	archiveType := os.Getenv("ARCHIVE_TYPE")
	if archiveType == "" {
		archiveType = "local"
	}

	cfg := ArchiveConfig{Type: ArchiveType(archiveType)}

	switch cfg.Type {
	case ArchiveTypeLocal:
		cfg.LocalPath = os.Getenv("ARCHIVE_LOCAL_PATH")
		if cfg.LocalPath == "" {
			cfg.LocalPath = "./storage/volumes"
		}
		return NewLocalArchive(cfg.LocalPath)

	case ArchiveTypeS3:
		cfg.S3Bucket = os.Getenv("AWS_S3_BUCKET")
		cfg.S3Region = os.Getenv("AWS_REGION")
		if cfg.S3Region == "" {
			cfg.S3Region = "us-east-1"
		}
		cfg.AWSAccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		cfg.AWSSecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")

		if cfg.S3Bucket == "" {
			return nil, errors.New("AWS_S3_BUCKET environment variable is required for S3 archive")
		}
		return NewS3Archive(cfg)

	default:
		return nil, fmt.Errorf("unknown archive type: %s", archiveType)
	}
}

// volumeKey builds the archive key for a volume's document. One document
// per volume; a new upload replaces the old one.
func volumeKey(volume int, filename string) string {
	name := strings.ReplaceAll(filename, " ", "_")
	name = strings.ReplaceAll(name, "/", "_")
	name = strings.ReplaceAll(name, "\\", "_")
	return path.Join(volumePrefix(volume), name)
}

func volumePrefix(volume int) string {
	return fmt.Sprintf("volume_%03d", volume)
}
