package storage

import (
	"strings"

	"github.com/timmy/bingwall/internal/domain"
)

// NewStorage creates the mirror storage based on the configuration,
// detecting the storage type from the endpoint when not specified.
func NewStorage(cfg *S3Config) (*S3Storage, error) {
	if cfg.Type == "" {
		cfg.Type = detectStorageType(cfg.Endpoint)
	}
	return NewS3Storage(cfg)
}

func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case endpoint == "", strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	default:
		return StorageTypeS3Compatible
	}
}

// ContentType guesses the content type of a mirrored file by its cache name.
func ContentType(name string) string {
	switch name {
	case domain.ManifestFileName:
		return "text/plain; charset=utf-8"
	case domain.ImageFileName:
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
