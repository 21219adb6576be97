// Package storage defines the content-versioning engine the gateway streams
// bytes into and out of.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/packrat/davgate/pkg/store/repository"
)

// ErrNotIngested is returned when reading a version whose bytes were never
// committed.
var ErrNotIngested = errors.New("asset version has no stored content")

// IngestDescriptor describes one upload to commit as a new asset version.
type IngestDescriptor struct {
	// Reader yields the uploaded bytes
	Reader io.Reader

	// Size is the number of bytes Reader yields, or -1 if unknown
	Size int64

	// FileName and FilePath place the asset within its owner. FilePath is
	// relative and may be empty.
	FileName string
	FilePath string

	// IDAssetType is the vocabulary id of the computed classification
	IDAssetType int64

	// IDUserCreator is the uploading user
	IDUserCreator int64

	// Owner is the system object the asset belongs to
	Owner *repository.SystemObject

	// Asset, when set, is the existing asset to version. Otherwise the
	// engine finds or creates one by owner, path and name.
	Asset *repository.Asset

	Comment string
}

// Engine persists and retrieves asset version bytes.
type Engine interface {
	// ReadAssetVersion opens the stored bytes of a version.
	ReadAssetVersion(ctx context.Context, version *repository.AssetVersion) (io.ReadCloser, error)

	// IngestStreamOrFile commits the descriptor's bytes and returns the
	// asset versions created.
	IngestStreamOrFile(ctx context.Context, desc *IngestDescriptor) ([]*repository.AssetVersion, error)
}
