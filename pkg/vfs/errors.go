package vfs

import "errors"

var (
	// ErrNotFound is returned when a path has no resource or no concrete
	// asset version
	ErrNotFound = errors.New("resource not found")

	// ErrNotDirectory is returned when listing a file
	ErrNotDirectory = errors.New("not a directory")

	// ErrIsDirectory is returned when reading or writing a directory
	ErrIsDirectory = errors.New("is a directory")

	// ErrNoAssetType is returned when the vocabulary has no asset type for
	// an upload's classification. Nothing is written to storage.
	ErrNoAssetType = errors.New("no asset type configured for classification")

	// ErrUploadTooLarge is returned by writes that would exceed the upload
	// buffer bound
	ErrUploadTooLarge = errors.New("upload exceeds maximum size")

	// ErrUploadAborted is returned when closing an upload that was
	// discarded, for example because the client body failed mid-transfer
	ErrUploadAborted = errors.New("upload aborted")
)
