package domain

import "errors"

var (
	// ErrUploadNotFound is returned when an upload row does not exist.
	ErrUploadNotFound = errors.New("file upload not found")
	// ErrConfiguration marks a mapping that names a table outside the registry.
	ErrConfiguration = errors.New("invalid mapping configuration")
	// ErrUnsupportedFileType is returned for uploads outside the allowed types.
	ErrUnsupportedFileType = errors.New("file type not allowed")
	// ErrFileTooLarge is returned when an upload exceeds the configured limit.
	ErrFileTooLarge = errors.New("file too large")
	// ErrEmptyFile is returned for zero-byte uploads.
	ErrEmptyFile = errors.New("file is empty")
)
