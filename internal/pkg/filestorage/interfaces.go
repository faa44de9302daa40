package filestorage

import (
	"mime/multipart"
)

// FileStorage defines the interface for file storage operations.
// SaveFile returns the accessible URL of the stored file together with
// its storage identifier (the generated filename), which is what
// DeleteFile expects back.
type FileStorage interface {
	// SaveFile saves a file into a subdirectory of the storage root
	SaveFile(fileHeader *multipart.FileHeader, subPath string) (url string, storageID string, err error)

	// DeleteFile removes a previously stored file by its storage identifier
	DeleteFile(subPath, storageID string) error
}
