package filestorage

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/okasha/maarif/internal/pkg/logger"
)

// LocalStorage handles saving files to the local filesystem.
type LocalStorage struct {
	basePath string // The root directory where files will be stored
	baseURL  string // The base URL to access the stored files
}

// NewLocalStorage creates a new LocalStorage instance.
// basePath is the required directory path on the server.
// baseURL is optional; if provided, it will be prepended to returned file URLs.
func NewLocalStorage(basePath, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, os.ModePerm); err != nil {
		logger.Error().Err(err).Str("path", basePath).Msg("Failed to create storage directory")
		return nil, fmt.Errorf("failed to create storage directory %s: %w", basePath, err)
	}
	logger.Info().Str("path", basePath).Msg("Local storage directory ensured")

	return &LocalStorage{
		basePath: basePath,
		baseURL:  baseURL,
	}, nil
}

// SaveFile saves a file into a subdirectory of the storage root.
// The stored filename is a random UUID plus the original extension,
// so concurrent uploads of identically named files cannot collide.
func (ls *LocalStorage) SaveFile(fileHeader *multipart.FileHeader, subPath string) (string, string, error) {
	if fileHeader == nil {
		return "", "", nil // No file uploaded
	}

	file, err := fileHeader.Open()
	if err != nil {
		logger.Error().Err(err).Str("filename", fileHeader.Filename).Msg("Failed to open uploaded file")
		return "", "", fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer file.Close()

	fullDirPath := ls.basePath
	if subPath != "" {
		fullDirPath = filepath.Join(ls.basePath, subPath)
		if err := os.MkdirAll(fullDirPath, os.ModePerm); err != nil {
			logger.Error().Err(err).Str("path", fullDirPath).Msg("Failed to create subdirectory")
			return "", "", fmt.Errorf("failed to create subdirectory: %w", err)
		}
	}

	ext := filepath.Ext(fileHeader.Filename)
	storageID := uuid.New().String() + ext
	dstPath := filepath.Join(fullDirPath, storageID)

	dst, err := os.Create(dstPath)
	if err != nil {
		logger.Error().Err(err).Str("path", dstPath).Msg("Failed to create destination file")
		return "", "", fmt.Errorf("failed to create destination file: %w", err)
	}
	defer dst.Close()

	if _, err = io.Copy(dst, file); err != nil {
		logger.Error().Err(err).Str("path", dstPath).Msg("Failed to copy uploaded file content")
		_ = os.Remove(dstPath)
		return "", "", fmt.Errorf("failed to save file content: %w", err)
	}

	var url string
	if ls.baseURL != "" {
		parts := []string{strings.TrimRight(ls.baseURL, "/"), "uploads"}
		if subPath != "" {
			parts = append(parts, subPath)
		}
		parts = append(parts, storageID)
		url = strings.Join(parts, "/")
	} else if subPath != "" {
		url = filepath.Join("uploads", subPath, storageID)
	} else {
		url = filepath.Join("uploads", storageID)
	}

	logger.Info().Str("filename", fileHeader.Filename).Str("saved_as", storageID).Str("url", url).Msg("File saved successfully")
	return url, storageID, nil
}

// DeleteFile removes a stored file by its storage identifier.
// A missing file is treated as already deleted.
func (ls *LocalStorage) DeleteFile(subPath, storageID string) error {
	if storageID == "" {
		return nil // Nothing to delete
	}

	// Refuse anything that is not a bare filename
	if filepath.Base(storageID) != storageID || storageID == "." || storageID == ".." {
		return fmt.Errorf("invalid storage identifier: %s", storageID)
	}

	physicalPath := filepath.Join(ls.basePath, subPath, storageID)

	if _, err := os.Stat(physicalPath); os.IsNotExist(err) {
		logger.Warn().Str("path", physicalPath).Msg("File to delete does not exist")
		return nil
	}

	if err := os.Remove(physicalPath); err != nil {
		logger.Error().Err(err).Str("path", physicalPath).Msg("Failed to delete file")
		return fmt.Errorf("failed to delete file: %w", err)
	}

	logger.Info().Str("path", physicalPath).Msg("File deleted successfully")
	return nil
}
