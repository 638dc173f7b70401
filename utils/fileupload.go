package utils

import (
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	// MaxFileSize is 10MB in bytes
	MaxFileSize = 10 * 1024 * 1024
)

var (
	// UploadDir is the directory where uploaded files are stored when S3 is not configured
	// Can be overridden for testing
	UploadDir = "./uploads"

	// allowedImageTypes maps the accepted photo extensions to their content type
	allowedImageTypes = map[string]string{
		".png":  "image/png",
		".jpg":  "image/jpeg",
		".jpeg": "image/jpeg",
	}
)

// FileUploadError represents a file upload validation error
type FileUploadError struct {
	Code    string
	Message string
}

func (e *FileUploadError) Error() string {
	return e.Message
}

// ValidateImageFile validates the uploaded file format and size
func ValidateImageFile(fileHeader *multipart.FileHeader) error {
	if fileHeader.Size > MaxFileSize {
		return &FileUploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxFileSize/(1024*1024)),
		}
	}

	if ImageContentType(fileHeader.Filename) == "" {
		return &FileUploadError{
			Code:    "INVALID_FILE_FORMAT",
			Message: "Only .png, .jpg and .jpeg files are allowed",
		}
	}

	return nil
}

// ImageContentType returns the content type for an accepted image filename, or "" if not accepted.
func ImageContentType(filename string) string {
	return allowedImageTypes[strings.ToLower(filepath.Ext(filename))]
}

// SaveUploadedFile stores the uploaded file under uploadDir at the given key.
// The key may contain slashes; it must stay inside uploadDir.
func SaveUploadedFile(fileHeader *multipart.FileHeader, uploadDir, key string) (err error) {
	fullPath, err := ResolveUploadPath(uploadDir, key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("failed to open uploaded file: %w", err)
	}
	defer func() {
		if closeErr := src.Close(); closeErr != nil {
			zap.L().Warn("failed to close uploaded photo", zap.String("key", key), zap.Error(closeErr))
		}
	}()

	dst, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if closeErr := dst.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close destination file: %w", closeErr)
		}
	}()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}

	return nil
}

// ResolveUploadPath joins key onto uploadDir, rejecting keys that escape it.
func ResolveUploadPath(uploadDir, key string) (string, error) {
	clean := filepath.Clean("/" + key)
	if key == "" || strings.Contains(key, "..") || strings.Contains(key, "\\") || clean == "/" {
		return "", &FileUploadError{Code: "INVALID_FILENAME", Message: "Invalid filename"}
	}
	return filepath.Join(uploadDir, clean), nil
}

// GetImageURL returns the URL path for accessing a locally stored image
func GetImageURL(key string) string {
	if key == "" {
		return ""
	}
	return fmt.Sprintf("/api/v1/uploads/%s", strings.TrimPrefix(key, "/"))
}
