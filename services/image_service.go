package services

import (
	"context"
	"fmt"
	"mime/multipart"
	"path/filepath"
	"time"

	"github.com/tuinawx/booking-api/utils"
)

// ImageService handles service photo upload, retrieval and deletion
type ImageService interface {
	// UploadImage validates and uploads an image file under prefix, returns the storage key
	UploadImage(ctx context.Context, fileHeader *multipart.FileHeader, prefix string) (string, error)

	// GetImageURL generates a URL for accessing an uploaded image
	GetImageURL(imageKey string) (string, error)

	// DeleteImage removes an image from storage
	DeleteImage(imageKey string) error
}

// S3ImageService implements ImageService using AWS S3 for storage
type S3ImageService struct {
	s3Service S3Interface
	clock     func() time.Time
}

// LocalImageService implements ImageService on the local filesystem, used
// when no bucket is configured.
type LocalImageService struct {
	dir   string
	clock func() time.Time
}

var imageServiceInstance ImageService

// InitImageService initializes the image service with S3 backend
func InitImageService(s3Service S3Interface) ImageService {
	imageServiceInstance = &S3ImageService{
		s3Service: s3Service,
		clock:     time.Now,
	}
	return imageServiceInstance
}

// InitLocalImageService initializes the image service with a filesystem backend rooted at dir
func InitLocalImageService(dir string) ImageService {
	imageServiceInstance = &LocalImageService{
		dir:   dir,
		clock: time.Now,
	}
	return imageServiceInstance
}

// GetImageService returns the initialized image service instance
func GetImageService() ImageService {
	return imageServiceInstance
}

// SetImageService sets the image service instance (primarily for testing)
func SetImageService(service ImageService) {
	imageServiceInstance = service
}

// imageKey builds a storage key: {prefix}{unix nanos}_{filename}
func imageKey(prefix string, now time.Time, filename string) string {
	return fmt.Sprintf("%s%d_%s", prefix, now.UnixNano(), filepath.Base(filename))
}

// UploadImage validates and uploads an image file to S3
func (s *S3ImageService) UploadImage(ctx context.Context, fileHeader *multipart.FileHeader, prefix string) (string, error) {
	if err := utils.ValidateImageFile(fileHeader); err != nil {
		return "", err
	}

	key := imageKey(prefix, s.clock(), fileHeader.Filename)
	if err := s.s3Service.UploadFile(ctx, fileHeader, key); err != nil {
		return "", fmt.Errorf("failed to upload image: %w", err)
	}

	return key, nil
}

// GetImageURL generates a presigned URL for accessing an image
func (s *S3ImageService) GetImageURL(imageKey string) (string, error) {
	if imageKey == "" {
		return "", nil
	}

	url, err := s.s3Service.GetPresignedURL(imageKey)
	if err != nil {
		return "", fmt.Errorf("failed to generate image URL: %w", err)
	}

	return url, nil
}

// DeleteImage deletes an image from S3
func (s *S3ImageService) DeleteImage(imageKey string) error {
	if imageKey == "" {
		return nil
	}

	if err := s.s3Service.DeleteFile(imageKey); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}

	return nil
}

// UploadImage validates and stores an image file on disk
func (s *LocalImageService) UploadImage(_ context.Context, fileHeader *multipart.FileHeader, prefix string) (string, error) {
	if err := utils.ValidateImageFile(fileHeader); err != nil {
		return "", err
	}

	key := imageKey(prefix, s.clock(), fileHeader.Filename)
	if err := utils.SaveUploadedFile(fileHeader, s.dir, key); err != nil {
		return "", fmt.Errorf("failed to store image: %w", err)
	}

	return key, nil
}

// GetImageURL returns the API path that serves the stored image
func (s *LocalImageService) GetImageURL(imageKey string) (string, error) {
	return utils.GetImageURL(imageKey), nil
}

// DeleteImage is a no-op for local storage; files are kept for audit
func (s *LocalImageService) DeleteImage(string) error {
	return nil
}
