package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"sort"
	"strings"
	"sync"

	"github.com/tuinawx/booking-api/utils"
)

// errMockUpload is returned by the in-memory stores after SetFailUploads(true).
var errMockUpload = errors.New("mock storage rejected the upload")

// memoryObjects is a key/content map shared by the storage fakes below.
type memoryObjects struct {
	mu          sync.RWMutex
	objects     map[string][]byte
	failUploads bool
}

func newMemoryObjects() memoryObjects {
	return memoryObjects{objects: make(map[string][]byte)}
}

func (m *memoryObjects) put(fileHeader *multipart.FileHeader, key string) error {
	m.mu.RLock()
	fail := m.failUploads
	m.mu.RUnlock()
	if fail {
		return errMockUpload
	}

	file, err := fileHeader.Open()
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	m.mu.Lock()
	m.objects[key] = content
	m.mu.Unlock()
	return nil
}

func (m *memoryObjects) has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok
}

func (m *memoryObjects) drop(key string) {
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
}

// SetFailUploads makes every following upload fail until reset.
func (m *memoryObjects) SetFailUploads(fail bool) {
	m.mu.Lock()
	m.failUploads = fail
	m.mu.Unlock()
}

// Keys lists the stored keys under prefix in lexical order.
func (m *memoryObjects) Keys(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Content returns what was stored under key.
func (m *memoryObjects) Content(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[key]
	return b, ok
}

// MockS3Service keeps bucket objects in memory and signs fake URLs for them.
type MockS3Service struct {
	memoryObjects
}

// NewMockS3Service creates an empty in-memory bucket
func NewMockS3Service() *MockS3Service {
	return &MockS3Service{memoryObjects: newMemoryObjects()}
}

func (m *MockS3Service) UploadFile(_ context.Context, fileHeader *multipart.FileHeader, key string) error {
	return m.put(fileHeader, key)
}

func (m *MockS3Service) GetPresignedURL(s3Key string) (string, error) {
	if s3Key == "" {
		return "", nil
	}
	if !m.has(s3Key) {
		return "", fmt.Errorf("object not found in mock bucket: %s", s3Key)
	}
	return fmt.Sprintf("https://test-bucket.s3.%s.amazonaws.com/%s?X-Amz-Expires=%d", "ap-east-1", s3Key, int(presignExpiry.Seconds())), nil
}

func (m *MockS3Service) DeleteFile(s3Key string) error {
	m.drop(s3Key)
	return nil
}

// FileExists reports whether key is in the bucket.
func (m *MockS3Service) FileExists(s3Key string) bool {
	return m.has(s3Key)
}

// MockImageService stores order photos in memory under {prefix}mock_{filename}.
type MockImageService struct {
	memoryObjects
}

// NewMockImageService creates an empty photo store
func NewMockImageService() *MockImageService {
	return &MockImageService{memoryObjects: newMemoryObjects()}
}

// SetAsMockForTesting installs the mock as the shared image service
func (m *MockImageService) SetAsMockForTesting() {
	SetImageService(m)
}

func (m *MockImageService) UploadImage(_ context.Context, fileHeader *multipart.FileHeader, prefix string) (string, error) {
	if err := utils.ValidateImageFile(fileHeader); err != nil {
		return "", err
	}

	key := prefix + "mock_" + fileHeader.Filename
	if err := m.put(fileHeader, key); err != nil {
		return "", err
	}
	return key, nil
}

func (m *MockImageService) GetImageURL(imageKey string) (string, error) {
	if imageKey == "" {
		return "", nil
	}
	if !m.has(imageKey) {
		return "", fmt.Errorf("photo not found in mock storage: %s", imageKey)
	}
	return "https://photos.test/" + imageKey, nil
}

func (m *MockImageService) DeleteImage(imageKey string) error {
	m.drop(imageKey)
	return nil
}

// ImageExists reports whether a photo is stored under imageKey.
func (m *MockImageService) ImageExists(imageKey string) bool {
	return m.has(imageKey)
}
