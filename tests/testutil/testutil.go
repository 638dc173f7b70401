package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tuinawx/booking-api/config"
	"github.com/tuinawx/booking-api/middleware"
	"github.com/tuinawx/booking-api/models"
	"github.com/tuinawx/booking-api/routes"
	"github.com/tuinawx/booking-api/services"
)

// Now is the fixed wall clock seen by the order service in suites built with NewEnv.
var Now = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

// RequireTestEnvironment ensures that tests are running in the test environment.
// This prevents accidental execution of tests against production or development databases.
// It will fail the test immediately if GO_ENV is not set to "test".
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	env := os.Getenv("GO_ENV")
	if env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: Tests must run with GO_ENV=test to prevent data loss. Current GO_ENV=%q. Set GO_ENV=test before running tests.", env)
	}
}

// RequireTestEnvironmentOrSkip is similar to RequireTestEnvironment but skips the test
// instead of failing it.
func RequireTestEnvironmentOrSkip(t *testing.T) {
	t.Helper()

	env := os.Getenv("GO_ENV")
	if env != "test" {
		t.Skipf("Skipping test: GO_ENV must be 'test' (current: %q)", env)
	}
}

// MustSetTestEnvironment sets GO_ENV to test for the duration of t.
func MustSetTestEnvironment(t *testing.T) {
	t.Helper()
	t.Setenv("GO_ENV", "test")
}

// TestConfig returns a configuration that needs no external services.
func TestConfig() *config.Config {
	return &config.Config{
		DatabaseDriver:     "sqlite",
		DatabaseURL:        ":memory:",
		Port:               "8080",
		GoEnv:              "test",
		JWTSecret:          "integration-test-secret",
		JWTIssuer:          "tuinawx-user",
		JWTAudience:        "tuinawx-miniprogram",
		StripeCurrency:     "cny",
		CORSAllowedOrigins: []string{"*"},
		BookingBuffer:      time.Hour,
		DistanceFreeKm:     5,
		LogLevel:           "error",
	}
}

// NewTestDB opens a migrated in-memory sqlite database and installs it as the shared handle.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, config.Migrate(db))
	config.SetDB(db)
	t.Cleanup(func() {
		config.SetDB(nil)
		_ = sqlDB.Close()
	})
	return db
}

// Env is a fully wired API backed by sqlite and in-memory collaborators.
type Env struct {
	Cfg        *config.Config
	DB         *gorm.DB
	Router     *gin.Engine
	Payments   *services.MockGateway
	Images     *services.MockImageService
	Customer   models.User
	Technician models.Technician
	Service    models.Service
}

// NewEnv builds an Env with one customer, one technician and one catalog service.
func NewEnv(t *testing.T) *Env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &Env{
		Cfg:      TestConfig(),
		DB:       NewTestDB(t),
		Payments: services.NewMockGateway(),
		Images:   services.NewMockImageService(),
	}
	return env.wire(t)
}

// NewEnvWithDB is NewEnv over an existing, already migrated database.
func NewEnvWithDB(t *testing.T, db *gorm.DB) *Env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	config.SetDB(db)
	t.Cleanup(func() { config.SetDB(nil) })

	env := &Env{
		Cfg:      TestConfig(),
		DB:       db,
		Payments: services.NewMockGateway(),
		Images:   services.NewMockImageService(),
	}
	return env.wire(t)
}

func (e *Env) wire(t *testing.T) *Env {
	t.Helper()

	e.Customer = SeedCustomer(t, e.DB, "Wang")
	e.Technician = SeedTechnician(t, e.DB, "Li")
	e.Service = models.Service{Name: "Full body tuina", Price: 20000, Duration: 60, Active: true}
	require.NoError(t, e.DB.Create(&e.Service).Error)

	e.UseImages(e.Images)
	t.Cleanup(func() { services.SetOrderService(nil) })

	jwtValidator, err := middleware.NewTokenValidator(e.Cfg)
	require.NoError(t, err)

	e.Router = gin.New()
	e.Router.Use(gin.Recovery(), middleware.RequestLogger(zap.NewNop()))
	routes.Register(e.Router.Group("/api/v1"), middleware.EnsureValidToken(jwtValidator, zap.NewNop()))
	return e
}

// UseImages rewires the shared order service to store photos in images.
func (e *Env) UseImages(images services.ImageService) {
	services.SetOrderService(services.NewOrderService(services.OrderServiceDeps{
		DB:           e.DB,
		Notifier:     services.MultiNotifier{services.NewInboxNotifier(e.DB)},
		Payments:     e.Payments,
		Images:       images,
		Availability: services.NewAvailabilityChecker(e.Cfg.BookingBuffer),
		Clock:        func() time.Time { return Now },
	}))
}

// SeedCustomer inserts a customer account.
func SeedCustomer(t *testing.T, db *gorm.DB, nickname string) models.User {
	t.Helper()
	user := models.User{Nickname: nickname, Phone: "13800000000"}
	require.NoError(t, db.Create(&user).Error)
	return user
}

// SeedTechnician inserts an available technician.
func SeedTechnician(t *testing.T, db *gorm.DB, name string) models.Technician {
	t.Helper()
	tech := models.Technician{Name: name, Status: models.TechnicianAvailable, Skills: []string{"tuina"}}
	require.NoError(t, db.Create(&tech).Error)
	return tech
}

// CustomerToken signs a token for the env's customer.
func (e *Env) CustomerToken(t *testing.T) string {
	return CustomerToken(t, e.Cfg, e.Customer.ID)
}

// TechnicianToken signs a token for the env's technician.
func (e *Env) TechnicianToken(t *testing.T) string {
	return TechnicianToken(t, e.Cfg, e.Technician.ID)
}

// OrderBody is a create request for the env's technician and service at hour:00 on the fixed day.
func (e *Env) OrderBody(hour int) map[string]interface{} {
	return map[string]interface{}{
		"technicianId":    e.Technician.ID,
		"serviceId":       e.Service.ID,
		"appointmentTime": time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC).Format(time.RFC3339),
		"address": map[string]interface{}{
			"contactName": "Wang",
			"phone":       "13800000001",
			"detail":      "No. 1 West Lake Road",
		},
	}
}

// Envelope mirrors utils.Response with the data left undecoded.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Decode unmarshals the envelope data into v.
func (e Envelope) Decode(t *testing.T, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(e.Data, v), string(e.Data))
}

// NewJSONRequest builds a request with an optional bearer token. body may be nil,
// a raw string or any value encodable as JSON.
func NewJSONRequest(t *testing.T, method, url, token string, body interface{}) *http.Request {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

// Do sends a request through the env's router.
func (e *Env) Do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, NewJSONRequest(t, method, path, token, body))

	var env Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}
