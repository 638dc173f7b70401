package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tuinawx/booking-api/config"
	"github.com/tuinawx/booking-api/middleware"
	"github.com/tuinawx/booking-api/models"
	"github.com/tuinawx/booking-api/services"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models.All()...))
	config.SetDB(db)
	t.Cleanup(func() {
		config.SetDB(nil)
		_ = sqlDB.Close()
	})
	return db
}

// testEnv holds a migrated database, seeded accounts and the wired order service.
type testEnv struct {
	db         *gorm.DB
	payments   *services.MockGateway
	images     *services.MockImageService
	customer   models.User
	stranger   models.User
	technician models.Technician
	service    models.Service
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		db:       setupTestDB(t),
		payments: services.NewMockGateway(),
		images:   services.NewMockImageService(),
	}

	env.customer = models.User{Nickname: "Wang", Phone: "13800000001"}
	env.stranger = models.User{Nickname: "Zhao", Phone: "13800000002"}
	require.NoError(t, env.db.Create(&env.customer).Error)
	require.NoError(t, env.db.Create(&env.stranger).Error)

	env.technician = models.Technician{Name: "Li", Status: models.TechnicianAvailable, Skills: []string{"tuina"}}
	require.NoError(t, env.db.Create(&env.technician).Error)

	env.service = models.Service{Name: "Full body tuina", Price: 20000, Duration: 60, Active: true}
	require.NoError(t, env.db.Create(&env.service).Error)

	services.SetOrderService(services.NewOrderService(services.OrderServiceDeps{
		DB:       env.db,
		Notifier: services.NewInboxNotifier(env.db),
		Payments: env.payments,
		Images:   env.images,
		Clock:    func() time.Time { return testNow },
	}))
	t.Cleanup(func() { services.SetOrderService(nil) })

	return env
}

func (e *testEnv) customerActor() services.Actor {
	return services.Customer(e.customer.ID)
}

func (e *testEnv) technicianActor() services.Actor {
	return services.TechnicianActor(e.technician.ID)
}

func (e *testEnv) createOrderBody(hour int) map[string]interface{} {
	return map[string]interface{}{
		"technicianId":    e.technician.ID,
		"serviceId":       e.service.ID,
		"appointmentTime": time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC).Format(time.RFC3339),
		"address": map[string]interface{}{
			"contactName": "Wang",
			"phone":       "13800000001",
			"detail":      "No. 1 West Lake Road",
		},
	}
}

// seedOrder books an order through the service and returns its id.
func (e *testEnv) seedOrder(t *testing.T, hour int) string {
	t.Helper()
	order, err := services.GetOrderService().Create(context.Background(), e.customerActor(), services.CreateOrderRequest{
		TechnicianID:    e.technician.ID,
		ServiceID:       e.service.ID,
		AppointmentTime: time.Date(2026, 3, 10, hour, 0, 0, 0, time.UTC),
		Address:         &models.AddressSnapshot{ContactName: "Wang", Phone: "138", Detail: "No. 1 West Lake Road"},
	})
	require.NoError(t, err)
	return order.ID
}

// withActor simulates EnsureValidToken by storing the caller on the context.
func withActor(actor services.Actor) gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor.ID != 0 {
			middleware.SetActor(c, actor)
		}
		c.Next()
	}
}

// newRouter mounts a single handler behind a fake authenticated caller.
func newRouter(actor services.Actor, method, path string, handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Handle(method, path, withActor(actor), handler)
	return router
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		payload, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" && bytes.HasPrefix(bytes.TrimSpace(w.Body.Bytes()), []byte("{")) {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func decodeData(t *testing.T, env envelope, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dst))
}
