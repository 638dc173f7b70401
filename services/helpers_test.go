package services

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tuinawx/booking-api/models"
)

// newTestDB opens a migrated in-memory sqlite database pinned to one connection.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// recordingNotifier keeps every notification it receives and can be told to fail.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []models.Notification
	err  error
}

func (r *recordingNotifier) Notify(_ context.Context, n models.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func (r *recordingNotifier) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.sent))
	for _, n := range r.sent {
		out = append(out, n.Type)
	}
	return out
}

func (r *recordingNotifier) last() models.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

type fixture struct {
	db         *gorm.DB
	svc        *OrderService
	notifier   *recordingNotifier
	payments   *MockGateway
	images     *MockImageService
	now        time.Time
	customer   models.User
	stranger   models.User
	technician models.Technician
	otherTech  models.Technician
	service    models.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		db:       newTestDB(t),
		notifier: &recordingNotifier{},
		payments: NewMockGateway(),
		images:   NewMockImageService(),
		now:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
	}

	f.customer = models.User{Nickname: "Wang", Phone: "13800000001"}
	f.stranger = models.User{Nickname: "Zhao", Phone: "13800000002"}
	require.NoError(t, f.db.Create(&f.customer).Error)
	require.NoError(t, f.db.Create(&f.stranger).Error)

	f.technician = models.Technician{Name: "Li", Status: models.TechnicianAvailable, Skills: []string{"tuina"}}
	f.otherTech = models.Technician{Name: "Chen", Status: models.TechnicianAvailable, Skills: []string{}}
	require.NoError(t, f.db.Create(&f.technician).Error)
	require.NoError(t, f.db.Create(&f.otherTech).Error)

	f.service = models.Service{Name: "Full body tuina", Price: 20000, Duration: 60, Active: true}
	require.NoError(t, f.db.Create(&f.service).Error)

	f.svc = NewOrderService(OrderServiceDeps{
		DB:       f.db,
		Notifier: f.notifier,
		Payments: f.payments,
		Images:   f.images,
		Clock:    func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) customerActor() Actor   { return Customer(f.customer.ID) }
func (f *fixture) technicianActor() Actor { return TechnicianActor(f.technician.ID) }

// at returns a wall time on the fixture's day.
func (f *fixture) at(hour, minute int) time.Time {
	return time.Date(f.now.Year(), f.now.Month(), f.now.Day(), hour, minute, 0, 0, time.UTC)
}

func (f *fixture) createRequest(appointment time.Time) CreateOrderRequest {
	return CreateOrderRequest{
		TechnicianID:    f.technician.ID,
		ServiceID:       f.service.ID,
		AppointmentTime: appointment,
		Address: &models.AddressSnapshot{
			ContactName: "Wang",
			Phone:       "13800000001",
			City:        "Hangzhou",
			Detail:      "No. 1 West Lake Road",
		},
	}
}

func (f *fixture) createOrder(t *testing.T, appointment time.Time) *models.Order {
	t.Helper()
	order, err := f.svc.Create(context.Background(), f.customerActor(), f.createRequest(appointment))
	require.NoError(t, err)
	return order
}

func (f *fixture) confirmedOrder(t *testing.T, appointment time.Time) *models.Order {
	t.Helper()
	order := f.createOrder(t, appointment)
	order, err := f.svc.Confirm(context.Background(), f.technicianActor(), order.ID)
	require.NoError(t, err)
	return order
}

func (f *fixture) inProgressOrder(t *testing.T, appointment time.Time) *models.Order {
	t.Helper()
	order := f.confirmedOrder(t, appointment)
	order, err := f.svc.Start(context.Background(), f.technicianActor(), order.ID, StartOrderRequest{})
	require.NoError(t, err)
	return order
}

func (f *fixture) completedOrder(t *testing.T, appointment time.Time) *models.Order {
	t.Helper()
	order := f.inProgressOrder(t, appointment)
	order, err := f.svc.Complete(context.Background(), f.technicianActor(), order.ID, CompleteOrderRequest{})
	require.NoError(t, err)
	return order
}

func (f *fixture) reload(t *testing.T, id string) models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.db.First(&order, "id = ?", id).Error)
	return order
}

func (f *fixture) reloadTechnician(t *testing.T) models.Technician {
	t.Helper()
	var technician models.Technician
	require.NoError(t, f.db.First(&technician, f.technician.ID).Error)
	return technician
}

// newFileHeader builds a multipart file header holding content under the form field "image".
func newFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(body, writer.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	files := form.File["image"]
	require.Len(t, files, 1)
	return files[0]
}

var errNotifierDown = errors.New("notifier down")
