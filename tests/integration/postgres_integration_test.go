//go:build integration

package integration

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"gorm.io/gorm"

	"github.com/tuinawx/booking-api/config"
	"github.com/tuinawx/booking-api/models"
	"github.com/tuinawx/booking-api/services"
	"github.com/tuinawx/booking-api/tests/testutil"
)

// PostgresIntegrationTestSuite runs the concurrency guarantees against a real PostgreSQL.
// Run with: go test -tags integration ./tests/integration/...
type PostgresIntegrationTestSuite struct {
	suite.Suite
	container *postgres.PostgresContainer
	db        *gorm.DB
	env       *testutil.Env
}

// SetupSuite starts PostgreSQL once for the suite
func (suite *PostgresIntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("tuina_booking_test"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(suite.T(), container)
	suite.Require().NoError(err)
	suite.container = container

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	suite.Require().NoError(err)

	cfg := testutil.TestConfig()
	cfg.DatabaseDriver = "postgres"
	cfg.DatabaseURL = dsn

	db, err := config.ConnectDatabase(cfg)
	suite.Require().NoError(err)
	suite.Require().NoError(config.Migrate(db))
	suite.db = db
}

// SetupTest empties every table and reseeds the accounts
func (suite *PostgresIntegrationTestSuite) SetupTest() {
	testutil.MustSetTestEnvironment(suite.T())
	suite.Require().NoError(suite.db.Exec(
		"TRUNCATE order_comments, refunds, payments, notifications, orders, user_coupons, user_addresses, services, technicians, users RESTART IDENTITY CASCADE",
	).Error)
	suite.env = testutil.NewEnvWithDB(suite.T(), suite.db)
}

// TearDownSuite closes the pool before the container is removed
func (suite *PostgresIntegrationTestSuite) TearDownSuite() {
	if suite.db != nil {
		if sqlDB, err := suite.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

// runConcurrently calls fn from n goroutines released together and returns their errors
func runConcurrently(n int, fn func() error) []error {
	start := make(chan struct{})
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			errs[i] = fn()
		}(i)
	}
	close(start)
	wg.Wait()
	return errs
}

func countOutcomes(errs []error) (succeeded, conflicts int, other []error) {
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, services.ErrConflict):
			conflicts++
		default:
			other = append(other, err)
		}
	}
	return succeeded, conflicts, other
}

func (suite *PostgresIntegrationTestSuite) bookOrder(hour int) string {
	w, resp := suite.env.Do(suite.T(), http.MethodPost, "/api/v1/orders", suite.env.CustomerToken(suite.T()), suite.env.OrderBody(hour))
	suite.Require().Equal(http.StatusCreated, w.Code, resp.Message)

	var order models.Order
	resp.Decode(suite.T(), &order)
	return order.ID
}

// TestConcurrentConfirmHasOneWinner checks the versioned compare-and-swap under contention
func (suite *PostgresIntegrationTestSuite) TestConcurrentConfirmHasOneWinner() {
	orderID := suite.bookOrder(14)
	svc := services.GetOrderService()
	actor := services.TechnicianActor(suite.env.Technician.ID)

	errs := runConcurrently(8, func() error {
		_, err := svc.Confirm(context.Background(), actor, orderID)
		return err
	})

	succeeded, conflicts, other := countOutcomes(errs)
	suite.Empty(other)
	suite.Equal(1, succeeded)
	suite.Equal(7, conflicts)

	var order models.Order
	suite.Require().NoError(suite.db.First(&order, "id = ?", orderID).Error)
	suite.Equal(models.OrderStatusConfirmed, order.Status)
	suite.Equal(2, order.Version)
}

// TestConcurrentCommentsStoreOneReview relies on the unique index of order_comments
func (suite *PostgresIntegrationTestSuite) TestConcurrentCommentsStoreOneReview() {
	ctx := context.Background()
	orderID := suite.bookOrder(14)
	svc := services.GetOrderService()
	technician := services.TechnicianActor(suite.env.Technician.ID)

	_, err := svc.Confirm(ctx, technician, orderID)
	suite.Require().NoError(err)
	_, err = svc.Start(ctx, technician, orderID, services.StartOrderRequest{})
	suite.Require().NoError(err)
	_, err = svc.Complete(ctx, technician, orderID, services.CompleteOrderRequest{})
	suite.Require().NoError(err)

	customer := services.Customer(suite.env.Customer.ID)
	errs := runConcurrently(5, func() error {
		_, err := svc.Comment(ctx, customer, orderID, services.CommentOrderRequest{Rating: 5})
		return err
	})

	succeeded, conflicts, other := countOutcomes(errs)
	suite.Empty(other)
	suite.Equal(1, succeeded)
	suite.Equal(4, conflicts)

	var count int64
	suite.Require().NoError(suite.db.Model(&models.OrderComment{}).Where("order_id = ?", orderID).Count(&count).Error)
	suite.Equal(int64(1), count)
}

// TestConcurrentBookingsAfterConfirmation keeps a confirmed slot blocked under load
func (suite *PostgresIntegrationTestSuite) TestConcurrentBookingsAfterConfirmation() {
	ctx := context.Background()
	orderID := suite.bookOrder(14)
	svc := services.GetOrderService()
	_, err := svc.Confirm(ctx, services.TechnicianActor(suite.env.Technician.ID), orderID)
	suite.Require().NoError(err)

	customer := services.Customer(suite.env.Customer.ID)
	errs := runConcurrently(6, func() error {
		_, err := svc.Create(ctx, customer, services.CreateOrderRequest{
			TechnicianID:    suite.env.Technician.ID,
			ServiceID:       suite.env.Service.ID,
			AppointmentTime: time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC),
			Address:         &models.AddressSnapshot{ContactName: "Wang", Phone: "13800000001", Detail: "No. 1 West Lake Road"},
		})
		return err
	})

	succeeded, conflicts, other := countOutcomes(errs)
	suite.Empty(other)
	suite.Zero(succeeded)
	suite.Equal(6, conflicts)
}

// TestPostgresIntegrationTestSuite runs the PostgreSQL integration test suite
func TestPostgresIntegrationTestSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed tests in short mode")
	}
	suite.Run(t, new(PostgresIntegrationTestSuite))
}
