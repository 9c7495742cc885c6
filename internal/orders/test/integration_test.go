package test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/orderdesk/internal/orders/auth"
	"github.com/gartstein/orderdesk/internal/orders/controller"
	"github.com/gartstein/orderdesk/internal/orders/db"
	e "github.com/gartstein/orderdesk/internal/orders/errors"
	"github.com/gartstein/orderdesk/internal/orders/events"
	"github.com/gartstein/orderdesk/internal/orders/models"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const adminPassword = "integration-secret"

// recorder keeps events in memory when no broker is configured.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Produce(ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) find(eventType events.EventType, entityID int64) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Type == eventType && ev.EntityID == entityID {
			return ev, true
		}
	}
	return events.Event{}, false
}

// IntegrationTestSuite runs the services end to end against a real store.
// SQLite is used unless TEST_DB_DRIVER=postgres; events go to Kafka when
// TEST_KAFKA_BROKERS is set.
type IntegrationTestSuite struct {
	suite.Suite
	dbRepo       *db.Repository
	producer     controller.EventProducer
	recorder     *recorder
	kafkaReader  *kafka.Reader
	consumed     map[string]bool
	logger       *zap.Logger
	testTimeout  time.Duration
	cleanupFuncs []func()

	users   *controller.AuthService
	catalog *controller.CatalogService
	orders  *controller.OrderService
}

func TestIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests")
	}
	suite.Run(t, new(IntegrationTestSuite))
}

func (s *IntegrationTestSuite) SetupSuite() {
	s.logger = zap.NewNop()
	s.testTimeout = 20 * time.Second

	var dbErr error
	s.dbRepo, dbErr = initializeDBWithRetry(s.databaseConfig(), s.logger)
	if dbErr != nil {
		s.T().Fatal("Database initialization failed:", dbErr)
	}
	s.cleanupFuncs = append(s.cleanupFuncs, func() { _ = s.dbRepo.Close() })

	if brokers := os.Getenv("TEST_KAFKA_BROKERS"); brokers != "" {
		topic := fmt.Sprintf("orderdesk.it.%d", time.Now().UnixNano())
		producer, reader, err := initializeKafkaWithRetry(strings.Split(brokers, ","), topic)
		if err != nil {
			s.T().Fatal("Kafka initialization failed:", err)
		}
		s.producer, s.kafkaReader = producer, reader
		s.cleanupFuncs = append(s.cleanupFuncs, producer.Close, func() { _ = reader.Close() })
	} else {
		s.recorder = &recorder{}
		s.producer = s.recorder
	}

	opts := []controller.Option{controller.WithHashCost(bcrypt.MinCost)}
	s.users = controller.NewAuthService(s.dbRepo, s.producer, s.logger, opts...)
	s.catalog = controller.NewCatalogService(s.dbRepo, s.producer, s.logger, opts...)
	s.orders = controller.NewOrderService(s.dbRepo, s.producer, s.logger, opts...)
}

func (s *IntegrationTestSuite) databaseConfig() *db.Config {
	cfg := &db.Config{
		Driver:      db.DriverSQLite,
		Path:        filepath.Join(s.T().TempDir(), "integration.db"),
		BusyTimeout: 2 * time.Second,
		Admin:       db.AdminSeed{Password: adminPassword, Cost: bcrypt.MinCost},
	}
	if os.Getenv("TEST_DB_DRIVER") == db.DriverPostgres {
		cfg.Driver = db.DriverPostgres
		cfg.Host = "localhost"
		cfg.Port = 5432
		cfg.User = "test"
		cfg.Password = "test"
		cfg.DBName = "test"
		cfg.SSLMode = "disable"
	}
	return cfg
}

func initializeDBWithRetry(cfg *db.Config, logger *zap.Logger) (*db.Repository, error) {
	var repo *db.Repository
	err := backoff.Retry(func() error {
		var err error
		repo, err = db.NewRepository(context.Background(), cfg, logger)
		return err
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 10))
	return repo, err
}

func initializeKafkaWithRetry(brokers []string, topic string) (*events.Producer, *kafka.Reader, error) {
	var producer *events.Producer
	err := backoff.Retry(func() error {
		var err error
		producer, err = events.NewProducer(brokers, zap.NewNop(), topic)
		return err
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 10))
	if err != nil {
		return nil, nil, fmt.Errorf("Kafka producer initialization failed: %w", err)
	}

	err = backoff.Retry(func() error {
		conn, err := kafka.Dial("tcp", brokers[0])
		if err != nil {
			return err
		}
		defer conn.Close()
		partitions, err := conn.ReadPartitions(topic)
		if err != nil || len(partitions) == 0 {
			return fmt.Errorf("topic %s not found", topic)
		}
		return nil
	}, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5))
	if err != nil {
		producer.Close()
		return nil, nil, fmt.Errorf("Kafka topic check failed: %w", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     topic + ".reader",
		Topic:       topic,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return producer, reader, nil
}

func (s *IntegrationTestSuite) TearDownSuite() {
	for i := len(s.cleanupFuncs) - 1; i >= 0; i-- {
		s.cleanupFuncs[i]()
	}
}

func (s *IntegrationTestSuite) SetupTest() {
	if s.dbRepo == nil {
		s.T().Fatal("Database connection not initialized")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.testTimeout)
	defer cancel()

	for _, stmt := range []string{
		"DELETE FROM service_orders",
		"DELETE FROM companies",
		"DELETE FROM service_types",
		"DELETE FROM users WHERE username <> 'admin'",
	} {
		if err := s.dbRepo.Exec(ctx, stmt); err != nil {
			s.T().Fatal("Failed to clean database:", err)
		}
	}
}

// login authenticates through the service, the way a session starts.
func (s *IntegrationTestSuite) login(username, password string) context.Context {
	actor, err := s.users.Authenticate(context.Background(), username, password)
	s.Require().NoError(err, "login as %s", username)
	return auth.WithActor(context.Background(), actor)
}

func (s *IntegrationTestSuite) TestServiceOrderScenario() {
	ctx := s.login(models.AdminUsername, adminPassword)

	acme, err := s.catalog.CreateCompany(ctx, models.Company{
		Name:    "Acme",
		LegalID: "123",
		Phone:   "555-0100",
		City:    "Springfield",
	})
	s.Require().NoError(err)
	cleaning, err := s.catalog.CreateServiceType(ctx, "Dry Cleaning")
	s.Require().NoError(err)

	order, err := s.orders.Open(ctx, acme.ID, cleaning.ID, "Stain removal", "customer reports coffee stain")
	s.Require().NoError(err)
	s.Equal(models.StatusOpen, order.Status)

	closed, err := s.orders.Edit(ctx, models.OrderEdit{
		ID:            order.ID,
		CompanyID:     acme.ID,
		ServiceTypeID: cleaning.ID,
		Title:         order.Title,
		Description:   order.Description,
		Status:        string(models.StatusClosed),
	})
	s.Require().NoError(err)
	s.True(closed.LastUpdatedAt.After(order.LastUpdatedAt))
	s.False(closed.LastUpdatedAt.Before(closed.OpenedAt))

	open, err := s.orders.List(ctx, models.OrderFilter{Statuses: []models.Status{models.StatusOpen}})
	s.Require().NoError(err)
	s.Empty(open, "closed order must leave the open view")

	done, err := s.orders.List(ctx, models.OrderFilter{Statuses: []models.Status{models.StatusClosed}})
	s.Require().NoError(err)
	s.Require().Len(done, 1)
	s.Equal(order.ID, done[0].ID)
	s.Equal("Acme", done[0].CompanyName)

	err = s.catalog.DeleteServiceType(ctx, cleaning.ID)
	s.ErrorIs(err, e.ErrReferenced)
	_, err = s.catalog.GetServiceType(ctx, cleaning.ID)
	s.NoError(err, "blocked delete leaves the row in place")

	s.Require().NoError(s.orders.Delete(ctx, order.ID))
	s.NoError(s.catalog.DeleteServiceType(ctx, cleaning.ID))

	s.verifyEvent(ctx, events.OrderOpened, order.ID)
	s.verifyEvent(ctx, events.OrderStatusChanged, order.ID)
	s.verifyEvent(ctx, events.ServiceTypeDeleted, cleaning.ID)
}

func (s *IntegrationTestSuite) TestUniqueness() {
	ctx := s.login(models.AdminUsername, adminPassword)

	_, err := s.catalog.CreateCompany(ctx, models.Company{Name: "Acme", LegalID: "123", Phone: "1"})
	s.Require().NoError(err)
	_, err = s.catalog.CreateCompany(ctx, models.Company{Name: "Acme", LegalID: "456", Phone: "1"})
	s.ErrorIs(err, e.ErrDuplicate)

	_, err = s.users.CreateUser(ctx, "maria", "pw", false)
	s.Require().NoError(err)
	_, err = s.users.CreateUser(ctx, "maria", "pw", false)
	s.ErrorIs(err, e.ErrDuplicate)

	companies, err := s.catalog.ListCompanies(ctx)
	s.Require().NoError(err)
	s.Len(companies, 1)
}

func (s *IntegrationTestSuite) TestStaffSession() {
	adminCtx := s.login(models.AdminUsername, adminPassword)
	_, err := s.users.CreateUser(adminCtx, "maria", "maria-pw", false)
	s.Require().NoError(err)

	ctx := s.login("maria", "maria-pw")
	_, err = s.users.CreateUser(ctx, "joao", "pw", false)
	s.ErrorIs(err, e.ErrForbidden)

	admin, _ := auth.ActorFromContext(adminCtx)
	s.ErrorIs(s.users.DeleteUser(adminCtx, admin.UserID), e.ErrForbidden)

	_, err = s.catalog.CreateServiceType(ctx, "Laundry")
	s.NoError(err, "staff may manage the catalog")

	_, err = s.users.Authenticate(context.Background(), "maria", "wrong")
	s.ErrorIs(err, e.ErrInvalidCredentials)
	_, err = s.users.Authenticate(context.Background(), "nobody", "maria-pw")
	s.ErrorIs(err, e.ErrInvalidCredentials)
}

// TestConcurrentDeleteAndOpen races a catalog delete against orders opened
// for the same service type. Either the delete wins and every later open
// fails with ErrNotFound, or an order lands first and the delete fails
// with ErrReferenced; no order may point at a deleted row.
func (s *IntegrationTestSuite) TestConcurrentDeleteAndOpen() {
	ctx := s.login(models.AdminUsername, adminPassword)
	acme, err := s.catalog.CreateCompany(ctx, models.Company{Name: "Acme", LegalID: "123", Phone: "1"})
	s.Require().NoError(err)
	st, err := s.catalog.CreateServiceType(ctx, "Repair")
	s.Require().NoError(err)

	const openers = 4
	var wg sync.WaitGroup
	errs := make(chan error, openers)
	for i := 0; i < openers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.orders.Open(ctx, acme.ID, st.ID, fmt.Sprintf("order %d", i), "concurrent")
			errs <- err
		}(i)
	}
	deleteErr := s.catalog.DeleteServiceType(ctx, st.ID)
	wg.Wait()
	close(errs)

	opened := 0
	for err := range errs {
		if err == nil {
			opened++
			continue
		}
		s.ErrorIs(err, e.ErrNotFound)
	}

	rows, err := s.orders.List(ctx, models.OrderFilter{})
	s.Require().NoError(err)
	s.Len(rows, opened)
	if deleteErr == nil {
		s.Zero(opened, "no order may reference a deleted service type")
	} else {
		s.ErrorIs(deleteErr, e.ErrReferenced)
	}
}

func (s *IntegrationTestSuite) verifyEvent(ctx context.Context, eventType events.EventType, entityID int64) {
	if s.recorder != nil {
		_, ok := s.recorder.find(eventType, entityID)
		s.True(ok, "expected %s event for %d", eventType, entityID)
		return
	}
	s.consumeKafkaEvent(ctx, eventType, entityID)
}

func (s *IntegrationTestSuite) consumeKafkaEvent(ctx context.Context, eventType events.EventType, entityID int64) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	if s.consumed == nil {
		s.consumed = make(map[string]bool)
	}
	want := fmt.Sprintf("%s/%d", eventType, entityID)
	for !s.consumed[want] {
		msg, err := s.kafkaReader.ReadMessage(ctx)
		require.NoError(s.T(), err, "no %s event received", eventType)

		var ev events.Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			s.T().Fatalf("Failed to unmarshal Kafka message: %v", err)
		}
		assert.Equal(s.T(), ev.Key(), string(msg.Key), "message key mismatch")
		s.consumed[fmt.Sprintf("%s/%d", ev.Type, ev.EntityID)] = true
	}
}
