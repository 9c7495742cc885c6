// Package controller implements the business rules of the order desk
// (service layer): authentication, the catalog of companies and service
// types, and the service order lifecycle. Every operation authorizes the
// actor found in the context, then validates and mutates inside a single
// store transaction.
package controller

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gartstein/orderdesk/internal/orders/auth"
	"github.com/gartstein/orderdesk/internal/orders/db"
	e "github.com/gartstein/orderdesk/internal/orders/errors"
	"github.com/gartstein/orderdesk/internal/orders/events"
	"github.com/gartstein/orderdesk/internal/orders/models"
	"github.com/gartstein/orderdesk/internal/orders/policy"
	"go.uber.org/zap"
)

// Store runs units of work. *db.Repository implements it.
type Store interface {
	WithTransaction(ctx context.Context, fn func(repo *db.Repository) error) error
	View(ctx context.Context, fn func(repo *db.Repository) error) error
}

// EventProducer receives a notification after each committed mutation.
type EventProducer interface {
	Produce(ev events.Event)
}

type settings struct {
	timeout  time.Duration
	retries  uint64
	hashCost int
	now      func() time.Time
}

// Option tunes a service.
type Option func(*settings)

// WithOperationTimeout bounds each attempt of an operation, lock waits
// included.
func WithOperationTimeout(d time.Duration) Option {
	return func(s *settings) { s.timeout = d }
}

// WithMaxRetries sets how many times an operation that hit store
// contention is retried.
func WithMaxRetries(n uint64) Option {
	return func(s *settings) { s.retries = n }
}

// WithHashCost sets the bcrypt cost for new credentials.
func WithHashCost(cost int) Option {
	return func(s *settings) { s.hashCost = cost }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

type base struct {
	store    Store
	producer EventProducer
	logger   *zap.Logger
	settings
}

func newBase(store Store, producer EventProducer, logger *zap.Logger, opts []Option) base {
	s := settings{
		timeout:  10 * time.Second,
		retries:  3,
		hashCost: auth.DefaultCost,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(&s)
	}
	if producer == nil {
		producer = events.Nop{}
	}
	return base{store: store, producer: producer, logger: logger, settings: s}
}

type unitOfWork func(ctx context.Context, fn func(repo *db.Repository) error) error

// run executes fn as one transaction. Contention failures are retried with
// exponential backoff; every other error is returned as is.
func (b *base) run(ctx context.Context, fn func(ctx context.Context, repo *db.Repository) error) error {
	return b.retry(ctx, b.store.WithTransaction, fn)
}

// view is run for operations that only read.
func (b *base) view(ctx context.Context, fn func(ctx context.Context, repo *db.Repository) error) error {
	return b.retry(ctx, b.store.View, fn)
}

func (b *base) retry(ctx context.Context, unit unitOfWork, fn func(ctx context.Context, repo *db.Repository) error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 20 * time.Millisecond
	bo.MaxInterval = 500 * time.Millisecond
	bo.MaxElapsedTime = b.timeout

	return backoff.Retry(func() error {
		opCtx, cancel := context.WithTimeout(ctx, b.timeout)
		defer cancel()

		err := unit(opCtx, func(repo *db.Repository) error {
			return fn(opCtx, repo)
		})
		if err == nil || errors.Is(err, e.ErrStoreContention) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(bo, b.retries), ctx))
}

// authorize resolves the actor from ctx and checks it against the policy.
func (b *base) authorize(ctx context.Context, action policy.Action, target policy.Target) (models.Actor, error) {
	actor, _ := auth.ActorFromContext(ctx)
	if err := policy.Authorize(actor, action, target); err != nil {
		return models.Actor{}, err
	}
	return actor, nil
}

// timestamp is the current time as stored: UTC with microsecond precision.
func (b *base) timestamp() time.Time {
	return b.now().UTC().Truncate(time.Microsecond)
}

func (b *base) publish(eventType events.EventType, id int64, actor models.Actor, data any) {
	b.producer.Produce(events.NewEvent(eventType, id, actor.Username, b.timestamp(), data))
}
