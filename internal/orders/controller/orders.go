package controller

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gartstein/orderdesk/internal/orders/db"
	e "github.com/gartstein/orderdesk/internal/orders/errors"
	"github.com/gartstein/orderdesk/internal/orders/events"
	"github.com/gartstein/orderdesk/internal/orders/models"
	"github.com/gartstein/orderdesk/internal/orders/policy"
	"go.uber.org/zap"
)

// OrderService runs the service order lifecycle.
type OrderService struct {
	base
}

// NewOrderService constructs an OrderService.
func NewOrderService(store Store, producer EventProducer, logger *zap.Logger, opts ...Option) *OrderService {
	return &OrderService{base: newBase(store, producer, logger.Named("order_service"), opts)}
}

func validateOrderText(title, description string) error {
	switch {
	case title == "":
		return e.Invalid("title", "is required")
	case utf8.RuneCountInString(title) > maxNameLength:
		return e.Invalid("title", fmt.Sprintf("is longer than %d characters", maxNameLength))
	case description == "":
		return e.Invalid("description", "is required")
	}
	return nil
}

func parseStatus(s string) (models.Status, error) {
	status, ok := models.ParseStatus(s)
	if !ok {
		return "", e.Invalid("status", fmt.Sprintf("%q is not one of OPEN, IN_PROGRESS, CLOSED", s))
	}
	return status, nil
}

// catalogRefsExist fails with ErrNotFound when either reference is stale.
func catalogRefsExist(ctx context.Context, repo *db.Repository, companyID, serviceTypeID int64) error {
	if _, err := repo.GetCompany(ctx, companyID); err != nil {
		return err
	}
	_, err := repo.GetServiceType(ctx, serviceTypeID)
	return err
}

// advance returns the next LastUpdatedAt: the current time, pushed past
// prev when the clock has not moved on.
func (s *OrderService) advance(prev time.Time) time.Time {
	now := s.timestamp()
	if !now.After(prev) {
		now = prev.Add(time.Microsecond)
	}
	return now
}

// Open creates a service order. The status is always Open and both
// timestamps are set to the creation time.
func (s *OrderService) Open(ctx context.Context, companyID, serviceTypeID int64, title, description string) (*models.ServiceOrder, error) {
	actor, err := s.authorize(ctx, policy.OrderWrite, policy.Target{})
	if err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	description = strings.TrimSpace(description)
	if err := validateOrderText(title, description); err != nil {
		return nil, err
	}

	var order models.ServiceOrder
	err = s.run(ctx, func(ctx context.Context, repo *db.Repository) error {
		if err := catalogRefsExist(ctx, repo, companyID, serviceTypeID); err != nil {
			return err
		}
		now := s.timestamp()
		order = models.ServiceOrder{
			CompanyID:     companyID,
			ServiceTypeID: serviceTypeID,
			Title:         title,
			Description:   description,
			Status:        models.StatusOpen,
			OpenedAt:      now,
			LastUpdatedAt: now,
		}
		return repo.CreateOrder(ctx, &order)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("service order opened", zap.Int64("order_id", order.ID), zap.String("actor", actor.Username))
	s.publish(events.OrderOpened, order.ID, actor, order)
	return &order, nil
}

// Get retrieves a service order by id.
func (s *OrderService) Get(ctx context.Context, id int64) (*models.ServiceOrder, error) {
	if _, err := s.authorize(ctx, policy.OrderRead, policy.Target{}); err != nil {
		return nil, err
	}
	var order *models.ServiceOrder
	err := s.view(ctx, func(ctx context.Context, repo *db.Repository) error {
		var err error
		order, err = repo.GetOrder(ctx, id)
		return err
	})
	return order, err
}

// Edit replaces every editable field of an order, status included. The
// status change must be allowed by the transition table; a closed order is
// reopened only through Reopen.
func (s *OrderService) Edit(ctx context.Context, edit models.OrderEdit) (*models.ServiceOrder, error) {
	actor, err := s.authorize(ctx, policy.OrderWrite, policy.Target{})
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(edit.Title)
	description := strings.TrimSpace(edit.Description)
	if err := validateOrderText(title, description); err != nil {
		return nil, err
	}
	status, err := parseStatus(edit.Status)
	if err != nil {
		return nil, err
	}

	var (
		order    *models.ServiceOrder
		previous models.Status
	)
	err = s.run(ctx, func(ctx context.Context, repo *db.Repository) error {
		var err error
		order, err = repo.GetOrder(ctx, edit.ID)
		if err != nil {
			return err
		}
		previous = order.Status
		if err := checkTransition(previous, status); err != nil {
			return err
		}
		if err := catalogRefsExist(ctx, repo, edit.CompanyID, edit.ServiceTypeID); err != nil {
			return err
		}
		order.CompanyID = edit.CompanyID
		order.ServiceTypeID = edit.ServiceTypeID
		order.Title = title
		order.Description = description
		order.Status = status
		order.LastUpdatedAt = s.advance(order.LastUpdatedAt)
		return repo.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Debug("service order edited", zap.Int64("order_id", order.ID), zap.String("actor", actor.Username))
	s.publish(events.OrderUpdated, order.ID, actor, order)
	if previous != order.Status {
		s.publishStatus(order, previous, actor)
	}
	return order, nil
}

func checkTransition(from, to models.Status) error {
	if from.CanTransition(to) {
		return nil
	}
	if from == models.StatusClosed && to == models.StatusOpen {
		return fmt.Errorf("%w: closed orders are reopened explicitly", e.ErrInvalidTransition)
	}
	return fmt.Errorf("%w: %s -> %s", e.ErrInvalidTransition, from, to)
}

// Transition moves an order to status along the transition table without
// touching its other fields.
func (s *OrderService) Transition(ctx context.Context, id int64, status string) (*models.ServiceOrder, error) {
	next, err := parseStatus(status)
	if err != nil {
		return nil, err
	}
	return s.setStatus(ctx, id, func(current models.Status) (models.Status, error) {
		return next, checkTransition(current, next)
	})
}

// Reopen moves a closed order back to Open.
func (s *OrderService) Reopen(ctx context.Context, id int64) (*models.ServiceOrder, error) {
	return s.setStatus(ctx, id, func(current models.Status) (models.Status, error) {
		if current != models.StatusClosed {
			return "", fmt.Errorf("%w: only closed orders can be reopened", e.ErrInvalidTransition)
		}
		return models.StatusOpen, nil
	})
}

func (s *OrderService) setStatus(ctx context.Context, id int64, next func(models.Status) (models.Status, error)) (*models.ServiceOrder, error) {
	actor, err := s.authorize(ctx, policy.OrderWrite, policy.Target{})
	if err != nil {
		return nil, err
	}

	var (
		order    *models.ServiceOrder
		previous models.Status
	)
	err = s.run(ctx, func(ctx context.Context, repo *db.Repository) error {
		var err error
		order, err = repo.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		previous = order.Status
		status, err := next(previous)
		if err != nil {
			return err
		}
		order.Status = status
		order.LastUpdatedAt = s.advance(order.LastUpdatedAt)
		return repo.UpdateOrder(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	if previous != order.Status {
		s.publishStatus(order, previous, actor)
	}
	return order, nil
}

func (s *OrderService) publishStatus(order *models.ServiceOrder, previous models.Status, actor models.Actor) {
	s.logger.Debug("service order status changed",
		zap.Int64("order_id", order.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(order.Status)),
	)
	s.publish(events.OrderStatusChanged, order.ID, actor, map[string]any{
		"from": previous,
		"to":   order.Status,
	})
}

// Delete removes a service order.
func (s *OrderService) Delete(ctx context.Context, id int64) error {
	actor, err := s.authorize(ctx, policy.OrderWrite, policy.Target{})
	if err != nil {
		return err
	}
	err = s.run(ctx, func(ctx context.Context, repo *db.Repository) error {
		return repo.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Debug("service order deleted", zap.Int64("order_id", id), zap.String("actor", actor.Username))
	s.publish(events.OrderDeleted, id, actor, nil)
	return nil
}

// List returns the orders matching filter, newest first. An empty filter
// lists every order.
func (s *OrderService) List(ctx context.Context, filter models.OrderFilter) ([]models.OrderSummary, error) {
	if _, err := s.authorize(ctx, policy.OrderRead, policy.Target{}); err != nil {
		return nil, err
	}
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, e.Invalid("status", fmt.Sprintf("%q is not one of OPEN, IN_PROGRESS, CLOSED", st))
		}
	}

	var orders []models.OrderSummary
	err := s.view(ctx, func(ctx context.Context, repo *db.Repository) error {
		var err error
		orders, err = repo.ListOrders(ctx, filter)
		return err
	})
	return orders, err
}

// DefaultView lists the work still pending: orders in a non-terminal
// status, newest first.
func (s *OrderService) DefaultView(ctx context.Context) ([]models.OrderSummary, error) {
	return s.List(ctx, models.DefaultOrderFilter())
}
