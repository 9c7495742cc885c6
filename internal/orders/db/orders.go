package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/gartstein/orderdesk/internal/orders/db/models"
	e "github.com/gartstein/orderdesk/internal/orders/errors"
	domain "github.com/gartstein/orderdesk/internal/orders/models"
	"gorm.io/gorm/clause"
)

var orderColumns = []string{"company_id", "service_type_id", "title", "description", "status", "last_updated_at"}

func (r *Repository) CreateOrder(ctx context.Context, order *domain.ServiceOrder) error {
	rec := orderToRecord(order)
	rec.ID = 0
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(rec).Error; err != nil {
		return danglingReference(translate(err))
	}
	*order = *orderToDomain(rec)
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, id int64) (*domain.ServiceOrder, error) {
	var rec models.ServiceOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&rec, "id = ?", id).Error
	if err != nil {
		return nil, notFound(translate(err), "service order", id)
	}
	return orderToDomain(&rec), nil
}

// UpdateOrder overwrites the editable columns of the order. OpenedAt is
// never rewritten.
func (r *Repository) UpdateOrder(ctx context.Context, order *domain.ServiceOrder) error {
	rec := orderToRecord(order)
	result := r.db.WithContext(ctx).Model(&models.ServiceOrder{}).
		Where("id = ?", order.ID).
		Select(orderColumns).
		Updates(rec)
	if result.Error != nil {
		return danglingReference(translate(result.Error))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: service order %d", e.ErrNotFound, order.ID)
	}
	return nil
}

func (r *Repository) DeleteOrder(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&models.ServiceOrder{}, "id = ?", id)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: service order %d", e.ErrNotFound, id)
	}
	return nil
}

// ListOrders returns order summaries matching filter, newest id first.
func (r *Repository) ListOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.OrderSummary, error) {
	q := r.db.WithContext(ctx).
		Table("service_orders AS o").
		Select(`o.id, o.company_id, c.name AS company_name, o.service_type_id,
			t.name AS service_type_name, o.title, o.status, o.opened_at, o.last_updated_at`).
		Joins("JOIN companies AS c ON c.id = o.company_id").
		Joins("JOIN service_types AS t ON t.id = o.service_type_id")

	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		q = q.Where("o.status IN ?", statuses)
	}
	if filter.CompanyID != nil {
		q = q.Where("o.company_id = ?", *filter.CompanyID)
	}
	if filter.ServiceTypeID != nil {
		q = q.Where("o.service_type_id = ?", *filter.ServiceTypeID)
	}

	var rows []models.OrderSummary
	if err := q.Order("o.id DESC").Scan(&rows).Error; err != nil {
		return nil, translate(err)
	}
	summaries := make([]domain.OrderSummary, 0, len(rows))
	for i := range rows {
		summaries = append(summaries, summaryToDomain(&rows[i]))
	}
	return summaries, nil
}

// danglingReference turns a foreign key failure on insert or update into
// ErrNotFound: the referenced catalog row vanished.
func danglingReference(err error) error {
	if errors.Is(err, e.ErrReferenced) {
		return fmt.Errorf("%w: referenced company or service type", e.ErrNotFound)
	}
	return err
}
