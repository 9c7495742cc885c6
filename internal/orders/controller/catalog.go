package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gartstein/orderdesk/internal/orders/db"
	e "github.com/gartstein/orderdesk/internal/orders/errors"
	"github.com/gartstein/orderdesk/internal/orders/events"
	"github.com/gartstein/orderdesk/internal/orders/models"
	"github.com/gartstein/orderdesk/internal/orders/policy"
	"go.uber.org/zap"
)

const maxNameLength = 200

// companyLimits are the column sizes of the companies table, in characters.
var companyLimits = []struct {
	field string
	value func(*models.Company) string
	max   int
}{
	{"name", func(c *models.Company) string { return c.Name }, maxNameLength},
	{"legal_id", func(c *models.Company) string { return c.LegalID }, 32},
	{"phone", func(c *models.Company) string { return c.Phone }, 32},
	{"street", func(c *models.Company) string { return c.Street }, 200},
	{"number", func(c *models.Company) string { return c.Number }, 20},
	{"postal_code", func(c *models.Company) string { return c.PostalCode }, 20},
	{"city", func(c *models.Company) string { return c.City }, 100},
	{"region", func(c *models.Company) string { return c.Region }, 100},
}

// CatalogService manages the reference data orders point to: companies
// and service types.
type CatalogService struct {
	base
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(store Store, producer EventProducer, logger *zap.Logger, opts ...Option) *CatalogService {
	return &CatalogService{base: newBase(store, producer, logger.Named("catalog_service"), opts)}
}

func validateCompany(c *models.Company) error {
	switch {
	case c.Name == "":
		return e.Invalid("name", "is required")
	case c.LegalID == "":
		return e.Invalid("legal_id", "is required")
	case c.Phone == "":
		return e.Invalid("phone", "is required")
	}
	for _, limit := range companyLimits {
		if utf8.RuneCountInString(limit.value(c)) > limit.max {
			return e.Invalid(limit.field, fmt.Sprintf("is longer than %d characters", limit.max))
		}
	}
	return nil
}

// CreateCompany adds a company after validating it and checking that
// neither its name nor its legal id is taken.
func (s *CatalogService) CreateCompany(ctx context.Context, company models.Company) (*models.Company, error) {
	actor, err := s.authorize(ctx, policy.CatalogWrite, policy.Target{})
	if err != nil {
		return nil, err
	}
	company.ID = 0
	company.Normalize()
	if err := validateCompany(&company); err != nil {
		return nil, err
	}

	var created models.Company
	err = s.run(ctx, func(ctx context.Context, repo *db.Repository) error {
		if err := companyKeysFree(ctx, repo, &company); err != nil {
			return err
		}
		created = company
		return repo.CreateCompany(ctx, &created)
	})
	if err != nil {
		return nil, companyConflict(err, company)
	}

	s.logger.Debug("company created", zap.Int64("company_id", created.ID))
	s.publish(events.CompanyCreated, created.ID, actor, created)
	return &created, nil
}

// companyConflict names the unique key of c that a duplicate reported by
// the store hit.
func companyConflict(err error, c models.Company) error {
	if db.ConflictField(err) == "legal_id" {
		return conflictOn(err, "company", "legal_id", c.LegalID)
	}
	return conflictOn(err, "company", "name", c.Name)
}

func companyKeysFree(ctx context.Context, repo *db.Repository, c *models.Company) error {
	field, value, err := repo.CompanyConflict(ctx, c.Name, c.LegalID, c.ID)
	if err != nil {
		return err
	}
	if field != "" {
		return &e.ConflictError{Entity: "company", Field: field, Value: value}
	}
	return nil
}

// GetCompany retrieves a company by id.
func (s *CatalogService) GetCompany(ctx context.Context, id int64) (*models.Company, error) {
	if _, err := s.authorize(ctx, policy.CatalogRead, policy.Target{}); err != nil {
		return nil, err
	}
	var company *models.Company
	err := s.view(ctx, func(ctx context.Context, repo *db.Repository) error {
		var err error
		company, err = repo.GetCompany(ctx, id)
		return err
	})
	return company, err
}

// ListCompanies returns every company sorted by name.
func (s *CatalogService) ListCompanies(ctx context.Context) ([]models.Company, error) {
	if _, err := s.authorize(ctx, policy.CatalogRead, policy.Target{}); err != nil {
		return nil, err
	}
	var companies []models.Company
	err := s.view(ctx, func(ctx context.Context, repo *db.Repository) error {
		var err error
		companies, err = repo.ListCompanies(ctx)
		return err
	})
	return companies, err
}

// UpdateCompany applies the non-nil fields of update, then validates the
// result exactly like CreateCompany.
func (s *CatalogService) UpdateCompany(ctx context.Context, update models.CompanyUpdate) (*models.Company, error) {
	actor, err := s.authorize(ctx, policy.CatalogWrite, policy.Target{})
	if err != nil {
		return nil, err
	}
	if update.ID <= 0 {
		return nil, fmt.Errorf("%w: invalid company ID", e.ErrInvalidInput)
	}

	var updated *models.Company
	var candidate models.Company
	err = s.run(ctx, func(ctx context.Context, repo *db.Repository) error {
		current, err := repo.LockCompany(ctx, update.ID)
		if err != nil {
			return err
		}
		update.Apply(current)
		current.Normalize()
		candidate = *current
		if err := validateCompany(current); err != nil {
			return err
		}
		if err := companyKeysFree(ctx, repo, current); err != nil {
			return err
		}
		if err := repo.UpdateCompany(ctx, current); err != nil {
			return err
		}
		updated, err = repo.GetCompany(ctx, update.ID)
		return err
	})
	if err != nil {
		return nil, companyConflict(err, candidate)
	}

	s.logger.Debug("company updated", zap.Int64("company_id", updated.ID))
	s.publish(events.CompanyUpdated, updated.ID, actor, updated)
	return updated, nil
}

// DeleteCompany removes a company unless a service order still references
// it. The reference check and the delete share one transaction.
func (s *CatalogService) DeleteCompany(ctx context.Context, id int64) error {
	actor, err := s.authorize(ctx, policy.CatalogWrite, policy.Target{})
	if err != nil {
		return err
	}

	err = s.run(ctx, func(ctx context.Context, repo *db.Repository) error {
		if _, err := repo.LockCompany(ctx, id); err != nil {
			return err
		}
		count, err := repo.CountOrdersByCompany(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return &e.ReferencedError{Entity: "company", ID: id, Count: count}
		}
		return repo.DeleteCompany(ctx, id)
	})
	if err != nil {
		return referencedBy(err, "company", id)
	}

	s.logger.Debug("company deleted", zap.Int64("company_id", id))
	s.publish(events.CompanyDeleted, id, actor, nil)
	return nil
}

func validateServiceTypeName(name string) error {
	if name == "" {
		return e.Invalid("name", "is required")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return e.Invalid("name", fmt.Sprintf("is longer than %d characters", maxNameLength))
	}
	return nil
}

// CreateServiceType adds a service type with a unique name.
func (s *CatalogService) CreateServiceType(ctx context.Context, name string) (*models.ServiceType, error) {
	actor, err := s.authorize(ctx, policy.CatalogWrite, policy.Target{})
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if err := validateServiceTypeName(name); err != nil {
		return nil, err
	}

	var created models.ServiceType
	err = s.run(ctx, func(ctx context.Context, repo *db.Repository) error {
		exists, err := repo.ServiceTypeExistsByName(ctx, name, 0)
		if err != nil {
			return err
		}
		if exists {
			return &e.ConflictError{Entity: "service type", Field: "name", Value: name}
		}
		created = models.ServiceType{Name: name}
		return repo.CreateServiceType(ctx, &created)
	})
	if err != nil {
		return nil, conflictOn(err, "service type", "name", name)
	}

	s.logger.Debug("service type created", zap.Int64("service_type_id", created.ID))
	s.publish(events.ServiceTypeCreated, created.ID, actor, created)
	return &created, nil
}

// GetServiceType retrieves a service type by id.
func (s *CatalogService) GetServiceType(ctx context.Context, id int64) (*models.ServiceType, error) {
	if _, err := s.authorize(ctx, policy.CatalogRead, policy.Target{}); err != nil {
		return nil, err
	}
	var st *models.ServiceType
	err := s.view(ctx, func(ctx context.Context, repo *db.Repository) error {
		var err error
		st, err = repo.GetServiceType(ctx, id)
		return err
	})
	return st, err
}

// ListServiceTypes returns every service type sorted by name.
func (s *CatalogService) ListServiceTypes(ctx context.Context) ([]models.ServiceType, error) {
	if _, err := s.authorize(ctx, policy.CatalogRead, policy.Target{}); err != nil {
		return nil, err
	}
	var types []models.ServiceType
	err := s.view(ctx, func(ctx context.Context, repo *db.Repository) error {
		var err error
		types, err = repo.ListServiceTypes(ctx)
		return err
	})
	return types, err
}

// UpdateServiceType renames a service type.
func (s *CatalogService) UpdateServiceType(ctx context.Context, id int64, name string) (*models.ServiceType, error) {
	actor, err := s.authorize(ctx, policy.CatalogWrite, policy.Target{})
	if err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if err := validateServiceTypeName(name); err != nil {
		return nil, err
	}

	var updated *models.ServiceType
	err = s.run(ctx, func(ctx context.Context, repo *db.Repository) error {
		current, err := repo.LockServiceType(ctx, id)
		if err != nil {
			return err
		}
		exists, err := repo.ServiceTypeExistsByName(ctx, name, id)
		if err != nil {
			return err
		}
		if exists {
			return &e.ConflictError{Entity: "service type", Field: "name", Value: name}
		}
		current.Name = name
		if err := repo.UpdateServiceType(ctx, current); err != nil {
			return err
		}
		updated, err = repo.GetServiceType(ctx, id)
		return err
	})
	if err != nil {
		return nil, conflictOn(err, "service type", "name", name)
	}

	s.logger.Debug("service type updated", zap.Int64("service_type_id", id))
	s.publish(events.ServiceTypeUpdated, id, actor, updated)
	return updated, nil
}

// DeleteServiceType removes a service type unless a service order still
// references it.
func (s *CatalogService) DeleteServiceType(ctx context.Context, id int64) error {
	actor, err := s.authorize(ctx, policy.CatalogWrite, policy.Target{})
	if err != nil {
		return err
	}

	err = s.run(ctx, func(ctx context.Context, repo *db.Repository) error {
		if _, err := repo.LockServiceType(ctx, id); err != nil {
			return err
		}
		count, err := repo.CountOrdersByServiceType(ctx, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return &e.ReferencedError{Entity: "service type", ID: id, Count: count}
		}
		return repo.DeleteServiceType(ctx, id)
	})
	if err != nil {
		return referencedBy(err, "service type", id)
	}

	s.logger.Debug("service type deleted", zap.Int64("service_type_id", id))
	s.publish(events.ServiceTypeDeleted, id, actor, nil)
	return nil
}

// referencedBy gives a foreign key failure reported by the store the same
// shape as the explicit reference check.
func referencedBy(err error, entity string, id int64) error {
	var ref *e.ReferencedError
	if errors.Is(err, e.ErrReferenced) && !errors.As(err, &ref) {
		return &e.ReferencedError{Entity: entity, ID: id}
	}
	return err
}
