package db

import (
	"context"
	"fmt"

	"github.com/gartstein/orderdesk/internal/orders/db/models"
	e "github.com/gartstein/orderdesk/internal/orders/errors"
	domain "github.com/gartstein/orderdesk/internal/orders/models"
	"gorm.io/gorm/clause"
)

var companyColumns = []string{"name", "legal_id", "phone", "street", "number", "postal_code", "city", "region"}

func (r *Repository) CreateCompany(ctx context.Context, company *domain.Company) error {
	rec := companyToRecord(company)
	rec.ID = 0
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return translate(err)
	}
	*company = *companyToDomain(rec)
	return nil
}

func (r *Repository) GetCompany(ctx context.Context, id int64) (*domain.Company, error) {
	var rec models.Company
	if err := r.db.WithContext(ctx).Take(&rec, "id = ?", id).Error; err != nil {
		return nil, notFound(translate(err), "company", id)
	}
	return companyToDomain(&rec), nil
}

// LockCompany reads a company and holds a row lock on it until the
// surrounding transaction ends. SQLite has no row locks; there the
// immediate transaction already holds the database write lock.
func (r *Repository) LockCompany(ctx context.Context, id int64) (*domain.Company, error) {
	var rec models.Company
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&rec, "id = ?", id).Error
	if err != nil {
		return nil, notFound(translate(err), "company", id)
	}
	return companyToDomain(&rec), nil
}

// UpdateCompany overwrites every editable column of the company.
func (r *Repository) UpdateCompany(ctx context.Context, company *domain.Company) error {
	rec := companyToRecord(company)
	result := r.db.WithContext(ctx).Model(&models.Company{}).
		Where("id = ?", company.ID).
		Select(companyColumns).
		Updates(rec)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: company %d", e.ErrNotFound, company.ID)
	}
	return nil
}

func (r *Repository) DeleteCompany(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&models.Company{}, "id = ?", id)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: company %d", e.ErrNotFound, id)
	}
	return nil
}

// ListCompanies returns every company sorted by name.
func (r *Repository) ListCompanies(ctx context.Context) ([]domain.Company, error) {
	var recs []models.Company
	if err := r.db.WithContext(ctx).Order("name").Order("id").Find(&recs).Error; err != nil {
		return nil, translate(err)
	}
	companies := make([]domain.Company, 0, len(recs))
	for i := range recs {
		companies = append(companies, *companyToDomain(&recs[i]))
	}
	return companies, nil
}

// CompanyConflict reports the first unique key of another company that
// name or legalID would duplicate. excludeID skips the company being
// updated; pass 0 on create.
func (r *Repository) CompanyConflict(ctx context.Context, name, legalID string, excludeID int64) (string, string, error) {
	keys := []struct{ column, value string }{
		{"name", name},
		{"legal_id", legalID},
	}
	for _, k := range keys {
		var count int64
		err := r.db.WithContext(ctx).Model(&models.Company{}).
			Where(k.column+" = ? AND id <> ?", k.value, excludeID).
			Count(&count).Error
		if err != nil {
			return "", "", translate(err)
		}
		if count > 0 {
			return k.column, k.value, nil
		}
	}
	return "", "", nil
}

func (r *Repository) CountOrdersByCompany(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ServiceOrder{}).
		Where("company_id = ?", id).
		Count(&count).Error
	return count, translate(err)
}

func (r *Repository) CreateServiceType(ctx context.Context, st *domain.ServiceType) error {
	rec := &models.ServiceType{Name: st.Name}
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return translate(err)
	}
	*st = *serviceTypeToDomain(rec)
	return nil
}

func (r *Repository) GetServiceType(ctx context.Context, id int64) (*domain.ServiceType, error) {
	var rec models.ServiceType
	if err := r.db.WithContext(ctx).Take(&rec, "id = ?", id).Error; err != nil {
		return nil, notFound(translate(err), "service type", id)
	}
	return serviceTypeToDomain(&rec), nil
}

// LockServiceType is the service type counterpart of LockCompany.
func (r *Repository) LockServiceType(ctx context.Context, id int64) (*domain.ServiceType, error) {
	var rec models.ServiceType
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&rec, "id = ?", id).Error
	if err != nil {
		return nil, notFound(translate(err), "service type", id)
	}
	return serviceTypeToDomain(&rec), nil
}

func (r *Repository) UpdateServiceType(ctx context.Context, st *domain.ServiceType) error {
	result := r.db.WithContext(ctx).Model(&models.ServiceType{}).
		Where("id = ?", st.ID).
		Update("name", st.Name)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: service type %d", e.ErrNotFound, st.ID)
	}
	return nil
}

func (r *Repository) DeleteServiceType(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&models.ServiceType{}, "id = ?", id)
	if result.Error != nil {
		return translate(result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: service type %d", e.ErrNotFound, id)
	}
	return nil
}

// ListServiceTypes returns every service type sorted by name.
func (r *Repository) ListServiceTypes(ctx context.Context) ([]domain.ServiceType, error) {
	var recs []models.ServiceType
	if err := r.db.WithContext(ctx).Order("name").Order("id").Find(&recs).Error; err != nil {
		return nil, translate(err)
	}
	types := make([]domain.ServiceType, 0, len(recs))
	for i := range recs {
		types = append(types, *serviceTypeToDomain(&recs[i]))
	}
	return types, nil
}

func (r *Repository) ServiceTypeExistsByName(ctx context.Context, name string, excludeID int64) (bool, error) {
	var count int64
	result := r.db.WithContext(ctx).Model(&models.ServiceType{}).
		Select("name").
		Where("name = ? AND id <> ?", name, excludeID).
		Limit(1).
		Count(&count)
	return count > 0, translate(result.Error)
}

func (r *Repository) CountOrdersByServiceType(ctx context.Context, id int64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ServiceOrder{}).
		Where("service_type_id = ?", id).
		Count(&count).Error
	return count, translate(err)
}
