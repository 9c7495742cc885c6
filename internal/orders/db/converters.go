package db

import (
	"github.com/gartstein/orderdesk/internal/orders/db/models"
	domain "github.com/gartstein/orderdesk/internal/orders/models"
)

func userToDomain(u *models.User) *domain.User {
	return &domain.User{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		IsAdmin:      u.IsAdmin,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func companyToRecord(c *domain.Company) *models.Company {
	return &models.Company{
		ID:         c.ID,
		Name:       c.Name,
		LegalID:    c.LegalID,
		Phone:      c.Phone,
		Street:     c.Street,
		Number:     c.Number,
		PostalCode: c.PostalCode,
		City:       c.City,
		Region:     c.Region,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func companyToDomain(c *models.Company) *domain.Company {
	return &domain.Company{
		ID:         c.ID,
		Name:       c.Name,
		LegalID:    c.LegalID,
		Phone:      c.Phone,
		Street:     c.Street,
		Number:     c.Number,
		PostalCode: c.PostalCode,
		City:       c.City,
		Region:     c.Region,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func serviceTypeToDomain(s *models.ServiceType) *domain.ServiceType {
	return &domain.ServiceType{
		ID:        s.ID,
		Name:      s.Name,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func orderToRecord(o *domain.ServiceOrder) *models.ServiceOrder {
	return &models.ServiceOrder{
		ID:            o.ID,
		CompanyID:     o.CompanyID,
		ServiceTypeID: o.ServiceTypeID,
		Title:         o.Title,
		Description:   o.Description,
		Status:        string(o.Status),
		OpenedAt:      o.OpenedAt,
		LastUpdatedAt: o.LastUpdatedAt,
	}
}

func orderToDomain(o *models.ServiceOrder) *domain.ServiceOrder {
	return &domain.ServiceOrder{
		ID:            o.ID,
		CompanyID:     o.CompanyID,
		ServiceTypeID: o.ServiceTypeID,
		Title:         o.Title,
		Description:   o.Description,
		Status:        domainStatus(o.Status),
		OpenedAt:      o.OpenedAt,
		LastUpdatedAt: o.LastUpdatedAt,
	}
}

func summaryToDomain(s *models.OrderSummary) domain.OrderSummary {
	return domain.OrderSummary{
		ID:              s.ID,
		CompanyID:       s.CompanyID,
		CompanyName:     s.CompanyName,
		ServiceTypeID:   s.ServiceTypeID,
		ServiceTypeName: s.ServiceTypeName,
		Title:           s.Title,
		Status:          domainStatus(s.Status),
		OpenedAt:        s.OpenedAt,
		LastUpdatedAt:   s.LastUpdatedAt,
	}
}

// domainStatus resolves a stored status, tolerating legacy labels.
func domainStatus(s string) domain.Status {
	if st, ok := domain.ParseStatus(s); ok {
		return st
	}
	return domain.Status(s)
}
