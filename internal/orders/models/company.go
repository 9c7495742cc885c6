// Package models defines the domain models of the order desk: users,
// the catalog (companies and service types) and service orders.
package models

import (
	"strings"
	"time"
)

// Company is a client company that service orders are issued against.
type Company struct {
	// ID is the store-assigned identifier.
	ID int64
	// Name is the display name, unique across companies.
	Name string
	// LegalID is the registration / tax number, unique across companies.
	LegalID string
	// Phone is the contact phone number.
	Phone string
	// Street, Number, PostalCode, City and Region make up the address.
	Street     string
	Number     string
	PostalCode string
	City       string
	Region     string
	// CreatedAt records when the company was created.
	CreatedAt time.Time
	// UpdatedAt records when the company was last updated.
	UpdatedAt time.Time
}

// Normalize trims surrounding whitespace from every text field.
func (c *Company) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.LegalID = strings.TrimSpace(c.LegalID)
	c.Phone = strings.TrimSpace(c.Phone)
	c.Street = strings.TrimSpace(c.Street)
	c.Number = strings.TrimSpace(c.Number)
	c.PostalCode = strings.TrimSpace(c.PostalCode)
	c.City = strings.TrimSpace(c.City)
	c.Region = strings.TrimSpace(c.Region)
}

// CompanyUpdate represents the fields that can be updated for a Company.
// Pointer types are used to allow partial updates; nil fields keep their
// stored value.
type CompanyUpdate struct {
	// ID is the unique identifier for the company to update.
	ID         int64
	Name       *string
	LegalID    *string
	Phone      *string
	Street     *string
	Number     *string
	PostalCode *string
	City       *string
	Region     *string
}

// Apply copies the non-nil fields of u onto c.
func (u CompanyUpdate) Apply(c *Company) {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&c.Name, u.Name)
	set(&c.LegalID, u.LegalID)
	set(&c.Phone, u.Phone)
	set(&c.Street, u.Street)
	set(&c.Number, u.Number)
	set(&c.PostalCode, u.PostalCode)
	set(&c.City, u.City)
	set(&c.Region, u.Region)
}

// ServiceType is a category of work a service order belongs to.
type ServiceType struct {
	ID        int64
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}
