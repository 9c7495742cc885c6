// Package models contains the storage records of the order desk,
// configured to work using GORM as the ORM. Constraints live in the tags
// so that creating a table declares them at the storage layer.
package models

import (
	"time"
)

// Company is the companies table. The unique keys skip blank values, which
// only rows from before the column existed can hold.
type Company struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Name       string `gorm:"size:200;not null;uniqueIndex:idx_companies_name,where:name <> ''"`
	LegalID    string `gorm:"size:32;not null;uniqueIndex:idx_companies_legal_id,where:legal_id <> ''"`
	Phone      string `gorm:"size:32;not null"`
	Street     string `gorm:"size:200;not null;default:''"`
	Number     string `gorm:"size:20;not null;default:''"`
	PostalCode string `gorm:"size:20;not null;default:''"`
	City       string `gorm:"size:100;not null;default:''"`
	Region     string `gorm:"size:100;not null;default:''"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ServiceType is the service_types table.
type ServiceType struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"size:200;not null;uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
