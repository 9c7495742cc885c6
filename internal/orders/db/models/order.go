package models

import "time"

// ServiceOrder is the service_orders table. Both catalog references are
// foreign keys with ON DELETE RESTRICT, so the store itself refuses to
// orphan an order.
type ServiceOrder struct {
	ID            int64       `gorm:"primaryKey;autoIncrement"`
	CompanyID     int64       `gorm:"not null;index"`
	Company       Company     `gorm:"constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT;"`
	ServiceTypeID int64       `gorm:"not null;index"`
	ServiceType   ServiceType `gorm:"constraint:OnUpdate:RESTRICT,OnDelete:RESTRICT;"`
	Title         string      `gorm:"size:200;not null"`
	Description   string      `gorm:"type:text;not null"`
	Status        string      `gorm:"size:16;not null;default:'OPEN';index"`
	OpenedAt      time.Time   `gorm:"not null"`
	LastUpdatedAt time.Time   `gorm:"not null;check:chk_service_orders_updated,last_updated_at >= opened_at"`
}

// OrderSummary is the row shape of the order listing join.
type OrderSummary struct {
	ID              int64
	CompanyID       int64
	CompanyName     string
	ServiceTypeID   int64
	ServiceTypeName string
	Title           string
	Status          string
	OpenedAt        time.Time
	LastUpdatedAt   time.Time
}
