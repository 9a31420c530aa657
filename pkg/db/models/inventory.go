package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Room is a listing with a fixed number of rentable slots.
type Room struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	HostID         uuid.UUID `gorm:"column:host_id;type:uuid;not null;index"`
	Title          string    `gorm:"column:title;not null"`
	Price          int64     `gorm:"column:price;not null"`
	TotalRooms     int       `gorm:"column:total_rooms;not null"`
	AvailableRooms int       `gorm:"column:available_rooms;not null"`
	IsActive       bool      `gorm:"column:is_active;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Room) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// MessPlan is a meal plan capped at Capacity subscribers.
type MessPlan struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProviderID         uuid.UUID `gorm:"column:provider_id;type:uuid;not null;index"`
	Name               string    `gorm:"column:name;not null"`
	Price              int64     `gorm:"column:price;not null"`
	DurationDays       int       `gorm:"column:duration_days;not null"`
	Capacity           int       `gorm:"column:capacity;not null"`
	CurrentSubscribers int       `gorm:"column:current_subscribers;not null"`
	IsActive           bool      `gorm:"column:is_active;not null"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (m *MessPlan) BeforeCreate(*gorm.DB) error {
	ensureID(&m.ID)
	return nil
}

// AncillaryService is a laundry/cleaning style offering capped at MaxOrders.
type AncillaryService struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProviderID    uuid.UUID `gorm:"column:provider_id;type:uuid;not null;index"`
	Name          string    `gorm:"column:name;not null"`
	Price         int64     `gorm:"column:price;not null"`
	MaxOrders     int       `gorm:"column:max_orders;not null"`
	CurrentOrders int       `gorm:"column:current_orders;not null"`
	IsActive      bool      `gorm:"column:is_active;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (AncillaryService) TableName() string { return "services" }

func (s *AncillaryService) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
