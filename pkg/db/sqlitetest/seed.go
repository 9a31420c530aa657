package sqlitetest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/studentnest/nest-backend/pkg/db/models"
	"github.com/studentnest/nest-backend/pkg/enums"
)

// SeedUser inserts an active user with the given role.
func SeedUser(t testing.TB, conn *gorm.DB, role enums.UserRole) *models.User {
	t.Helper()
	user := &models.User{
		Email:        uuid.NewString() + "@nest.test",
		PasswordHash: "unused",
		Name:         string(role) + " user",
		Role:         role,
		IsActive:     true,
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// SeedRoom inserts an active room with available slots out of total.
func SeedRoom(t testing.TB, conn *gorm.DB, hostID uuid.UUID, price int64, available, total int) *models.Room {
	t.Helper()
	room := &models.Room{
		HostID:         hostID,
		Title:          "Room near campus",
		Price:          price,
		TotalRooms:     total,
		AvailableRooms: available,
		IsActive:       true,
	}
	if err := conn.Create(room).Error; err != nil {
		t.Fatalf("seed room: %v", err)
	}
	return room
}

// SeedMessPlan inserts an active mess plan.
func SeedMessPlan(t testing.TB, conn *gorm.DB, providerID uuid.UUID, price int64, capacity, current int) *models.MessPlan {
	t.Helper()
	plan := &models.MessPlan{
		ProviderID:         providerID,
		Name:               "Veg thali monthly",
		Price:              price,
		DurationDays:       30,
		Capacity:           capacity,
		CurrentSubscribers: current,
		IsActive:           true,
	}
	if err := conn.Create(plan).Error; err != nil {
		t.Fatalf("seed mess plan: %v", err)
	}
	return plan
}

// SeedService inserts an active ancillary service.
func SeedService(t testing.TB, conn *gorm.DB, providerID uuid.UUID, price int64, maxOrders, current int) *models.AncillaryService {
	t.Helper()
	svc := &models.AncillaryService{
		ProviderID:    providerID,
		Name:          "Laundry pickup",
		Price:         price,
		MaxOrders:     maxOrders,
		CurrentOrders: current,
		IsActive:      true,
	}
	if err := conn.Create(svc).Error; err != nil {
		t.Fatalf("seed service: %v", err)
	}
	return svc
}
