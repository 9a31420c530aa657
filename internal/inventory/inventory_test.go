package inventory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studentnest/nest-backend/pkg/db/models"
	"github.com/studentnest/nest-backend/pkg/db/sqlitetest"
	"github.com/studentnest/nest-backend/pkg/enums"
	pkgerrors "github.com/studentnest/nest-backend/pkg/errors"
)

func TestTryReserveNeverOverbooks(t *testing.T) {
	conn := sqlitetest.Open(t)
	room := sqlitetest.SeedRoom(t, conn, uuid.New(), 500000, 1, 4)
	rules := NewRules(conn)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := rules.TryReserve(context.Background(), enums.ItemTypeRoomBooking, room.ID, 1)
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	var stored models.Room
	require.NoError(t, conn.First(&stored, "id = ?", room.ID).Error)
	assert.Equal(t, 0, stored.AvailableRooms)
}

func TestReleaseIsClamped(t *testing.T) {
	ctx := context.Background()
	conn := sqlitetest.Open(t)
	rules := NewRules(conn)

	room := sqlitetest.SeedRoom(t, conn, uuid.New(), 100, 2, 2)
	require.NoError(t, rules.Release(ctx, enums.ItemTypeRoomBooking, room.ID, 1))
	var storedRoom models.Room
	require.NoError(t, conn.First(&storedRoom, "id = ?", room.ID).Error)
	assert.Equal(t, 2, storedRoom.AvailableRooms, "release must not exceed total rooms")

	plan := sqlitetest.SeedMessPlan(t, conn, uuid.New(), 100, 5, 0)
	require.NoError(t, rules.Release(ctx, enums.ItemTypeMessPlan, plan.ID, 1))
	var storedPlan models.MessPlan
	require.NoError(t, conn.First(&storedPlan, "id = ?", plan.ID).Error)
	assert.Equal(t, 0, storedPlan.CurrentSubscribers, "release must not go below zero")
}

func TestReserveMessPlanAndServiceCapacity(t *testing.T) {
	ctx := context.Background()
	conn := sqlitetest.Open(t)
	rules := NewRules(conn)

	plan := sqlitetest.SeedMessPlan(t, conn, uuid.New(), 300000, 2, 1)
	ok, err := rules.TryReserve(ctx, enums.ItemTypeMessPlan, plan.ID, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = rules.TryReserve(ctx, enums.ItemTypeMessPlan, plan.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok, "plan at capacity")

	svc := sqlitetest.SeedService(t, conn, uuid.New(), 5000, 3, 0)
	ok, err = rules.TryReserve(ctx, enums.ItemTypeService, svc.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = rules.TryReserve(ctx, enums.ItemTypeService, svc.ID, 2)
	require.NoError(t, err)
	assert.False(t, ok, "quantity exceeds remaining orders")
}

func TestValidateErrors(t *testing.T) {
	ctx := context.Background()
	conn := sqlitetest.Open(t)
	rules := NewRules(conn)

	_, err := rules.Validate(ctx, enums.ItemTypeRoomBooking, uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	full := sqlitetest.SeedRoom(t, conn, uuid.New(), 100, 0, 1)
	_, err = rules.Validate(ctx, enums.ItemTypeRoomBooking, full.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeConflict))

	inactive := sqlitetest.SeedService(t, conn, uuid.New(), 100, 1, 0)
	require.NoError(t, conn.Model(inactive).Update("is_active", false).Error)
	_, err = rules.Validate(ctx, enums.ItemTypeService, inactive.ID)
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeNotFound))

	_, err = rules.Validate(ctx, enums.ItemType("hostel"), uuid.New())
	assert.True(t, pkgerrors.Is(err, pkgerrors.CodeValidation))

	plan := sqlitetest.SeedMessPlan(t, conn, uuid.New(), 250000, 10, 3)
	item, err := rules.Validate(ctx, enums.ItemTypeMessPlan, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, item.Available)
	assert.Equal(t, 30, item.DurationDays)
}
