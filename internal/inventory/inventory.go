package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/studentnest/nest-backend/pkg/db"
	"github.com/studentnest/nest-backend/pkg/db/models"
	"github.com/studentnest/nest-backend/pkg/enums"
	pkgerrors "github.com/studentnest/nest-backend/pkg/errors"
)

// Item is the bookable view of a room, mess plan or service.
type Item struct {
	Type      enums.ItemType
	ID        uuid.UUID
	Name      string
	Price     int64
	OwnerID   uuid.UUID
	Available int
	Active    bool
	// DurationDays is set for mess plans.
	DurationDays int
}

// Inventory is the per item type capacity contract. Reserve and Release are
// single conditional UPDATE statements; Reserve reports false when capacity
// is exhausted.
type Inventory interface {
	Lookup(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Item, error)
	Reserve(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int) (bool, error)
	Release(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int) error
}

// Rules resolves the inventory for an item type once per call.
type Rules struct {
	db    *gorm.DB
	kinds map[enums.ItemType]Inventory
}

// NewRules wires the dispatch table for every item type.
func NewRules(conn *gorm.DB) *Rules {
	return &Rules{
		db: conn,
		kinds: map[enums.ItemType]Inventory{
			enums.ItemTypeRoomBooking: rooms{},
			enums.ItemTypeMessPlan:    messPlans{},
			enums.ItemTypeService:     services{},
		},
	}
}

// WithTx binds the rules to an open transaction.
func (r *Rules) WithTx(tx *gorm.DB) *Rules {
	if tx == nil {
		return r
	}
	return &Rules{db: tx, kinds: r.kinds}
}

func (r *Rules) resolve(itemType enums.ItemType) (Inventory, error) {
	inv, ok := r.kinds[itemType]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported item type %q", itemType))
	}
	return inv, nil
}

// Lookup returns the item or NotFound.
func (r *Rules) Lookup(ctx context.Context, itemType enums.ItemType, id uuid.UUID) (*Item, error) {
	inv, err := r.resolve(itemType)
	if err != nil {
		return nil, err
	}
	item, err := inv.Lookup(ctx, r.db, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("%s not found", itemType))
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load item")
	}
	return item, nil
}

// Validate requires the item to exist, be active and currently have
// capacity. It does not hold capacity.
func (r *Rules) Validate(ctx context.Context, itemType enums.ItemType, id uuid.UUID) (*Item, error) {
	item, err := r.Lookup(ctx, itemType, id)
	if err != nil {
		return nil, err
	}
	if !item.Active {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("%s not found", itemType))
	}
	if item.Available <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("%s is fully booked", itemType))
	}
	return item, nil
}

// TryReserve atomically takes qty units of capacity.
func (r *Rules) TryReserve(ctx context.Context, itemType enums.ItemType, id uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	inv, err := r.resolve(itemType)
	if err != nil {
		return false, err
	}
	ok, err := inv.Reserve(ctx, r.db, id, qty)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reserve capacity")
	}
	return ok, nil
}

// Release returns qty units of capacity, never below zero usage.
func (r *Rules) Release(ctx context.Context, itemType enums.ItemType, id uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	inv, err := r.resolve(itemType)
	if err != nil {
		return err
	}
	if err := inv.Release(ctx, r.db, id, qty); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "release capacity")
	}
	return nil
}

type rooms struct{}

func (rooms) Lookup(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Item, error) {
	var room models.Room
	if err := tx.WithContext(ctx).First(&room, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &Item{
		Type:      enums.ItemTypeRoomBooking,
		ID:        room.ID,
		Name:      room.Title,
		Price:     room.Price,
		OwnerID:   room.HostID,
		Available: room.AvailableRooms,
		Active:    room.IsActive,
	}, nil
}

func (rooms) Reserve(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE rooms SET available_rooms = available_rooms - ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_active = ? AND available_rooms >= ?`,
		qty, id, true, qty,
	)
	return res.RowsAffected == 1, res.Error
}

func (rooms) Release(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE rooms SET available_rooms = CASE WHEN available_rooms + ? > total_rooms THEN total_rooms ELSE available_rooms + ? END,
		 updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		qty, qty, id,
	).Error
}

type messPlans struct{}

func (messPlans) Lookup(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Item, error) {
	var plan models.MessPlan
	if err := tx.WithContext(ctx).First(&plan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &Item{
		Type:         enums.ItemTypeMessPlan,
		ID:           plan.ID,
		Name:         plan.Name,
		Price:        plan.Price,
		OwnerID:      plan.ProviderID,
		Available:    plan.Capacity - plan.CurrentSubscribers,
		Active:       plan.IsActive,
		DurationDays: plan.DurationDays,
	}, nil
}

func (messPlans) Reserve(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE mess_plans SET current_subscribers = current_subscribers + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_active = ? AND current_subscribers + ? <= capacity`,
		qty, id, true, qty,
	)
	return res.RowsAffected == 1, res.Error
}

func (messPlans) Release(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE mess_plans SET current_subscribers = CASE WHEN current_subscribers < ? THEN 0 ELSE current_subscribers - ? END,
		 updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		qty, qty, id,
	).Error
}

type services struct{}

func (services) Lookup(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*Item, error) {
	var svc models.AncillaryService
	if err := tx.WithContext(ctx).First(&svc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &Item{
		Type:      enums.ItemTypeService,
		ID:        svc.ID,
		Name:      svc.Name,
		Price:     svc.Price,
		OwnerID:   svc.ProviderID,
		Available: svc.MaxOrders - svc.CurrentOrders,
		Active:    svc.IsActive,
	}, nil
}

func (services) Reserve(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE services SET current_orders = current_orders + ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND is_active = ? AND current_orders + ? <= max_orders`,
		qty, id, true, qty,
	)
	return res.RowsAffected == 1, res.Error
}

func (services) Release(ctx context.Context, tx *gorm.DB, id uuid.UUID, qty int) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE services SET current_orders = CASE WHEN current_orders < ? THEN 0 ELSE current_orders - ? END,
		 updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		qty, qty, id,
	).Error
}
