package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/studentnest/nest-backend/pkg/db/models"
	"github.com/studentnest/nest-backend/pkg/enums"
	pkgerrors "github.com/studentnest/nest-backend/pkg/errors"
	"github.com/studentnest/nest-backend/pkg/pagination"
)

var openStatuses = []enums.BookingStatus{
	enums.BookingStatusPending,
	enums.BookingStatusConfirmed,
	enums.BookingStatusActive,
}

// Filter scopes booking listings. Zero fields are ignored.
type Filter struct {
	StudentID *uuid.UUID
	HostID    *uuid.UUID
	Status    *enums.BookingStatus
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, booking *models.Booking) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	HasOverlap(ctx context.Context, studentID, roomID uuid.UUID, checkIn, checkOut time.Time) (bool, error)
	Transition(ctx context.Context, id uuid.UUID, from enums.BookingStatus, updates map[string]any) (bool, error)
	SetRating(ctx context.Context, id uuid.UUID, rating int, review *string) (bool, error)
	List(ctx context.Context, filter Filter, params pagination.Params) (pagination.Page[models.Booking], error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, booking *models.Booking) error {
	return r.db.WithContext(ctx).Create(booking).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	if err := r.db.WithContext(ctx).First(&booking, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &booking, nil
}

// HasOverlap reports whether the student already holds an open booking of the
// room intersecting [checkIn, checkOut).
func (r *repository) HasOverlap(ctx context.Context, studentID, roomID uuid.UUID, checkIn, checkOut time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("student_id = ? AND room_id = ?", studentID, roomID).
		Where("status IN ?", openStatuses).
		Where("check_in < ? AND check_out > ?", checkOut, checkIn).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) Transition(ctx context.Context, id uuid.UUID, from enums.BookingStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetRating stores the first rating of a completed booking.
func (r *repository) SetRating(ctx context.Context, id uuid.UUID, rating int, review *string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Booking{}).
		Where("id = ? AND status = ? AND rating IS NULL", id, enums.BookingStatusCompleted).
		Updates(map[string]any{"rating": rating, "review": review})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) List(ctx context.Context, filter Filter, params pagination.Params) (pagination.Page[models.Booking], error) {
	query := r.db.WithContext(ctx).Model(&models.Booking{})
	if filter.StudentID != nil {
		query = query.Where("student_id = ?", *filter.StudentID)
	}
	if filter.HostID != nil {
		query = query.Where("host_id = ?", *filter.HostID)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	page, err := pagination.Fetch(query, params, func(b models.Booking) pagination.Cursor {
		return pagination.Cursor{CreatedAt: b.CreatedAt, ID: b.ID}
	})
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return page, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return page, err
}
