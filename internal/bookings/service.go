package bookings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/studentnest/nest-backend/internal/fulfillment"
	"github.com/studentnest/nest-backend/internal/inventory"
	"github.com/studentnest/nest-backend/pkg/db"
	"github.com/studentnest/nest-backend/pkg/db/models"
	"github.com/studentnest/nest-backend/pkg/enums"
	pkgerrors "github.com/studentnest/nest-backend/pkg/errors"
	"github.com/studentnest/nest-backend/pkg/logger"
	"github.com/studentnest/nest-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type refunder interface {
	Refund(ctx context.Context, entryID uuid.UUID, amount int64, reason, source string) (*models.LedgerEntry, error)
}

// Service runs the booking lifecycle.
type Service interface {
	Create(ctx context.Context, actor Actor, req CreateRequest) (*BookingDTO, error)
	List(ctx context.Context, actor Actor, status *enums.BookingStatus, params pagination.Params) (*ListResponse, error)
	UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, req UpdateStatusRequest) (*BookingDTO, error)
	Rate(ctx context.Context, actor Actor, id uuid.UUID, req RateRequest) (*BookingDTO, error)
}

type ServiceParams struct {
	Tx        txRunner
	Repo      Repository
	Inventory *inventory.Rules
	Refunder  refunder
	Logger    *logger.Logger
	Now       func() time.Time
}

type service struct {
	tx        txRunner
	repo      Repository
	inventory *inventory.Rules
	refunder  refunder
	logg      *logger.Logger
	now       func() time.Time
}

func NewService(p ServiceParams) (Service, error) {
	switch {
	case p.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case p.Repo == nil:
		return nil, fmt.Errorf("bookings repository required")
	case p.Inventory == nil:
		return nil, fmt.Errorf("inventory rules required")
	case p.Refunder == nil:
		return nil, fmt.Errorf("refunder required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := p.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		tx:        p.Tx,
		repo:      p.Repo,
		inventory: p.Inventory,
		refunder:  p.Refunder,
		logg:      p.Logger,
		now:       now,
	}, nil
}

// Create books a room directly. Capacity is taken in the same transaction
// as the insert so an overlap or insert failure hands the slot back.
func (s *service) Create(ctx context.Context, actor Actor, req CreateRequest) (*BookingDTO, error) {
	if actor.Role != enums.UserRoleStudent {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only students can book rooms")
	}
	if req.RoomID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "roomId is required")
	}
	checkIn, checkOut := req.CheckIn.UTC(), req.CheckOut.UTC()
	if checkIn.IsZero() || !checkOut.After(checkIn) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkOut must be after checkIn")
	}
	if truncateDay(checkIn).Before(truncateDay(s.now())) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkIn cannot be in the past")
	}

	var booking *models.Booking
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		rules := s.inventory.WithTx(tx)

		room, err := rules.Validate(ctx, enums.ItemTypeRoomBooking, req.RoomID)
		if err != nil {
			return err
		}
		overlap, err := repo.HasOverlap(ctx, actor.UserID, req.RoomID, checkIn, checkOut)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check overlapping bookings")
		}
		if overlap {
			return pkgerrors.New(pkgerrors.CodeConflict, "you already have a booking for this room in that window")
		}
		reserved, err := rules.TryReserve(ctx, enums.ItemTypeRoomBooking, req.RoomID, 1)
		if err != nil {
			return err
		}
		if !reserved {
			return pkgerrors.New(pkgerrors.CodeConflict, "room is fully booked")
		}

		booking = &models.Booking{
			StudentID:     actor.UserID,
			RoomID:        room.ID,
			HostID:        room.OwnerID,
			CheckIn:       checkIn,
			CheckOut:      checkOut,
			Status:        enums.BookingStatusPending,
			TotalAmount:   inventory.RoomTotal(room.Price, checkIn, checkOut, req.AdditionalServices),
			PaymentStatus: enums.PaymentStatusPending,
		}
		if req.AdditionalServices != nil {
			booking.AdditionalServices = datatypes.NewJSONType(*req.AdditionalServices)
		}
		if err := repo.Create(ctx, booking); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create booking")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"booking_id": booking.ID.String(), "room_id": booking.RoomID.String()}), "booking created")
	dto := ToDTO(booking)
	return &dto, nil
}

func (s *service) List(ctx context.Context, actor Actor, status *enums.BookingStatus, params pagination.Params) (*ListResponse, error) {
	filter := Filter{Status: status}
	switch actor.Role {
	case enums.UserRoleStudent:
		filter.StudentID = &actor.UserID
	case enums.UserRoleHost:
		filter.HostID = &actor.UserID
	case enums.UserRoleAdmin:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list bookings")
	}
	page, err := s.repo.List(ctx, filter, params)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list bookings")
	}
	out := toList(page)
	return &out, nil
}

// UpdateStatus moves a booking along its DAG. Hosts drive a booking forward
// but never cancel it, students may only cancel their own, admins may do
// either. Cancelling
// releases the room and refunds the tiered amount of a paid booking.
func (s *service) UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, req UpdateStatusRequest) (*BookingDTO, error) {
	target, err := enums.ParseBookingStatus(strings.TrimSpace(req.Status))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status")
	}
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeTransition(actor, booking, target); err != nil {
		return nil, err
	}
	if !booking.Status.CanTransitionTo(target) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot move booking from %s to %s", booking.Status, target))
	}

	if target == enums.BookingStatusCancelled {
		return s.cancel(ctx, booking, req.Reason)
	}

	applied, err := s.repo.Transition(ctx, booking.ID, booking.Status, map[string]any{
		"status":     target,
		"updated_at": s.now(),
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update booking status")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "booking status changed concurrently")
	}
	return s.reload(ctx, booking.ID)
}

func (s *service) cancel(ctx context.Context, booking *models.Booking, reason string) (*BookingDTO, error) {
	now := s.now()
	refund := RefundAmount(booking.CheckIn, now, booking.PaidAmount)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "cancelled"
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		applied, err := s.repo.WithTx(tx).Transition(ctx, booking.ID, booking.Status, map[string]any{
			"status":              enums.BookingStatusCancelled,
			"cancellation_reason": reason,
			"refund_amount":       refund,
			"cancelled_at":        now,
			"updated_at":          now,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "cancel booking")
		}
		if !applied {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "booking status changed concurrently")
		}
		return s.inventory.WithTx(tx).Release(ctx, enums.ItemTypeRoomBooking, booking.RoomID, 1)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"booking_id": booking.ID.String(), "refund_amount": refund})
	s.logg.Info(logCtx, "booking cancelled")

	if booking.PaymentID != nil && refund > 0 {
		if _, err := s.refunder.Refund(ctx, *booking.PaymentID, refund, reason, fulfillment.SourceBooking); err != nil {
			// The ledger entry is flagged; the reconcile sweep retries it.
			s.logg.Error(logCtx, "cancellation refund failed", err)
		}
	}
	return s.reload(ctx, booking.ID)
}

func (s *service) Rate(ctx context.Context, actor Actor, id uuid.UUID, req RateRequest) (*BookingDTO, error) {
	if req.Rating < 1 || req.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.StudentID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the student who stayed can rate")
	}
	if booking.Status != enums.BookingStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only completed bookings can be rated")
	}
	if booking.Rating != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "booking already rated")
	}

	var review *string
	if trimmed := strings.TrimSpace(req.Review); trimmed != "" {
		review = &trimmed
	}
	applied, err := s.repo.SetRating(ctx, booking.ID, req.Rating, review)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "rate booking")
	}
	if !applied {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "booking already rated")
	}
	return s.reload(ctx, booking.ID)
}

func authorizeTransition(actor Actor, booking *models.Booking, target enums.BookingStatus) error {
	switch {
	case actor.Role == enums.UserRoleAdmin:
		return nil
	case actor.Role == enums.UserRoleHost && booking.HostID == actor.UserID && target != enums.BookingStatusCancelled:
		return nil
	case actor.Role == enums.UserRoleStudent && booking.StudentID == actor.UserID && target == enums.BookingStatusCancelled:
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "not allowed to change this booking")
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "booking not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load booking")
	}
	return booking, nil
}

func (s *service) reload(ctx context.Context, id uuid.UUID) (*BookingDTO, error) {
	booking, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := ToDTO(booking)
	return &dto, nil
}
