package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agendaclin/booking-api/internal/model"
	"github.com/agendaclin/booking-api/internal/repository"
	"github.com/agendaclin/booking-api/pkg/clock"
	"github.com/agendaclin/booking-api/pkg/logger"
	"github.com/agendaclin/booking-api/pkg/messaging"
	"github.com/agendaclin/booking-api/pkg/metrics"
)

const (
	// A lost compare-and-swap is retried a bounded number of times with
	// doubling backoff; after that the caller gets an explicit failure.
	maxReserveAttempts = 3
	baseBackoff        = 25 * time.Millisecond

	DefaultTTL = 90 * time.Second
)

// Service is the slot reservation ledger: a short-lived exclusive hold
// on one (clinic, doctor, date, time) tuple, claimed with optimistic
// concurrency control.
type Service struct {
	store     repository.ReservationStore
	clock     clock.Clock
	publisher messaging.Publisher
	metrics   *metrics.Metrics
	logger    *logger.Logger
	ttl       time.Duration
}

func NewService(store repository.ReservationStore, clk clock.Clock, publisher messaging.Publisher, m *metrics.Metrics, logger *logger.Logger, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store:     store,
		clock:     clk,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		ttl:       ttl,
	}
}

// Reserve claims the slot for the caller. Exactly one of N concurrent
// calls on the same tuple wins; the rest get the winner back as Conflict.
func (s *Service) Reserve(ctx context.Context, req *model.ReserveSlotRequest) (*model.ReserveResult, error) {
	slotKey := model.SlotKey(req.ClinicID, req.DoctorID, req.Date, req.Time)

	for attempt := 0; attempt < maxReserveAttempts; attempt++ {
		if attempt > 0 {
			s.metrics.ReservationRetries.Inc()
			if err := sleepCtx(ctx, baseBackoff<<(attempt-1)); err != nil {
				return nil, err
			}
		}

		current, err := s.store.GetSlot(ctx, slotKey)
		if err != nil {
			return nil, err
		}

		now := s.clock.Now()
		if holds(current, now) {
			return &model.ReserveResult{Conflict: current}, nil
		}

		next := &model.SlotReservation{
			ID:         uuid.New(),
			ClinicID:   req.ClinicID,
			DoctorID:   req.DoctorID,
			Date:       model.DateOnly(req.Date),
			Time:       req.Time,
			ReservedBy: req.ReservedBy,
			UserID:     req.UserID,
			Status:     model.ReservationStatusActive,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.ttl),
		}

		err = s.store.CompareAndSwapSlot(ctx, slotKey, current, next, s.gcTTL())
		if errors.Is(err, repository.ErrCASMismatch) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to reserve slot: %w", err)
		}

		s.metrics.ReservationsActive.Inc()
		return &model.ReserveResult{Success: true, Reservation: next}, nil
	}

	// Out of attempts: report whoever holds the slot now.
	current, err := s.store.GetSlot(ctx, slotKey)
	if err != nil {
		return nil, err
	}
	return &model.ReserveResult{Conflict: current}, nil
}

// Confirm marks the hold CONFIRMED once the appointment row is durably
// written. The record stays in the store until the GC TTL clears it.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) error {
	reservation, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if reservation == nil {
		return fmt.Errorf("reservation %s no longer exists", id)
	}

	reservation.Status = model.ReservationStatusConfirmed
	if err := s.store.UpdateSlot(ctx, reservation, s.gcTTL()); err != nil {
		return fmt.Errorf("failed to confirm reservation: %w", err)
	}
	s.metrics.ReservationsActive.Dec()
	return nil
}

// Cancel releases the hold. Cancelling an unknown or already-released
// reservation is a no-op so compensation paths can call it freely.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) error {
	reservation, err := s.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if reservation == nil {
		return nil
	}

	if err := s.store.DeleteSlot(ctx, reservation); err != nil {
		return fmt.Errorf("failed to cancel reservation: %w", err)
	}
	if reservation.Status == model.ReservationStatusActive {
		s.metrics.ReservationsActive.Dec()
	}
	return nil
}

// IsSlotReserved is a point-in-time read for slot listing.
func (s *Service) IsSlotReserved(ctx context.Context, clinicID, doctorID uuid.UUID, date time.Time, timeOfDay string) (bool, error) {
	current, err := s.store.GetSlot(ctx, model.SlotKey(clinicID, doctorID, date, timeOfDay))
	if err != nil {
		return false, err
	}
	return holds(current, s.clock.Now()) && current.Status == model.ReservationStatusActive, nil
}

// ExpireOverdue releases every ACTIVE hold past its ExpiresAt. Called
// periodically by the sweeper so abandoned booking attempts never pin a
// slot past the TTL.
func (s *Service) ExpireOverdue(ctx context.Context) (int, error) {
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return 0, err
	}

	now := s.clock.Now()
	expired := 0
	for _, reservation := range active {
		if !reservation.Expired(now) {
			continue
		}
		if err := s.store.DeleteSlot(ctx, reservation); err != nil {
			s.logger.Error(err, "failed to expire reservation", "id", reservation.ID)
			continue
		}
		expired++
		s.metrics.ReservationsExpired.Inc()
		s.metrics.ReservationsActive.Dec()

		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, messaging.ChannelReservationExpired, reservation); err != nil {
				s.logger.Error(err, "failed to publish reservation expiry", "id", reservation.ID)
			}
		}
	}
	return expired, nil
}

// TTL exposes the configured hold lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// gcTTL is the store-level backstop: long enough that ExpiresAt always
// fires first, short enough that orphans cannot pile up.
func (s *Service) gcTTL() time.Duration {
	return 2 * s.ttl
}

// holds reports whether current still blocks the slot at instant now.
// An expired ACTIVE hold is treated as gone; a CONFIRMED hold keeps
// blocking until the persisted appointment takes over.
func holds(current *model.SlotReservation, now time.Time) bool {
	if current == nil {
		return false
	}
	switch current.Status {
	case model.ReservationStatusActive:
		return !current.Expired(now)
	case model.ReservationStatusConfirmed:
		return true
	default:
		return false
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
