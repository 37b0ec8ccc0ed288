package slots

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/agendaclin/booking-api/internal/model"
	"github.com/agendaclin/booking-api/internal/repository"
	"github.com/agendaclin/booking-api/internal/service/availability"
	"github.com/agendaclin/booking-api/internal/service/release"
	"github.com/agendaclin/booking-api/internal/service/reservation"
	"github.com/agendaclin/booking-api/pkg/logger"
	"github.com/agendaclin/booking-api/pkg/metrics"
)

// Concurrency cap for per-candidate revalidation.
const validateWorkers = 8

// Service generates the bookable grid for one doctor-day by composing
// the availability and release engines with existing appointments and
// active reservations.
type Service struct {
	availability   *availability.Service
	release        *release.Service
	reservations   *reservation.Service
	appointments   repository.AppointmentRepository
	clinicSettings repository.ClinicSettingsRepository
	metrics        *metrics.Metrics
	logger         *logger.Logger
}

func NewService(
	availabilitySvc *availability.Service,
	releaseSvc *release.Service,
	reservationSvc *reservation.Service,
	appointments repository.AppointmentRepository,
	clinicSettings repository.ClinicSettingsRepository,
	m *metrics.Metrics,
	logger *logger.Logger,
) *Service {
	return &Service{
		availability:   availabilitySvc,
		release:        releaseSvc,
		reservations:   reservationSvc,
		appointments:   appointments,
		clinicSettings: clinicSettings,
		metrics:        m,
		logger:         logger,
	}
}

// GetAvailableSlots returns the day's candidate grid. Any closed gate
// (availability, release) yields an empty list, not an error: a closed
// day is a normal answer.
func (s *Service) GetAvailableSlots(ctx context.Context, clinicID, doctorID, orgID uuid.UUID, date time.Time) ([]model.AvailableSlot, error) {
	start := time.Now()
	defer func() {
		s.metrics.SlotGenerationLatency.Observe(time.Since(start).Seconds())
	}()

	dayCheck, err := s.availability.Validate(ctx, doctorID, orgID, date, "", false)
	if err != nil {
		return nil, err
	}
	if !dayCheck.IsAvailable {
		return []model.AvailableSlot{}, nil
	}

	releaseCheck, err := s.release.IsDateReleased(ctx, doctorID, orgID, date)
	if err != nil {
		return nil, err
	}
	if !releaseCheck.Released {
		return []model.AvailableSlot{}, nil
	}

	stored, err := s.availability.GetAvailability(ctx, doctorID, orgID)
	if err != nil {
		return nil, err
	}

	rule, err := s.effectiveDayRule(ctx, stored, clinicID, date.Weekday())
	if err != nil {
		return nil, err
	}

	appointments, err := s.appointments.ListForDay(ctx, clinicID, doctorID, date)
	if err != nil {
		return nil, err
	}

	booked := make(map[string]bool, len(appointments))
	occupying := 0
	for _, appointment := range appointments {
		if appointment.Status.Occupying() {
			booked[appointment.Time] = true
			occupying++
		}
	}

	if stored != nil && stored.MaxAppointmentsPerDay != nil && occupying >= *stored.MaxAppointmentsPerDay {
		return []model.AvailableSlot{}, nil
	}

	times, err := candidateTimes(rule)
	if err != nil {
		return nil, err
	}

	// Each candidate gets a time-aware re-check so sub-day exclusions
	// (lunch breaks) drop out. Checks run concurrently; the indexed slice
	// keeps the output in grid order.
	results := make([]*model.AvailableSlot, len(times))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(validateWorkers)

	for i, t := range times {
		i, t := i, t
		g.Go(func() error {
			check, err := s.availability.Validate(gctx, doctorID, orgID, date, t, false)
			if err != nil {
				return err
			}
			if !check.IsAvailable {
				return nil
			}

			slot := &model.AvailableSlot{Time: t}
			if booked[t] {
				slot.IsBooked = true
			} else {
				reserved, err := s.reservations.IsSlotReserved(gctx, clinicID, doctorID, date, t)
				if err != nil {
					return err
				}
				slot.IsReserved = reserved
			}
			results[i] = slot
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slots := make([]model.AvailableSlot, 0, len(results))
	for _, slot := range results {
		if slot != nil {
			slots = append(slots, *slot)
		}
	}

	s.metrics.SlotsGenerated.Add(float64(len(slots)))
	return slots, nil
}

// effectiveDayRule resolves the grid config for one weekday: the
// doctor's per-day override wins, then the legacy clinic-wide default,
// then the canonical template.
func (s *Service) effectiveDayRule(ctx context.Context, stored *model.DoctorAvailability, clinicID uuid.UUID, weekday time.Weekday) (model.DayRule, error) {
	if stored != nil {
		if rule, ok := stored.WeekSchedule[weekday]; ok && rule.Enabled {
			return rule, nil
		}
	}

	settings, err := s.clinicSettings.GetByClinic(ctx, clinicID)
	if err != nil {
		return model.DayRule{}, err
	}
	if settings != nil {
		return model.DayRule{
			Enabled:         true,
			StartTime:       settings.DefaultStartTime,
			EndTime:         settings.DefaultEndTime,
			IntervalMinutes: settings.DefaultIntervalMinutes,
		}, nil
	}

	return availability.DefaultAvailability().WeekSchedule[weekday], nil
}

// candidateTimes lays out the interval grid from start (inclusive) to
// end (exclusive).
func candidateTimes(rule model.DayRule) ([]string, error) {
	start, err := model.ParseMinutes(rule.StartTime)
	if err != nil {
		return nil, err
	}
	end, err := model.ParseMinutes(rule.EndTime)
	if err != nil {
		return nil, err
	}
	if rule.IntervalMinutes <= 0 {
		return nil, fmt.Errorf("invalid slot interval %d", rule.IntervalMinutes)
	}

	var times []string
	for m := start; m < end; m += rule.IntervalMinutes {
		times = append(times, model.FormatMinutes(m))
	}
	return times, nil
}
