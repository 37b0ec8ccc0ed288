package booking

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/agendaclin/booking-api/internal/model"
	"github.com/agendaclin/booking-api/internal/repository"
	"github.com/agendaclin/booking-api/internal/service/audit"
	"github.com/agendaclin/booking-api/internal/service/availability"
	"github.com/agendaclin/booking-api/internal/service/notification"
	"github.com/agendaclin/booking-api/internal/service/release"
	"github.com/agendaclin/booking-api/internal/service/reservation"
	apperrors "github.com/agendaclin/booking-api/pkg/errors"
	"github.com/agendaclin/booking-api/pkg/logger"
	"github.com/agendaclin/booking-api/pkg/messaging"
	"github.com/agendaclin/booking-api/pkg/metrics"
)

// Service coordinates the booking saga:
//
//	RESERVE -> RESOLVE_PATIENT -> PERSIST_APPOINTMENT -> CONFIRM_RESERVATION -> DONE
//
// Every failure after RESERVE cancels the reservation before the error
// surfaces, so the slot frees immediately instead of waiting out the TTL.
type Service struct {
	availability *availability.Service
	release      *release.Service
	reservations *reservation.Service
	appointments repository.AppointmentRepository
	patients     repository.PatientRepository
	auditor      *audit.Service
	notifier     notification.Service
	publisher    messaging.Publisher
	validate     *validator.Validate
	metrics      *metrics.Metrics
	logger       *logger.Logger
}

func NewService(
	availabilitySvc *availability.Service,
	releaseSvc *release.Service,
	reservationSvc *reservation.Service,
	appointments repository.AppointmentRepository,
	patients repository.PatientRepository,
	auditor *audit.Service,
	notifier notification.Service,
	publisher messaging.Publisher,
	m *metrics.Metrics,
	logger *logger.Logger,
) *Service {
	return &Service{
		availability: availabilitySvc,
		release:      releaseSvc,
		reservations: reservationSvc,
		appointments: appointments,
		patients:     patients,
		auditor:      auditor,
		notifier:     notifier,
		publisher:    publisher,
		validate:     validator.New(),
		metrics:      m,
		logger:       logger,
	}
}

// ProcessBooking runs one booking transaction for actor.
func (s *Service) ProcessBooking(ctx context.Context, actor model.Actor, req *model.BookingRequest) (*model.BookingResult, error) {
	start := time.Now()
	result, err := s.process(ctx, actor, req)
	s.metrics.BookingLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.BookingAttempts.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}
	s.metrics.BookingAttempts.WithLabelValues("success").Inc()
	return result, nil
}

func (s *Service) process(ctx context.Context, actor model.Actor, req *model.BookingRequest) (*model.BookingResult, error) {
	// Tenant isolation comes before any side effect.
	if !actor.CanAccessClinic(req.ClinicID) {
		return nil, apperrors.NewAuthorization("cannot book into another clinic")
	}

	if req.PatientID == nil && req.NewPatient == nil {
		return nil, apperrors.NewValidation("either patient_id or new_patient is required", nil)
	}
	if _, err := model.ParseMinutes(req.Time); err != nil {
		return nil, apperrors.NewValidation("invalid slot time", err)
	}

	// Rule gates reject before anything is held.
	check, err := s.availability.Validate(ctx, req.DoctorID, req.OrganizationID, req.Date, req.Time, false)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if !check.IsAvailable {
		return nil, apperrors.NewAvailability(check.Reason)
	}

	releaseCheck, err := s.release.IsDateReleased(ctx, req.DoctorID, req.OrganizationID, req.Date)
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if !releaseCheck.Released {
		return nil, apperrors.NewAvailability(releaseCheck.Reason)
	}

	source := req.Source
	if source == "" {
		source = model.ReservationOriginUser
	}

	// RESERVE: the only step that can lose a race outright.
	reserve, err := s.reservations.Reserve(ctx, &model.ReserveSlotRequest{
		ClinicID:   req.ClinicID,
		DoctorID:   req.DoctorID,
		Date:       req.Date,
		Time:       req.Time,
		ReservedBy: source,
		UserID:     actor.UserID,
	})
	if err != nil {
		return nil, apperrors.NewInternal(err)
	}
	if !reserve.Success {
		return nil, s.conflictError(reserve.Conflict)
	}
	held := reserve.Reservation

	// Any failure from here on must free the slot before propagating.
	fail := func(cause error) (*model.BookingResult, error) {
		s.releaseHold(ctx, held)
		s.publishFailed(ctx, req, cause)
		return nil, cause
	}

	patient, err := s.resolvePatient(ctx, req)
	if err != nil {
		return fail(err)
	}

	// Defense in depth: the ledger guards in-flight attempts, the
	// appointment table is the durable truth. Re-scan it before writing.
	occupying, err := s.appointments.FindOccupying(ctx, req.ClinicID, req.DoctorID, req.Date, req.Time)
	if err != nil {
		return fail(apperrors.NewInternal(err))
	}
	if occupying != nil {
		s.metrics.BookingConflicts.WithLabelValues("appointment").Inc()
		return fail(apperrors.NewConflict("this slot has just been booked", nil))
	}

	appointment := &model.Appointment{
		ClinicID:  req.ClinicID,
		DoctorID:  req.DoctorID,
		PatientID: patient.ID,
		Date:      model.DateOnly(req.Date),
		Time:      req.Time,
		Status:    model.AppointmentStatusAgendado,
		Procedure: req.Procedure,
		Notes:     req.Notes,
	}
	if err := s.appointments.Create(ctx, appointment); err != nil {
		return fail(apperrors.NewInternal(err))
	}

	if err := s.reservations.Confirm(ctx, held.ID); err != nil {
		// The appointment row is durable; the stale hold will expire.
		s.logger.Error(err, "failed to confirm reservation", "reservation_id", held.ID)
	}

	s.sideEffects(ctx, actor, req, appointment, patient)

	return &model.BookingResult{Appointment: appointment, Patient: patient}, nil
}

func (s *Service) resolvePatient(ctx context.Context, req *model.BookingRequest) (*model.Patient, error) {
	if req.PatientID != nil {
		patient, err := s.patients.Get(ctx, *req.PatientID)
		if err != nil {
			return nil, apperrors.NewNotFound("patient", err)
		}
		return patient, nil
	}

	if err := s.validate.Struct(req.NewPatient); err != nil {
		return nil, apperrors.NewValidation("invalid new patient payload", err)
	}

	patient := &model.Patient{
		OrganizationID: req.NewPatient.OrganizationID,
		Name:           req.NewPatient.Name,
		Phone:          req.NewPatient.Phone,
		CPF:            req.NewPatient.CPF,
		Email:          req.NewPatient.Email,
		BirthDate:      req.NewPatient.BirthDate,
		Status:         string(model.PatientStatusActive),
	}
	if err := s.patients.Create(ctx, patient); err != nil {
		return nil, apperrors.NewInternal(err)
	}
	return patient, nil
}

// conflictError tells the loser who beat them, so the UI can word the
// message precisely.
func (s *Service) conflictError(winner *model.SlotReservation) error {
	origin := model.ReservationOriginUser
	if winner != nil {
		origin = winner.ReservedBy
	}
	s.metrics.BookingConflicts.WithLabelValues(string(origin)).Inc()

	if origin == model.ReservationOriginAutomation {
		return apperrors.NewConflict("this slot was just taken by an automated scheduler", nil)
	}
	return apperrors.NewConflict("this slot is being booked by another user", nil)
}

func (s *Service) releaseHold(ctx context.Context, held *model.SlotReservation) {
	if err := s.reservations.Cancel(ctx, held.ID); err != nil {
		s.logger.Error(err, "failed to release reservation during rollback", "reservation_id", held.ID)
	}
}

// sideEffects are best-effort: failures are logged and swallowed, never
// surfaced to the caller.
func (s *Service) sideEffects(ctx context.Context, actor model.Actor, req *model.BookingRequest, appointment *model.Appointment, patient *model.Patient) {
	if err := s.auditor.Log(ctx, actor.UserID, req.OrganizationID, "create", "appointment", appointment.ID, &audit.LogOptions{
		Changes: appointment,
	}); err != nil {
		s.logger.Error(err, "failed to write audit log", "appointment_id", appointment.ID)
	}

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, messaging.ChannelBookingCreated, model.BookingResult{
			Appointment: appointment,
			Patient:     patient,
		}); err != nil {
			s.logger.Error(err, "failed to publish booking event", "appointment_id", appointment.ID)
		}
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyBookingCreated(ctx, patient, appointment); err != nil {
			s.logger.Error(err, "failed to notify patient", "appointment_id", appointment.ID)
		}
	}
}

func (s *Service) publishFailed(ctx context.Context, req *model.BookingRequest, cause error) {
	if s.publisher == nil {
		return
	}
	payload := map[string]interface{}{
		"clinic_id": req.ClinicID,
		"doctor_id": req.DoctorID,
		"date":      model.FormatDate(req.Date),
		"time":      req.Time,
		"reason":    cause.Error(),
	}
	if err := s.publisher.Publish(ctx, messaging.ChannelBookingFailed, payload); err != nil {
		s.logger.Error(err, "failed to publish booking failure")
	}
}

func outcomeLabel(err error) string {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrConflict:
		return "conflict"
	case apperrors.ErrValidation:
		return "validation"
	case apperrors.ErrAvailability:
		return "unavailable"
	case apperrors.ErrForbidden, apperrors.ErrUnauthorized:
		return "unauthorized"
	case apperrors.ErrNotFound:
		return "not_found"
	default:
		return "error"
	}
}
