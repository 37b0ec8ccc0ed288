package notification

import (
	"context"
	"fmt"

	"github.com/agendaclin/booking-api/internal/email"
	"github.com/agendaclin/booking-api/internal/model"
	"github.com/agendaclin/booking-api/pkg/logger"
)

// Service delivers booking notifications. Delivery is best-effort: the
// booking outcome never depends on it.
type Service interface {
	NotifyBookingCreated(ctx context.Context, patient *model.Patient, appointment *model.Appointment) error
}

type service struct {
	sender *email.Sender
	logger *logger.Logger
}

func NewService(sender *email.Sender, logger *logger.Logger) Service {
	return &service{sender: sender, logger: logger}
}

func (s *service) NotifyBookingCreated(ctx context.Context, patient *model.Patient, appointment *model.Appointment) error {
	if s.sender == nil || patient.Email == "" {
		return nil
	}

	subject := "Appointment confirmed"
	body := fmt.Sprintf(
		"<p>Hello %s,</p><p>Your appointment on %s at %s is confirmed.</p>",
		patient.Name,
		model.FormatDate(appointment.Date),
		appointment.Time,
	)
	if err := s.sender.Send(patient.Email, subject, body); err != nil {
		return fmt.Errorf("failed to send booking notification: %w", err)
	}
	return nil
}
