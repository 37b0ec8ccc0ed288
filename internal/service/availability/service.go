package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/agendaclin/booking-api/internal/model"
	"github.com/agendaclin/booking-api/internal/repository"
	"github.com/agendaclin/booking-api/pkg/clock"
	apperrors "github.com/agendaclin/booking-api/pkg/errors"
	"github.com/agendaclin/booking-api/pkg/logger"
)

const (
	// Forward scans for suggestions are capped so a doctor with no open
	// days cannot turn one request into an unbounded walk.
	maxScanDays     = 60
	scanCheckEvery  = 10
	suggestionCount = 3

	cacheTTL = 30 * time.Second
)

// Service is the availability rules engine: weekly template, absence
// calendar and advance-booking window, evaluated in that order.
type Service struct {
	repo   repository.AvailabilityRepository
	cache  *gocache.Cache
	clock  clock.Clock
	logger *logger.Logger
}

func NewService(repo repository.AvailabilityRepository, clk clock.Clock, logger *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  gocache.New(cacheTTL, time.Minute),
		clock:  clk,
		logger: logger,
	}
}

// DefaultAvailability is the canonical template used when a doctor has
// no stored override: Mon-Fri 08:00-18:00, 30-minute grid, weekends off.
func DefaultAvailability() *model.DoctorAvailability {
	week := make(model.WeekSchedule, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		rule := model.DayRule{
			Enabled:         d != time.Sunday && d != time.Saturday,
			StartTime:       "08:00",
			EndTime:         "18:00",
			IntervalMinutes: 30,
		}
		week[d] = rule
	}
	return &model.DoctorAvailability{
		WeekSchedule:       week,
		AdvanceBookingDays: 30,
	}
}

func (s *Service) GetAvailability(ctx context.Context, doctorID, orgID uuid.UUID) (*model.DoctorAvailability, error) {
	key := doctorID.String() + ":" + orgID.String()
	if cached, ok := s.cache.Get(key); ok {
		return cached.(*model.DoctorAvailability), nil
	}

	availability, err := s.repo.GetByDoctor(ctx, doctorID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get availability: %w", err)
	}
	if availability != nil {
		s.cache.Set(key, availability, gocache.DefaultExpiration)
	}
	return availability, nil
}

func (s *Service) SaveAvailability(ctx context.Context, req *model.SaveAvailabilityRequest) (*model.DoctorAvailability, error) {
	if err := validateWeekSchedule(req.WeekSchedule); err != nil {
		return nil, err
	}

	availability := &model.DoctorAvailability{
		DoctorID:              req.DoctorID,
		OrganizationID:        req.OrganizationID,
		WeekSchedule:          req.WeekSchedule,
		Absences:              req.Absences,
		AdvanceBookingDays:    req.AdvanceBookingDays,
		MaxAppointmentsPerDay: req.MaxAppointmentsPerDay,
	}
	if err := s.repo.Upsert(ctx, availability); err != nil {
		return nil, fmt.Errorf("failed to save availability: %w", err)
	}

	s.cache.Delete(req.DoctorID.String() + ":" + req.OrganizationID.String())
	return availability, nil
}

// AddAbsence blocks a date range on the doctor's calendar. A doctor
// without a stored template gets one created from the default.
func (s *Service) AddAbsence(ctx context.Context, req *model.AddAbsenceRequest) (*model.DoctorAbsence, error) {
	if model.DateOnly(req.EndDate).Before(model.DateOnly(req.StartDate)) {
		return nil, apperrors.NewValidation("absence end date is before its start date", nil)
	}
	absenceType := req.Type
	if absenceType == "" {
		absenceType = model.AbsenceTypeOther
	}

	// Work on a fresh record from the repository: the cached one is
	// shared with concurrent readers and must never be mutated.
	availability, err := s.repo.GetByDoctor(ctx, req.DoctorID, req.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to get availability: %w", err)
	}
	if availability == nil {
		availability = DefaultAvailability()
		availability.DoctorID = req.DoctorID
		availability.OrganizationID = req.OrganizationID
	}

	absence := model.DoctorAbsence{
		ID:        uuid.New(),
		DoctorID:  req.DoctorID,
		StartDate: model.DateOnly(req.StartDate),
		EndDate:   model.DateOnly(req.EndDate),
		Reason:    req.Reason,
		Type:      absenceType,
	}
	availability.Absences = append(availability.Absences, absence)

	if err := s.repo.Upsert(ctx, availability); err != nil {
		return nil, fmt.Errorf("failed to save absence: %w", err)
	}
	s.cache.Delete(req.DoctorID.String() + ":" + req.OrganizationID.String())
	return &absence, nil
}

func (s *Service) RemoveAbsence(ctx context.Context, doctorID, orgID, absenceID uuid.UUID) error {
	availability, err := s.repo.GetByDoctor(ctx, doctorID, orgID)
	if err != nil {
		return fmt.Errorf("failed to get availability: %w", err)
	}
	if availability == nil {
		return apperrors.NewNotFound("absence", nil)
	}

	kept := availability.Absences[:0]
	for _, absence := range availability.Absences {
		if absence.ID != absenceID {
			kept = append(kept, absence)
		}
	}
	if len(kept) == len(availability.Absences) {
		return apperrors.NewNotFound("absence", nil)
	}
	availability.Absences = kept

	if err := s.repo.Upsert(ctx, availability); err != nil {
		return fmt.Errorf("failed to remove absence: %w", err)
	}
	s.cache.Delete(doctorID.String() + ":" + orgID.String())
	return nil
}

// effective returns the stored template or the default when none exists.
func (s *Service) effective(ctx context.Context, doctorID, orgID uuid.UUID) (*model.DoctorAvailability, error) {
	availability, err := s.GetAvailability(ctx, doctorID, orgID)
	if err != nil {
		return nil, err
	}
	if availability == nil {
		availability = DefaultAvailability()
		availability.DoctorID = doctorID
		availability.OrganizationID = orgID
	}
	return availability, nil
}

// Validate evaluates the booking rules for one date, and optionally one
// time of day. The first failing rule wins: absence, then weekday, then
// time range, then the advance-booking window.
func (s *Service) Validate(ctx context.Context, doctorID, orgID uuid.UUID, date time.Time, timeOfDay string, computeSuggestions bool) (*model.AvailabilityResult, error) {
	availability, err := s.effective(ctx, doctorID, orgID)
	if err != nil {
		return nil, err
	}
	return s.evaluate(ctx, availability, date, timeOfDay, computeSuggestions)
}

func (s *Service) evaluate(ctx context.Context, availability *model.DoctorAvailability, date time.Time, timeOfDay string, computeSuggestions bool) (*model.AvailabilityResult, error) {
	reject := func(reason string, scanFrom time.Time) (*model.AvailabilityResult, error) {
		result := &model.AvailabilityResult{Reason: reason}
		if computeSuggestions {
			suggestions, err := s.scanForward(ctx, availability, scanFrom, suggestionCount)
			if err != nil {
				return nil, err
			}
			result.SuggestedDates = suggestions
		}
		return result, nil
	}

	if absence := availability.AbsenceFor(date); absence != nil {
		reason := absence.Reason
		if reason == "" {
			reason = fmt.Sprintf("doctor is away (%s)", absence.Type)
		}
		// Scanning resumes after the absence, not at the rejected date.
		return reject(reason, model.DateOnly(absence.EndDate).AddDate(0, 0, 1))
	}

	rule, ok := availability.WeekSchedule[date.Weekday()]
	if !ok || !rule.Enabled {
		return reject(fmt.Sprintf("doctor does not attend on %s", date.Weekday()), date)
	}

	if timeOfDay != "" {
		withinHours, err := timeWithinRule(rule, timeOfDay)
		if err != nil {
			return nil, err
		}
		if !withinHours {
			return reject(fmt.Sprintf("time %s is outside the doctor's hours (%s-%s)", timeOfDay, rule.StartTime, rule.EndTime), date)
		}
	}

	today := model.DateOnly(s.clock.Now())
	daysAhead := int(model.DateOnly(date).Sub(today).Hours() / 24)
	if daysAhead > availability.AdvanceBookingDays {
		return reject(fmt.Sprintf("date is beyond the %d-day advance booking window", availability.AdvanceBookingDays), date)
	}

	return &model.AvailabilityResult{IsAvailable: true}, nil
}

// GetNextAvailableDates walks forward day by day from fromDate collecting
// up to count bookable dates. The availability record is fetched once and
// reused for every candidate.
func (s *Service) GetNextAvailableDates(ctx context.Context, doctorID, orgID uuid.UUID, fromDate time.Time, count int) ([]time.Time, error) {
	availability, err := s.effective(ctx, doctorID, orgID)
	if err != nil {
		return nil, err
	}
	return s.scanForward(ctx, availability, fromDate, count)
}

func (s *Service) scanForward(ctx context.Context, availability *model.DoctorAvailability, fromDate time.Time, count int) ([]time.Time, error) {
	today := model.DateOnly(s.clock.Now())
	date := model.DateOnly(fromDate)
	if date.Before(today) {
		date = today
	}

	var found []time.Time
	for i := 0; i < maxScanDays && len(found) < count; i++ {
		// Periodically give the caller a chance to bail out of long scans.
		if i%scanCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if s.dayBookable(availability, date, today) {
			found = append(found, date)
		}
		date = date.AddDate(0, 0, 1)
	}
	return found, nil
}

func (s *Service) dayBookable(availability *model.DoctorAvailability, date, today time.Time) bool {
	if availability.AbsenceFor(date) != nil {
		return false
	}
	rule, ok := availability.WeekSchedule[date.Weekday()]
	if !ok || !rule.Enabled {
		return false
	}
	daysAhead := int(model.DateOnly(date).Sub(today).Hours() / 24)
	return daysAhead <= availability.AdvanceBookingDays
}

// timeWithinRule checks [start, end) membership and break windows.
func timeWithinRule(rule model.DayRule, timeOfDay string) (bool, error) {
	minute, err := model.ParseMinutes(timeOfDay)
	if err != nil {
		return false, err
	}
	start, err := model.ParseMinutes(rule.StartTime)
	if err != nil {
		return false, err
	}
	end, err := model.ParseMinutes(rule.EndTime)
	if err != nil {
		return false, err
	}
	if minute < start || minute >= end {
		return false, nil
	}
	for _, pause := range rule.Breaks {
		pauseStart, err := model.ParseMinutes(pause.Start)
		if err != nil {
			return false, err
		}
		pauseEnd, err := model.ParseMinutes(pause.End)
		if err != nil {
			return false, err
		}
		if minute >= pauseStart && minute < pauseEnd {
			return false, nil
		}
	}
	return true, nil
}

func validateWeekSchedule(week model.WeekSchedule) error {
	for day, rule := range week {
		if !rule.Enabled {
			continue
		}
		start, err := model.ParseMinutes(rule.StartTime)
		if err != nil {
			return fmt.Errorf("%s: %w", day, err)
		}
		end, err := model.ParseMinutes(rule.EndTime)
		if err != nil {
			return fmt.Errorf("%s: %w", day, err)
		}
		if end <= start {
			return fmt.Errorf("%s: end time %s must be after start time %s", day, rule.EndTime, rule.StartTime)
		}
		if rule.IntervalMinutes <= 0 {
			return fmt.Errorf("%s: interval must be positive", day)
		}
	}
	return nil
}
