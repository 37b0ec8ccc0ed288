package release

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agendaclin/booking-api/internal/model"
	"github.com/agendaclin/booking-api/internal/repository"
	"github.com/agendaclin/booking-api/pkg/clock"
	"github.com/agendaclin/booking-api/pkg/logger"
)

// Service is the agenda release engine: it decides when a future date's
// slots become visible and bookable. All arithmetic runs off an injected
// clock, because "released" is a property of now.
type Service struct {
	repo   repository.ReleaseScheduleRepository
	clock  clock.Clock
	logger *logger.Logger
}

func NewService(repo repository.ReleaseScheduleRepository, clk clock.Clock, logger *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		clock:  clk,
		logger: logger,
	}
}

func (s *Service) GetSchedule(ctx context.Context, doctorID, orgID uuid.UUID) (*model.AgendaReleaseSchedule, error) {
	schedule, err := s.repo.GetByDoctor(ctx, doctorID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get release schedule: %w", err)
	}
	return schedule, nil
}

func (s *Service) SaveSchedule(ctx context.Context, req *model.SaveReleaseScheduleRequest) (*model.AgendaReleaseSchedule, error) {
	if err := validateScheduleRequest(req); err != nil {
		return nil, err
	}

	schedule := &model.AgendaReleaseSchedule{
		DoctorID:       req.DoctorID,
		OrganizationID: req.OrganizationID,
		ReleaseType:    req.ReleaseType,
		WeeklyConfig:   model.WeeklyConfigColumn{WeeklyReleaseConfig: req.WeeklyConfig},
		MonthlyConfig:  model.MonthlyConfigColumn{MonthlyReleaseConfig: req.MonthlyConfig},
		CustomDates:    req.CustomDates,
		Enabled:        req.Enabled,
	}
	if err := s.repo.Upsert(ctx, schedule); err != nil {
		return nil, fmt.Errorf("failed to save release schedule: %w", err)
	}
	return schedule, nil
}

// IsDateReleased reports whether targetDate's agenda has opened yet.
// A missing or disabled schedule means the agenda is always open.
func (s *Service) IsDateReleased(ctx context.Context, doctorID, orgID uuid.UUID, targetDate time.Time) (*model.ReleaseCheck, error) {
	schedule, err := s.repo.GetByDoctor(ctx, doctorID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get release schedule: %w", err)
	}
	return s.check(schedule, targetDate), nil
}

func (s *Service) check(schedule *model.AgendaReleaseSchedule, targetDate time.Time) *model.ReleaseCheck {
	if schedule == nil || !schedule.Enabled || schedule.ReleaseType == model.ReleaseTypeAlwaysOpen {
		return &model.ReleaseCheck{Released: true}
	}

	now := s.clock.Now()

	switch schedule.ReleaseType {
	case model.ReleaseTypeWeekly:
		if schedule.WeeklyConfig.WeeklyReleaseConfig == nil {
			return &model.ReleaseCheck{Released: true}
		}
		gate := weeklyGate(targetDate, schedule.WeeklyConfig.WeeklyReleaseConfig)
		return gateCheck(now, gate, "this week's agenda")

	case model.ReleaseTypeMonthly:
		if schedule.MonthlyConfig.MonthlyReleaseConfig == nil {
			return &model.ReleaseCheck{Released: true}
		}
		gate := monthlyGate(targetDate, schedule.MonthlyConfig.MonthlyReleaseConfig)
		return gateCheck(now, gate, "this month's agenda")

	case model.ReleaseTypeCustomDate:
		for _, custom := range schedule.CustomDates {
			d := model.DateOnly(targetDate)
			if d.Before(model.DateOnly(custom.TargetStartDate)) || d.After(model.DateOnly(custom.TargetEndDate)) {
				continue
			}
			return gateCheck(now, custom.ReleaseDate, "this period's agenda")
		}
		// No custom range claims the date: nothing is holding it back.
		return &model.ReleaseCheck{Released: true}
	}

	return &model.ReleaseCheck{Released: true}
}

func gateCheck(now, gate time.Time, what string) *model.ReleaseCheck {
	g := gate
	if now.Before(gate) {
		return &model.ReleaseCheck{
			Reason:      fmt.Sprintf("%s opens at %s", what, gate.Format("2006-01-02 15:04")),
			ReleaseDate: &g,
		}
	}
	return &model.ReleaseCheck{Released: true, ReleaseDate: &g}
}

// weeklyGate computes the release instant for the calendar week holding
// targetDate: that week's Sunday plus DayOfWeek days, at Hour.
func weeklyGate(targetDate time.Time, cfg *model.WeeklyReleaseConfig) time.Time {
	sunday := model.DateOnly(targetDate).AddDate(0, 0, -int(targetDate.Weekday()))
	day := sunday.AddDate(0, 0, int(cfg.DayOfWeek))
	return atHour(day, cfg.Hour)
}

// monthlyGate computes the release instant for the month holding
// targetDate: day ReleaseDay of the month TargetMonthOffset months
// earlier, shifted off weekends when FallbackToWeekday is set.
func monthlyGate(targetDate time.Time, cfg *model.MonthlyReleaseConfig) time.Time {
	releaseMonth := time.Date(targetDate.Year(), targetDate.Month(), 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, -cfg.TargetMonthOffset, 0)

	day := releaseMonth.AddDate(0, 0, cfg.ReleaseDay-1)
	if day.Month() != releaseMonth.Month() {
		// Clamp a release day past the month's end to its last day.
		day = releaseMonth.AddDate(0, 1, -1)
	}

	if cfg.FallbackToWeekday {
		switch day.Weekday() {
		case time.Saturday:
			day = day.AddDate(0, 0, 2)
		case time.Sunday:
			day = day.AddDate(0, 0, 1)
		}
	}

	return atHour(day, cfg.Hour)
}

// ValidBookingWindow derives the horizon whose gates have already opened.
// A nil window means the schedule imposes no bound. UI hint only: the
// authoritative answer stays with IsDateReleased.
func (s *Service) ValidBookingWindow(ctx context.Context, doctorID, orgID uuid.UUID) (*model.BookingWindow, error) {
	schedule, err := s.repo.GetByDoctor(ctx, doctorID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to get release schedule: %w", err)
	}
	if schedule == nil || !schedule.Enabled || schedule.ReleaseType == model.ReleaseTypeAlwaysOpen {
		return nil, nil
	}

	now := s.clock.Now()
	today := model.DateOnly(now)

	switch schedule.ReleaseType {
	case model.ReleaseTypeWeekly:
		cfg := schedule.WeeklyConfig.WeeklyReleaseConfig
		if cfg == nil {
			return nil, nil
		}
		// The released weeks form a prefix; find the last one whose gate
		// has fired.
		week := today
		if now.Before(weeklyGate(week, cfg)) {
			week = week.AddDate(0, 0, -7)
		}
		saturday := model.DateOnly(week).AddDate(0, 0, 6-int(week.Weekday()))
		end := saturday.AddDate(0, 0, cfg.AdvanceDays)
		if end.Before(today) {
			return nil, nil
		}
		return &model.BookingWindow{StartDate: today, EndDate: end}, nil

	case model.ReleaseTypeMonthly:
		cfg := schedule.MonthlyConfig.MonthlyReleaseConfig
		if cfg == nil {
			return nil, nil
		}
		var end time.Time
		month := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 24; i++ {
			if now.Before(monthlyGate(month, cfg)) {
				break
			}
			end = month.AddDate(0, 1, -1)
			month = month.AddDate(0, 1, 0)
		}
		if end.IsZero() {
			return nil, nil
		}
		return &model.BookingWindow{StartDate: today, EndDate: end}, nil

	case model.ReleaseTypeCustomDate:
		var end time.Time
		for _, custom := range schedule.CustomDates {
			if now.Before(custom.ReleaseDate) {
				continue
			}
			targetEnd := model.DateOnly(custom.TargetEndDate)
			if targetEnd.Before(today) {
				continue
			}
			if targetEnd.After(end) {
				end = targetEnd
			}
		}
		if end.IsZero() {
			return nil, nil
		}
		return &model.BookingWindow{StartDate: today, EndDate: end}, nil
	}

	return nil, nil
}

func atHour(day time.Time, hour string) time.Time {
	minutes, err := model.ParseMinutes(hour)
	if err != nil {
		minutes = 0
	}
	return time.Date(day.Year(), day.Month(), day.Day(), minutes/60, minutes%60, 0, 0, time.UTC)
}

func validateScheduleRequest(req *model.SaveReleaseScheduleRequest) error {
	switch req.ReleaseType {
	case model.ReleaseTypeWeekly:
		if req.WeeklyConfig == nil {
			return fmt.Errorf("weekly_config is required for WEEKLY_RELEASE")
		}
		if _, err := model.ParseMinutes(req.WeeklyConfig.Hour); err != nil {
			return err
		}
	case model.ReleaseTypeMonthly:
		if req.MonthlyConfig == nil {
			return fmt.Errorf("monthly_config is required for MONTHLY_RELEASE")
		}
		if req.MonthlyConfig.ReleaseDay < 1 || req.MonthlyConfig.ReleaseDay > 31 {
			return fmt.Errorf("release_day must be between 1 and 31")
		}
		if _, err := model.ParseMinutes(req.MonthlyConfig.Hour); err != nil {
			return err
		}
	case model.ReleaseTypeCustomDate:
		if len(req.CustomDates) == 0 {
			return fmt.Errorf("custom_dates is required for CUSTOM_DATE")
		}
	}
	return nil
}
