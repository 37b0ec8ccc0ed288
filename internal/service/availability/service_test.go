package availability

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendaclin/booking-api/internal/model"
	"github.com/agendaclin/booking-api/pkg/clock"
	apperrors "github.com/agendaclin/booking-api/pkg/errors"
	"github.com/agendaclin/booking-api/pkg/logger"
)

type fakeAvailabilityRepo struct {
	mu     sync.RWMutex
	stored map[string]*model.DoctorAvailability
}

func newFakeAvailabilityRepo() *fakeAvailabilityRepo {
	return &fakeAvailabilityRepo{stored: make(map[string]*model.DoctorAvailability)}
}

// GetByDoctor materializes a fresh record per call, like a row scan does.
func (f *fakeAvailabilityRepo) GetByDoctor(ctx context.Context, doctorID, orgID uuid.UUID) (*model.DoctorAvailability, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	availability, ok := f.stored[doctorID.String()+":"+orgID.String()]
	if !ok {
		return nil, nil
	}
	copied := *availability
	copied.Absences = append(model.AbsenceList(nil), availability.Absences...)
	return &copied, nil
}

func (f *fakeAvailabilityRepo) Upsert(ctx context.Context, availability *model.DoctorAvailability) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored[availability.DoctorID.String()+":"+availability.OrganizationID.String()] = availability
	return nil
}

func weekdaySchedule() model.WeekSchedule {
	week := make(model.WeekSchedule)
	for d := time.Monday; d <= time.Friday; d++ {
		week[d] = model.DayRule{Enabled: true, StartTime: "08:00", EndTime: "18:00", IntervalMinutes: 30}
	}
	return week
}

// Monday, well inside an ordinary month.
var testNow = time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)

func newTestService(repo *fakeAvailabilityRepo) *Service {
	return NewService(repo, clock.Fixed(testNow), logger.NewLogger(nil))
}

func TestValidateDefaultTemplate(t *testing.T) {
	svc := newTestService(newFakeAvailabilityRepo())
	doctorID, orgID := uuid.New(), uuid.New()

	tuesday := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	result, err := svc.Validate(context.Background(), doctorID, orgID, tuesday, "09:00", false)
	require.NoError(t, err)
	assert.True(t, result.IsAvailable)

	sunday := time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)
	result, err = svc.Validate(context.Background(), doctorID, orgID, sunday, "", false)
	require.NoError(t, err)
	assert.False(t, result.IsAvailable)
	assert.Contains(t, result.Reason, "does not attend")
}

func TestValidateAbsenceBlocksAndSuggestsAfterIt(t *testing.T) {
	repo := newFakeAvailabilityRepo()
	svc := newTestService(repo)
	doctorID, orgID := uuid.New(), uuid.New()

	_, err := svc.SaveAvailability(context.Background(), &model.SaveAvailabilityRequest{
		DoctorID:           doctorID,
		OrganizationID:     orgID,
		WeekSchedule:       weekdaySchedule(),
		AdvanceBookingDays: 30,
		Absences: model.AbsenceList{{
			StartDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
			Reason:    "annual leave",
			Type:      model.AbsenceTypeVacation,
		}},
	})
	require.NoError(t, err)

	inside := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	result, err := svc.Validate(context.Background(), doctorID, orgID, inside, "10:00", true)
	require.NoError(t, err)
	assert.False(t, result.IsAvailable)
	assert.Equal(t, "annual leave", result.Reason)

	// Jan 21 is a Sunday, so the first suggestion is Monday the 22nd.
	require.Len(t, result.SuggestedDates, 3)
	assert.Equal(t, time.Date(2024, 1, 22, 0, 0, 0, 0, time.UTC), result.SuggestedDates[0])
	assert.Equal(t, time.Date(2024, 1, 23, 0, 0, 0, 0, time.UTC), result.SuggestedDates[1])
	assert.Equal(t, time.Date(2024, 1, 24, 0, 0, 0, 0, time.UTC), result.SuggestedDates[2])
}

func TestValidateAbsenceWinsOverWeekday(t *testing.T) {
	repo := newFakeAvailabilityRepo()
	svc := newTestService(repo)
	doctorID, orgID := uuid.New(), uuid.New()

	_, err := svc.SaveAvailability(context.Background(), &model.SaveAvailabilityRequest{
		DoctorID:           doctorID,
		OrganizationID:     orgID,
		WeekSchedule:       weekdaySchedule(),
		AdvanceBookingDays: 30,
		Absences: model.AbsenceList{{
			StartDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
			EndDate:   time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC),
			Reason:    "conference",
			Type:      model.AbsenceTypeConference,
		}},
	})
	require.NoError(t, err)

	// Jan 14 is a Sunday inside the absence; the absence reason must win.
	sunday := time.Date(2024, 1, 14, 0, 0, 0, 0, time.UTC)
	result, err := svc.Validate(context.Background(), doctorID, orgID, sunday, "", false)
	require.NoError(t, err)
	assert.False(t, result.IsAvailable)
	assert.Equal(t, "conference", result.Reason)
}

func TestValidateTimeRangeAndBreaks(t *testing.T) {
	repo := newFakeAvailabilityRepo()
	svc := newTestService(repo)
	doctorID, orgID := uuid.New(), uuid.New()

	week := weekdaySchedule()
	rule := week[time.Tuesday]
	rule.Breaks = []model.TimePeriod{{Start: "12:00", End: "13:00"}}
	week[time.Tuesday] = rule

	_, err := svc.SaveAvailability(context.Background(), &model.SaveAvailabilityRequest{
		DoctorID:           doctorID,
		OrganizationID:     orgID,
		WeekSchedule:       week,
		AdvanceBookingDays: 30,
	})
	require.NoError(t, err)

	tuesday := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)

	result, err := svc.Validate(context.Background(), doctorID, orgID, tuesday, "07:30", false)
	require.NoError(t, err)
	assert.False(t, result.IsAvailable)

	// End of range is exclusive.
	result, err = svc.Validate(context.Background(), doctorID, orgID, tuesday, "18:00", false)
	require.NoError(t, err)
	assert.False(t, result.IsAvailable)

	result, err = svc.Validate(context.Background(), doctorID, orgID, tuesday, "12:30", false)
	require.NoError(t, err)
	assert.False(t, result.IsAvailable)

	result, err = svc.Validate(context.Background(), doctorID, orgID, tuesday, "13:00", false)
	require.NoError(t, err)
	assert.True(t, result.IsAvailable)
}

func TestValidateAdvanceWindow(t *testing.T) {
	svc := newTestService(newFakeAvailabilityRepo())
	doctorID, orgID := uuid.New(), uuid.New()

	// Default template allows 30 days; 40 days out is a Saturday + 40... pick
	// a weekday 40 days ahead: Feb 19 2024 is a Monday, 42 days out.
	farOut := time.Date(2024, 2, 19, 0, 0, 0, 0, time.UTC)
	result, err := svc.Validate(context.Background(), doctorID, orgID, farOut, "09:00", false)
	require.NoError(t, err)
	assert.False(t, result.IsAvailable)
	assert.Contains(t, result.Reason, "advance booking")
}

func TestGetNextAvailableDates(t *testing.T) {
	svc := newTestService(newFakeAvailabilityRepo())
	doctorID, orgID := uuid.New(), uuid.New()

	dates, err := svc.GetNextAvailableDates(context.Background(), doctorID, orgID, testNow, 3)
	require.NoError(t, err)
	require.Len(t, dates, 3)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), dates[0])
	assert.Equal(t, time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC), dates[1])
	assert.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), dates[2])
}

func TestScanStopsWhenNoDayIsOpen(t *testing.T) {
	repo := newFakeAvailabilityRepo()
	svc := newTestService(repo)
	doctorID, orgID := uuid.New(), uuid.New()

	closed := make(model.WeekSchedule)
	for d := time.Sunday; d <= time.Saturday; d++ {
		closed[d] = model.DayRule{Enabled: false}
	}
	repo.stored[doctorID.String()+":"+orgID.String()] = &model.DoctorAvailability{
		DoctorID:           doctorID,
		OrganizationID:     orgID,
		WeekSchedule:       closed,
		AdvanceBookingDays: 30,
	}

	dates, err := svc.GetNextAvailableDates(context.Background(), doctorID, orgID, testNow, 3)
	require.NoError(t, err)
	assert.Empty(t, dates)
}

func TestScanHonorsCancelledContext(t *testing.T) {
	svc := newTestService(newFakeAvailabilityRepo())
	doctorID, orgID := uuid.New(), uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.GetNextAvailableDates(ctx, doctorID, orgID, testNow, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAddAndRemoveAbsence(t *testing.T) {
	repo := newFakeAvailabilityRepo()
	svc := newTestService(repo)
	doctorID, orgID := uuid.New(), uuid.New()

	// Adding to a doctor with no stored template creates one from the default.
	absence, err := svc.AddAbsence(context.Background(), &model.AddAbsenceRequest{
		DoctorID:       doctorID,
		OrganizationID: orgID,
		StartDate:      time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC),
		Reason:         "short leave",
		Type:           model.AbsenceTypeLeave,
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, absence.ID)

	wednesday := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	result, err := svc.Validate(context.Background(), doctorID, orgID, wednesday, "09:00", false)
	require.NoError(t, err)
	assert.False(t, result.IsAvailable)
	assert.Equal(t, "short leave", result.Reason)

	require.NoError(t, svc.RemoveAbsence(context.Background(), doctorID, orgID, absence.ID))

	result, err = svc.Validate(context.Background(), doctorID, orgID, wednesday, "09:00", false)
	require.NoError(t, err)
	assert.True(t, result.IsAvailable)
}

func TestAddAbsenceDoesNotMutateCachedRecord(t *testing.T) {
	repo := newFakeAvailabilityRepo()
	svc := newTestService(repo)
	doctorID, orgID := uuid.New(), uuid.New()

	_, err := svc.SaveAvailability(context.Background(), &model.SaveAvailabilityRequest{
		DoctorID:           doctorID,
		OrganizationID:     orgID,
		WeekSchedule:       weekdaySchedule(),
		AdvanceBookingDays: 30,
	})
	require.NoError(t, err)

	// Warm the cache so concurrent readers share one record.
	tuesday := time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC)
	_, err = svc.Validate(context.Background(), doctorID, orgID, tuesday, "09:00", false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := svc.Validate(context.Background(), doctorID, orgID, tuesday, "09:00", false)
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, err := svc.AddAbsence(context.Background(), &model.AddAbsenceRequest{
				DoctorID:       doctorID,
				OrganizationID: orgID,
				StartDate:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
				EndDate:        time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
				Reason:         "recurring clinic meeting",
				Type:           model.AbsenceTypeOther,
			})
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	availability, err := svc.GetAvailability(context.Background(), doctorID, orgID)
	require.NoError(t, err)
	assert.Len(t, availability.Absences, 50)
}

func TestAddAbsenceRejectsInvertedRange(t *testing.T) {
	svc := newTestService(newFakeAvailabilityRepo())

	_, err := svc.AddAbsence(context.Background(), &model.AddAbsenceRequest{
		DoctorID:       uuid.New(),
		OrganizationID: uuid.New(),
		StartDate:      time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
}

func TestRemoveUnknownAbsence(t *testing.T) {
	svc := newTestService(newFakeAvailabilityRepo())

	err := svc.RemoveAbsence(context.Background(), uuid.New(), uuid.New(), uuid.New())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrNotFound))
}

func TestSaveAvailabilityRejectsBadSchedule(t *testing.T) {
	svc := newTestService(newFakeAvailabilityRepo())
	doctorID, orgID := uuid.New(), uuid.New()

	week := weekdaySchedule()
	week[time.Monday] = model.DayRule{Enabled: true, StartTime: "18:00", EndTime: "08:00", IntervalMinutes: 30}
	_, err := svc.SaveAvailability(context.Background(), &model.SaveAvailabilityRequest{
		DoctorID:           doctorID,
		OrganizationID:     orgID,
		WeekSchedule:       week,
		AdvanceBookingDays: 30,
	})
	assert.Error(t, err)

	week = weekdaySchedule()
	week[time.Monday] = model.DayRule{Enabled: true, StartTime: "08:00", EndTime: "18:00", IntervalMinutes: 0}
	_, err = svc.SaveAvailability(context.Background(), &model.SaveAvailabilityRequest{
		DoctorID:           doctorID,
		OrganizationID:     orgID,
		WeekSchedule:       week,
		AdvanceBookingDays: 30,
	})
	assert.Error(t, err)
}
