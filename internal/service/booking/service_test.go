package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendaclin/booking-api/internal/model"
	"github.com/agendaclin/booking-api/internal/repository"
	"github.com/agendaclin/booking-api/internal/service/audit"
	"github.com/agendaclin/booking-api/internal/service/availability"
	"github.com/agendaclin/booking-api/internal/service/notification"
	"github.com/agendaclin/booking-api/internal/service/release"
	"github.com/agendaclin/booking-api/internal/service/reservation"
	"github.com/agendaclin/booking-api/pkg/clock"
	apperrors "github.com/agendaclin/booking-api/pkg/errors"
	"github.com/agendaclin/booking-api/pkg/logger"
	"github.com/agendaclin/booking-api/pkg/messaging"
	"github.com/agendaclin/booking-api/pkg/metrics"
)

type fakeAvailabilityRepo struct {
	availability *model.DoctorAvailability
}

func (f *fakeAvailabilityRepo) GetByDoctor(ctx context.Context, doctorID, orgID uuid.UUID) (*model.DoctorAvailability, error) {
	return f.availability, nil
}

func (f *fakeAvailabilityRepo) Upsert(ctx context.Context, a *model.DoctorAvailability) error {
	f.availability = a
	return nil
}

type fakeReleaseRepo struct {
	schedule *model.AgendaReleaseSchedule
}

func (f *fakeReleaseRepo) GetByDoctor(ctx context.Context, doctorID, orgID uuid.UUID) (*model.AgendaReleaseSchedule, error) {
	return f.schedule, nil
}

func (f *fakeReleaseRepo) Upsert(ctx context.Context, s *model.AgendaReleaseSchedule) error {
	f.schedule = s
	return nil
}

type fakeAppointments struct {
	mu    sync.Mutex
	items []*model.Appointment
}

func (f *fakeAppointments) Create(ctx context.Context, a *model.Appointment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = uuid.New()
	f.items = append(f.items, a)
	return nil
}

func (f *fakeAppointments) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return nil, nil
}

func (f *fakeAppointments) Update(ctx context.Context, a *model.Appointment) error { return nil }

func (f *fakeAppointments) Delete(ctx context.Context, id uuid.UUID) error { return nil }

func (f *fakeAppointments) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	return f.items, nil
}

func (f *fakeAppointments) ListForDay(ctx context.Context, clinicID, doctorID uuid.UUID, date time.Time) ([]*model.Appointment, error) {
	return f.items, nil
}

func (f *fakeAppointments) FindOccupying(ctx context.Context, clinicID, doctorID uuid.UUID, date time.Time, timeOfDay string) (*model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.items {
		if a.ClinicID == clinicID && a.DoctorID == doctorID &&
			model.DateOnly(a.Date).Equal(model.DateOnly(date)) &&
			a.Time == timeOfDay && a.Status.Occupying() {
			return a, nil
		}
	}
	return nil, nil
}

type fakePatients struct {
	mu   sync.Mutex
	byID map[uuid.UUID]*model.Patient
}

func newFakePatients() *fakePatients {
	return &fakePatients{byID: make(map[uuid.UUID]*model.Patient)}
}

func (f *fakePatients) Create(ctx context.Context, p *model.Patient) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	f.byID[p.ID] = p
	return nil
}

func (f *fakePatients) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("no patient with id %s", id)
	}
	return p, nil
}

type fakeAuditRepo struct {
	mu   sync.Mutex
	logs []*model.AuditLog
}

func (f *fakeAuditRepo) Create(ctx context.Context, log *model.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, log)
	return nil
}

func (f *fakeAuditRepo) DeleteBefore(ctx context.Context, cutoff time.Time) error { return nil }

type capturePublisher struct {
	mu       sync.Mutex
	channels []string
}

func (p *capturePublisher) Publish(ctx context.Context, channel string, message interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	return nil
}

func (p *capturePublisher) published(channel string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, c := range p.channels {
		if c == channel {
			count++
		}
	}
	return count
}

type memStore struct {
	mu     sync.Mutex
	bySlot map[string]*model.SlotReservation
	byID   map[uuid.UUID]string
}

func newMemStore() *memStore {
	return &memStore{
		bySlot: make(map[string]*model.SlotReservation),
		byID:   make(map[uuid.UUID]string),
	}
}

func (s *memStore) GetSlot(ctx context.Context, slotKey string) (*model.SlotReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.bySlot[slotKey]; ok {
		c := *r
		return &c, nil
	}
	return nil, nil
}

func (s *memStore) CompareAndSwapSlot(ctx context.Context, slotKey string, prev, next *model.SlotReservation, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.bySlot[slotKey]
	switch {
	case current == nil && prev == nil:
	case current != nil && prev != nil && current.ID == prev.ID && current.Status == prev.Status:
	default:
		return repository.ErrCASMismatch
	}
	c := *next
	s.bySlot[slotKey] = &c
	s.byID[next.ID] = slotKey
	return nil
}

func (s *memStore) UpdateSlot(ctx context.Context, r *model.SlotReservation, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *r
	s.bySlot[r.SlotKey()] = &c
	s.byID[r.ID] = r.SlotKey()
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id uuid.UUID) (*model.SlotReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	if r := s.bySlot[key]; r != nil && r.ID == id {
		c := *r
		return &c, nil
	}
	return nil, nil
}

func (s *memStore) DeleteSlot(ctx context.Context, r *model.SlotReservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stored := s.bySlot[r.SlotKey()]; stored != nil && stored.ID == r.ID {
		delete(s.bySlot, r.SlotKey())
		delete(s.byID, r.ID)
	}
	return nil
}

func (s *memStore) ListActive(ctx context.Context) ([]*model.SlotReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []*model.SlotReservation
	for _, r := range s.bySlot {
		if r.Status == model.ReservationStatusActive {
			c := *r
			active = append(active, &c)
		}
	}
	return active, nil
}

// Monday morning; bookings target the following Tuesday.
var testNow = time.Date(2024, 1, 8, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc          *Service
	store        *memStore
	appointments *fakeAppointments
	patients     *fakePatients
	auditRepo    *fakeAuditRepo
	publisher    *capturePublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := logger.NewLogger(nil)
	clk := clock.Fixed(testNow)
	m := metrics.NewMetricsWith(prometheus.NewRegistry(), "test", "booking")

	store := newMemStore()
	appointments := &fakeAppointments{}
	patients := newFakePatients()
	auditRepo := &fakeAuditRepo{}
	publisher := &capturePublisher{}

	availabilitySvc := availability.NewService(&fakeAvailabilityRepo{}, clk, log)
	releaseSvc := release.NewService(&fakeReleaseRepo{}, clk, log)
	reservationSvc := reservation.NewService(store, clk, publisher, m, log, time.Minute)

	svc := NewService(
		availabilitySvc,
		releaseSvc,
		reservationSvc,
		appointments,
		patients,
		audit.NewService(auditRepo),
		notification.NewService(nil, log),
		publisher,
		m,
		log,
	)

	return &fixture{
		svc:          svc,
		store:        store,
		appointments: appointments,
		patients:     patients,
		auditRepo:    auditRepo,
		publisher:    publisher,
	}
}

func bookingRequest(clinicID uuid.UUID) *model.BookingRequest {
	return &model.BookingRequest{
		ClinicID:       clinicID,
		DoctorID:       uuid.New(),
		OrganizationID: uuid.New(),
		Date:           time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC),
		Time:           "09:00",
	}
}

func TestProcessBookingSuccess(t *testing.T) {
	f := newFixture(t)
	clinicID := uuid.New()
	actor := model.Actor{UserID: uuid.New(), ClinicID: clinicID}

	patient := &model.Patient{Name: "Ana Souza", Phone: "11999990000"}
	require.NoError(t, f.patients.Create(context.Background(), patient))

	req := bookingRequest(clinicID)
	req.PatientID = &patient.ID

	result, err := f.svc.ProcessBooking(context.Background(), actor, req)
	require.NoError(t, err)
	require.NotNil(t, result.Appointment)
	assert.Equal(t, model.AppointmentStatusAgendado, result.Appointment.Status)
	assert.Equal(t, patient.ID, result.Appointment.PatientID)
	assert.Equal(t, "09:00", result.Appointment.Time)

	// The hold survives as CONFIRMED until the GC TTL clears it.
	held, err := f.store.GetSlot(context.Background(), model.SlotKey(req.ClinicID, req.DoctorID, req.Date, req.Time))
	require.NoError(t, err)
	require.NotNil(t, held)
	assert.Equal(t, model.ReservationStatusConfirmed, held.Status)

	assert.Equal(t, 1, f.publisher.published(messaging.ChannelBookingCreated))
	assert.Len(t, f.auditRepo.logs, 1)
}

func TestProcessBookingCreatesNewPatient(t *testing.T) {
	f := newFixture(t)
	clinicID := uuid.New()
	actor := model.Actor{UserID: uuid.New(), ClinicID: clinicID}

	req := bookingRequest(clinicID)
	req.NewPatient = &model.CreatePatientRequest{
		OrganizationID: req.OrganizationID,
		Name:           "Bruno Lima",
		Phone:          "11888887777",
	}

	result, err := f.svc.ProcessBooking(context.Background(), actor, req)
	require.NoError(t, err)
	require.NotNil(t, result.Patient)
	assert.NotEqual(t, uuid.Nil, result.Patient.ID)
	assert.Equal(t, string(model.PatientStatusActive), result.Patient.Status)
}

func TestProcessBookingTenantIsolation(t *testing.T) {
	f := newFixture(t)
	req := bookingRequest(uuid.New())
	patientID := uuid.New()
	req.PatientID = &patientID

	outsider := model.Actor{UserID: uuid.New(), ClinicID: uuid.New()}
	_, err := f.svc.ProcessBooking(context.Background(), outsider, req)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrForbidden))

	// No reservation was even attempted.
	held, err := f.store.GetSlot(context.Background(), model.SlotKey(req.ClinicID, req.DoctorID, req.Date, req.Time))
	require.NoError(t, err)
	assert.Nil(t, held)

	// A super admin crosses clinics.
	patient := &model.Patient{Name: "Carla Dias", Phone: "11777776666"}
	require.NoError(t, f.patients.Create(context.Background(), patient))
	req.PatientID = &patient.ID

	admin := model.Actor{UserID: uuid.New(), ClinicID: uuid.New(), Role: model.RoleSuperAdmin}
	_, err = f.svc.ProcessBooking(context.Background(), admin, req)
	assert.NoError(t, err)
}

func TestProcessBookingInvalidNewPatientReleasesSlot(t *testing.T) {
	f := newFixture(t)
	clinicID := uuid.New()
	actor := model.Actor{UserID: uuid.New(), ClinicID: clinicID}

	req := bookingRequest(clinicID)
	req.NewPatient = &model.CreatePatientRequest{
		OrganizationID: req.OrganizationID,
		Name:           "X",
		Phone:          "123",
	}

	_, err := f.svc.ProcessBooking(context.Background(), actor, req)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
	assert.Equal(t, 1, f.publisher.published(messaging.ChannelBookingFailed))

	// The compensation released the hold, so the slot books again at once.
	held, err := f.store.GetSlot(context.Background(), model.SlotKey(req.ClinicID, req.DoctorID, req.Date, req.Time))
	require.NoError(t, err)
	assert.Nil(t, held)
}

func TestProcessBookingUnavailableTime(t *testing.T) {
	f := newFixture(t)
	clinicID := uuid.New()
	actor := model.Actor{UserID: uuid.New(), ClinicID: clinicID}
	patientID := uuid.New()

	req := bookingRequest(clinicID)
	req.PatientID = &patientID
	req.Time = "06:00"

	_, err := f.svc.ProcessBooking(context.Background(), actor, req)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrAvailability))

	held, err := f.store.GetSlot(context.Background(), model.SlotKey(req.ClinicID, req.DoctorID, req.Date, req.Time))
	require.NoError(t, err)
	assert.Nil(t, held)
}

func TestProcessBookingOccupiedSlot(t *testing.T) {
	f := newFixture(t)
	clinicID := uuid.New()
	actor := model.Actor{UserID: uuid.New(), ClinicID: clinicID}

	patient := &model.Patient{Name: "Davi Alves", Phone: "11666665555"}
	require.NoError(t, f.patients.Create(context.Background(), patient))

	req := bookingRequest(clinicID)
	req.PatientID = &patient.ID

	f.appointments.items = []*model.Appointment{{
		ClinicID: req.ClinicID,
		DoctorID: req.DoctorID,
		Date:     req.Date,
		Time:     req.Time,
		Status:   model.AppointmentStatusAgendado,
	}}

	_, err := f.svc.ProcessBooking(context.Background(), actor, req)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))

	// The defense-in-depth check released the hold.
	held, err := f.store.GetSlot(context.Background(), model.SlotKey(req.ClinicID, req.DoctorID, req.Date, req.Time))
	require.NoError(t, err)
	assert.Nil(t, held)
}

func TestProcessBookingConcurrentOneWins(t *testing.T) {
	f := newFixture(t)
	clinicID := uuid.New()

	req := bookingRequest(clinicID)

	patientA := &model.Patient{Name: "Elisa Melo", Phone: "11555554444"}
	patientB := &model.Patient{Name: "Fabio Reis", Phone: "11444443333"}
	require.NoError(t, f.patients.Create(context.Background(), patientA))
	require.NoError(t, f.patients.Create(context.Background(), patientB))

	run := func(patientID uuid.UUID) error {
		r := *req
		r.PatientID = &patientID
		actor := model.Actor{UserID: uuid.New(), ClinicID: clinicID}
		_, err := f.svc.ProcessBooking(context.Background(), actor, &r)
		return err
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []uuid.UUID{patientA.ID, patientB.ID} {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			errs[i] = run(id)
		}(i, id)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			failures++
			assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
			assert.Contains(t, err.Error(), "another user")
		}
	}
	assert.Equal(t, 1, failures)

	f.appointments.mu.Lock()
	defer f.appointments.mu.Unlock()
	assert.Len(t, f.appointments.items, 1)
}

func TestProcessBookingConflictNamesAutomationHolder(t *testing.T) {
	f := newFixture(t)
	clinicID := uuid.New()
	actor := model.Actor{UserID: uuid.New(), ClinicID: clinicID}

	patient := &model.Patient{Name: "Gabriela Nunes", Phone: "11333332222"}
	require.NoError(t, f.patients.Create(context.Background(), patient))

	req := bookingRequest(clinicID)
	req.PatientID = &patient.ID

	// An automation already holds the slot.
	require.NoError(t, f.store.UpdateSlot(context.Background(), &model.SlotReservation{
		ID:         uuid.New(),
		ClinicID:   req.ClinicID,
		DoctorID:   req.DoctorID,
		Date:       req.Date,
		Time:       req.Time,
		ReservedBy: model.ReservationOriginAutomation,
		Status:     model.ReservationStatusActive,
		CreatedAt:  testNow,
		ExpiresAt:  testNow.Add(time.Minute),
	}, time.Minute))

	_, err := f.svc.ProcessBooking(context.Background(), actor, req)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrConflict))
	assert.Contains(t, err.Error(), "automated scheduler")
	assert.NotContains(t, err.Error(), "another user")
}

func TestProcessBookingRequiresPatient(t *testing.T) {
	f := newFixture(t)
	clinicID := uuid.New()
	actor := model.Actor{UserID: uuid.New(), ClinicID: clinicID}

	_, err := f.svc.ProcessBooking(context.Background(), actor, bookingRequest(clinicID))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrValidation))
}
