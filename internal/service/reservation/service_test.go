package reservation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agendaclin/booking-api/internal/model"
	"github.com/agendaclin/booking-api/internal/repository"
	"github.com/agendaclin/booking-api/pkg/logger"
	"github.com/agendaclin/booking-api/pkg/metrics"
)

// memStore is an in-memory ReservationStore with the same CAS semantics
// as the Redis implementation.
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

func copyReservation(r *model.SlotReservation) *model.SlotReservation {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

func (s *memStore) GetSlot(ctx context.Context, slotKey string) (*model.SlotReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyReservation(s.bySlot[slotKey]), nil
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

	if current != nil {
		delete(s.byID, current.ID)
	}
	s.bySlot[slotKey] = copyReservation(next)
	s.byID[next.ID] = slotKey
	return nil
}

func (s *memStore) UpdateSlot(ctx context.Context, reservation *model.SlotReservation, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := reservation.SlotKey()
	s.bySlot[key] = copyReservation(reservation)
	s.byID[reservation.ID] = key
	return nil
}

func (s *memStore) GetByID(ctx context.Context, id uuid.UUID) (*model.SlotReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[id]
	if !ok {
		return nil, nil
	}
	stored := s.bySlot[key]
	if stored == nil || stored.ID != id {
		return nil, nil
	}
	return copyReservation(stored), nil
}

func (s *memStore) DeleteSlot(ctx context.Context, reservation *model.SlotReservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := reservation.SlotKey()
	stored := s.bySlot[key]
	if stored != nil && stored.ID == reservation.ID {
		delete(s.bySlot, key)
		delete(s.byID, reservation.ID)
	}
	return nil
}

func (s *memStore) ListActive(ctx context.Context) ([]*model.SlotReservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []*model.SlotReservation
	for _, r := range s.bySlot {
		if r.Status == model.ReservationStatusActive {
			active = append(active, copyReservation(r))
		}
	}
	return active, nil
}

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *stepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

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

func testService(store repository.ReservationStore, clk *stepClock, pub *capturePublisher) *Service {
	m := metrics.NewMetricsWith(prometheus.NewRegistry(), "test", "reservation")
	return NewService(store, clk, pub, m, logger.NewLogger(nil), 90*time.Second)
}

func testRequest() *model.ReserveSlotRequest {
	return &model.ReserveSlotRequest{
		ClinicID:   uuid.New(),
		DoctorID:   uuid.New(),
		Date:       time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC),
		Time:       "09:00",
		ReservedBy: model.ReservationOriginUser,
		UserID:     uuid.New(),
	}
}

func TestReserveThenConflict(t *testing.T) {
	clk := &stepClock{t: time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)}
	svc := testService(newMemStore(), clk, &capturePublisher{})
	req := testRequest()

	first, err := svc.Reserve(context.Background(), req)
	require.NoError(t, err)
	require.True(t, first.Success)
	require.NotNil(t, first.Reservation)
	assert.Equal(t, model.ReservationStatusActive, first.Reservation.Status)

	second, err := svc.Reserve(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, second.Success)
	require.NotNil(t, second.Conflict)
	assert.Equal(t, first.Reservation.ID, second.Conflict.ID)
}

func TestConcurrentReserveExactlyOneWins(t *testing.T) {
	clk := &stepClock{t: time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)}
	svc := testService(newMemStore(), clk, &capturePublisher{})
	req := testRequest()

	const callers = 16
	results := make([]*model.ReserveResult, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := svc.Reserve(context.Background(), req)
			assert.NoError(t, err)
			results[i] = result
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, result := range results {
		if result.Success {
			wins++
		} else {
			assert.NotNil(t, result.Conflict)
		}
	}
	assert.Equal(t, 1, wins)
}

func TestCancelIsIdempotent(t *testing.T) {
	clk := &stepClock{t: time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)}
	store := newMemStore()
	svc := testService(store, clk, &capturePublisher{})
	req := testRequest()

	first, err := svc.Reserve(context.Background(), req)
	require.NoError(t, err)
	require.True(t, first.Success)

	require.NoError(t, svc.Cancel(context.Background(), first.Reservation.ID))
	require.NoError(t, svc.Cancel(context.Background(), first.Reservation.ID))
	require.NoError(t, svc.Cancel(context.Background(), uuid.New()))

	// The slot frees immediately.
	second, err := svc.Reserve(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Success)
}

func TestConfirmedHoldKeepsBlocking(t *testing.T) {
	clk := &stepClock{t: time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)}
	svc := testService(newMemStore(), clk, &capturePublisher{})
	req := testRequest()

	first, err := svc.Reserve(context.Background(), req)
	require.NoError(t, err)
	require.True(t, first.Success)

	require.NoError(t, svc.Confirm(context.Background(), first.Reservation.ID))

	// Confirmed holds no longer count as "reserved" for slot listings, but
	// they still beat new reservation attempts, even past the TTL.
	reserved, err := svc.IsSlotReserved(context.Background(), req.ClinicID, req.DoctorID, req.Date, req.Time)
	require.NoError(t, err)
	assert.False(t, reserved)

	clk.Advance(5 * time.Minute)
	second, err := svc.Reserve(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, second.Success)
}

func TestExpiredActiveHoldIsReplaced(t *testing.T) {
	clk := &stepClock{t: time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)}
	svc := testService(newMemStore(), clk, &capturePublisher{})
	req := testRequest()

	first, err := svc.Reserve(context.Background(), req)
	require.NoError(t, err)
	require.True(t, first.Success)

	clk.Advance(2 * time.Minute)

	second, err := svc.Reserve(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.NotEqual(t, first.Reservation.ID, second.Reservation.ID)
}

func TestExpireOverdue(t *testing.T) {
	clk := &stepClock{t: time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC)}
	store := newMemStore()
	pub := &capturePublisher{}
	svc := testService(store, clk, pub)

	reqA, reqB := testRequest(), testRequest()
	_, err := svc.Reserve(context.Background(), reqA)
	require.NoError(t, err)
	_, err = svc.Reserve(context.Background(), reqB)
	require.NoError(t, err)

	// Nothing is overdue yet.
	expired, err := svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, expired)

	clk.Advance(3 * time.Minute)

	expired, err = svc.ExpireOverdue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, expired)

	active, err := store.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Len(t, pub.channels, 2)
	for _, channel := range pub.channels {
		assert.Equal(t, "reservation.expired", channel)
	}
}
