package broker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) Cash(ctx context.Context) (Cash, error) {
	args := m.Called(ctx)
	return args.Get(0).(Cash), args.Error(1)
}

func (m *mockBroker) Portfolio(ctx context.Context) ([]Holding, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Holding), args.Error(1)
}

func (m *mockBroker) PlaceOrder(ctx context.Context, ticker string, qty float64, key string) (Order, error) {
	args := m.Called(ctx, ticker, qty, key)
	return args.Get(0).(Order), args.Error(1)
}

func (m *mockBroker) GetOrder(ctx context.Context, id string) (Order, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Order), args.Error(1)
}

func (m *mockBroker) ListOrders(ctx context.Context) ([]Order, error) {
	args := m.Called(ctx)
	return args.Get(0).([]Order), args.Error(1)
}

func (m *mockBroker) CancelOrder(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

type memKeys struct {
	keys map[string]string
	at   map[string]time.Time
	now  time.Time
}

func (k *memKeys) SeenOrderKey(_ context.Context, key string, since time.Time) (string, bool, error) {
	id, ok := k.keys[key]
	if !ok || k.at[key].Before(since) {
		return "", false, nil
	}
	return id, true, nil
}

func (k *memKeys) RememberOrderKey(_ context.Context, key, orderID, _ string, _ float64) error {
	k.keys[key] = orderID
	k.at[key] = k.now
	return nil
}

func (k *memKeys) ForgetOrderKey(_ context.Context, key string) error {
	delete(k.keys, key)
	delete(k.at, key)
	return nil
}

func TestIdempotencyKeyStable(t *testing.T) {
	a := IdempotencyKey("AAPL", 5.0)
	assert.Equal(t, a, IdempotencyKey("AAPL", 5.0))
	assert.NotEqual(t, a, IdempotencyKey("AAPL", 5.1))
	assert.NotEqual(t, a, IdempotencyKey("MSFT", 5.0))
	assert.Len(t, a, 36)
}

func TestPlacerSuppressesReplays(t *testing.T) {
	now := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	keys := &memKeys{keys: map[string]string{}, at: map[string]time.Time{}, now: now}
	b := &mockBroker{}
	key := IdempotencyKey("AAPL_US_EQ", 2)
	b.On("PlaceOrder", mock.Anything, "AAPL_US_EQ", 2.0, key).Return(Order{ID: "9", Status: StatusFilled}, nil).Once()

	p := NewPlacer(b, keys, 10*time.Minute)
	p.Now = func() time.Time { return now }

	first, err := p.Place(context.Background(), "AAPL_US_EQ", 2)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	again, err := p.Place(context.Background(), "AAPL_US_EQ", 2)
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, "9", again.ID)

	now = now.Add(11 * time.Minute)
	b.On("PlaceOrder", mock.Anything, "AAPL_US_EQ", 2.0, key).Return(Order{ID: "10"}, nil).Once()
	later, err := p.Place(context.Background(), "AAPL_US_EQ", 2)
	require.NoError(t, err)
	assert.Equal(t, "10", later.ID)
	b.AssertExpectations(t)
}

func TestPlacerSettleAllowsSameIntentAgain(t *testing.T) {
	now := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)
	keys := &memKeys{keys: map[string]string{}, at: map[string]time.Time{}, now: now}
	b := &mockBroker{}
	key := IdempotencyKey("AAPL_US_EQ", 27)
	b.On("PlaceOrder", mock.Anything, "AAPL_US_EQ", 27.0, key).Return(Order{ID: "1", Status: StatusFilled}, nil).Once()
	b.On("PlaceOrder", mock.Anything, "AAPL_US_EQ", 27.0, key).Return(Order{ID: "2", Status: StatusFilled}, nil).Once()

	p := NewPlacer(b, keys, 10*time.Minute)
	p.Now = func() time.Time { return now }
	ctx := context.Background()

	first, err := p.Place(ctx, "AAPL_US_EQ", 27)
	require.NoError(t, err)
	p.Settle(ctx, "AAPL_US_EQ", 27)

	reentry, err := p.Place(ctx, "AAPL_US_EQ", 27)
	require.NoError(t, err)
	assert.False(t, reentry.Replayed)
	assert.NotEqual(t, first.ID, reentry.ID)
	b.AssertExpectations(t)
}

func TestWaitForStatusFills(t *testing.T) {
	b := &mockBroker{}
	b.On("GetOrder", mock.Anything, "1").Return(Order{ID: "1", Status: StatusNew}, nil).Once()
	b.On("GetOrder", mock.Anything, "1").Return(Order{}, errors.New("flaky")).Once()
	b.On("GetOrder", mock.Anything, "1").Return(Order{ID: "1", Status: "filled"}, nil).Once()

	order, err := WaitForStatus(context.Background(), b, "1", nil,
		PollOptions{Timeout: time.Second, Interval: time.Millisecond, MaxBackoff: 2 * time.Millisecond})
	require.NoError(t, err)
	assert.True(t, order.Is(StatusFilled))
	b.AssertExpectations(t)
}

func TestWaitForStatusTimesOutAsUnknown(t *testing.T) {
	b := &mockBroker{}
	b.On("GetOrder", mock.Anything, "1").Return(Order{ID: "1", Status: StatusPending}, nil)

	order, err := WaitForStatus(context.Background(), b, "1", []string{StatusFilled},
		PollOptions{Timeout: 20 * time.Millisecond, Interval: 5 * time.Millisecond, MaxBackoff: 5 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, StatusUnknown, order.Status)
	assert.Equal(t, "1", order.ID)
}

func TestWaitForStatusHonoursContext(t *testing.T) {
	b := &mockBroker{}
	b.On("GetOrder", mock.Anything, "1").Return(Order{ID: "1", Status: StatusPending}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := WaitForStatus(ctx, b, "1", nil, PollOptions{Timeout: time.Minute, Interval: time.Second})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCancelStale(t *testing.T) {
	b := &mockBroker{}
	b.On("ListOrders", mock.Anything).Return([]Order{
		{ID: "1", Status: StatusNew},
		{ID: "2", Status: StatusPending},
		{ID: "3", Status: ""},
		{ID: "4", Status: StatusFilled},
		{ID: "", Status: StatusNew},
		{ID: "5", Status: "new"},
	}, nil)
	b.On("CancelOrder", mock.Anything, "1").Return(nil)
	b.On("CancelOrder", mock.Anything, "2").Return(errors.New("gone"))
	b.On("CancelOrder", mock.Anything, "3").Return(nil)
	b.On("CancelOrder", mock.Anything, "5").Return(nil)

	n, err := CancelStale(context.Background(), b)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	b.AssertNotCalled(t, "CancelOrder", mock.Anything, "4")
}
