package order

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fjod/stonehub/internal/cart"
	"github.com/fjod/stonehub/internal/domain"
	"github.com/fjod/stonehub/internal/events"
	"github.com/fjod/stonehub/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.OrderEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Event)
	}
	return out
}

type recordingRecorder struct {
	placed      []domain.PaymentMethod
	transitions []string
}

func (r *recordingRecorder) OrderPlaced(m domain.PaymentMethod) { r.placed = append(r.placed, m) }
func (r *recordingRecorder) OrderTransitioned(from, to domain.OrderStatus) {
	r.transitions = append(r.transitions, string(from)+"->"+string(to))
}

type fixture struct {
	carts     *cart.Service
	orders    *Service
	store     *storage.Store
	publisher *recordingPublisher
	recorder  *recordingRecorder
}

func setup(t *testing.T, opts ...Option) *fixture {
	backend := storage.NewMemoryBackend()
	adapter := storage.NewAdapter(backend, backend, zap.NewNop(), storage.DefaultOptions())
	t.Cleanup(func() { adapter.Close() })

	f := &fixture{
		carts:     cart.NewService(zap.NewNop(), nil),
		store:     adapter.For("client-1", "tab-1"),
		publisher: &recordingPublisher{},
		recorder:  &recordingRecorder{},
	}
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithDeliveryDays(func() int { return 8 }),
		WithPublisher(f.publisher),
		WithRecorder(f.recorder),
	}
	f.orders = NewService(f.carts, zap.NewNop(), append(base, opts...)...)
	return f
}

func (f *fixture) fillCart(t *testing.T) domain.Cart {
	ctx := context.Background()
	_, err := f.carts.AddItem(ctx, f.store, "a", "Marble tile", decimal.NewFromInt(1000), "a.jpg")
	require.NoError(t, err)
	_, err = f.carts.AddItem(ctx, f.store, "a", "Marble tile", decimal.NewFromInt(1000), "a.jpg")
	require.NoError(t, err)
	c, err := f.carts.AddItem(ctx, f.store, "b", "Granite slab", decimal.NewFromInt(2000), "b.jpg")
	require.NoError(t, err)
	return c
}

func (f *fixture) storedOrders(t *testing.T) []domain.Order {
	var orders []domain.Order
	_, err := f.store.Load(context.Background(), storage.Durable, storage.KeyOrders, &orders)
	require.NoError(t, err)
	return orders
}

func (f *fixture) place(t *testing.T, user *domain.User) domain.Order {
	c := f.fillCart(t)
	o, err := f.orders.PlaceOrder(context.Background(), f.store, c, validCardInput(), user)
	require.NoError(t, err)
	return o
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.orders.PlaceOrder(ctx, f.store, domain.NewCart(), validCardInput(), nil)

	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.Empty(t, f.storedOrders(t))
	assert.Empty(t, f.publisher.names())
}

func TestPlaceOrder_InvalidInputCreatesNothing(t *testing.T) {
	f := setup(t)
	c := f.fillCart(t)
	in := validCardInput()
	in.ShippingInfo.ZipCode = "12"

	_, err := f.orders.PlaceOrder(context.Background(), f.store, c, in, nil)

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, f.storedOrders(t))

	stillThere, err := f.carts.Load(context.Background(), f.store)
	require.NoError(t, err)
	assert.Len(t, stillThere.Items, 2)
}

func TestPlaceOrder_Success(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := f.fillCart(t)
	in := validCardInput()
	in.ShippingInfo.FullName = "  Asha Rao  "

	o, err := f.orders.PlaceOrder(ctx, f.store, c, in, nil)
	require.NoError(t, err)

	assert.Regexp(t, `^NSH-1749979800000-\d{1,3}$`, o.ID)
	assert.Equal(t, "guest-1749979800000", o.UserID)
	assert.Empty(t, o.UserEmail)
	assert.Equal(t, domain.OrderStatusPending, o.Status)
	assert.Equal(t, c.Items, o.Items)
	assert.True(t, c.Total.Equal(o.Total))
	assert.True(t, decimal.NewFromInt(4350).Equal(o.Total))
	assert.Equal(t, "Asha Rao", o.ShippingInfo.FullName)
	assert.Equal(t, fixedNow, o.OrderDate)
	assert.Equal(t, fixedNow.AddDate(0, 0, 8), o.EstimatedDelivery)

	stored := f.storedOrders(t)
	require.Len(t, stored, 1)
	assert.Equal(t, o.ID, stored[0].ID)

	emptied, err := f.carts.Load(ctx, f.store)
	require.NoError(t, err)
	assert.Empty(t, emptied.Items)
	assert.True(t, emptied.Total.IsZero())

	last, err := f.orders.LastOrder(ctx, f.store, "")
	require.NoError(t, err)
	assert.Equal(t, o.ID, last.ID)

	assert.Equal(t, []string{events.OrderPlaced}, f.publisher.names())
	assert.Equal(t, []domain.PaymentMethod{domain.PaymentCreditCard}, f.recorder.placed)
}

func TestPlaceOrder_SnapshotIsFrozen(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	o := f.place(t, nil)

	_, err := f.carts.AddItem(ctx, f.store, "a", "Marble tile", decimal.NewFromInt(1000), "")
	require.NoError(t, err)

	got, err := f.orders.GetOrder(ctx, f.store, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Items, got.Items)
	assert.True(t, o.Total.Equal(got.Total))
}

func TestPlaceOrder_RegisteredUser(t *testing.T) {
	f := setup(t)
	o := f.place(t, &domain.User{ID: "u-1", Name: "Asha", Email: "asha@example.com"})

	assert.Equal(t, "u-1", o.UserID)
	assert.Equal(t, "asha@example.com", o.UserEmail)
}

func TestPlaceOrder_IDCollisionOverwrites(t *testing.T) {
	f := setup(t, WithIDGenerator(func(time.Time) string { return "NSH-fixed" }))

	f.place(t, nil)
	f.place(t, nil)

	stored := f.storedOrders(t)
	require.Len(t, stored, 1)
	assert.Equal(t, "NSH-fixed", stored[0].ID)
}

func TestPlaceOrder_AppendsAndDelivery(t *testing.T) {
	f := setup(t, WithIDGenerator(UUIDID), WithDeliveryDays(randomDeliveryDays))

	for i := 0; i < 5; i++ {
		o := f.place(t, nil)
		days := int(o.EstimatedDelivery.Sub(o.OrderDate).Hours() / 24)
		assert.GreaterOrEqual(t, days, 7)
		assert.LessOrEqual(t, days, 10)
	}
	assert.Len(t, f.storedOrders(t), 5)
}

func TestPlaceOrder_PublishFailureDoesNotFailOrder(t *testing.T) {
	f := setup(t)
	f.publisher.err = errors.New("broker down")

	o := f.place(t, nil)
	assert.NotEmpty(t, o.ID)
	assert.Len(t, f.storedOrders(t), 1)
}

func TestPlaceOrder_ClearsDeferredCheckout(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.orders.DeferCheckout(ctx, f.store))
	pending, err := f.orders.CheckoutPending(ctx, f.store)
	require.NoError(t, err)
	assert.True(t, pending)

	f.place(t, nil)

	pending, err = f.orders.CheckoutPending(ctx, f.store)
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestGetOrder_NotFound(t *testing.T) {
	f := setup(t)

	_, err := f.orders.GetOrder(context.Background(), f.store, "NSH-nope")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestLastOrder_FallsBackToLookup(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	first := f.place(t, nil)
	second := f.place(t, nil)

	got, err := f.orders.LastOrder(ctx, f.store, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	got, err = f.orders.LastOrder(ctx, f.store, second.ID)
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)

	_, err = f.orders.LastOrder(ctx, f.store, "NSH-unknown")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestLastOrder_NothingInSession(t *testing.T) {
	f := setup(t)

	_, err := f.orders.LastOrder(context.Background(), f.store, "")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestListOrdersForUser_GuestEmailMatch(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	guest := f.place(t, nil)

	user := domain.User{ID: "registered-1", Email: validShipping().Email}
	orders, err := f.orders.ListOrdersForUser(ctx, f.store, user)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, guest.ID, orders[0].ID)

	orders, err = f.orders.ListOrdersForUser(ctx, f.store, domain.User{ID: "x", Email: "other@example.com"})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestClearHistory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.place(t, nil)

	require.NoError(t, f.orders.ClearHistory(ctx, f.store))

	assert.Empty(t, f.storedOrders(t))
	_, err := f.orders.LastOrder(ctx, f.store, "")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

type slowStore struct {
	*storage.Store
	loads   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (s *slowStore) Load(ctx context.Context, scope storage.Scope, key string, dst any) (bool, error) {
	if s.loads.Add(1) == 1 {
		close(s.started)
	}
	select {
	case <-s.release:
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return s.Store.Load(ctx, scope, key, dst)
}

func TestListOrdersForUser_SharedReadSurvivesCancelledCaller(t *testing.T) {
	f := setup(t)
	placed := f.place(t, nil)
	user := domain.User{ID: "registered-1", Email: validShipping().Email}
	slow := &slowStore{Store: f.store, started: make(chan struct{}), release: make(chan struct{})}

	type result struct {
		orders []domain.Order
		err    error
	}
	first := make(chan result, 1)
	second := make(chan result, 1)

	ctx1, cancel1 := context.WithCancel(context.Background())
	go func() {
		orders, err := f.orders.ListOrdersForUser(ctx1, slow, user)
		first <- result{orders, err}
	}()
	<-slow.started

	go func() {
		orders, err := f.orders.ListOrdersForUser(context.Background(), slow, user)
		second <- result{orders, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel1()
	r1 := <-first
	assert.ErrorIs(t, r1.err, context.Canceled)

	close(slow.release)
	r2 := <-second
	require.NoError(t, r2.err)
	require.Len(t, r2.orders, 1)
	assert.Equal(t, placed.ID, r2.orders[0].ID)
	assert.Equal(t, int32(1), slow.loads.Load())
}
