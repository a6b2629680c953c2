package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/payment"
	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/trm"
	"github.com/stretchr/testify/mock"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memCart struct {
	id    string
	owner entities.CartOwner
	lines []entities.CartLine
}

// memStore хранилище в памяти с той же семантикой условных обновлений, что и Postgres.
type memStore struct {
	mu sync.Mutex

	products map[string]entities.Product
	shops    map[string]entities.Shop
	methods  map[string]entities.ShippingMethod
	carts    map[string]*memCart
	orders   map[string]entities.Order
	payments []entities.Payment

	orderSeq int
	lineSeq  int

	// failReserveOn заставляет резерв товара упасть
	failReserveOn string
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[string]entities.Product),
		shops:    make(map[string]entities.Shop),
		methods:  make(map[string]entities.ShippingMethod),
		carts:    make(map[string]*memCart),
		orders:   make(map[string]entities.Order),
	}
}

type snapshot struct {
	products map[string]entities.Product
	carts    map[string]*memCart
	orders   map[string]entities.Order
	payments []entities.Payment
	orderSeq int
}

func (s *memStore) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	carts := make(map[string]*memCart, len(s.carts))
	for k, c := range s.carts {
		cp := *c
		cp.lines = slices.Clone(c.lines)
		carts[k] = &cp
	}
	orders := make(map[string]entities.Order, len(s.orders))
	for k, o := range s.orders {
		o.Items = slices.Clone(o.Items)
		orders[k] = o
	}
	return snapshot{
		products: maps.Clone(s.products),
		carts:    carts,
		orders:   orders,
		payments: slices.Clone(s.payments),
		orderSeq: s.orderSeq,
	}
}

func (s *memStore) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products, s.carts, s.orders, s.payments, s.orderSeq = snap.products, snap.carts, snap.orders, snap.payments, snap.orderSeq
}

// memTx откатывает хранилище к снимку, если callback вернул ошибку.
type memTx struct {
	store *memStore
	mu    sync.Mutex
}

type txMarker struct{}

func (m *memTx) BeginTx(ctx context.Context) (context.Context, trm.Transaction, error) {
	return nil, nil, errors.New("not supported")
}

func (m *memTx) Do(ctx context.Context, callback func(ctx context.Context) error) error {
	if ctx.Value(txMarker{}) != nil {
		return callback(ctx)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.store.snapshot()
	if err := callback(context.WithValue(ctx, txMarker{}, true)); err != nil {
		m.store.restore(snap)
		return err
	}
	return nil
}

func (s *memStore) stock(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

func (s *memStore) orderList() []entities.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := slices.Collect(maps.Values(s.orders))
	slices.SortFunc(out, func(a, b entities.Order) int {
		if a.Number < b.Number {
			return -1
		}
		return 1
	})
	return out
}

// catalog

func (s *memStore) GetProducts(_ context.Context, ids []string) (map[string]entities.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]entities.Product)
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *memStore) DecrementStock(_ context.Context, productID string, qty int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if productID == s.failReserveOn {
		return 0, false, errors.New("db is down")
	}
	p, ok := s.products[productID]
	if !ok {
		return 0, true, entities.ErrOutOfStock
	}
	if !p.TrackInventory {
		return p.Stock, false, nil
	}
	if p.Stock < qty {
		return 0, true, entities.ErrOutOfStock
	}
	p.Stock -= qty
	s.products[productID] = p
	return p.Stock, true, nil
}

func (s *memStore) IncrementStock(_ context.Context, productID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if ok && p.TrackInventory {
		p.Stock += qty
		s.products[productID] = p
	}
	return nil
}

func (s *memStore) GetShops(_ context.Context, ids []string) (map[string]entities.Shop, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]entities.Shop)
	for _, id := range ids {
		if sh, ok := s.shops[id]; ok {
			out[id] = sh
		}
	}
	return out, nil
}

func (s *memStore) GetShippingMethod(_ context.Context, id string) (entities.ShippingMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.methods[id]
	if !ok {
		return entities.ShippingMethod{}, entities.ErrShippingNotFound
	}
	return m, nil
}

// carts

func (s *memStore) cartByID(id string) *memCart {
	for _, c := range s.carts {
		if c.id == id {
			return c
		}
	}
	return nil
}

func (s *memStore) addToCart(owner entities.CartOwner, productID string, qty int, variant map[string]string) {
	id, _ := s.EnsureCart(context.Background(), owner)
	_ = s.UpsertLine(context.Background(), id, productID, variant, qty)
}

func (s *memStore) FindCartID(_ context.Context, owner entities.CartOwner) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[owner.Key()]
	if !ok {
		return "", entities.ErrCartNotFound
	}
	return c.id, nil
}

func (s *memStore) EnsureCart(ctx context.Context, owner entities.CartOwner) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.carts[owner.Key()]; ok {
		return c.id, nil
	}
	c := &memCart{id: "cart-" + owner.Key(), owner: owner}
	s.carts[owner.Key()] = c
	return c.id, nil
}

func (s *memStore) LockCart(_ context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cartByID(cartID) == nil {
		return entities.ErrCartNotFound
	}
	return nil
}

func (s *memStore) GetCart(_ context.Context, owner entities.CartOwner) (entities.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.carts[owner.Key()]
	if !ok {
		return entities.Cart{}, entities.ErrCartNotFound
	}
	cart := entities.Cart{ID: c.id, Owner: c.owner}
	for _, l := range c.lines {
		p := s.products[l.ProductID]
		l.UnitPrice, l.ProductName = p.Price, p.Name
		cart.Lines = append(cart.Lines, l)
		cart.TotalItems += l.Quantity
		cart.Subtotal += p.Price * int64(l.Quantity)
	}
	return cart, nil
}

func (s *memStore) LineQuantity(_ context.Context, cartID, productID, variantKey string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.cartByID(cartID).lines {
		if l.ProductID == productID && entities.VariantKey(l.Variant) == variantKey {
			return l.Quantity, nil
		}
	}
	return 0, nil
}

func (s *memStore) UpsertLine(_ context.Context, cartID, productID string, variant map[string]string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartByID(cartID)
	for i, l := range c.lines {
		if l.ProductID == productID && entities.VariantKey(l.Variant) == entities.VariantKey(variant) {
			c.lines[i].Quantity += qty
			return nil
		}
	}
	s.lineSeq++
	c.lines = append(c.lines, entities.CartLine{
		ID:        fmt.Sprintf("line-%d", s.lineSeq),
		ProductID: productID,
		Quantity:  qty,
		Variant:   variant,
	})
	return nil
}

func (s *memStore) GetLine(_ context.Context, cartID, lineID string) (entities.CartLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.cartByID(cartID).lines {
		if l.ID == lineID {
			return l, nil
		}
	}
	return entities.CartLine{}, entities.ErrLineNotFound
}

func (s *memStore) SetLineQuantity(_ context.Context, cartID, lineID string, qty int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartByID(cartID)
	for i, l := range c.lines {
		if l.ID == lineID {
			c.lines[i].Quantity = qty
			return nil
		}
	}
	return entities.ErrLineNotFound
}

func (s *memStore) DeleteLine(_ context.Context, cartID, lineID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.cartByID(cartID)
	for i, l := range c.lines {
		if l.ID == lineID {
			c.lines = slices.Delete(c.lines, i, i+1)
			return nil
		}
	}
	return entities.ErrLineNotFound
}

func (s *memStore) ClearLines(_ context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c := s.cartByID(cartID); c != nil {
		c.lines = nil
	}
	return nil
}

func (s *memStore) DeleteCart(_ context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, c := range s.carts {
		if c.id == cartID {
			delete(s.carts, k)
		}
	}
	return nil
}

func (s *memStore) RecomputeTotals(context.Context, string) error { return nil }

// orders

func (s *memStore) NextOrderNumber(context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderSeq++
	return fmt.Sprintf("ORD-%06d", s.orderSeq), nil
}

func (s *memStore) CreateOrder(_ context.Context, o entities.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o.Items = slices.Clone(o.Items)
	s.orders[o.ID] = o
	return nil
}

func (s *memStore) GetOrder(_ context.Context, id string) (entities.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return entities.Order{}, entities.ErrOrderNotFound
	}
	o.Items = slices.Clone(o.Items)
	return o, nil
}

func (s *memStore) GetOrders(ctx context.Context, ids []string) ([]entities.Order, error) {
	var out []entities.Order
	for _, id := range slices.Compact(slices.Sorted(slices.Values(ids))) {
		o, err := s.GetOrder(ctx, id)
		if errors.Is(err, entities.ErrOrderNotFound) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *memStore) OrdersByCheckout(_ context.Context, checkoutID string) ([]entities.Order, error) {
	var out []entities.Order
	for _, o := range s.orderList() {
		if o.CheckoutID == checkoutID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *memStore) TransitionOrder(_ context.Context, id string, from []entities.OrderStatus, upd entities.OrderUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok || !slices.Contains(from, o.Status) {
		return false, nil
	}
	if len(upd.PaymentFrom) > 0 && !slices.Contains(upd.PaymentFrom, o.PaymentStatus) {
		return false, nil
	}
	if upd.Status != "" {
		o.Status = upd.Status
	}
	if upd.PaymentStatus != "" {
		o.PaymentStatus = upd.PaymentStatus
	}
	if upd.FulfillmentStatus != "" {
		o.FulfillmentStatus = upd.FulfillmentStatus
	}
	if upd.CancelReason != "" {
		o.CancelReason = upd.CancelReason
	}
	if upd.AdminNote != "" {
		o.AdminNote = upd.AdminNote
	}
	s.orders[id] = o
	return true, nil
}

func (s *memStore) SetPaymentStatus(_ context.Context, ids []string, from, to entities.PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		o := s.orders[id]
		if o.Status == entities.OrderStatusPending && o.PaymentStatus == from {
			o.PaymentStatus = to
			s.orders[id] = o
		}
	}
	return nil
}

func (s *memStore) MarkItemStockRestored(_ context.Context, itemID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, o := range s.orders {
		for i, it := range o.Items {
			if it.ID != itemID {
				continue
			}
			if it.StockRestored {
				return false, nil
			}
			o.Items = slices.Clone(o.Items)
			o.Items[i].StockRestored = true
			s.orders[id] = o
			return true, nil
		}
	}
	return false, nil
}

// payments

func (s *memStore) CreatePayments(_ context.Context, payments []entities.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = append(s.payments, payments...)
	return nil
}

func (s *memStore) paymentsWhere(match func(entities.Payment) bool) []entities.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entities.Payment
	for _, p := range s.payments {
		if match(p) {
			out = append(out, p)
		}
	}
	return out
}

func (s *memStore) PaymentsByAuthorization(_ context.Context, authID string) ([]entities.Payment, error) {
	return s.paymentsWhere(func(p entities.Payment) bool { return p.AuthorizationID == authID }), nil
}

func (s *memStore) PaymentsByOrder(_ context.Context, orderID string) ([]entities.Payment, error) {
	return s.paymentsWhere(func(p entities.Payment) bool { return p.OrderID == orderID }), nil
}

func (s *memStore) UpdatePayments(_ context.Context, filter map[string]any, from []entities.PaymentStatus, to entities.PaymentStatus, refundID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matches := func(field string, value any) bool {
		switch v := filter[field].(type) {
		case nil:
			return true
		case string:
			return v == value
		case []string:
			return slices.Contains(v, value.(string))
		}
		return false
	}

	var n int64
	for i, p := range s.payments {
		if !matches("order_id", p.OrderID) || !matches("authorization_id", p.AuthorizationID) || !slices.Contains(from, p.Status) {
			continue
		}
		s.payments[i].Status = to
		if refundID != "" {
			s.payments[i].RefundID = refundID
		}
		n++
	}
	return n, nil
}

// memLocker замок владельца в памяти.
type memLocker struct {
	mu     sync.Mutex
	locked map[string]bool
}

func newMemLocker() *memLocker {
	return &memLocker{locked: make(map[string]bool)}
}

func (l *memLocker) Lock(_ context.Context, owner entities.CartOwner) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked[owner.Key()] {
		return nil, entities.ErrCheckoutInProgress
	}
	l.locked[owner.Key()] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.locked, owner.Key())
	}, nil
}

// nopCartCache всегда промахивается.
type nopCartCache struct{}

func (nopCartCache) Get(context.Context, entities.CartOwner) (entities.Cart, error) {
	return entities.Cart{}, errors.New("miss")
}
func (nopCartCache) Set(context.Context, entities.Cart) error            { return nil }
func (nopCartCache) Delete(context.Context, ...entities.CartOwner) error { return nil }

type couponFunc func(code, shopID string, amount int64) entities.CouponResult

func (f couponFunc) Validate(_ context.Context, code, shopID string, amount int64, _ []entities.CouponItem) (entities.CouponResult, error) {
	return f(code, shopID, amount), nil
}

var noCoupons = couponFunc(func(string, string, int64) entities.CouponResult {
	return entities.CouponResult{Reason: "unknown"}
})

type mapAccountCache struct {
	mu sync.Mutex
	m  map[string]payment.AccountStatus
}

func (c *mapAccountCache) Get(key string) (payment.AccountStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.m[key]
	return v, ok
}

func (c *mapAccountCache) Set(key string, v payment.AccountStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string]payment.AccountStatus)
	}
	c.m[key] = v
}

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) CreateAuthorization(ctx context.Context, req payment.ChargeRequest) (payment.Authorization, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payment.Authorization), args.Error(1)
}

func (m *mockProcessor) CreateDestinationCharge(ctx context.Context, req payment.DestinationRequest) (payment.Authorization, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payment.Authorization), args.Error(1)
}

func (m *mockProcessor) GetAuthorization(ctx context.Context, id string) (payment.Authorization, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(payment.Authorization), args.Error(1)
}

func (m *mockProcessor) Refund(ctx context.Context, req payment.RefundRequest) (payment.Refund, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payment.Refund), args.Error(1)
}

func (m *mockProcessor) CancelAuthorization(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockProcessor) GetAccount(ctx context.Context, accountID string) (payment.AccountStatus, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(payment.AccountStatus), args.Error(1)
}

// memLedger журнал доставки с уникальными ключами.
type memLedger struct {
	mu            sync.Mutex
	deliveries    map[string]entities.EmailDelivery
	notifications map[string]entities.Notification
}

func newMemLedger() *memLedger {
	return &memLedger{
		deliveries:    make(map[string]entities.EmailDelivery),
		notifications: make(map[string]entities.Notification),
	}
}

func (l *memLedger) ClaimDelivery(_ context.Context, d entities.EmailDelivery) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.deliveries[d.DedupeKey]; ok && existing.Status != entities.DeliveryFailed {
		return false, nil
	}
	d.Status = entities.DeliveryProcessing
	l.deliveries[d.DedupeKey] = d
	return true, nil
}

func (l *memLedger) MarkDelivery(_ context.Context, key string, status entities.DeliveryStatus, msg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	d := l.deliveries[key]
	d.Status, d.Error = status, msg
	l.deliveries[key] = d
	return nil
}

func (l *memLedger) InsertNotification(_ context.Context, n entities.Notification) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := n.ShopID + "|" + string(n.Type) + "|" + n.SubjectID
	if _, ok := l.notifications[key]; ok {
		return false, nil
	}
	l.notifications[key] = n
	return true, nil
}

func (l *memLedger) ListNotifications(_ context.Context, shopID string, _ bool) ([]entities.Notification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []entities.Notification
	for _, n := range l.notifications {
		if n.ShopID == shopID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (l *memLedger) MarkNotificationRead(context.Context, string, string) error { return nil }

func (l *memLedger) deliveriesFor(orderID string, t entities.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for _, d := range l.deliveries {
		if d.OrderID == orderID && d.Type == t {
			n++
		}
	}
	return n
}

// recordingDispatcher запоминает события.
type recordingDispatcher struct {
	mu     sync.Mutex
	events []entities.OrderEvent
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, events ...entities.OrderEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, events...)
	return d.err
}
