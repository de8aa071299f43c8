package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pachory/backend/internal/entity"
	"github.com/pachory/backend/internal/payment"
	"github.com/pachory/backend/internal/repository"
)

// memStore is an in-memory ProductRepository + OrderRepository sharing one
// mutex, so MarkPaid gets the same all-or-nothing semantics as the SQL
// transaction it stands in for.
type memStore struct {
	mu       sync.Mutex
	products map[string]*entity.Product
	orders   map[string]*entity.Order
}

func newMemStore() *memStore {
	return &memStore{
		products: make(map[string]*entity.Product),
		orders:   make(map[string]*entity.Order),
	}
}

func (s *memStore) Create(ctx context.Context, p *entity.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.products[p.ID] = &cp
	return nil
}

func (s *memStore) FindByID(ctx context.Context, id string) (*entity.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *memStore) FindAll(ctx context.Context) ([]entity.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Product
	for _, p := range s.products {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) Update(ctx context.Context, p *entity.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.products[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stock := existing.Stock // stock is not editable through Update
	cp := *p
	cp.Stock = stock
	s.products[p.ID] = &cp
	return nil
}

func (s *memStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *memStore) Seed(ctx context.Context, products []entity.Product) error {
	for i := range products {
		if err := s.Create(ctx, &products[i]); err != nil {
			return err
		}
	}
	return nil
}

// setStock mutates stock directly, bypassing the Update guard. Test helper.
func (s *memStore) setStock(id string, stock int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[id].Stock = stock
}

func (s *memStore) stockOf(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products[id].Stock
}

// --- OrderRepository ---

func (s *memStore) createOrder(ctx context.Context, o *entity.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return fmt.Errorf("duplicate order id %s", o.ID)
	}
	cp := *o
	cp.Items = append([]entity.OrderItem(nil), o.Items...)
	s.orders[o.ID] = &cp
	return nil
}

func (s *memStore) findOrder(ctx context.Context, id string) (*entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *o
	cp.Items = append([]entity.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (s *memStore) FindByUser(ctx context.Context, userID string) ([]entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) FindStalePending(ctx context.Context, cutoff time.Time) ([]entity.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []entity.Order
	for _, o := range s.orders {
		if o.PaymentStatus == entity.PaymentStatusPending && o.CreatedAt.Before(cutoff) {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *memStore) MarkPaid(ctx context.Context, orderID, providerPaymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	if o.PaymentStatus != entity.PaymentStatusPending {
		return repository.ErrAlreadyPaid
	}

	// Validate every line before touching anything.
	for _, item := range o.Items {
		p, ok := s.products[item.ProductID]
		available := 0
		if ok {
			available = p.Stock
		}
		if available < item.Quantity {
			return &repository.InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: available,
			}
		}
	}
	for _, item := range o.Items {
		s.products[item.ProductID].Stock -= item.Quantity
	}
	o.PaymentStatus = entity.PaymentStatusPaid
	o.OrderStatus = entity.OrderStatusConfirmed
	o.ProviderPaymentID = providerPaymentID
	o.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) UpdateStatus(ctx context.Context, orderID string, status entity.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	o.OrderStatus = status
	o.UpdatedAt = time.Now()
	return nil
}

func (s *memStore) MarkRefunded(ctx context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return repository.ErrConflict
	}
	if o.PaymentStatus != entity.PaymentStatusPaid {
		return repository.ErrConflict
	}
	o.PaymentStatus = entity.PaymentStatusRefunded
	o.OrderStatus = entity.OrderStatusRefunded
	o.UpdatedAt = time.Now()
	return nil
}

// orderRepo adapts memStore to repository.OrderRepository (Create/FindByID
// clash with the product methods, so they get distinct names internally).
type orderRepo struct{ *memStore }

func (r orderRepo) Create(ctx context.Context, o *entity.Order) error { return r.createOrder(ctx, o) }
func (r orderRepo) FindByID(ctx context.Context, id string) (*entity.Order, error) {
	return r.findOrder(ctx, id)
}
func (r orderRepo) FindAll(ctx context.Context) ([]entity.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Order
	for _, o := range r.orders {
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

var _ repository.ProductRepository = (*memStore)(nil)
var _ repository.OrderRepository = orderRepo{}

// --- CartRepository ---

type fakeCartRepo struct {
	mu         sync.Mutex
	lines      map[string]map[string]int
	clearCalls int
}

func newFakeCartRepo() *fakeCartRepo {
	return &fakeCartRepo{lines: make(map[string]map[string]int)}
}

func (r *fakeCartRepo) Get(ctx context.Context, userID string) (*entity.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart := &entity.Cart{UserID: userID}
	for productID, quantity := range r.lines[userID] {
		cart.Lines = append(cart.Lines, entity.CartLine{ProductID: productID, Quantity: quantity})
	}
	sort.Slice(cart.Lines, func(i, j int) bool { return cart.Lines[i].ProductID < cart.Lines[j].ProductID })
	return cart, nil
}

func (r *fakeCartRepo) SetLine(ctx context.Context, userID, productID string, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lines[userID] == nil {
		r.lines[userID] = make(map[string]int)
	}
	r.lines[userID][productID] = quantity
	return nil
}

func (r *fakeCartRepo) RemoveLine(ctx context.Context, userID, productID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.lines[userID][productID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.lines[userID], productID)
	return nil
}

func (r *fakeCartRepo) Clear(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lines, userID)
	r.clearCalls++
	return nil
}

func (r *fakeCartRepo) size(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines[userID])
}

var _ repository.CartRepository = (*fakeCartRepo)(nil)

// --- RefundRepository ---

type fakeRefundRepo struct {
	mu       sync.Mutex
	requests map[string]*entity.RefundRequest
}

func newFakeRefundRepo() *fakeRefundRepo {
	return &fakeRefundRepo{requests: make(map[string]*entity.RefundRequest)}
}

func (r *fakeRefundRepo) Create(ctx context.Context, req *entity.RefundRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.requests {
		if existing.OrderID == req.OrderID && existing.Status != entity.RefundStatusRejected {
			return repository.ErrDuplicate
		}
	}
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *fakeRefundRepo) FindByID(ctx context.Context, id string) (*entity.RefundRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (r *fakeRefundRepo) FindAll(ctx context.Context) ([]entity.RefundRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.RefundRequest
	for _, req := range r.requests {
		out = append(out, *req)
	}
	return out, nil
}

func (r *fakeRefundRepo) UpdateStatus(ctx context.Context, id string, status entity.RefundStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return repository.ErrNotFound
	}
	req.Status = status
	req.UpdatedAt = time.Now()
	return nil
}

var _ repository.RefundRepository = (*fakeRefundRepo)(nil)

// --- Gateway ---

// fakeGateway mints predictable intents and verifies real HMAC signatures, so
// tests can forge and tamper like a hostile client would.
type fakeGateway struct {
	mu         sync.Mutex
	secret     string
	nextIntent int
	createErr  error
	created    []payment.Intent
}

func newFakeGateway(secret string) *fakeGateway {
	return &fakeGateway{secret: secret}
}

func (g *fakeGateway) CreateIntent(ctx context.Context, amountMinor int64, currency, receipt string) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.nextIntent++
	intent := payment.Intent{
		ID:       fmt.Sprintf("intent_%03d", g.nextIntent),
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  receipt,
	}
	g.created = append(g.created, intent)
	return &intent, nil
}

func (g *fakeGateway) VerifySignature(intentID, paymentID, signature string) error {
	if !hmac.Equal([]byte(signPayment(g.secret, intentID, paymentID)), []byte(signature)) {
		return payment.ErrInvalidSignature
	}
	return nil
}

func (g *fakeGateway) KeyID() string { return "rzp_test_key" }

func (g *fakeGateway) intentCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.created)
}

var _ payment.Gateway = (*fakeGateway)(nil)

func signPayment(secret, intentID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(intentID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

// --- Publisher ---

type fakePublisher struct {
	mu     sync.Mutex
	events []entity.Event
}

func (p *fakePublisher) PublishEvent(ctx context.Context, topic string, key string, event entity.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
