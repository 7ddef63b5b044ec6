// Package memstore keeps the pharmacy in process memory. Every operation runs
// under the store mutex, so multi-record writes are atomic.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/safar/axon-pharmacy/internal/database"
	"github.com/safar/axon-pharmacy/internal/models"
	"github.com/safar/axon-pharmacy/internal/store"
	"github.com/shopspring/decimal"
)

type Store struct {
	mu        sync.RWMutex
	now       func() time.Time
	medicines map[string]models.Medicine
	orders    map[string]models.Order
	users     map[string]models.User
	admins    map[string]models.Admin
	chats     map[string][]models.ChatTurn
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:       time.Now,
		medicines: make(map[string]models.Medicine),
		orders:    make(map[string]models.Order),
		users:     make(map[string]models.User),
		admins:    make(map[string]models.Admin),
		chats:     make(map[string][]models.ChatTurn),
	}
}

// Medicines

func (s *Store) CreateMedicine(_ context.Context, in *models.Medicine) (*models.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := *in
	m.Name = models.NormalizeMedicineName(in.Name)
	if m.Name == "" {
		return nil, database.ErrInvalidMedicineName
	}
	m.UnitPrice = in.UnitPrice.Round(2)
	if _, ok := s.medicines[m.Name]; ok {
		return nil, database.ErrMedicineExists
	}
	if m.Stock < 0 {
		return nil, database.ErrInvalidQuantity
	}
	m.CreatedAt = s.now()
	m.UpdatedAt = m.CreatedAt
	s.medicines[m.Name] = m

	cp := m
	return &cp, nil
}

func (s *Store) GetMedicine(_ context.Context, name string) (*models.Medicine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.medicines[models.NormalizeMedicineName(name)]
	if !ok {
		return nil, database.ErrMedicineNotFound
	}
	return &m, nil
}

func (s *Store) ListMedicines(_ context.Context, page, pageSize int) (*store.OffsetPage[models.Medicine], error) {
	page, pageSize = store.NormalizePage(page, pageSize)

	s.mu.RLock()
	all := make([]models.Medicine, 0, len(s.medicines))
	for _, m := range s.medicines {
		all = append(all, m)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].Name < all[j].Name
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	start := (page - 1) * pageSize
	if start > len(all) {
		start = len(all)
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}

	return store.NewOffsetPage(all[start:end], int64(len(all)), page, pageSize), nil
}

func (s *Store) SetStock(_ context.Context, name string, stock int) (*models.Medicine, error) {
	if stock < 0 {
		return nil, database.ErrInvalidQuantity
	}
	return s.updateMedicine(name, func(m *models.Medicine) { m.Stock = stock })
}

func (s *Store) AddStock(_ context.Context, name string, quantity int) (*models.Medicine, error) {
	if quantity <= 0 {
		return nil, database.ErrInvalidQuantity
	}
	return s.updateMedicine(name, func(m *models.Medicine) { m.Stock += quantity })
}

func (s *Store) updateMedicine(name string, fn func(*models.Medicine)) (*models.Medicine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.NormalizeMedicineName(name)
	m, ok := s.medicines[key]
	if !ok {
		return nil, database.ErrMedicineNotFound
	}
	fn(&m)
	m.UpdatedAt = s.now()
	s.medicines[key] = m

	return &m, nil
}

func (s *Store) DeleteMedicine(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := models.NormalizeMedicineName(name)
	if _, ok := s.medicines[key]; !ok {
		return database.ErrMedicineNotFound
	}
	delete(s.medicines, key)
	return nil
}

func (s *Store) CountMedicines(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.medicines)), nil
}

// Orders

func (s *Store) PlaceOrder(_ context.Context, req store.PlaceOrderRequest) (*models.Order, error) {
	if req.Quantity <= 0 {
		return nil, database.ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[req.UserEmail]
	if !ok {
		return nil, database.ErrUserNotFound
	}

	name := models.NormalizeMedicineName(req.MedicineName)
	m, ok := s.medicines[name]
	if !ok {
		return nil, database.ErrMedicineNotFound
	}
	if m.Stock < req.Quantity {
		return nil, &database.StockError{Medicine: name, Available: m.Stock, Requested: req.Quantity}
	}

	now := s.now()
	order := models.Order{
		ID:           uuid.NewString(),
		UserEmail:    req.UserEmail,
		MedicineName: name,
		Quantity:     req.Quantity,
		UnitPrice:    m.UnitPrice,
		TotalPrice:   m.UnitPrice.Mul(decimal.NewFromInt(int64(req.Quantity))),
		Status:       models.OrderStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	m.Stock -= req.Quantity
	m.UpdatedAt = now
	s.medicines[name] = m
	s.orders[order.ID] = order

	orders := make(map[string]string, len(user.Orders)+1)
	for id, med := range user.Orders {
		orders[id] = med
	}
	orders[order.ID] = name
	user.Orders = orders
	s.users[user.Email] = user

	return &order, nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, database.ErrOrderNotFound
	}
	return &o, nil
}

func (s *Store) ListOrders(_ context.Context, userEmail, cursor string, limit int) (*store.CursorPage[models.Order], error) {
	c, err := store.DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	s.mu.RLock()
	var matched []models.Order
	for _, o := range s.orders {
		if o.UserEmail == userEmail && c.Before(o.CreatedAt, o.ID) {
			matched = append(matched, o)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	return store.Paginate(matched, limit, func(o models.Order) store.OrderCursor {
		return store.OrderCursor{CreatedAt: o.CreatedAt, ID: o.ID}
	}), nil
}

func (s *Store) CancelOrder(_ context.Context, id, owner string) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cancelLocked(id, owner)
}

func (s *Store) cancelLocked(id, owner string) (*models.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, database.ErrOrderNotFound
	}
	if owner != "" && o.UserEmail != owner {
		return nil, database.ErrOrderNotOwned
	}
	if !models.IsCancellable(o.Status) {
		return nil, &database.TransitionError{OrderID: id, From: o.Status, To: models.OrderStatusCancelled}
	}

	now := s.now()
	if m, ok := s.medicines[o.MedicineName]; ok {
		m.Stock += o.Quantity
		m.UpdatedAt = now
		s.medicines[o.MedicineName] = m
	}

	o.Status = models.OrderStatusCancelled
	o.UpdatedAt = now
	s.orders[id] = o

	return &o, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id, status string) (*models.Order, error) {
	if !models.IsValidOrderStatus(status) {
		return nil, database.ErrInvalidStatus
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if status == models.OrderStatusCancelled {
		return s.cancelLocked(id, "")
	}

	o, ok := s.orders[id]
	if !ok {
		return nil, database.ErrOrderNotFound
	}
	if !models.CanTransition(o.Status, status) {
		return nil, &database.TransitionError{OrderID: id, From: o.Status, To: status}
	}

	o.Status = status
	o.UpdatedAt = s.now()
	s.orders[id] = o

	return &o, nil
}

func (s *Store) CountOrdersByStatus(_ context.Context, status string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, o := range s.orders {
		if o.Status == status {
			n++
		}
	}
	return n, nil
}

// Accounts

func (s *Store) CreateUser(_ context.Context, in *models.User) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[in.Email]; ok {
		return nil, database.ErrUserExists
	}

	u := *in
	u.Orders = map[string]string{}
	u.CreatedAt = s.now()
	s.users[u.Email] = u

	return copyUser(u), nil
}

func (s *Store) GetUser(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[email]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	return copyUser(u), nil
}

func copyUser(u models.User) *models.User {
	orders := make(map[string]string, len(u.Orders))
	for id, med := range u.Orders {
		orders[id] = med
	}
	u.Orders = orders
	return &u
}

func (s *Store) CreateAdmin(_ context.Context, in *models.Admin) (*models.Admin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.admins[in.Email]; ok {
		return nil, database.ErrAdminExists
	}

	a := *in
	a.CreatedAt = s.now()
	s.admins[a.Email] = a

	return &a, nil
}

func (s *Store) GetAdmin(_ context.Context, email string) (*models.Admin, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.admins[email]
	if !ok {
		return nil, database.ErrAdminNotFound
	}
	return &a, nil
}

// Chat history

func (s *Store) AppendChatTurns(_ context.Context, email string, turns []models.ChatTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[email]; !ok {
		return database.ErrUserNotFound
	}
	s.chats[email] = append(s.chats[email], turns...)
	return nil
}

func (s *Store) ChatHistory(_ context.Context, email string, limit int) ([]models.ChatTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.chats[email]
	if limit <= 0 {
		return []models.ChatTurn{}, nil
	}
	if len(all) > limit {
		all = all[len(all)-limit:]
	}

	out := make([]models.ChatTurn, len(all))
	copy(out, all)
	return out, nil
}
