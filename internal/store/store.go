package store

import (
	"context"

	"github.com/safar/axon-pharmacy/internal/models"
)

// Medicines is the medicine catalogue.
type Medicines interface {
	// CreateMedicine fails with database.ErrMedicineExists when the normalized
	// name is taken.
	CreateMedicine(ctx context.Context, m *models.Medicine) (*models.Medicine, error)
	GetMedicine(ctx context.Context, name string) (*models.Medicine, error)
	ListMedicines(ctx context.Context, page, pageSize int) (*OffsetPage[models.Medicine], error)
	SetStock(ctx context.Context, name string, stock int) (*models.Medicine, error)
	AddStock(ctx context.Context, name string, quantity int) (*models.Medicine, error)
	DeleteMedicine(ctx context.Context, name string) error
	CountMedicines(ctx context.Context) (int64, error)
}

// Orders covers order placement and lifecycle. PlaceOrder, CancelOrder and
// UpdateOrderStatus are atomic with the stock change they imply.
type Orders interface {
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, userEmail, cursor string, limit int) (*CursorPage[models.Order], error)
	// CancelOrder restores stock. A non-empty owner must match the order's user.
	CancelOrder(ctx context.Context, id, owner string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, id, status string) (*models.Order, error)
	CountOrdersByStatus(ctx context.Context, status string) (int64, error)
}

type Users interface {
	CreateUser(ctx context.Context, u *models.User) (*models.User, error)
	GetUser(ctx context.Context, email string) (*models.User, error)
}

type Admins interface {
	CreateAdmin(ctx context.Context, a *models.Admin) (*models.Admin, error)
	GetAdmin(ctx context.Context, email string) (*models.Admin, error)
}

// ChatHistory persists the chat log of a user.
type ChatHistory interface {
	AppendChatTurns(ctx context.Context, email string, turns []models.ChatTurn) error
	// ChatHistory returns at most limit of the most recent turns, oldest first.
	ChatHistory(ctx context.Context, email string, limit int) ([]models.ChatTurn, error)
}

type Store interface {
	Medicines
	Orders
	Users
	Admins
	ChatHistory
}

type PlaceOrderRequest struct {
	UserEmail    string
	MedicineName string
	Quantity     int
}
