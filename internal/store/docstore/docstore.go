// Package docstore stores the pharmacy in Cloud Firestore. Medicines, orders,
// users and admins each live in their own collection keyed by medicine name,
// order id and email. Multi-document writes run inside RunTransaction.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/safar/axon-pharmacy/internal/database"
	"github.com/safar/axon-pharmacy/internal/models"
	"github.com/safar/axon-pharmacy/internal/store"
	"github.com/shopspring/decimal"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	medicinesCollection = "medicines"
	ordersCollection    = "orders"
	usersCollection     = "users"
	adminsCollection    = "admins"
)

type Store struct {
	client *firestore.Client
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

func New(client *firestore.Client) *Store {
	return &Store{client: client, now: func() time.Time { return time.Now().UTC() }}
}

// Open connects to Firestore. An empty credentialsFile falls back to
// application default credentials, and FIRESTORE_EMULATOR_HOST is honoured.
func Open(ctx context.Context, projectID, credentialsFile string) (*firestore.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return client, nil
}

func notFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func alreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

type medicineDoc struct {
	Name        string    `firestore:"name"`
	UnitPrice   float64   `firestore:"unit_price"`
	Stock       int64     `firestore:"stock"`
	MadeIn      string    `firestore:"madein"`
	Category    string    `firestore:"category"`
	Description string    `firestore:"description"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
}

func (d medicineDoc) model() *models.Medicine {
	return &models.Medicine{
		Name:        d.Name,
		UnitPrice:   decimal.NewFromFloat(d.UnitPrice),
		Stock:       int(d.Stock),
		MadeIn:      d.MadeIn,
		Category:    d.Category,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type orderDoc struct {
	UserEmail    string    `firestore:"user_email"`
	MedicineName string    `firestore:"medicine_name"`
	Quantity     int64     `firestore:"quantity"`
	UnitPrice    float64   `firestore:"unit_price"`
	TotalPrice   float64   `firestore:"total_price"`
	Status       string    `firestore:"status"`
	CreatedAt    time.Time `firestore:"created_at"`
	UpdatedAt    time.Time `firestore:"updated_at"`
}

func (d orderDoc) model(id string) *models.Order {
	return &models.Order{
		ID:           id,
		UserEmail:    d.UserEmail,
		MedicineName: d.MedicineName,
		Quantity:     int(d.Quantity),
		UnitPrice:    decimal.NewFromFloat(d.UnitPrice),
		TotalPrice:   decimal.NewFromFloat(d.TotalPrice),
		Status:       d.Status,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type invocationDoc struct {
	Name      string `firestore:"name"`
	Arguments string `firestore:"arguments"`
	Success   bool   `firestore:"success"`
	Message   string `firestore:"message"`
}

type chatTurnDoc struct {
	Role        string          `firestore:"role"`
	Content     string          `firestore:"content"`
	Invocations []invocationDoc `firestore:"invocations"`
	CreatedAt   time.Time       `firestore:"created_at"`
}

type userDoc struct {
	Email        string            `firestore:"email"`
	PasswordHash string            `firestore:"password_hash"`
	Name         string            `firestore:"name"`
	Age          int64             `firestore:"age"`
	Orders       map[string]string `firestore:"orders"`
	ChatHistory  []chatTurnDoc     `firestore:"chat_history"`
	CreatedAt    time.Time         `firestore:"created_at"`
}

func (d userDoc) model() *models.User {
	orders := d.Orders
	if orders == nil {
		orders = map[string]string{}
	}
	return &models.User{
		Email:        d.Email,
		PasswordHash: d.PasswordHash,
		Name:         d.Name,
		Age:          int(d.Age),
		Orders:       orders,
		CreatedAt:    d.CreatedAt,
	}
}

type adminDoc struct {
	Email        string    `firestore:"email"`
	PasswordHash string    `firestore:"password_hash"`
	CreatedAt    time.Time `firestore:"created_at"`
}

func turnDocs(turns []models.ChatTurn) []interface{} {
	out := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		d := chatTurnDoc{Role: t.Role, Content: t.Content, CreatedAt: t.CreatedAt}
		for _, inv := range t.Invocations {
			d.Invocations = append(d.Invocations, invocationDoc(inv))
		}
		out = append(out, d)
	}
	return out
}

func (d chatTurnDoc) model() models.ChatTurn {
	t := models.ChatTurn{Role: d.Role, Content: d.Content, CreatedAt: d.CreatedAt}
	for _, inv := range d.Invocations {
		t.Invocations = append(t.Invocations, models.ToolInvocation(inv))
	}
	return t
}

// count runs a server-side COUNT aggregation instead of reading documents.
func count(ctx context.Context, q firestore.Query) (int64, error) {
	res, err := q.NewAggregationQuery().WithCount("all").Get(ctx)
	if err != nil {
		return 0, err
	}
	v, ok := res["all"].(*firestorepb.Value)
	if !ok {
		return 0, fmt.Errorf("unexpected count result %T", res["all"])
	}
	return v.GetIntegerValue(), nil
}

// wrapTxErr passes domain errors through untouched so callers can match them,
// and reports aborted transactions as lock contention.
func wrapTxErr(op string, err error) error {
	for _, target := range []error{
		database.ErrUserNotFound,
		database.ErrMedicineNotFound,
		database.ErrOrderNotFound,
		database.ErrOrderNotOwned,
		database.ErrInsufficientStock,
		database.ErrInvalidStatusTransition,
	} {
		if errors.Is(err, target) {
			return err
		}
	}
	if status.Code(err) == codes.Aborted {
		return fmt.Errorf("%w: %w", database.ErrLockTimeout, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
