package docstore

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/safar/axon-pharmacy/internal/database"
	"github.com/safar/axon-pharmacy/internal/models"
	"github.com/safar/axon-pharmacy/internal/store"
	"github.com/shopspring/decimal"
)

// setupEmulator needs a running Firestore emulator, e.g.
// gcloud emulators firestore start --host-port=localhost:8081
func setupEmulator(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}

	ctx := context.Background()
	client, err := Open(ctx, "axon-test-"+uuid.NewString()[:8], "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return New(client)
}

func TestFirestoreOrderLifecycle(t *testing.T) {
	s := setupEmulator(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, &models.User{Email: "alice@example.com", Name: "Alice", Age: 31}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := s.CreateMedicine(ctx, &models.Medicine{Name: "Paracetamol", UnitPrice: decimal.NewFromFloat(5), Stock: 100}); err != nil {
		t.Fatalf("CreateMedicine: %v", err)
	}
	if _, err := s.CreateMedicine(ctx, &models.Medicine{Name: "paracetamol", UnitPrice: decimal.NewFromFloat(5), Stock: 1}); !errors.Is(err, database.ErrMedicineExists) {
		t.Fatalf("Expected ErrMedicineExists, got %v", err)
	}

	o, err := s.PlaceOrder(ctx, store.PlaceOrderRequest{UserEmail: "alice@example.com", MedicineName: "Paracetamol", Quantity: 10})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}

	m, err := s.GetMedicine(ctx, "paracetamol")
	if err != nil {
		t.Fatalf("GetMedicine: %v", err)
	}
	if m.Stock != 90 {
		t.Errorf("Expected stock 90, got %d", m.Stock)
	}

	u, err := s.GetUser(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Orders[o.ID] != "paracetamol" {
		t.Errorf("Expected order indexed under user, got %v", u.Orders)
	}

	if _, err := s.PlaceOrder(ctx, store.PlaceOrderRequest{UserEmail: "alice@example.com", MedicineName: "paracetamol", Quantity: 91}); !errors.Is(err, database.ErrInsufficientStock) {
		t.Errorf("Expected ErrInsufficientStock, got %v", err)
	}

	if _, err := s.CancelOrder(ctx, o.ID, "mallory@example.com"); !errors.Is(err, database.ErrOrderNotOwned) {
		t.Errorf("Expected ErrOrderNotOwned, got %v", err)
	}
	if _, err := s.CancelOrder(ctx, o.ID, "alice@example.com"); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}

	m, _ = s.GetMedicine(ctx, "paracetamol")
	if m.Stock != 100 {
		t.Errorf("Expected stock restored to 100, got %d", m.Stock)
	}
}

func TestFirestoreChatHistory(t *testing.T) {
	s := setupEmulator(t)
	ctx := context.Background()

	if _, err := s.CreateUser(ctx, &models.User{Email: "bob@example.com", Name: "Bob", Age: 40}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	turns := []models.ChatTurn{
		{Role: models.ChatRoleUser, Content: "do you have ibuprofen?"},
		{Role: models.ChatRoleModel, Content: "yes", Invocations: []models.ToolInvocation{{Name: "check_medicine_availability", Success: true}}},
	}
	if err := s.AppendChatTurns(ctx, "bob@example.com", turns); err != nil {
		t.Fatalf("AppendChatTurns: %v", err)
	}

	got, err := s.ChatHistory(ctx, "bob@example.com", 10)
	if err != nil {
		t.Fatalf("ChatHistory: %v", err)
	}
	if len(got) != 2 || got[1].Invocations[0].Name != "check_medicine_availability" {
		t.Errorf("Unexpected history: %+v", got)
	}
}

func TestFirestoreCountsAndMedicineValidation(t *testing.T) {
	s := setupEmulator(t)
	ctx := context.Background()

	if _, err := s.CreateMedicine(ctx, &models.Medicine{Name: " ", Stock: 1}); !errors.Is(err, database.ErrInvalidMedicineName) {
		t.Fatalf("Expected ErrInvalidMedicineName, got %v", err)
	}

	if _, err := s.CreateUser(ctx, &models.User{Email: "alice@example.com", Name: "Alice", Age: 31}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	for _, name := range []string{"Paracetamol", "Ibuprofen", "Amoxicillin"} {
		if _, err := s.CreateMedicine(ctx, &models.Medicine{Name: name, UnitPrice: decimal.RequireFromString("12.345"), Stock: 10}); err != nil {
			t.Fatalf("CreateMedicine %s: %v", name, err)
		}
	}

	m, err := s.GetMedicine(ctx, "ibuprofen")
	if err != nil {
		t.Fatalf("GetMedicine: %v", err)
	}
	if !m.UnitPrice.Equal(decimal.RequireFromString("12.35")) {
		t.Errorf("Expected unit price 12.35, got %s", m.UnitPrice)
	}

	for i := 0; i < 2; i++ {
		if _, err := s.PlaceOrder(ctx, store.PlaceOrderRequest{UserEmail: "alice@example.com", MedicineName: "paracetamol", Quantity: 1}); err != nil {
			t.Fatalf("PlaceOrder: %v", err)
		}
	}

	if n, err := s.CountMedicines(ctx); err != nil || n != 3 {
		t.Errorf("Expected 3 medicines, got %d (%v)", n, err)
	}
	if n, err := s.CountOrdersByStatus(ctx, models.OrderStatusPending); err != nil || n != 2 {
		t.Errorf("Expected 2 pending orders, got %d (%v)", n, err)
	}
	if n, err := s.CountOrdersByStatus(ctx, models.OrderStatusDelivered); err != nil || n != 0 {
		t.Errorf("Expected 0 delivered orders, got %d (%v)", n, err)
	}
}
