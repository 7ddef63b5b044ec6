package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/axon-pharmacy/internal/account"
	"github.com/safar/axon-pharmacy/internal/assistant"
	"github.com/safar/axon-pharmacy/internal/auth"
	"github.com/safar/axon-pharmacy/internal/llm"
	"github.com/safar/axon-pharmacy/internal/models"
	"github.com/safar/axon-pharmacy/internal/session"
	"github.com/safar/axon-pharmacy/internal/store/memstore"
	"github.com/safar/axon-pharmacy/internal/telegram"
	"github.com/safar/axon-pharmacy/internal/tools"
	"github.com/shopspring/decimal"
)

// queuedClient answers model calls from a queue.
type queuedClient struct {
	mu    sync.Mutex
	queue []*llm.Response
	err   error
}

func (q *queuedClient) push(responses ...*llm.Response) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.queue = append(q.queue, responses...)
}

func (q *queuedClient) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	if len(q.queue) == 0 {
		return nil, errors.New("no scripted response")
	}
	r := q.queue[0]
	q.queue = q.queue[1:]
	return r, nil
}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(_ context.Context, text string) []telegram.Delivery {
	return []telegram.Delivery{{Target: "@axon_group", OK: true, Text: text}}
}

type testServer struct {
	*Server
	store *memstore.Store
	model *queuedClient
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s := memstore.New()
	if _, err := s.CreateMedicine(ctx, &models.Medicine{Name: "Paracetamol", UnitPrice: decimal.NewFromInt(5), Stock: 100, Category: "painkillers"}); err != nil {
		t.Fatalf("CreateMedicine: %v", err)
	}

	accounts := account.NewService(s, auth.NewTokens("test-secret", time.Hour), session.NewManager(time.Hour), 20, logger)
	if err := accounts.EnsureAdmin(ctx, "admin@axon.example", "root-pass"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}

	model := &queuedClient{}

	customer := tools.NewRegistry(logger)
	tools.RegisterCustomer(customer, s)
	admin := tools.NewRegistry(logger)
	tools.RegisterAdmin(admin, s, noopBroadcaster{})

	srv := NewServer(Deps{
		Accounts: accounts,
		Store:    s,
		Customer: assistant.NewExecutor(model, customer, assistant.CustomerPrompt, logger),
		Admin:    assistant.NewExecutor(model, admin, assistant.AdminPrompt, logger),
		Logger:   logger,
		GinMode:  gin.TestMode,
	})
	return &testServer{Server: srv, store: s, model: model}
}

func doJSON(t *testing.T, s *testServer, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func registerAndLogin(t *testing.T, s *testServer, email string) string {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email": email, "password": "secret-pass", "name": "Alice", "age": 31,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register code %v: %s", w.Code, w.Body.String())
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email": email, "password": "secret-pass",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login code %v: %s", w.Code, w.Body.String())
	}
	return decode[account.Login](t, w).Token
}

func adminLogin(t *testing.T, s *testServer) string {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/v1/admin/login", "", map[string]any{
		"email": "admin@axon.example", "password": "root-pass",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("admin login code %v: %s", w.Code, w.Body.String())
	}
	return decode[account.Login](t, w).Token
}

func TestPing(t *testing.T) {
	s := setupServer(t)
	w := doJSON(t, s, http.MethodGet, "/ping", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ping code %v", w.Code)
	}
	if w.Header().Get(traceHeader) == "" {
		t.Error("Expected a trace id header")
	}
}

func TestRegisterValidation(t *testing.T) {
	s := setupServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email": "alice@example.com", "password": "x", "name": "Alice",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400 for short password, got %v", w.Code)
	}

	registerAndLogin(t, s, "alice@example.com")
	w = doJSON(t, s, http.MethodPost, "/api/v1/auth/register", "", map[string]any{
		"email": "alice@example.com", "password": "secret-pass", "name": "Alice",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("Expected 409 for duplicate user, got %v", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/api/v1/auth/login", "", map[string]any{
		"email": "alice@example.com", "password": "wrong-pass",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 for wrong password, got %v", w.Code)
	}
}

func TestCustomerChatFlow(t *testing.T) {
	s := setupServer(t)
	token := registerAndLogin(t, s, "alice@example.com")

	s.model.push(
		&llm.Response{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "place_order", Arguments: `{"medicine_name":"paracetamol","quantity":10}`}}},
		&llm.Response{Content: "Your order for 10 Paracetamol is placed."},
	)
	w := doJSON(t, s, http.MethodPost, "/api/v1/chat", token, map[string]any{"message": "order 10 paracetamol"})
	if w.Code != http.StatusOK {
		t.Fatalf("chat code %v: %s", w.Code, w.Body.String())
	}
	resp := decode[chatResponse](t, w)
	if resp.Answer != "Your order for 10 Paracetamol is placed." || len(resp.ToolsCalled) != 1 || resp.ToolsCalled[0] != "place_order" {
		t.Errorf("Unexpected chat response: %+v", resp)
	}

	m, err := s.store.GetMedicine(context.Background(), "paracetamol")
	if err != nil || m.Stock != 90 {
		t.Errorf("Expected stock 90, got %+v (%v)", m, err)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/orders", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("orders code %v", w.Code)
	}
	orders := decode[struct {
		Items []models.Order `json:"items"`
	}](t, w)
	if len(orders.Items) != 1 || orders.Items[0].Quantity != 10 {
		t.Errorf("Unexpected orders: %+v", orders.Items)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/chat/history", token, nil)
	history := decode[struct {
		Turns []models.ChatTurn `json:"turns"`
	}](t, w)
	if len(history.Turns) != 2 || len(history.Turns[1].Invocations) != 1 {
		t.Errorf("Unexpected history: %+v", history.Turns)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/orders?cursor=%25%25", token, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed cursor, got %v", w.Code)
	}

	w = doJSON(t, s, http.MethodPost, "/api/v1/auth/logout", token, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout code %v", w.Code)
	}
	w = doJSON(t, s, http.MethodPost, "/api/v1/chat", token, map[string]any{"message": "hello"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 after logout, got %v", w.Code)
	}
}

func TestChatModelFailure(t *testing.T) {
	s := setupServer(t)
	token := registerAndLogin(t, s, "alice@example.com")
	s.model.err = errors.New("upstream timeout")

	w := doJSON(t, s, http.MethodPost, "/api/v1/chat", token, map[string]any{"message": "hello"})
	if w.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %v", w.Code)
	}
	if body := decode[map[string]string](t, w); body["error"] != assistant.Apology {
		t.Errorf("Expected apology, got %q", body["error"])
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/chat/history", token, nil)
	history := decode[struct {
		Turns []models.ChatTurn `json:"turns"`
	}](t, w)
	if len(history.Turns) != 0 {
		t.Errorf("Expected failed turn not to be persisted, got %+v", history.Turns)
	}
}

func TestRoutesEnforceRoles(t *testing.T) {
	s := setupServer(t)
	userToken := registerAndLogin(t, s, "alice@example.com")
	adminToken := adminLogin(t, s)

	cases := []struct {
		name   string
		method string
		path   string
		token  string
		want   int
	}{
		{"chat without token", http.MethodPost, "/api/v1/chat", "", http.StatusUnauthorized},
		{"chat with garbage token", http.MethodPost, "/api/v1/chat", "garbage", http.StatusUnauthorized},
		{"customer chat as admin", http.MethodPost, "/api/v1/chat", adminToken, http.StatusForbidden},
		{"admin chat as customer", http.MethodPost, "/api/v1/admin/chat", userToken, http.StatusForbidden},
		{"admin status as customer", http.MethodGet, "/api/v1/admin/status", userToken, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, s, tc.method, tc.path, tc.token, map[string]any{"message": "hi"})
			if w.Code != tc.want {
				t.Errorf("Expected %v, got %v", tc.want, w.Code)
			}
		})
	}
}

func TestAdminChatAndStatus(t *testing.T) {
	s := setupServer(t)
	token := adminLogin(t, s)

	s.model.push(
		&llm.Response{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "add_stock", Arguments: `{"name":"Paracetamol","quantity":25}`}}},
		&llm.Response{Content: "Stock updated."},
	)
	w := doJSON(t, s, http.MethodPost, "/api/v1/admin/chat", token, map[string]any{"message": "add 25 paracetamol"})
	if w.Code != http.StatusOK {
		t.Fatalf("admin chat code %v: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/medicines/Paracetamol", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get medicine code %v", w.Code)
	}
	if m := decode[models.Medicine](t, w); m.Stock != 125 {
		t.Errorf("Expected stock 125, got %d", m.Stock)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/medicines/ibuprofen", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %v", w.Code)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/admin/status", token, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status code %v", w.Code)
	}
	status := decode[map[string]int64](t, w)
	if status["medicines"] != 1 || status["pending_orders"] != 0 {
		t.Errorf("Unexpected status: %+v", status)
	}

	w = doJSON(t, s, http.MethodGet, "/api/v1/medicines?page=1&page_size=10", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list medicines code %v", w.Code)
	}
}

type brokenStore struct {
	*memstore.Store
}

func (brokenStore) GetMedicine(context.Context, string) (*models.Medicine, error) {
	return nil, fmt.Errorf("get medicine: %w", errors.New(`pq: relation "medicines" does not exist`))
}

func TestUnmappedErrorsStayOpaque(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	s := memstore.New()

	srv := NewServer(Deps{
		Accounts: account.NewService(s, auth.NewTokens("test-secret", time.Hour), session.NewManager(time.Hour), 20, logger),
		Store:    brokenStore{s},
		Logger:   logger,
		GinMode:  gin.TestMode,
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/medicines/paracetamol", nil)
	req.Header.Set(traceHeader, "trace-500")
	w := httptest.NewRecorder()
	srv.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %v: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	if body["error"] != http.StatusText(http.StatusInternalServerError) {
		t.Errorf("Expected a generic error body, got %q", body["error"])
	}
	if strings.Contains(w.Body.String(), "pq:") {
		t.Errorf("Driver text in response: %s", w.Body.String())
	}
	if !strings.Contains(logs.String(), "trace-500") || !strings.Contains(logs.String(), `relation \"medicines\" does not exist`) {
		t.Errorf("Expected the error detail logged with the trace id, got %s", logs.String())
	}

	if got := errorMessage(fmt.Errorf("place order: %w", errors.New("lock timeout"))); got != "Internal Server Error" {
		t.Errorf("Unexpected message for unmapped error: %q", got)
	}
}
