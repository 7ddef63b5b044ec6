package chatclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/safar/axon-pharmacy/internal/account"
	"github.com/safar/axon-pharmacy/internal/assistant"
	"github.com/safar/axon-pharmacy/internal/auth"
	httpapi "github.com/safar/axon-pharmacy/internal/http"
	"github.com/safar/axon-pharmacy/internal/llm"
	"github.com/safar/axon-pharmacy/internal/session"
	"github.com/safar/axon-pharmacy/internal/store/memstore"
	"github.com/safar/axon-pharmacy/internal/telegram"
	"github.com/safar/axon-pharmacy/internal/tools"
)

type echoModel struct{}

func (echoModel) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	last := req.Messages[len(req.Messages)-1]
	return &llm.Response{Content: "echo: " + last.Content}, nil
}

type silentBroadcaster struct{}

func (silentBroadcaster) Broadcast(context.Context, string) []telegram.Delivery { return nil }

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := memstore.New()

	accounts := account.NewService(s, auth.NewTokens("test-secret", time.Hour), session.NewManager(time.Hour), 20, logger)
	if err := accounts.EnsureAdmin(ctx, "admin@axon.example", "root-pass"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}

	customer := tools.NewRegistry(logger)
	tools.RegisterCustomer(customer, s)
	admin := tools.NewRegistry(logger)
	tools.RegisterAdmin(admin, s, silentBroadcaster{})

	srv := httpapi.NewServer(httpapi.Deps{
		Accounts: accounts,
		Store:    s,
		Customer: assistant.NewExecutor(echoModel{}, customer, "", logger),
		Admin:    assistant.NewExecutor(echoModel{}, admin, "", logger),
		Logger:   logger,
		GinMode:  gin.TestMode,
	})
	ts := httptest.NewServer(srv.Engine())
	t.Cleanup(ts.Close)
	return ts
}

func TestCustomerSession(t *testing.T) {
	ts := newAPI(t)
	ctx := context.Background()
	c := New(ts.URL, 5*time.Second)

	if err := c.Register(ctx, "alice@example.com", "secret-pass", "Alice", 31); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := c.Login(ctx, "alice@example.com", "secret-pass", false); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if c.IsAdmin() {
		t.Error("Expected a customer session")
	}

	reply, err := c.Chat(ctx, "hello")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if reply.Answer != "echo: hello" {
		t.Errorf("Unexpected reply: %+v", reply)
	}

	turns, err := c.History(ctx, 10)
	if err != nil || len(turns) != 2 {
		t.Fatalf("Expected 2 turns, got %+v (%v)", turns, err)
	}

	if _, err := c.Status(ctx); err == nil {
		t.Error("Expected customers to be refused the admin status")
	}

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := c.Login(ctx, "alice@example.com", "secret-pass", false); err != nil {
		t.Fatalf("Login again: %v", err)
	}
	if got := c.Session().HistoryRestored; got != 2 {
		t.Errorf("Expected 2 restored turns, got %d", got)
	}
}

func TestAdminSession(t *testing.T) {
	ts := newAPI(t)
	ctx := context.Background()
	c := New(ts.URL, 5*time.Second)

	_, err := c.Login(ctx, "admin@axon.example", "wrong", true)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("Expected 401 APIError, got %v", err)
	}

	if _, err := c.Login(ctx, "admin@axon.example", "root-pass", true); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !c.IsAdmin() {
		t.Fatal("Expected an admin session")
	}

	if _, err := c.Chat(ctx, "how many medicines?"); err != nil {
		t.Fatalf("Chat: %v", err)
	}
	status, err := c.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Medicines != 0 || status.PendingOrders != 0 {
		t.Errorf("Unexpected status: %+v", status)
	}
}
