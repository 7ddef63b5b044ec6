package account

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/safar/axon-pharmacy/internal/assistant"
	"github.com/safar/axon-pharmacy/internal/auth"
	"github.com/safar/axon-pharmacy/internal/database"
	"github.com/safar/axon-pharmacy/internal/models"
	"github.com/safar/axon-pharmacy/internal/session"
	"github.com/safar/axon-pharmacy/internal/store/memstore"
)

func newService(t *testing.T) (*Service, *memstore.Store, *session.Manager) {
	t.Helper()
	s := memstore.New()
	sessions := session.NewManager(time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(s, auth.NewTokens("test-secret", time.Hour), sessions, 20, logger), s, sessions
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _, sessions := newService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, RegisterRequest{Email: " Alice@Example.com ", Password: "paracetamol", Name: "Alice", Age: 31})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.Email != "alice@example.com" || u.PasswordHash == "paracetamol" {
		t.Errorf("Unexpected user: %+v", u)
	}

	if _, err := svc.Register(ctx, RegisterRequest{Email: "alice@example.com", Password: "another1", Name: "A"}); !errors.Is(err, database.ErrUserExists) {
		t.Errorf("Expected ErrUserExists, got %v", err)
	}

	var vErrs validator.ValidationErrors
	if _, err := svc.Register(ctx, RegisterRequest{Email: "not-an-email", Password: "x", Name: ""}); !errors.As(err, &vErrs) {
		t.Errorf("Expected validation errors, got %v", err)
	}

	if _, err := svc.Login(ctx, LoginRequest{Email: "alice@example.com", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{Email: "nobody@example.com", Password: "whatever"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	login, err := svc.Login(ctx, LoginRequest{Email: "ALICE@example.com", Password: "paracetamol"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if login.Role != auth.RoleUser || sessions.Len() != 1 {
		t.Errorf("Unexpected login: %+v", login)
	}

	sess, err := svc.Authenticate(login.Token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if sess.Email != "alice@example.com" {
		t.Errorf("Unexpected session: %+v", sess)
	}

	svc.Logout(sess)
	if _, err := svc.Authenticate(login.Token); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("Expected token to be dead after logout, got %v", err)
	}
}

func TestLoginRestoresHistory(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, RegisterRequest{Email: "bob@example.com", Password: "ibuprofen", Name: "Bob", Age: 40}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	first, err := svc.Login(ctx, LoginRequest{Email: "bob@example.com", Password: "ibuprofen"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	sess, _ := svc.Authenticate(first.Token)

	turn := &assistant.Turn{Utterance: "do you have aspirin?", Answer: "Yes, 40 in stock.", At: time.Now()}
	if err := svc.SaveTurn(ctx, sess, turn); err != nil {
		t.Fatalf("SaveTurn: %v", err)
	}
	svc.Logout(sess)

	second, err := svc.Login(ctx, LoginRequest{Email: "bob@example.com", Password: "ibuprofen"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if second.HistoryRestored != 2 {
		t.Errorf("Expected 2 restored turns, got %d", second.HistoryRestored)
	}

	sess, _ = svc.Authenticate(second.Token)
	transcript := sess.Transcript()
	if len(transcript) != 2 || transcript[1].Content != "Yes, 40 in stock." {
		t.Errorf("Unexpected restored transcript: %+v", transcript)
	}

	history, err := svc.ChatHistory(ctx, "bob@example.com", 0)
	if err != nil || len(history) != 2 || history[0].Role != models.ChatRoleUser {
		t.Errorf("Unexpected history: %+v (%v)", history, err)
	}
}

func TestAdminBootstrapAndLogin(t *testing.T) {
	svc, s, _ := newService(t)
	ctx := context.Background()

	if err := svc.EnsureAdmin(ctx, "admin@axon.example", "root-pass"); err != nil {
		t.Fatalf("EnsureAdmin: %v", err)
	}
	if err := svc.EnsureAdmin(ctx, "admin@axon.example", "root-pass"); err != nil {
		t.Fatalf("EnsureAdmin twice: %v", err)
	}
	if err := svc.EnsureAdmin(ctx, "", ""); err != nil {
		t.Fatalf("EnsureAdmin without credentials: %v", err)
	}

	if _, err := s.GetUser(ctx, "admin@axon.example"); !errors.Is(err, database.ErrUserNotFound) {
		t.Errorf("Admins must not be users, got %v", err)
	}
	if _, err := svc.Login(ctx, LoginRequest{Email: "admin@axon.example", Password: "root-pass"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Expected admin to be rejected by the customer login, got %v", err)
	}

	login, err := svc.AdminLogin(ctx, LoginRequest{Email: "admin@axon.example", Password: "root-pass"})
	if err != nil {
		t.Fatalf("AdminLogin: %v", err)
	}
	sess, err := svc.Authenticate(login.Token)
	if err != nil || sess.Role != auth.RoleAdmin {
		t.Fatalf("Unexpected admin session: %+v (%v)", sess, err)
	}

	turn := &assistant.Turn{Utterance: "add paracetamol", Answer: "done", At: time.Now()}
	if err := svc.SaveTurn(ctx, sess, turn); err != nil {
		t.Errorf("Expected admin turns to be skipped, got %v", err)
	}
}
