// Package account registers customers and opens and closes the chat
// sessions of customers and admins.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/safar/axon-pharmacy/internal/assistant"
	"github.com/safar/axon-pharmacy/internal/auth"
	"github.com/safar/axon-pharmacy/internal/database"
	"github.com/safar/axon-pharmacy/internal/models"
	"github.com/safar/axon-pharmacy/internal/session"
	"github.com/safar/axon-pharmacy/internal/store"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrForbidden          = errors.New("session role not allowed")
)

// Accounts is the slice of the store the account service needs.
type Accounts interface {
	store.Users
	store.Admins
	store.ChatHistory
}

type Service struct {
	accounts     Accounts
	tokens       *auth.Tokens
	sessions     *session.Manager
	historyLimit int
	validate     *validator.Validate
	logger       *slog.Logger
}

func NewService(accounts Accounts, tokens *auth.Tokens, sessions *session.Manager, historyLimit int, logger *slog.Logger) *Service {
	return &Service{
		accounts:     accounts,
		tokens:       tokens,
		sessions:     sessions,
		historyLimit: historyLimit,
		validate:     validator.New(),
		logger:       logger.With(slog.String("component", "account")),
	}
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name" validate:"required"`
	Age      int    `json:"age" validate:"gte=0,lte=150"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Login is what a successful sign-in hands back to the client.
type Login struct {
	Token           string    `json:"token"`
	Email           string    `json:"email"`
	Role            string    `json:"role"`
	ExpiresAt       time.Time `json:"expires_at"`
	HistoryRestored int       `json:"history_restored"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	req.Email = normalizeEmail(req.Email)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	u, err := s.accounts.CreateUser(ctx, &models.User{
		Email:        req.Email,
		PasswordHash: hash,
		Name:         req.Name,
		Age:          req.Age,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user registered", slog.String("email", u.Email))
	return u, nil
}

// Login verifies a customer and opens a session whose transcript is restored
// from the persisted chat log.
func (s *Service) Login(ctx context.Context, req LoginRequest) (*Login, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	u, err := s.accounts.GetUser(ctx, req.Email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	history, err := s.accounts.ChatHistory(ctx, u.Email, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("restore chat history: %w", err)
	}

	return s.open(u.Email, auth.RoleUser, history)
}

func (s *Service) AdminLogin(ctx context.Context, req LoginRequest) (*Login, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validate.Struct(req); err != nil {
		return nil, err
	}

	a, err := s.accounts.GetAdmin(ctx, req.Email)
	if err != nil {
		if errors.Is(err, database.ErrAdminNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.CheckPassword(a.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	return s.open(a.Email, auth.RoleAdmin, nil)
}

func (s *Service) open(email, role string, history []models.ChatTurn) (*Login, error) {
	token, id, err := s.tokens.Issue(email, role)
	if err != nil {
		return nil, err
	}

	sess := s.sessions.Begin(id, email, role, assistant.TranscriptFromHistory(history))
	s.logger.Info("session started",
		slog.String("email", email),
		slog.String("role", role),
		slog.Int("history_restored", len(history)),
	)

	return &Login{
		Token:           token,
		Email:           email,
		Role:            role,
		ExpiresAt:       sess.ExpiresAt,
		HistoryRestored: len(history),
	}, nil
}

// Authenticate resolves a bearer token to its live session.
func (s *Service) Authenticate(token string) (*session.Session, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	sess, err := s.sessions.Resolve(claims.ID)
	if err != nil {
		return nil, err
	}
	if sess.Email != claims.Subject || sess.Role != claims.Role {
		return nil, ErrForbidden
	}
	return sess, nil
}

func (s *Service) Logout(sess *session.Session) {
	if s.sessions.End(sess.ID) {
		s.logger.Info("session ended", slog.String("email", sess.Email), slog.String("role", sess.Role))
	}
}

// SaveTurn appends a customer turn to the persisted chat log. Admin turns
// are not persisted.
func (s *Service) SaveTurn(ctx context.Context, sess *session.Session, turn *assistant.Turn) error {
	if sess.Role != auth.RoleUser {
		return nil
	}
	return s.accounts.AppendChatTurns(ctx, sess.Email, turn.ChatTurns())
}

func (s *Service) ChatHistory(ctx context.Context, email string, limit int) ([]models.ChatTurn, error) {
	if limit <= 0 || limit > s.historyLimit*5 {
		limit = s.historyLimit
	}
	return s.accounts.ChatHistory(ctx, email, limit)
}

// EnsureAdmin creates the bootstrap admin when it does not exist yet.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}

	if _, err := s.accounts.GetAdmin(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, database.ErrAdminNotFound) {
		return err
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if _, err := s.accounts.CreateAdmin(ctx, &models.Admin{Email: email, PasswordHash: hash}); err != nil && !errors.Is(err, database.ErrAdminExists) {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}

	s.logger.Info("bootstrap admin ensured", slog.String("email", email))
	return nil
}
