package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Medicine struct {
	Name        string          `json:"name"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Stock       int             `json:"stock"`
	MadeIn      string          `json:"madein"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Order struct {
	ID           string          `json:"order_id"`
	UserEmail    string          `json:"user_email"`
	MedicineName string          `json:"medicine_name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type User struct {
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Name         string `json:"name"`
	Age          int    `json:"age"`
	// Orders maps order id to medicine name.
	Orders    map[string]string `json:"orders"`
	CreatedAt time.Time         `json:"created_at"`
}

type Admin struct {
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	ChatRoleUser  = "user"
	ChatRoleModel = "model"
)

// ChatTurn is one persisted side of a conversation turn.
type ChatTurn struct {
	Role        string           `json:"role"`
	Content     string           `json:"content"`
	Invocations []ToolInvocation `json:"invocations,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
}

// ToolInvocation records a tool the model asked for and what it returned.
type ToolInvocation struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
}

// NormalizeMedicineName produces the storage key for a medicine name.
func NormalizeMedicineName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), " ", "_")
}
