package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/safar/axon-pharmacy/internal/database"
	"github.com/safar/axon-pharmacy/internal/llm"
	"github.com/safar/axon-pharmacy/internal/models"
	"github.com/safar/axon-pharmacy/internal/store"
	"github.com/safar/axon-pharmacy/internal/telegram"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/shopspring/decimal"
)

// Broadcaster delivers a message to every configured messaging target.
type Broadcaster interface {
	Broadcast(ctx context.Context, text string) []telegram.Delivery
}

type admin struct {
	medicines   store.Medicines
	orders      store.Orders
	broadcaster Broadcaster
}

// RegisterAdmin adds the back-office catalog to r.
func RegisterAdmin(r *Registry, s store.Store, b Broadcaster) {
	a := &admin{medicines: s, orders: s, broadcaster: b}

	r.Register(Tool{
		Definition: llm.ToolDefinition{
			Name:        "telegram_post",
			Description: "Posts a message to the pharmacy Telegram channel and group",
			Parameters: object(map[string]jsonschema.Definition{
				"message": str("Formatted message content with Telegram-supported HTML"),
			}, "message"),
		},
		Handler: Typed(a.telegramPost),
	})
	r.Register(Tool{
		Definition: llm.ToolDefinition{
			Name:        "add_medicine",
			Description: "Adds a new medicine to the pharmacy",
			Parameters: object(map[string]jsonschema.Definition{
				"name":        str("Name of the medicine eg Paracetamol, Ibuprofen, Aspirin"),
				"unit_price":  num("Unit price of the medicine eg 12.5, 10.0, 5.0"),
				"stock":       integer("Quantity of the medicine eg 100, 200, 300"),
				"madein":      str("Country of origin eg Ethiopia, Kenya, Tanzania"),
				"category":    str("Category of the medicine eg antibiotics, vitamins, painkillers"),
				"description": str("Description of the medicine"),
			}, "name", "unit_price", "stock", "madein", "category", "description"),
		},
		Handler: Typed(a.addMedicine),
	})
	r.Register(Tool{
		Definition: llm.ToolDefinition{
			Name:        "stock_out",
			Description: "Marks a medicine as out of stock by setting its stock to zero",
			Parameters: object(map[string]jsonschema.Definition{
				"name": str("Name of the medicine eg Paracetamol, Ibuprofen, Aspirin"),
			}, "name"),
		},
		Handler: Typed(a.stockOut),
	})
	r.Register(Tool{
		Definition: llm.ToolDefinition{
			Name:        "add_stock",
			Description: "Increases the stock of an existing medicine",
			Parameters: object(map[string]jsonschema.Definition{
				"name":     str("Name of the medicine eg Paracetamol, Ibuprofen, Aspirin"),
				"quantity": integer("Number of units to add eg 50, 100"),
			}, "name", "quantity"),
		},
		Handler: Typed(a.addStock),
	})
	r.Register(Tool{
		Definition: llm.ToolDefinition{
			Name:        "delete_medicine",
			Description: "Deletes a medicine from the pharmacy, eg when it is withdrawn as unsafe",
			Parameters: object(map[string]jsonschema.Definition{
				"name": str("Name of the medicine eg Paracetamol, Ibuprofen, Aspirin"),
			}, "name"),
		},
		Handler: Typed(a.deleteMedicine),
	})

	statusDef := str("The new status of the order")
	statusDef.Enum = models.OrderStatuses
	r.Register(Tool{
		Definition: llm.ToolDefinition{
			Name:        "update_order_status",
			Description: "Updates the status of a specific order",
			Parameters: object(map[string]jsonschema.Definition{
				"order_id": str("The ID of the order to update"),
				"status":   statusDef,
			}, "order_id", "status"),
		},
		Handler: Typed(a.updateOrderStatus),
	})
}

type telegramPostArgs struct {
	Message string `json:"message" validate:"required"`
}

func (a *admin) telegramPost(ctx context.Context, _ Caller, args telegramPostArgs) (Result, error) {
	if a.broadcaster == nil {
		return Fail("Telegram is not configured"), nil
	}

	deliveries := a.broadcaster.Broadcast(ctx, args.Message)
	if len(deliveries) == 0 {
		return Fail("No Telegram targets configured"), nil
	}

	results := make(map[string]telegram.Delivery, len(deliveries))
	delivered := 0
	for _, d := range deliveries {
		results[d.Target] = d
		if d.OK {
			delivered++
		}
	}

	msg := fmt.Sprintf("Message posted to %d of %d Telegram targets", delivered, len(deliveries))
	if delivered == 0 {
		return Result{Success: false, Message: msg, Data: results}, nil
	}
	return OK(msg, results), nil
}

type addMedicineArgs struct {
	Name        string          `json:"name" validate:"required"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Stock       int             `json:"stock"`
	MadeIn      string          `json:"madein"`
	Category    string          `json:"category"`
	Description string          `json:"description"`
}

func (a *admin) addMedicine(ctx context.Context, _ Caller, args addMedicineArgs) (Result, error) {
	args.Name = strings.TrimSpace(args.Name)
	if models.NormalizeMedicineName(args.Name) == "" {
		return Fail("Medicine name must not be empty"), nil
	}
	if args.UnitPrice.IsNegative() {
		return Fail("Unit price must not be negative"), nil
	}
	if args.Stock < 0 {
		return Fail("Stock must not be negative"), nil
	}
	if args.Category == "" {
		args.Category = "General"
	}

	m, err := a.medicines.CreateMedicine(ctx, &models.Medicine{
		Name:        args.Name,
		UnitPrice:   args.UnitPrice.Round(2),
		Stock:       args.Stock,
		MadeIn:      args.MadeIn,
		Category:    args.Category,
		Description: args.Description,
	})
	if err != nil {
		if errors.Is(err, database.ErrMedicineExists) {
			return Fail(fmt.Sprintf("The %s medicine already exists. instead you can update its stock.", args.Name)), nil
		}
		return Result{}, err
	}

	return OK(fmt.Sprintf(
		"The %s medicine recorded successfully with the following details: Name: %s, Unit Price: %s, Stock: %d, Madein: %s, Category: %s, Description: %s",
		args.Name, m.Name, m.UnitPrice.String(), m.Stock, m.MadeIn, m.Category, m.Description,
	), m), nil
}

type medicineNameArgs struct {
	Name string `json:"name" validate:"required"`
}

func (a *admin) stockOut(ctx context.Context, _ Caller, args medicineNameArgs) (Result, error) {
	m, err := a.medicines.SetStock(ctx, args.Name, 0)
	if err != nil {
		if errors.Is(err, database.ErrMedicineNotFound) {
			return Fail("Medicine not found"), nil
		}
		return Result{}, err
	}
	return OK(fmt.Sprintf("%s medicine is now out of stock", args.Name), m), nil
}

type addStockArgs struct {
	Name     string `json:"name" validate:"required"`
	Quantity int    `json:"quantity"`
}

func (a *admin) addStock(ctx context.Context, _ Caller, args addStockArgs) (Result, error) {
	if args.Quantity <= 0 {
		return Fail("Quantity must be positive"), nil
	}

	m, err := a.medicines.AddStock(ctx, args.Name, args.Quantity)
	if err != nil {
		if errors.Is(err, database.ErrMedicineNotFound) {
			return Fail("Medicine is not found, please add the medicine first."), nil
		}
		return Result{}, err
	}
	return OK(fmt.Sprintf("%s medicine stock has been updated, increased by %d", args.Name, args.Quantity), m), nil
}

func (a *admin) deleteMedicine(ctx context.Context, _ Caller, args medicineNameArgs) (Result, error) {
	if err := a.medicines.DeleteMedicine(ctx, args.Name); err != nil {
		if errors.Is(err, database.ErrMedicineNotFound) {
			return Fail("Medicine not found"), nil
		}
		return Result{}, err
	}
	return OK(fmt.Sprintf("%s medicine has been deleted", args.Name), nil), nil
}

type updateOrderStatusArgs struct {
	OrderID string `json:"order_id" validate:"required"`
	Status  string `json:"status" validate:"required"`
}

func (a *admin) updateOrderStatus(ctx context.Context, _ Caller, args updateOrderStatusArgs) (Result, error) {
	status := strings.ToLower(strings.TrimSpace(args.Status))

	o, err := a.orders.UpdateOrderStatus(ctx, args.OrderID, status)
	if err != nil {
		var te *database.TransitionError
		switch {
		case errors.Is(err, database.ErrInvalidStatus):
			return Fail(fmt.Sprintf("Invalid status: %s. Valid statuses: %s", args.Status, strings.Join(models.OrderStatuses, ", "))), nil
		case errors.Is(err, database.ErrOrderNotFound):
			return Fail("Order not found"), nil
		case errors.As(err, &te):
			return Fail(fmt.Sprintf("Order cannot be changed from %s to %s", te.From, te.To)), nil
		}
		return Result{}, err
	}
	return OK(fmt.Sprintf("Order %s status updated to %s.", o.ID, o.Status), o), nil
}
