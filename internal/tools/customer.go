package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/safar/axon-pharmacy/internal/database"
	"github.com/safar/axon-pharmacy/internal/llm"
	"github.com/safar/axon-pharmacy/internal/models"
	"github.com/safar/axon-pharmacy/internal/store"
	"github.com/sashabaranov/go-openai/jsonschema"
)

const noSymptoms = "No specific symptoms provided, giving general advice."

type customer struct {
	store store.Store
}

// RegisterCustomer adds the customer chat catalog to r. Every handler acts
// for the caller's email.
func RegisterCustomer(r *Registry, s store.Store) {
	c := &customer{store: s}

	r.Register(Tool{
		Definition: llm.ToolDefinition{
			Name:        "check_medicine_availability",
			Description: "Checks if a medicine is in stock and returns its price, description and category",
			Parameters: object(map[string]jsonschema.Definition{
				"medicine_name": str("Name of the medicine eg Paracetamol, Ibuprofen"),
			}, "medicine_name"),
		},
		Handler: Typed(c.checkAvailability),
	})
	r.Register(Tool{
		Definition: llm.ToolDefinition{
			Name:        "place_order",
			Description: "Places an order for a medicine on behalf of the signed-in customer",
			Parameters: object(map[string]jsonschema.Definition{
				"medicine_name": str("Name of the medicine to order"),
				"quantity":      integer("Number of units to order"),
			}, "medicine_name", "quantity"),
		},
		Handler: Typed(c.placeOrder),
	})
	r.Register(Tool{
		Definition: llm.ToolDefinition{
			Name:        "track_order",
			Description: "Returns the status and details of one of the customer's orders",
			Parameters: object(map[string]jsonschema.Definition{
				"order_id": str("The order ID returned when the order was placed"),
			}, "order_id"),
		},
		Handler: Typed(c.trackOrder),
	})
	r.Register(Tool{
		Definition: llm.ToolDefinition{
			Name:        "cancel_order",
			Description: "Cancels one of the customer's orders while it is pending or processing",
			Parameters: object(map[string]jsonschema.Definition{
				"order_id": str("The order ID to cancel"),
			}, "order_id"),
		},
		Handler: Typed(c.cancelOrder),
	})
	r.Register(Tool{
		Definition: llm.ToolDefinition{
			Name:        "get_health_advice",
			Description: "Collects the customer's profile and order history so general health advice can be given",
			Parameters: object(map[string]jsonschema.Definition{
				"symptoms": str("Symptoms described by the customer, if any"),
			}),
		},
		Handler: Typed(c.healthAdvice),
	})
	r.Register(Tool{
		Definition: llm.ToolDefinition{
			Name:        "get_order_history",
			Description: "Lists the customer's most recent orders, newest first",
			Parameters: object(map[string]jsonschema.Definition{
				"limit": integer("Maximum number of orders to return, default 10"),
			}),
		},
		Handler: Typed(c.orderHistory),
	})
}

type availabilityArgs struct {
	MedicineName string `json:"medicine_name" validate:"required"`
}

func (c *customer) checkAvailability(ctx context.Context, _ Caller, args availabilityArgs) (Result, error) {
	name := models.NormalizeMedicineName(args.MedicineName)

	m, err := c.store.GetMedicine(ctx, name)
	if err != nil {
		if errors.Is(err, database.ErrMedicineNotFound) {
			return Fail(fmt.Sprintf("Medicine '%s' not found", name)), nil
		}
		return Result{}, err
	}

	data := map[string]any{
		"name":        m.Name,
		"stock":       m.Stock,
		"unit_price":  m.UnitPrice,
		"description": m.Description,
		"category":    m.Category,
	}
	if m.Stock == 0 {
		return OK(fmt.Sprintf("%s is currently out of stock", m.Name), data), nil
	}
	return OK(fmt.Sprintf("%s is available: %d in stock at %s each", m.Name, m.Stock, m.UnitPrice.String()), data), nil
}

type placeOrderArgs struct {
	MedicineName string `json:"medicine_name" validate:"required"`
	Quantity     int    `json:"quantity"`
}

func (c *customer) placeOrder(ctx context.Context, caller Caller, args placeOrderArgs) (Result, error) {
	if args.Quantity <= 0 {
		return Fail("Quantity must be positive"), nil
	}

	o, err := c.store.PlaceOrder(ctx, store.PlaceOrderRequest{
		UserEmail:    caller.Email,
		MedicineName: args.MedicineName,
		Quantity:     args.Quantity,
	})
	if err != nil {
		var se *database.StockError
		switch {
		case errors.As(err, &se):
			return Fail(fmt.Sprintf("Not enough stock. Available: %d", se.Available)), nil
		case errors.Is(err, database.ErrMedicineNotFound):
			return Fail(fmt.Sprintf("Medicine '%s' not found", models.NormalizeMedicineName(args.MedicineName))), nil
		case errors.Is(err, database.ErrUserNotFound):
			return Fail("User data not found"), nil
		case errors.Is(err, database.ErrLockTimeout):
			return Fail("The pharmacy is busy with other orders, please try again."), nil
		}
		return Result{}, err
	}

	return OK("Order placed successfully! Order ID: "+o.ID, o), nil
}

type orderIDArgs struct {
	OrderID string `json:"order_id" validate:"required"`
}

func (c *customer) trackOrder(ctx context.Context, caller Caller, args orderIDArgs) (Result, error) {
	o, err := c.store.GetOrder(ctx, args.OrderID)
	if err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			return Fail("Order not found"), nil
		}
		return Result{}, err
	}
	if o.UserEmail != caller.Email {
		return Fail("This order doesn't belong to you"), nil
	}

	return OK(fmt.Sprintf("Order status for ID %s: **%s**", o.ID, strings.ToUpper(o.Status)), o), nil
}

func (c *customer) cancelOrder(ctx context.Context, caller Caller, args orderIDArgs) (Result, error) {
	o, err := c.store.CancelOrder(ctx, args.OrderID, caller.Email)
	if err != nil {
		var te *database.TransitionError
		switch {
		case errors.Is(err, database.ErrOrderNotFound):
			return Fail("Order not found"), nil
		case errors.Is(err, database.ErrOrderNotOwned):
			return Fail("This order doesn't belong to you"), nil
		case errors.As(err, &te):
			return Fail("Order cannot be cancelled. Current status: " + te.From), nil
		case errors.Is(err, database.ErrLockTimeout):
			return Fail("The pharmacy is busy with other orders, please try again."), nil
		}
		return Result{}, err
	}

	return OK(fmt.Sprintf("Order %s cancelled successfully.", o.ID), o), nil
}

type healthAdviceArgs struct {
	Symptoms string `json:"symptoms"`
}

type orderSummary struct {
	OrderID     string `json:"order_id"`
	Medicine    string `json:"medicine"`
	Description string `json:"description"`
}

func (c *customer) healthAdvice(ctx context.Context, caller Caller, args healthAdviceArgs) (Result, error) {
	u, err := c.store.GetUser(ctx, caller.Email)
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return Fail("User data not found"), nil
		}
		return Result{}, err
	}

	ids := make([]string, 0, len(u.Orders))
	for id := range u.Orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	history := make([]orderSummary, 0, len(ids))
	for _, id := range ids {
		summary := orderSummary{OrderID: id, Medicine: u.Orders[id], Description: "details unavailable"}
		if m, err := c.store.GetMedicine(ctx, u.Orders[id]); err == nil {
			summary.Medicine = m.Name
			summary.Description = m.Description
		}
		history = append(history, summary)
	}

	symptoms := strings.TrimSpace(args.Symptoms)
	if symptoms == "" {
		symptoms = noSymptoms
	}

	return OK("Context collected for health advice.", map[string]any{
		"user": map[string]any{
			"name":                  u.Name,
			"age":                   u.Age,
			"email":                 u.Email,
			"order_history_summary": history,
		},
		"symptoms": symptoms,
	}), nil
}

type orderHistoryArgs struct {
	Limit int `json:"limit"`
}

func (c *customer) orderHistory(ctx context.Context, caller Caller, args orderHistoryArgs) (Result, error) {
	limit := args.Limit
	if limit <= 0 {
		limit = 10
	}

	page, err := c.store.ListOrders(ctx, caller.Email, "", limit)
	if err != nil {
		return Result{}, err
	}
	if len(page.Items) == 0 {
		return OK("You have not placed any orders yet.", page.Items), nil
	}
	return OK(fmt.Sprintf("Found %d recent orders", len(page.Items)), page.Items), nil
}
