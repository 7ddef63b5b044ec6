// Package tools holds the tool registry the assistant dispatches model tool
// calls through, plus the admin and customer catalogs.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/safar/axon-pharmacy/internal/llm"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Caller identifies who a turn runs for. Handlers read the caller from here,
// never from model arguments.
type Caller struct {
	Email string
	Role  string
}

// Result is what a handler reports back to the model.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func OK(message string, data any) Result {
	return Result{Success: true, Message: message, Data: data}
}

func Fail(message string) Result {
	return Result{Success: false, Message: message}
}

// Handler runs one tool. A returned error is reported to the model as an
// unexpected failure; expected failures are returned as a failed Result.
type Handler func(ctx context.Context, caller Caller, args json.RawMessage) (Result, error)

type Tool struct {
	Definition llm.ToolDefinition
	Handler    Handler
}

type Registry struct {
	tools  map[string]Tool
	order  []string
	logger *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]Tool),
		logger: logger.With(slog.String("component", "tools")),
	}
}

// Register adds a tool. Registering a name twice panics.
func (r *Registry) Register(t Tool) {
	name := t.Definition.Name
	if _, ok := r.tools[name]; ok {
		panic(fmt.Sprintf("tools: %s registered twice", name))
	}
	r.tools[name] = t
	r.order = append(r.order, name)
}

// Definitions returns the catalog in registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		defs = append(defs, r.tools[name].Definition)
	}
	return defs
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Invoke runs the named tool. It never fails: unknown tools, handler errors
// and panics all come back as a failed Result.
func (r *Registry) Invoke(ctx context.Context, caller Caller, name, arguments string) (res Result) {
	logger := r.logger.With(slog.String("tool", name), slog.String("caller", caller.Email))

	t, ok := r.tools[name]
	if !ok {
		logger.Warn("model requested unknown tool")
		return Fail("Unknown function: " + name)
	}

	defer func() {
		if p := recover(); p != nil {
			logger.Error("tool handler panicked", slog.Any("panic", p))
			res = Fail(fmt.Sprintf("Error executing %s: %v", name, p))
		}
	}()

	res, err := t.Handler(ctx, caller, json.RawMessage(arguments))
	if err != nil {
		logger.Error("tool handler failed", slog.String("error", err.Error()))
		return Fail(fmt.Sprintf("Error executing %s: %v", name, err))
	}

	logger.Info("tool executed", slog.Bool("success", res.Success))
	return res
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Typed decodes the arguments into T and validates them before calling fn.
// Decoding and validation problems become failed results.
func Typed[T any](fn func(ctx context.Context, caller Caller, args T) (Result, error)) Handler {
	return func(ctx context.Context, caller Caller, raw json.RawMessage) (Result, error) {
		var args T
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return Fail("Invalid arguments: " + err.Error()), nil
			}
		}
		if err := validate.Struct(args); err != nil {
			return Fail(validationMessage(err)), nil
		}
		return fn(ctx, caller, args)
	}
}

func validationMessage(err error) string {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return "Invalid arguments: " + err.Error()
	}

	parts := make([]string, 0, len(vErrs))
	for _, vErr := range vErrs {
		switch vErr.Tag() {
		case "required":
			parts = append(parts, vErr.Field()+" is required")
		case "oneof":
			parts = append(parts, vErr.Field()+" must be one of: "+vErr.Param())
		default:
			parts = append(parts, vErr.Field()+" is invalid")
		}
	}
	return "Invalid arguments: " + strings.Join(parts, ", ")
}
