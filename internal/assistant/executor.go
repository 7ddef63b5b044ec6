// Package assistant runs chat turns in which the model may call tools.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/safar/axon-pharmacy/internal/llm"
	"github.com/safar/axon-pharmacy/internal/models"
	"github.com/safar/axon-pharmacy/internal/tools"
)

// ErrNoResponse is returned when a model call fails. The turn's answer is
// then the Apology and the transcript is left unchanged.
var ErrNoResponse = errors.New("no response from model")

type Executor struct {
	client       llm.Client
	registry     *tools.Registry
	systemPrompt string
	logger       *slog.Logger
	now          func() time.Time
}

func NewExecutor(client llm.Client, registry *tools.Registry, systemPrompt string, logger *slog.Logger) *Executor {
	return &Executor{
		client:       client,
		registry:     registry,
		systemPrompt: systemPrompt,
		logger:       logger.With(slog.String("component", "assistant")),
		now:          time.Now,
	}
}

// Turn is the outcome of one utterance.
type Turn struct {
	Utterance   string
	Answer      string
	ToolsCalled []string
	Invocations []models.ToolInvocation
	// Transcript is the conversation after this turn, without the system prompt.
	Transcript []llm.Message
	At         time.Time
}

// Run sends the transcript and utterance to the model, executes any tool
// calls it asks for in order, and asks the model once more for the final
// answer. Handlers act for caller; identity is never read from model
// arguments.
func (e *Executor) Run(ctx context.Context, caller tools.Caller, transcript []llm.Message, utterance string) (*Turn, error) {
	turn := &Turn{Utterance: utterance, Transcript: transcript, At: e.now()}
	logger := e.logger.With(slog.String("caller", caller.Email), slog.String("role", caller.Role))

	msgs := make([]llm.Message, 0, len(transcript)+4)
	if e.systemPrompt != "" {
		msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: e.systemPrompt})
	}
	msgs = append(msgs, transcript...)
	turnStart := len(msgs)
	msgs = append(msgs, llm.Message{Role: llm.RoleUser, Content: utterance})
	defs := e.registry.Definitions()

	resp, err := e.client.Complete(ctx, llm.Request{Messages: msgs, Tools: defs, ToolChoice: llm.ToolChoiceAuto})
	if err != nil {
		logger.Error("model call failed", slog.String("error", err.Error()))
		turn.Answer = Apology
		return turn, fmt.Errorf("%w: %w", ErrNoResponse, err)
	}

	if len(resp.ToolCalls) > 0 {
		calls := make([]llm.ToolCall, len(resp.ToolCalls))
		for i, tc := range resp.ToolCalls {
			if tc.ID == "" {
				tc.ID = fmt.Sprintf("call_%d", i+1)
			}
			calls[i] = tc
		}
		msgs = append(msgs, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: calls})

		for _, tc := range calls {
			res := e.registry.Invoke(ctx, caller, tc.Name, tc.Arguments)

			payload, err := json.Marshal(res)
			if err != nil {
				payload, _ = json.Marshal(tools.Fail(fmt.Sprintf("Error executing %s: %v", tc.Name, err)))
			}
			msgs = append(msgs, llm.Message{Role: llm.RoleTool, Content: string(payload), ToolCallID: tc.ID, Name: tc.Name})

			turn.ToolsCalled = append(turn.ToolsCalled, tc.Name)
			turn.Invocations = append(turn.Invocations, models.ToolInvocation{
				Name:      tc.Name,
				Arguments: tc.Arguments,
				Success:   res.Success,
				Message:   res.Message,
			})
		}

		logger.Info("tools executed", slog.String("tools", strings.Join(turn.ToolsCalled, ",")))

		resp, err = e.client.Complete(ctx, llm.Request{Messages: msgs, Tools: defs, ToolChoice: llm.ToolChoiceNone})
		if err != nil {
			logger.Error("model call after tools failed", slog.String("error", err.Error()))
			turn.Answer = Apology
			return turn, fmt.Errorf("%w: %w", ErrNoResponse, err)
		}
	}

	turn.Answer = strings.TrimSpace(resp.Content)
	if turn.Answer == "" {
		logger.Warn("model returned an empty answer")
		turn.Answer = Apology
	}

	next := make([]llm.Message, 0, len(msgs))
	next = append(next, transcript...)
	next = append(next, msgs[turnStart:]...)
	next = append(next, llm.Message{Role: llm.RoleAssistant, Content: turn.Answer})
	turn.Transcript = next

	return turn, nil
}

// ChatTurns converts the turn into the two persisted chat-log entries.
func (t *Turn) ChatTurns() []models.ChatTurn {
	return []models.ChatTurn{
		{Role: models.ChatRoleUser, Content: t.Utterance, CreatedAt: t.At},
		{Role: models.ChatRoleModel, Content: t.Answer, Invocations: t.Invocations, CreatedAt: t.At},
	}
}

// TranscriptFromHistory rebuilds a model transcript from a persisted chat
// log. Tool exchanges are not replayed, only what was said.
func TranscriptFromHistory(turns []models.ChatTurn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case models.ChatRoleUser:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: t.Content})
		case models.ChatRoleModel:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: t.Content})
		}
	}
	return out
}
