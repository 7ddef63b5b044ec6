// Package telegram posts messages through the Telegram bot API.
package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/safar/axon-pharmacy/internal/config"
)

// Delivery is the outcome of posting to one target.
type Delivery struct {
	Target string `json:"target"`
	OK     bool   `json:"ok"`
	Text   string `json:"text,omitempty"`
	Error  string `json:"error,omitempty"`
}

type Client struct {
	httpClient *http.Client
	apiBase    string
	token      string
	targets    []string
	logger     *slog.Logger
}

func NewClient(cfg *config.TelegramConfig, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		apiBase:    strings.TrimRight(cfg.APIBase, "/"),
		token:      cfg.BotToken,
		targets:    cfg.Targets,
		logger:     logger.With(slog.String("component", "telegram")),
	}
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	Result      struct {
		Text string `json:"text"`
	} `json:"result"`
}

// SendMessage posts an HTML message to a single chat and returns the text
// Telegram echoed back.
func (c *Client) SendMessage(ctx context.Context, chatID, text string) (string, error) {
	if c.token == "" {
		return "", errors.New("telegram bot token not configured")
	}

	form := url.Values{}
	form.Set("chat_id", chatID)
	form.Set("text", text)
	form.Set("parse_mode", "HTML")

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", c.apiBase, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", c.redact(fmt.Errorf("build telegram request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// *url.Error carries the endpoint, and the endpoint carries the token.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return "", c.redact(fmt.Errorf("telegram request failed: %w", err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read telegram response: %w", err)
	}

	var out sendMessageResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", fmt.Errorf("decode telegram response (status %d): %w", resp.StatusCode, err)
	}
	if !out.OK {
		return "", fmt.Errorf("telegram rejected message: %s", out.Description)
	}
	return out.Result.Text, nil
}

type redactedError struct {
	msg   string
	cause error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.cause }

// redact strips the bot token from err's text.
func (c *Client) redact(err error) error {
	if err == nil || c.token == "" || !strings.Contains(err.Error(), c.token) {
		return err
	}
	return &redactedError{msg: strings.ReplaceAll(err.Error(), c.token, "<redacted>"), cause: err}
}

// Broadcast posts the message to every configured target. One failing target
// does not stop the others.
func (c *Client) Broadcast(ctx context.Context, text string) []Delivery {
	deliveries := make([]Delivery, 0, len(c.targets))
	for _, target := range c.targets {
		echoed, err := c.SendMessage(ctx, target, text)
		if err != nil {
			c.logger.Warn("telegram delivery failed",
				slog.String("target", target),
				slog.String("error", err.Error()),
			)
			deliveries = append(deliveries, Delivery{Target: target, Error: err.Error()})
			continue
		}
		deliveries = append(deliveries, Delivery{Target: target, OK: true, Text: echoed})
	}
	return deliveries
}
