// Package chatclient talks to the pharmacy HTTP API on behalf of the
// terminal chat client.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

type Login struct {
	Token           string    `json:"token"`
	Email           string    `json:"email"`
	Role            string    `json:"role"`
	ExpiresAt       time.Time `json:"expires_at"`
	HistoryRestored int       `json:"history_restored"`
}

type Reply struct {
	Answer      string   `json:"answer"`
	ToolsCalled []string `json:"tools_called"`
}

type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Status struct {
	Medicines     int64 `json:"medicines"`
	PendingOrders int64 `json:"pending_orders"`
}

type Client struct {
	baseURL string
	http    *http.Client
	login   *Login
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/api/v1",
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Session() *Login { return c.login }

func (c *Client) IsAdmin() bool { return c.login != nil && c.login.Role == "admin" }

func (c *Client) Register(ctx context.Context, email, password, name string, age int) error {
	body := map[string]any{"email": email, "password": password, "name": name, "age": age}
	return c.do(ctx, http.MethodPost, "/auth/register", body, nil)
}

// Login signs in as a customer, or as an admin when admin is set.
func (c *Client) Login(ctx context.Context, email, password string, admin bool) (*Login, error) {
	path := "/auth/login"
	if admin {
		path = "/admin/login"
	}

	var login Login
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"email": email, "password": password}, &login); err != nil {
		return nil, err
	}
	c.login = &login
	return &login, nil
}

func (c *Client) Logout(ctx context.Context) error {
	if c.login == nil {
		return nil
	}
	err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
	c.login = nil
	return err
}

// Chat sends one utterance to the assistant matching the signed-in role.
func (c *Client) Chat(ctx context.Context, message string) (*Reply, error) {
	path := "/chat"
	if c.IsAdmin() {
		path = "/admin/chat"
	}

	var reply Reply
	if err := c.do(ctx, http.MethodPost, path, map[string]string{"message": message}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) History(ctx context.Context, limit int) ([]Turn, error) {
	var out struct {
		Turns []Turn `json:"turns"`
	}
	if err := c.do(ctx, http.MethodGet, "/chat/history?limit="+strconv.Itoa(limit), nil, &out); err != nil {
		return nil, err
	}
	return out.Turns, nil
}

func (c *Client) Status(ctx context.Context) (*Status, error) {
	var status Status
	if err := c.do(ctx, http.MethodGet, "/admin/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.login != nil {
		req.Header.Set("Authorization", "Bearer "+c.login.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Error}
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
