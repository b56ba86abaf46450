// Package api implements the request/response side of the CAI backend:
// synchronous calls for session CRUD, message sends, and initial data
// loads. Pushed events are the bridge package's job.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/caiframework/cai-console/internal/models"
)

// Client calls the backend REST API. It performs no retries; a failed
// call surfaces an *Error to the initiating caller.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for the given http(s):// base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 150 * time.Second},
	}
}

// CreateSessionRequest is the payload for CreateSession.
type CreateSessionRequest struct {
	Name      string                 `json:"name"`
	AgentType string                 `json:"agent_type"`
	Model     string                 `json:"model"`
	Config    map[string]interface{} `json:"config,omitempty"`
}

// SendMessageResponse pairs the canonical user message with the
// assistant's reply.
type SendMessageResponse struct {
	Message  models.Message `json:"message"`
	Response models.Message `json:"response"`
}

// MessagesResponse wraps a session's full message history.
type MessagesResponse struct {
	Messages []models.Message `json:"messages"`
}

// ModelsResponse lists available models and the backend's current one.
type ModelsResponse struct {
	Models  []models.ModelInfo `json:"models"`
	Current string             `json:"current"`
}

// HealthResponse reports backend liveness.
type HealthResponse struct {
	Status         string `json:"status"`
	ActiveSessions int    `json:"active_sessions"`
	ActiveTasks    int    `json:"active_tasks"`
}

// CreateSession creates a new session.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*models.Session, error) {
	var session models.Session
	if err := c.do(ctx, http.MethodPost, "/sessions", req, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// GetSessions lists all sessions.
func (c *Client) GetSessions(ctx context.Context) ([]models.Session, error) {
	var sessions []models.Session
	if err := c.do(ctx, http.MethodGet, "/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession fetches one session by id.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	if err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID, nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession deletes a session.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/sessions/"+sessionID, nil, nil)
}

// SendMessage sends a user message and blocks until the agent replies.
// The response carries the canonical user message plus the assistant
// message the reconciler appends after it.
func (c *Client) SendMessage(ctx context.Context, sessionID, content string) (*SendMessageResponse, error) {
	body := map[string]string{"content": content}
	var resp SendMessageResponse
	if err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/messages", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetSessionMessages fetches a session's full message history.
func (c *Client) GetSessionMessages(ctx context.Context, sessionID string) ([]models.Message, error) {
	var resp MessagesResponse
	if err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID+"/messages", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// GetSessionTasks fetches a session's tasks. The backend filters to
// tasks that actually used tools.
func (c *Client) GetSessionTasks(ctx context.Context, sessionID string) ([]models.Task, error) {
	var tasks []models.Task
	if err := c.do(ctx, http.MethodGet, "/sessions/"+sessionID+"/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// GetTask fetches one task by id.
func (c *Client) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	var task models.Task
	if err := c.do(ctx, http.MethodGet, "/tasks/"+taskID, nil, &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// CancelTask cancels a running task.
func (c *Client) CancelTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/tasks/"+taskID+"/cancel", nil, nil)
}

// GetAgents lists the agent types the backend can run.
func (c *Client) GetAgents(ctx context.Context) ([]models.Agent, error) {
	var agents []models.Agent
	if err := c.do(ctx, http.MethodGet, "/agents", nil, &agents); err != nil {
		return nil, err
	}
	return agents, nil
}

// GetModels lists available models and the current default.
func (c *Client) GetModels(ctx context.Context) (*ModelsResponse, error) {
	var resp ModelsResponse
	if err := c.do(ctx, http.MethodGet, "/models", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health checks backend liveness.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do issues one request and decodes the response into out (ignored when
// out is nil). Non-2xx responses become an *Error.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newError(resp.StatusCode, data)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
