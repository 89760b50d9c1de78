package veritracksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Veritrack HTTP API client.
type Client struct {
	BaseURL     string
	TenantID    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, tenantID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		TenantID: tenantID,
		Timeout:  10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID              string `json:"id"`
	TenantID        string `json:"tenant_id"`
	IndicatorID     string `json:"indicator_id"`
	EntrepreneurID  string `json:"entrepreneur_id"`
	Period          string `json:"period"`
	Status          string `json:"status"`
	EffectiveStatus string `json:"effective_status"`
}

// Submission represents a reported value under verification.
type Submission struct {
	ID          string `json:"id"`
	TaskID      string `json:"task_id"`
	Value       string `json:"value"`
	Comment     string `json:"comment,omitempty"`
	IsAchieved  bool   `json:"is_achieved"`
	Status      string `json:"status"`
	SubmittedAt string `json:"submitted_at"`
}

// Attachment is an evidence link on a submission.
type Attachment struct {
	FileName string `json:"file_name"`
	URL      string `json:"url"`
}

// ReviewTask is a verifier work item.
type ReviewTask struct {
	ID             string  `json:"id"`
	SubmissionID   string  `json:"submission_id"`
	TaskID         string  `json:"task_id"`
	VerifierUserID string  `json:"verifier_user_id"`
	Level          int     `json:"level"`
	DueDate        string  `json:"due_date"`
	CompletedAt    *string `json:"completed_at,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	TenantID   string         `json:"tenant_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTask creates an indicator task.
func (c *Client) CreateTask(ctx context.Context, indicatorID, entrepreneurID, period string) (Task, error) {
	body := map[string]any{
		"indicator_id":    indicatorID,
		"entrepreneur_id": entrepreneurID,
		"period":          period,
	}
	var resp Task
	err := c.do(ctx, http.MethodPost, c.tenantPath("tasks"), body, &resp)
	return resp, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, c.tenantPath("tasks/"+url.PathEscape(id)), nil, &resp)
	return resp, err
}

// Submit reports a value for a task, optionally with evidence attachments.
func (c *Client) Submit(ctx context.Context, taskID, value, comment string, attachments []Attachment) (Submission, error) {
	body := map[string]any{
		"value":   value,
		"comment": comment,
	}
	if len(attachments) > 0 {
		body["attachments"] = attachments
	}
	var resp Submission
	endpoint := c.tenantPath(fmt.Sprintf("tasks/%s/submissions", url.PathEscape(taskID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Reviews returns the caller's open review queue.
func (c *Client) Reviews(ctx context.Context, openOnly bool) ([]ReviewTask, error) {
	endpoint := "v1/reviews"
	if openOnly {
		endpoint += "?open=true"
	}
	var resp []ReviewTask
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Approve records an approval on a review task and returns the submission.
func (c *Client) Approve(ctx context.Context, reviewTaskID, comment string) (Submission, error) {
	var resp Submission
	endpoint := fmt.Sprintf("v1/reviews/%s/approve", url.PathEscape(reviewTaskID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"comment": comment}, &resp)
	return resp, err
}

// Reject records a rejection on a review task and returns the submission.
func (c *Client) Reject(ctx context.Context, reviewTaskID, comment string) (Submission, error) {
	var resp Submission
	endpoint := fmt.Sprintf("v1/reviews/%s/reject", url.PathEscape(reviewTaskID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"comment": comment}, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := c.tenantPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) tenantPath(p string) string {
	tenant := url.PathEscape(c.TenantID)
	return fmt.Sprintf("v1/tenants/%s/%s", tenant, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
