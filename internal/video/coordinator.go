// Package video coordinates NVR video events with transactions: a Create
// call at transaction start, an Attach that back-fills the event URL onto
// lines, and a Finish that annotates and ends the event at completion.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/posagent/posagentd/internal/logger"
	"github.com/posagent/posagentd/internal/txn"
)

// Config describes the NVR endpoint this coordinator talks to.
type Config struct {
	BaseURL    string
	Camera     string
	Label      string
	Duration   time.Duration
	RemoteRole string
}

// Coordinator issues the NVR lifecycle calls for a Machine's transactions.
// It holds no reference back to the Machine; the two communicate only
// through the AttachNvrEvent callback and the Finish arguments it's given.
type Coordinator struct {
	cfg    Config
	client *http.Client
}

// New builds a coordinator. A zero-value Config.BaseURL disables it: every
// method becomes a no-op, matching the "NVR disabled" case in the failure
// taxonomy.
func New(cfg Config) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Enabled reports whether this coordinator has a configured NVR endpoint.
func (c *Coordinator) Enabled() bool {
	return c != nil && c.cfg.BaseURL != ""
}

// Start issues the create call and, on success, invokes attach with the
// resolved event id and URL. It blocks until the call completes, so
// callers run it in its own goroutine from the machine's OnStart callback
// to keep line processing from waiting on the NVR.
func (c *Coordinator) Start(ctx context.Context, txnID string, attach func(eventID, url string)) {
	if !c.Enabled() {
		return
	}

	eventID, eventURL, err := c.create(ctx)
	if err != nil {
		logger.Warn("video: create event failed, transaction proceeds without NVR", "transaction_id", txnID, "error", err)
		return
	}
	if eventID == "" {
		logger.Warn("video: create response carried no event id", "transaction_id", txnID)
		return
	}

	if eventURL == "" {
		eventURL = fmt.Sprintf("%s/api/events/%s", c.cfg.BaseURL, eventID)
	}
	attach(eventID, eventURL)
}

type createResponse struct {
	EventID  json.RawMessage `json:"event_id"`
	EventURL string          `json:"event_url"`
}

func (c *Coordinator) create(ctx context.Context) (eventID, eventURL string, err error) {
	path := fmt.Sprintf("/api/events/%s/%s/create", c.cfg.Camera, c.cfg.Label)
	body := map[string]any{"duration": int(c.cfg.Duration.Seconds())}

	var resp createResponse
	if err := c.singleAttempt(ctx, http.MethodPost, path, body, &resp); err != nil {
		return "", "", err
	}
	// event_id may arrive as a JSON string or a JSON number.
	id := strings.Trim(string(resp.EventID), `"`)
	if id == "null" {
		id = ""
	}
	return id, resp.EventURL, nil
}

// Finish annotates and closes the NVR event for a completed transaction.
// Every step is best-effort: a failure at any step is logged and the next
// step still runs.
func (c *Coordinator) Finish(ctx context.Context, event *txn.NvrEventHandle, summary txn.Summary) {
	if !c.Enabled() || event == nil {
		return
	}

	if summary.TransactionNumber != nil {
		subLabel := fmt.Sprintf("Txn %s", *summary.TransactionNumber)
		if err := c.singleAttempt(ctx, http.MethodPost, fmt.Sprintf("/api/events/%s/sub_label", event.EventID),
			map[string]any{"subLabel": subLabel}, nil); err != nil {
			logger.Warn("video: sub_label failed", "event_id", event.EventID, "error", err)
		}
	}

	description := describeSummary(summary)
	if err := c.singleAttempt(ctx, http.MethodPost, fmt.Sprintf("/api/events/%s/description", event.EventID),
		map[string]any{"description": description}, nil); err != nil {
		logger.Warn("video: description failed", "event_id", event.EventID, "error", err)
	}

	if err := c.singleAttempt(ctx, http.MethodPost, fmt.Sprintf("/api/events/%s/retain", event.EventID), nil, nil); err != nil {
		logger.Warn("video: retain failed", "event_id", event.EventID, "error", err)
	}

	if err := c.singleAttempt(ctx, http.MethodPut, fmt.Sprintf("/api/events/%s/end", event.EventID), nil, nil); err != nil {
		logger.Warn("video: end failed", "event_id", event.EventID, "error", err)
	}
}

func describeSummary(s txn.Summary) string {
	num := "?"
	if s.TransactionNumber != nil {
		num = *s.TransactionNumber
	}
	total := "?"
	if s.TotalAmount != nil {
		total = s.TotalAmount.String()
	}
	return fmt.Sprintf("Txn %s | Total: %s | Items: %d", num, total, s.ItemCount)
}

// singleAttempt performs one HTTP call with no retry beyond the library's
// timeout-aware Operation shape: backoff.WithMaxRetries wraps a constant
// zero-delay backoff limited to zero retries, so the call runs exactly
// once per invocation.
func (c *Coordinator) singleAttempt(ctx context.Context, method, path string, body, result any) error {
	op := func() error {
		return c.do(ctx, method, path, body, result)
	}
	return backoff.Retry(op, backoff.WithMaxRetries(backoff.NewConstantBackOff(0), 0))
}

func (c *Coordinator) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("video: failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("video: failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.RemoteRole != "" {
		req.Header.Set("remote-role", c.cfg.RemoteRole)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("video: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("video: unexpected status %d from %s", resp.StatusCode, path)
	}

	if result == nil {
		return nil
	}
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("video: failed to read response body: %w", err)
	}
	if len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("video: failed to decode response body: %w", err)
	}
	return nil
}
