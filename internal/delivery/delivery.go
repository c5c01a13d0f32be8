// Package delivery runs the HTTP loop that drains the outbound queue
// against the upstream intake.
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/posagent/posagentd/internal/logger"
	"github.com/posagent/posagentd/pkg/metrics"
	"github.com/posagent/posagentd/pkg/queue"
)

const (
	requestTimeout = 5 * time.Second
	idlePollDelay  = 300 * time.Millisecond
	failureDelay   = time.Second
)

// Loop polls the queue for due jobs and POSTs each one to its stored URL.
type Loop struct {
	q       *queue.Queue
	client  *http.Client
	metrics *metrics.Agent
}

// NewLoop builds a delivery loop over q. m may be nil to disable metrics.
func NewLoop(q *queue.Queue, m *metrics.Agent) *Loop {
	return &Loop{
		q:       q,
		client:  &http.Client{Timeout: requestTimeout},
		metrics: m,
	}
}

// Run drives the loop until ctx is canceled.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := l.q.Due(time.Now())
		if err != nil {
			logger.Warn("delivery: due query failed", "error", err)
			sleep(ctx, failureDelay)
			continue
		}

		l.metrics.SetQueueDepth(l.q.Depth())

		if job == nil {
			sleep(ctx, idlePollDelay)
			continue
		}

		if l.deliver(ctx, job) {
			if err := l.q.Mark(job.ID, true); err != nil {
				logger.Warn("delivery: mark success failed", "job_id", job.ID, "error", err)
			}
			continue
		}

		if err := l.q.Mark(job.ID, false); err != nil {
			logger.Warn("delivery: mark failure failed", "job_id", job.ID, "error", err)
		}
		sleep(ctx, failureDelay)
	}
}

// deliver POSTs a single job's body and reports whether it succeeded.
func (l *Loop) deliver(ctx context.Context, job *queue.Job) bool {
	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, job.URL, bytes.NewReader(job.Body))
	if err != nil {
		logger.Warn("delivery: failed to build request", "job_id", job.ID, "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range job.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := l.client.Do(req)
	elapsedMs := float64(time.Since(start).Milliseconds())
	l.metrics.ObservePostLatencyMs(elapsedMs)

	if err != nil {
		logger.Warn("delivery: request failed", "job_id", job.ID, "topic", job.Topic, "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok {
		logger.Warn("delivery: non-2xx response", "job_id", job.ID, "topic", job.Topic, "status", resp.StatusCode)
	}
	return ok
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// BuildJSONBody is a small helper the producers (state machine callbacks)
// use to serialize a payload before pushing it onto the queue.
func BuildJSONBody(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("delivery: failed to encode payload: %w", err)
	}
	return data, nil
}
