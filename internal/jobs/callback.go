package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/pkg/httpx"
	"github.com/yungbote/organizer-backend/internal/types"
)

// CallbackNotifier POSTs a small status payload to the job's callback URL
// when the job reaches review_required or a terminal state. Delivery is best
// effort: a few retried attempts, then give up with a warning.
type CallbackNotifier struct {
	log      *logger.Logger
	client   *http.Client
	attempts int
}

func NewCallbackNotifier(baseLog *logger.Logger) *CallbackNotifier {
	return &CallbackNotifier{
		log:      baseLog.With("component", "CallbackNotifier"),
		client:   &http.Client{Timeout: 10 * time.Second},
		attempts: 3,
	}
}

type callbackPayload struct {
	JobID    string `json:"job_id"`
	Status   string `json:"status"`
	Stage    string `json:"stage,omitempty"`
	Progress int    `json:"progress"`
	Error    string `json:"error,omitempty"`
}

func (n *CallbackNotifier) Notify(ctx context.Context, job *types.Job) {
	if n == nil || job == nil || job.CallbackURL == "" {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload := callbackPayload{
		JobID:    job.ID.String(),
		Status:   job.Status,
		Stage:    job.Stage,
		Progress: job.Progress,
		Error:    job.Error,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}

	backoff := time.Second
	for attempt := 1; attempt <= n.attempts; attempt++ {
		err = n.post(ctx, job.CallbackURL, body)
		if err == nil {
			return
		}
		if attempt < n.attempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(httpx.JitterSleep(backoff)):
			}
			backoff *= 2
		}
	}
	n.log.Warn("Callback delivery failed",
		"job_id", job.ID,
		"url", job.CallbackURL,
		"error", err,
	)
}

func (n *CallbackNotifier) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	}
	return nil
}
