package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
	"github.com/yungbote/organizer-backend/internal/pkg/httpx"
	"github.com/yungbote/organizer-backend/internal/pkg/llmjson"
	"github.com/yungbote/organizer-backend/internal/utils"
)

const anthropicVersion = "2023-06-01"

// Client is the remote model used for deliberation: duplicate keeper
// overrides, version chain confirmation, and the organization plan.
type Client interface {
	Complete(ctx context.Context, system, user string, maxTokens int) (string, error)
	CompleteJSON(ctx context.Context, system, user string, maxTokens int, out any) error
	Model() string
}

type client struct {
	log        *logger.Logger
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	clientLog := log.With("client", "Claude")
	apiKey := strings.TrimSpace(utils.GetEnv("ANTHROPIC_API_KEY", "", nil))
	if apiKey == "" {
		return nil, fmt.Errorf("missing ANTHROPIC_API_KEY")
	}
	baseURL := strings.TrimRight(utils.GetEnv("ANTHROPIC_BASE_URL", "https://api.anthropic.com", log), "/")
	model := utils.GetEnv("CLAUDE_MODEL", "claude-sonnet-4-20250514", log)
	timeout := utils.GetEnvAsDuration("CLAUDE_TIMEOUT", 180*time.Second, log)
	maxRetries := utils.GetEnvAsInt("CLAUDE_MAX_RETRIES", 3, log)

	return &client{
		log:        clientLog,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		maxRetries: maxRetries,
	}, nil
}

func (c *client) Model() string { return c.model }

type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *client) Complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	req := messagesRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  []message{{Role: "user", Content: user}},
	}
	var out messagesResponse
	if err := c.do(ctx, "/v1/messages", req, &out); err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", errkind.Newf(errkind.Malformed, "claude.Complete", "empty completion (stop_reason=%s)", out.StopReason)
	}
	return text, nil
}

// CompleteJSON runs Complete and decodes the first JSON object found in the
// reply into out.
func (c *client) CompleteJSON(ctx context.Context, system, user string, maxTokens int, out any) error {
	text, err := c.Complete(ctx, system, user, maxTokens)
	if err != nil {
		return err
	}
	raw, err := llmjson.Extract(text)
	if err != nil {
		return errkind.New(errkind.Malformed, "claude.CompleteJSON", err)
	}
	if uErr := json.Unmarshal([]byte(raw), out); uErr != nil {
		return errkind.Newf(errkind.Malformed, "claude.CompleteJSON", "decode extracted json: %v", uErr)
	}
	return nil
}

type claudeHTTPError struct {
	StatusCode int
	Body       string
}

func (e *claudeHTTPError) Error() string {
	return fmt.Sprintf("claude http %d: %s", e.StatusCode, e.Body)
}

func (e *claudeHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) doOnce(ctx context.Context, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	raw, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return resp, nil, readErr
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp, raw, &claudeHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, path string, body any, out any) error {
	backoff := 2 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return errkind.New(errkind.Cancelled, "claude.do", ctx.Err())
		}

		resp, raw, err := c.doOnce(ctx, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return errkind.Newf(errkind.Malformed, "claude.do", "decode response: %v", uErr)
			}
			return nil
		}

		if !httpx.IsRetryableError(err) {
			return classify(err)
		}
		if attempt == c.maxRetries {
			return classify(err)
		}

		// 429 carries Retry-After; 529 means the API is overloaded and gets
		// the plain doubling backoff.
		sleepFor := httpx.RetryAfterDuration(resp, backoff, 60*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)
		c.log.Warn("Claude request retrying",
			"path", path,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		time.Sleep(sleepFor)
		backoff *= 2
	}
	return fmt.Errorf("unreachable retry loop")
}

func classify(err error) error {
	var he *claudeHTTPError
	if errors.As(err, &he) {
		switch {
		case he.StatusCode == 429:
			return errkind.New(errkind.RateLimit, "claude.do", err)
		case he.StatusCode == 529 || he.StatusCode >= 500:
			return errkind.New(errkind.Unavailable, "claude.do", err)
		case he.StatusCode == 401 || he.StatusCode == 403:
			return errkind.New(errkind.Fatal, "claude.do", err)
		default:
			return errkind.New(errkind.Malformed, "claude.do", err)
		}
	}
	return errkind.New(errkind.Network, "claude.do", err)
}
