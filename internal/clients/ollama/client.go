package ollama

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

// Client talks to a local ollama daemon. Used for per-document descriptions
// during indexing and for duplicate/version arbitration, where volume is high
// and content stays on the box.
type Client interface {
	Generate(ctx context.Context, prompt string) (string, error)
	GenerateJSON(ctx context.Context, prompt string, out any) error
	Describe(ctx context.Context, fileName, text string) (Description, error)
	Healthy(ctx context.Context) error
	HasModel(ctx context.Context) (bool, error)
	Model() string
}

// Description is what the local model reports about a single document.
type Description struct {
	Summary      string   `json:"summary"`
	DocumentType string   `json:"document_type"`
	KeyTopics    []string `json:"key_topics"`
}

type client struct {
	log        *logger.Logger
	httpClient *http.Client
	baseURL    string
	model      string
	maxRetries int
	numPredict int
	temp       float64
}

func NewClient(log *logger.Logger) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	clientLog := log.With("client", "Ollama")
	baseURL := strings.TrimRight(utils.GetEnv("OLLAMA_BASE_URL", "http://localhost:11434", log), "/")
	model := utils.GetEnv("OLLAMA_MODEL", "llama3.1", log)
	timeout := utils.GetEnvAsDuration("OLLAMA_TIMEOUT", 120*time.Second, log)
	maxRetries := utils.GetEnvAsInt("OLLAMA_MAX_RETRIES", 2, log)

	return &client{
		log:        clientLog,
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		model:      model,
		maxRetries: maxRetries,
		numPredict: utils.GetEnvAsInt("OLLAMA_NUM_PREDICT", 2000, log),
		temp:       0.3,
	}, nil
}

func (c *client) Model() string { return c.model }

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (c *client) Generate(ctx context.Context, prompt string) (string, error) {
	var out generateResponse
	req := generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: c.temp,
			NumPredict:  c.numPredict,
		},
	}
	if err := c.do(ctx, http.MethodPost, "/api/generate", req, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Response), nil
}

// GenerateJSON runs Generate and decodes the first JSON object found in the
// reply into out.
func (c *client) GenerateJSON(ctx context.Context, prompt string, out any) error {
	text, err := c.Generate(ctx, prompt)
	if err != nil {
		return err
	}
	raw, err := llmjson.Extract(text)
	if err != nil {
		return errkind.New(errkind.Malformed, "ollama.GenerateJSON", err)
	}
	if uErr := json.Unmarshal([]byte(raw), out); uErr != nil {
		return errkind.Newf(errkind.Malformed, "ollama.GenerateJSON", "decode extracted json: %v", uErr)
	}
	return nil
}

func (c *client) Describe(ctx context.Context, fileName, text string) (Description, error) {
	if strings.TrimSpace(text) == "" {
		return Description{}, nil
	}
	prompt := fmt.Sprintf(
		"Describe the following document. Reply with a JSON object containing exactly these keys: "+
			"\"summary\" (2-3 sentences on what the document is about and its purpose), "+
			"\"document_type\" (a short label such as invoice, report, letter, notes), "+
			"\"key_topics\" (an array of up to 5 short topic strings). "+
			"Do not repeat the file name in the summary.\n\nFile name: %s\n\nContent:\n%s\n",
		fileName, text,
	)
	var desc Description
	if err := c.GenerateJSON(ctx, prompt, &desc); err != nil {
		// Small local models drift out of JSON on long inputs. Fall back to a
		// plain summary rather than failing the document.
		if errkind.KindOf(err) != errkind.Malformed {
			return Description{}, err
		}
		summary, genErr := c.Generate(ctx, fmt.Sprintf(
			"Summarize the following document in 2-3 sentences. Focus on what the document is about and its purpose. Do not repeat the file name.\n\nFile name: %s\n\nContent:\n%s\n\nSummary:",
			fileName, text,
		))
		if genErr != nil {
			return Description{}, genErr
		}
		return Description{Summary: summary}, nil
	}
	desc.Summary = strings.TrimSpace(desc.Summary)
	desc.DocumentType = strings.TrimSpace(desc.DocumentType)
	return desc, nil
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

func (c *client) Healthy(ctx context.Context) error {
	var out tagsResponse
	return c.do(ctx, http.MethodGet, "/api/tags", nil, &out)
}

func (c *client) HasModel(ctx context.Context) (bool, error) {
	var out tagsResponse
	if err := c.do(ctx, http.MethodGet, "/api/tags", nil, &out); err != nil {
		return false, err
	}
	want := c.model
	for _, m := range out.Models {
		if m.Name == want || strings.SplitN(m.Name, ":", 2)[0] == want {
			return true, nil
		}
	}
	return false, nil
}

type ollamaHTTPError struct {
	StatusCode int
	Body       string
}

func (e *ollamaHTTPError) Error() string {
	return fmt.Sprintf("ollama http %d: %s", e.StatusCode, e.Body)
}

func (e *ollamaHTTPError) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func (c *client) doOnce(ctx context.Context, method, path string, body any) (*http.Response, []byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return nil, nil, err
	}
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
		return resp, raw, &ollamaHTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return resp, raw, nil
}

func (c *client) do(ctx context.Context, method, path string, body any, out any) error {
	backoff := 1 * time.Second

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return errkind.New(errkind.Cancelled, "ollama.do", ctx.Err())
		}

		resp, raw, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			if out == nil {
				return nil
			}
			if uErr := json.Unmarshal(raw, out); uErr != nil {
				return errkind.Newf(errkind.Malformed, "ollama.do", "decode response: %v", uErr)
			}
			return nil
		}

		if !httpx.IsRetryableError(err) {
			return classify(err)
		}
		if attempt == c.maxRetries {
			return classify(err)
		}

		sleepFor := httpx.RetryAfterDuration(resp, backoff, 15*time.Second)
		sleepFor = httpx.JitterSleep(sleepFor)
		c.log.Warn("Ollama request retrying",
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
	var he *ollamaHTTPError
	if errors.As(err, &he) {
		if he.StatusCode == 429 {
			return errkind.New(errkind.RateLimit, "ollama.do", err)
		}
		if he.StatusCode >= 500 {
			return errkind.New(errkind.Unavailable, "ollama.do", err)
		}
		return errkind.New(errkind.Malformed, "ollama.do", err)
	}
	return errkind.New(errkind.Network, "ollama.do", err)
}
