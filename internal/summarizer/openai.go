package summarizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/dshills/alertwatch-mcp/pkg/types"
)

// OpenAI chat defaults
const (
	DefaultOpenAIURL   = "https://api.openai.com/v1"
	DefaultOpenAIModel = "gpt-3.5-turbo"
	DefaultMaxTokens   = 300
	defaultHTTPTimeout = 30 * time.Second
)

const systemPrompt = `You are a helpful assistant that provides concise information about public alerts.
Answer the user's question using only the alerts provided.
Prioritize higher severity alerts. Be direct and factual.
If distance information is available, mention the closest alerts first and say how far away each one is.
Current date: %s`

// OpenAIConfig configures an OpenAI chat summarizer
type OpenAIConfig struct {
	APIKey            string        `yaml:"-"`
	BaseURL           string        `yaml:"base_url"`
	Model             string        `yaml:"model"`
	MaxTokens         int           `yaml:"max_tokens"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// OpenAI summarizes through the chat completions API
type OpenAI struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

// NewOpenAI creates a chat summarizer. An API key is required.
func NewOpenAI(cfg OpenAIConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai summarizer: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}

	o := &OpenAI{
		apiKey:     cfg.APIKey,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
	if cfg.RequestsPerSecond > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return o, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Summarize implements Summarizer
func (o *OpenAI) Summarize(ctx context.Context, in Input) (string, error) {
	answer, err := o.complete(ctx, in)
	if err != nil {
		return "", fmt.Errorf("%w: %w", types.ErrSummarizationUnavailable, err)
	}
	return answer, nil
}

func (o *OpenAI) complete(ctx context.Context, in Input) (string, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	user := fmt.Sprintf("Here are the most relevant alerts for the query %q:\n\n%s\nPlease provide a helpful response to the user's query.",
		in.Query, in.Format())

	body, err := json.Marshal(chatRequest{
		Model: o.model,
		Messages: []chatMessage{
			{Role: "system", Content: fmt.Sprintf(systemPrompt, o.now().Format(timeLayout))},
			{Role: "user", Content: user},
		},
		MaxTokens: o.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("no choices returned")
	}
	answer := strings.TrimSpace(out.Choices[0].Message.Content)
	if answer == "" {
		return "", errors.New("empty answer returned")
	}
	return answer, nil
}
