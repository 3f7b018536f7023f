package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Backend selection values. Auto resolves to local when the local endpoint
// answers a reachability probe, otherwise hosted when a key is configured.
const (
	BackendAuto   = "auto"
	BackendLocal  = "local"
	BackendHosted = "hosted"
)

// ChatMessage is the wire shape shared by both backends.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage reports token counts for one completed stream. When a backend does
// not report counts they are estimated from text length.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	Estimated        bool
}

// Meter is the admission/accounting surface the client consults around
// every request.
type Meter interface {
	Admit(estimatedTokens int) (bool, string)
	Record(actualTokens int, actualCost float64)
}

type Client struct {
	streamClient *http.Client // no timeout, streams run until done or cancel
	probeClient  *http.Client
	ollamaURL    string
	hostedURL    string
	meter        Meter

	mu     sync.RWMutex
	apiKey string
}

func NewClient(ollamaURL, hostedBaseURL string, meter Meter) *Client {
	return &Client{
		streamClient: &http.Client{},
		probeClient:  &http.Client{Timeout: 2 * time.Second},
		ollamaURL:    strings.TrimRight(ollamaURL, "/"),
		hostedURL:    strings.TrimRight(hostedBaseURL, "/"),
		meter:        meter,
	}
}

func (c *Client) UpdateAPIKey(apiKey string) {
	c.mu.Lock()
	c.apiKey = apiKey
	c.mu.Unlock()
}

func (c *Client) HasKey() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey != ""
}

func (c *Client) getAPIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// LocalReachable probes the local inference endpoint.
func (c *Client) LocalReachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, "GET", c.ollamaURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.probeClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// ResolveBackend turns a configured selection into a concrete backend.
func (c *Client) ResolveBackend(ctx context.Context, selected string) (string, error) {
	switch selected {
	case BackendLocal, BackendHosted:
		return selected, nil
	case BackendAuto, "":
		if c.LocalReachable(ctx) {
			return BackendLocal, nil
		}
		if c.HasKey() {
			return BackendHosted, nil
		}
		return "", ErrNoBackend
	default:
		return "", fmt.Errorf("unknown backend %q", selected)
	}
}

// LocalModels lists model names the local endpoint serves.
func (c *Client) LocalModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.ollamaURL+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.probeClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local backend unreachable: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode model list: %w", err)
	}
	names := make([]string, 0, len(payload.Models))
	for _, m := range payload.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Stream issues a chat request against the given backend and feeds each
// content increment to onDelta. It returns the accumulated content and
// token usage. The metering admission check runs before any network I/O;
// a denial returns BudgetError and no request is made. Cancellation via ctx
// is observed at the next chunk boundary.
func (c *Client) Stream(ctx context.Context, backend, model string, messages []ChatMessage, onDelta func(string)) (string, Usage, error) {
	estimated := estimateTokens(messages)
	if c.meter != nil {
		if ok, reason := c.meter.Admit(estimated); !ok {
			return "", Usage{}, &BudgetError{Reason: reason}
		}
	}

	var (
		content string
		usage   Usage
		err     error
	)
	switch backend {
	case BackendLocal:
		content, usage, err = c.streamLocal(ctx, model, messages, onDelta)
	case BackendHosted:
		content, usage, err = c.streamHosted(ctx, model, messages, onDelta)
	default:
		return "", Usage{}, fmt.Errorf("unknown backend %q", backend)
	}
	if err != nil {
		return content, usage, err
	}

	if usage.PromptTokens == 0 && usage.CompletionTokens == 0 {
		usage.PromptTokens = estimated
		usage.CompletionTokens = len(content) / charsPerToken
		usage.Estimated = true
	}
	if c.meter != nil {
		total := usage.PromptTokens + usage.CompletionTokens
		c.meter.Record(total, CalculateCost(backend, model, usage.PromptTokens, usage.CompletionTokens))
	}
	return content, usage, nil
}

func (c *Client) newJSONRequest(ctx context.Context, url string, body any) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
