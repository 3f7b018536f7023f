package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Ollama /api/chat emits newline-delimited JSON objects, one per increment,
// with done=true on the final object carrying token counts.
type ndjsonChunk struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

func (c *Client) streamLocal(ctx context.Context, model string, messages []ChatMessage, onDelta func(string)) (string, Usage, error) {
	body := map[string]any{
		"model":    model,
		"messages": messages,
		"stream":   true,
	}
	req, err := c.newJSONRequest(ctx, c.ollamaURL+"/api/chat", body)
	if err != nil {
		return "", Usage{}, err
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return "", Usage{}, &BackendError{Backend: BackendLocal, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", Usage{}, statusError(BackendLocal, resp)
	}

	var contentBuf strings.Builder
	var usage Usage

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var chunk ndjsonChunk
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if chunk.Message.Content != "" {
			contentBuf.WriteString(chunk.Message.Content)
			onDelta(chunk.Message.Content)
		}
		if chunk.Done {
			usage.PromptTokens = chunk.PromptEvalCount
			usage.CompletionTokens = chunk.EvalCount
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return contentBuf.String(), usage, streamReadError(ctx, BackendLocal, err)
	}
	return contentBuf.String(), usage, nil
}

// Hosted chat completions stream as Server-Sent Events: lines prefixed
// "data: ", terminated by a literal "data: [DONE]".
type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content,omitempty"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage,omitempty"`
}

func (c *Client) streamHosted(ctx context.Context, model string, messages []ChatMessage, onDelta func(string)) (string, Usage, error) {
	key := c.getAPIKey()
	if key == "" {
		return "", Usage{}, ErrNoAPIKey
	}

	body := map[string]any{
		"model":       model,
		"messages":    messages,
		"stream":      true,
		"temperature": 0.7,
		"max_tokens":  2048,
	}
	req, err := c.newJSONRequest(ctx, c.hostedURL+"/chat/completions", body)
	if err != nil {
		return "", Usage{}, err
	}
	req.Header.Set("Authorization", "Bearer "+key)

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return "", Usage{}, &BackendError{Backend: BackendHosted, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", Usage{}, statusError(BackendHosted, resp)
	}

	var contentBuf strings.Builder
	var usage Usage

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimPrefix(line, "data: ")
		if data == "[DONE]" {
			break
		}
		var chunk sseChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.Usage != nil {
			usage.PromptTokens = chunk.Usage.PromptTokens
			usage.CompletionTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			contentBuf.WriteString(delta)
			onDelta(delta)
		}
	}
	if err := scanner.Err(); err != nil {
		return contentBuf.String(), usage, streamReadError(ctx, BackendHosted, err)
	}
	return contentBuf.String(), usage, nil
}

func statusError(backend string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	return &BackendError{
		Backend: backend,
		Err:     fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))),
		Status:  resp.StatusCode,
	}
}
