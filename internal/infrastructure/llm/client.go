package llm

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/botforge/botforge/internal/domain/entity"
	"github.com/botforge/botforge/internal/domain/repository"
	"github.com/botforge/botforge/internal/domain/service"
	"github.com/botforge/botforge/internal/infrastructure/logger"
	"github.com/botforge/botforge/internal/infrastructure/monitoring"
)

// User-facing failure texts. They double as the chat reply when a
// provider call goes wrong.
const (
	emptyResponseText = "Получен пустой ответ от AI сервиса."
	statusErrorFmt    = "Ошибка AI сервиса (код %d). Попробуйте позже."
	connectivityText  = "Не удалось подключиться к AI сервису. Проверьте настройки подключения."
)

// Body defaults applied to every provider call.
const (
	defaultMaxTokens   = 1024
	defaultTemperature = 0.7
)

// Client talks to whichever LLM provider a bot is configured with,
// dispatching on the URL. One instance serves the whole fleet.
type Client struct {
	http      *http.Client
	knowledge repository.KnowledgeRepository
	monitor   *monitoring.Monitor
	rec       *logger.Recorder

	requestTimeout    time.Duration
	streamIdleTimeout time.Duration
}

var _ service.LLMClient = (*Client)(nil)

// NewClient builds the shared provider client. knowledge resolves
// database_id references; monitor may be nil when call counting is
// not wanted.
func NewClient(knowledge repository.KnowledgeRepository, monitor *monitoring.Monitor, rec *logger.Recorder, requestTimeout, streamIdleTimeout time.Duration) *Client {
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}
	if streamIdleTimeout <= 0 {
		streamIdleTimeout = 30 * time.Second
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: requestTimeout,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	return &Client{
		http:              &http.Client{Transport: transport},
		knowledge:         knowledge,
		monitor:           monitor,
		rec:               rec,
		requestTimeout:    requestTimeout,
		streamIdleTimeout: streamIdleTimeout,
	}
}

// Complete performs one blocking provider call. The returned string is
// always safe to forward to the chat: on failure it describes the
// problem in the user's language and err carries the cause.
func (c *Client) Complete(ctx context.Context, req service.ChatRequest) (string, error) {
	c.countCall()

	family := DetectFamily(req.Config.APIURL)
	system := c.composeSystemPrompt(ctx, req.Config)

	body, err := json.Marshal(c.buildBody(family, req, system, false))
	if err != nil {
		return emptyResponseText, fmt.Errorf("marshal request: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		Endpoint(family, req.Config.APIURL, req.Config.APIKey), bytes.NewReader(body))
	if err != nil {
		return connectivityText, fmt.Errorf("create request: %w", err)
	}
	applyHeaders(httpReq, family, req.Config.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		c.rec.Error(logger.CategoryAPI, "llm request failed",
			zap.String("family", family.String()), zap.Error(err))
		return connectivityText, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return connectivityText, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.rec.Error(logger.CategoryAPI, "llm provider returned error status",
			zap.String("family", family.String()),
			zap.Int("status", resp.StatusCode))
		return fmt.Sprintf(statusErrorFmt, resp.StatusCode),
			fmt.Errorf("provider status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	text, err := extract(family, respBody)
	if err != nil {
		return emptyResponseText, err
	}
	if text == "" {
		return emptyResponseText, fmt.Errorf("empty reply from provider")
	}
	return text, nil
}

// Stream performs one streaming call where the family supports SSE and
// falls back to a single buffered chunk elsewhere. The channel always
// ends with a Done chunk and is then closed.
func (c *Client) Stream(ctx context.Context, req service.ChatRequest) (<-chan service.StreamChunk, error) {
	out := make(chan service.StreamChunk, 128)

	family := DetectFamily(req.Config.APIURL)
	if !family.Streams() {
		go func() {
			defer close(out)
			text, err := c.Complete(ctx, req)
			out <- service.StreamChunk{Content: text, Err: err}
			out <- service.StreamChunk{Done: true}
		}()
		return out, nil
	}

	c.countCall()
	system := c.composeSystemPrompt(ctx, req.Config)

	body, err := json.Marshal(c.buildBody(family, req, system, true))
	if err != nil {
		close(out)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		Endpoint(family, req.Config.APIURL, req.Config.APIKey), bytes.NewReader(body))
	if err != nil {
		close(out)
		return nil, fmt.Errorf("create request: %w", err)
	}
	applyHeaders(httpReq, family, req.Config.APIKey)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		go func() {
			defer close(out)
			out <- service.StreamChunk{Content: connectivityText, Err: err}
			out <- service.StreamChunk{Done: true}
		}()
		return out, nil
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		statusErr := fmt.Errorf("provider status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
		go func() {
			defer close(out)
			out <- service.StreamChunk{Content: fmt.Sprintf(statusErrorFmt, resp.StatusCode), Err: statusErr}
			out <- service.StreamChunk{Done: true}
		}()
		return out, nil
	}

	go func() {
		defer close(out)
		defer resp.Body.Close()

		// Context cancellation cannot interrupt Body.Read; closing the
		// body unblocks the scanner.
		watchdogDone := make(chan struct{})
		defer close(watchdogDone)
		go func() {
			select {
			case <-ctx.Done():
				resp.Body.Close()
			case <-watchdogDone:
			}
		}()

		_, err := scanSSE(ctx, resp.Body, c.streamIdleTimeout, func(delta string) {
			out <- service.StreamChunk{Content: delta}
		})
		if err != nil {
			out <- service.StreamChunk{Content: connectivityText, Err: err}
		}
		out <- service.StreamChunk{Done: true}
	}()

	return out, nil
}

func (c *Client) countCall() {
	if c.monitor != nil {
		c.monitor.IncAPICall()
	}
}

// composeSystemPrompt resolves the bot's knowledge base, if any, and
// appends its content to the configured system prompt with a label
// matching the content type.
func (c *Client) composeSystemPrompt(ctx context.Context, cfg service.ProviderConfig) string {
	system := cfg.SystemPrompt
	if cfg.DatabaseID == "" || c.knowledge == nil {
		return system
	}

	kb, err := c.knowledge.FindByID(ctx, cfg.DatabaseID)
	if err != nil {
		c.rec.Warning(logger.CategoryDatabase, "knowledge base lookup failed",
			zap.String("database_id", cfg.DatabaseID), zap.Error(err))
		return system
	}
	if kb.Content == "" {
		return system
	}

	if kb.Type == entity.KnowledgeTypeJSON {
		return system + "\n\nДанные из базы (JSON):\n" + kb.Content
	}
	return system + "\n\nБаза знаний:\n" + kb.Content
}

// buildBody shapes the request for the family's dialect.
func (c *Client) buildBody(family Family, req service.ChatRequest, system string, stream bool) any {
	switch family {
	case FamilyAnthropic, FamilyAnthropicLike:
		msgs := make([]anthropicMessage, 0, len(req.History)*2+1)
		for _, ex := range req.History {
			msgs = append(msgs,
				anthropicMessage{Role: "user", Content: ex.UserMessage},
				anthropicMessage{Role: "assistant", Content: ex.AIResponse})
		}
		msgs = append(msgs, anthropicMessage{Role: "user", Content: req.Message})
		return &anthropicRequest{
			Model:       req.Config.Model,
			MaxTokens:   defaultMaxTokens,
			System:      system,
			Messages:    msgs,
			Temperature: defaultTemperature,
		}

	case FamilyGemini:
		return &geminiRequest{
			Contents: []geminiContent{{
				Role:  "user",
				Parts: []geminiPart{{Text: flattenConversation(system, req.History, req.Message)}},
			}},
			GenerationConfig: &geminiGenerationConfig{
				Temperature:     defaultTemperature,
				MaxOutputTokens: defaultMaxTokens,
			},
		}

	default:
		msgs := make([]openaiMessage, 0, len(req.History)*2+2)
		if system != "" {
			msgs = append(msgs, openaiMessage{Role: "system", Content: system})
		}
		for _, ex := range req.History {
			msgs = append(msgs,
				openaiMessage{Role: "user", Content: ex.UserMessage},
				openaiMessage{Role: "assistant", Content: ex.AIResponse})
		}
		msgs = append(msgs, openaiMessage{Role: "user", Content: req.Message})
		return &openaiRequest{
			Model:       req.Config.Model,
			Messages:    msgs,
			MaxTokens:   defaultMaxTokens,
			Temperature: defaultTemperature,
			Stream:      stream,
		}
	}
}

// flattenConversation renders system prompt, history and the current
// message as one text block for providers without chat roles.
func flattenConversation(system string, history []service.Exchange, message string) string {
	var b strings.Builder
	if system != "" {
		b.WriteString(system)
		b.WriteString("\n\n")
	}
	if len(history) == 0 {
		b.WriteString(message)
		return b.String()
	}
	for _, ex := range history {
		b.WriteString("User: ")
		b.WriteString(ex.UserMessage)
		b.WriteString("\nAssistant: ")
		b.WriteString(ex.AIResponse)
		b.WriteString("\n")
	}
	b.WriteString("User: ")
	b.WriteString(message)
	return b.String()
}

// extract pulls the reply text out of a provider response.
func extract(family Family, body []byte) (string, error) {
	switch family {
	case FamilyAnthropic, FamilyAnthropicLike:
		var resp anthropicResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("parse response: %w", err)
		}
		if len(resp.Content) > 0 && resp.Content[0].Text != "" {
			return resp.Content[0].Text, nil
		}
		if family == FamilyAnthropicLike && resp.Message != nil {
			return resp.Message.Content, nil
		}
		return "", nil

	case FamilyGemini:
		var resp geminiResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("parse response: %w", err)
		}
		if len(resp.Candidates) > 0 && len(resp.Candidates[0].Content.Parts) > 0 {
			return resp.Candidates[0].Content.Parts[0].Text, nil
		}
		return "", nil

	case FamilyOpenAI:
		var resp openaiResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("parse response: %w", err)
		}
		if len(resp.Choices) > 0 {
			return resp.Choices[0].Message.Content, nil
		}
		return "", nil

	default:
		var resp genericResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return "", fmt.Errorf("parse response: %w", err)
		}
		if len(resp.Choices) > 0 && resp.Choices[0].Message.Content != "" {
			return resp.Choices[0].Message.Content, nil
		}
		if len(resp.Content) > 0 {
			var blocks []anthropicBlock
			if err := json.Unmarshal(resp.Content, &blocks); err == nil && len(blocks) > 0 && blocks[0].Text != "" {
				return blocks[0].Text, nil
			}
		}
		if resp.Response != "" {
			return resp.Response, nil
		}
		if resp.Text != "" {
			return resp.Text, nil
		}
		if len(resp.Content) > 0 {
			var s string
			if err := json.Unmarshal(resp.Content, &s); err == nil {
				return s, nil
			}
		}
		return "", nil
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
