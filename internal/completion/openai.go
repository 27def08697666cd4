// Package completion implements exchange.Completer against real and fake
// chat completion services.
package completion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	go_openai "github.com/sashabaranov/go-openai"
	"github.com/zulandar/coinchat/internal/exchange"
	"github.com/zulandar/coinchat/internal/session"
	"go.uber.org/zap"
)

const codeInsufficientQuota = "insufficient_quota"

// OpenAIOpts configures an OpenAI completer.
type OpenAIOpts struct {
	APIKey        string
	BaseURL       string // empty uses the public endpoint
	Model         string
	AssistantName string
	SystemPrompt  string // empty builds one from AssistantName
	Timeout       time.Duration
	HTTPClient    *http.Client
	Logger        *zap.Logger
}

// OpenAI completes through an OpenAI-compatible chat completions API.
type OpenAI struct {
	client  *go_openai.Client
	model   string
	system  string
	timeout time.Duration
	log     *zap.Logger
}

var _ exchange.Completer = (*OpenAI)(nil)

// NewOpenAI returns an OpenAI completer.
func NewOpenAI(opts OpenAIOpts) (*OpenAI, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("completion: openai: model is required")
	}
	if opts.APIKey == "" && opts.BaseURL == "" {
		return nil, fmt.Errorf("completion: openai: api key is required")
	}
	cfg := go_openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	if opts.HTTPClient != nil {
		cfg.HTTPClient = opts.HTTPClient
	}
	system := opts.SystemPrompt
	if system == "" {
		name := opts.AssistantName
		if name == "" {
			name = "AI"
		}
		system = fmt.Sprintf("You are %s, a friendly assistant. Keep answers short and helpful.", name)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &OpenAI{
		client:  go_openai.NewClientWithConfig(cfg),
		model:   opts.Model,
		system:  system,
		timeout: opts.Timeout,
		log:     log,
	}, nil
}

// Complete sends the system prompt, the thread history and the new message
// and returns the first choice.
func (o *OpenAI) Complete(ctx context.Context, req exchange.Request) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, go_openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: o.messages(req),
	})
	if err != nil {
		o.log.Warn("chat completion failed",
			zap.String("thread_id", req.ThreadID),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return "", classify(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion: openai: %w: no choices in response", exchange.ErrTransport)
	}
	o.log.Debug("chat completion",
		zap.String("thread_id", req.ThreadID),
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) messages(req exchange.Request) []go_openai.ChatCompletionMessage {
	msgs := make([]go_openai.ChatCompletionMessage, 0, len(req.History)+2)
	msgs = append(msgs, go_openai.ChatCompletionMessage{Role: go_openai.ChatMessageRoleSystem, Content: o.system})
	for _, m := range req.History {
		role := go_openai.ChatMessageRoleUser
		if m.Role == session.RoleAssistant {
			role = go_openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, go_openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return append(msgs, go_openai.ChatCompletionMessage{Role: go_openai.ChatMessageRoleUser, Content: req.Text})
}

// classify maps API errors onto the exchange taxonomy. Payment-required and
// quota errors are economy rejections; everything else is transport.
func classify(err error) error {
	var apiErr *go_openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusPaymentRequired ||
			apiErr.Type == codeInsufficientQuota ||
			fmt.Sprint(apiErr.Code) == codeInsufficientQuota {
			return fmt.Errorf("completion: openai: %w: %s", exchange.ErrEconomyRejection, apiErr.Message)
		}
	}
	var reqErr *go_openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusPaymentRequired {
		return fmt.Errorf("completion: openai: %w: %v", exchange.ErrEconomyRejection, reqErr.Err)
	}
	return fmt.Errorf("completion: openai: %w: %w", exchange.ErrTransport, err)
}
