package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zulandar/coinchat/internal/config"
	"github.com/zulandar/coinchat/internal/exchange"
	"github.com/zulandar/coinchat/internal/session"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

// fakeAPI serves /v1/chat/completions with a fixed status and body and
// records the decoded requests.
type fakeAPI struct {
	mu       sync.Mutex
	status   int
	body     string
	delay    time.Duration
	requests []chatRequest
	auth     []string
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	var req chatRequest
	json.NewDecoder(r.Body).Decode(&req)
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	status, body, delay := f.status, f.body, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(body))
}

const okBody = `{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test",` +
	`"choices":[{"index":0,"message":{"role":"assistant","content":"hello there"},"finish_reason":"stop"}],` +
	`"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`

func newTestOpenAI(t *testing.T, api *fakeAPI, timeout time.Duration) *OpenAI {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	o, err := NewOpenAI(OpenAIOpts{
		APIKey:        "sk-test",
		BaseURL:       srv.URL + "/v1/",
		Model:         "gpt-test",
		AssistantName: "Sage",
		Timeout:       timeout,
	})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	return o
}

func TestNewOpenAI_Validation(t *testing.T) {
	if _, err := NewOpenAI(OpenAIOpts{APIKey: "k"}); err == nil {
		t.Error("expected error without model")
	}
	if _, err := NewOpenAI(OpenAIOpts{Model: "m"}); err == nil {
		t.Error("expected error without api key or base url")
	}
}

func TestOpenAI_Complete(t *testing.T) {
	api := &fakeAPI{status: http.StatusOK, body: okBody}
	o := newTestOpenAI(t, api, time.Second)

	reply, err := o.Complete(context.Background(), exchange.Request{
		ThreadID: "t1",
		History: []session.Message{
			{Role: session.RoleUser, Content: "hi"},
			{Role: session.RoleAssistant, Content: "hello"},
		},
		Text: "how are you?",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if reply != "hello there" {
		t.Errorf("reply = %q, want %q", reply, "hello there")
	}

	if len(api.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(api.requests))
	}
	req := api.requests[0]
	if req.Model != "gpt-test" {
		t.Errorf("model = %q", req.Model)
	}
	wantRoles := []string{"system", "user", "assistant", "user"}
	if len(req.Messages) != len(wantRoles) {
		t.Fatalf("messages = %d, want %d", len(req.Messages), len(wantRoles))
	}
	for i, role := range wantRoles {
		if req.Messages[i].Role != role {
			t.Errorf("messages[%d].Role = %q, want %q", i, req.Messages[i].Role, role)
		}
	}
	if !strings.Contains(req.Messages[0].Content, "Sage") {
		t.Errorf("system prompt = %q, want to name the assistant", req.Messages[0].Content)
	}
	if req.Messages[3].Content != "how are you?" {
		t.Errorf("last message = %q", req.Messages[3].Content)
	}
	if api.auth[0] != "Bearer sk-test" {
		t.Errorf("Authorization = %q", api.auth[0])
	}
}

func TestOpenAI_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{
			name:   "payment required",
			status: http.StatusPaymentRequired,
			body:   `{"error":{"message":"pay up","type":"billing_error","code":null}}`,
			want:   exchange.ErrEconomyRejection,
		},
		{
			name:   "insufficient quota",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"quota","type":"insufficient_quota","code":"insufficient_quota"}}`,
			want:   exchange.ErrEconomyRejection,
		},
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			body:   `{"error":{"message":"slow down","type":"requests","code":"rate_limit_exceeded"}}`,
			want:   exchange.ErrTransport,
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			body:   `oops`,
			want:   exchange.ErrTransport,
		},
		{
			name:   "no choices",
			status: http.StatusOK,
			body:   `{"id":"c1","object":"chat.completion","choices":[]}`,
			want:   exchange.ErrTransport,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := newTestOpenAI(t, &fakeAPI{status: tt.status, body: tt.body}, time.Second)
			_, err := o.Complete(context.Background(), exchange.Request{Text: "hi"})
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestOpenAI_Timeout(t *testing.T) {
	api := &fakeAPI{status: http.StatusOK, body: okBody, delay: 2 * time.Second}
	o := newTestOpenAI(t, api, 50*time.Millisecond)

	_, err := o.Complete(context.Background(), exchange.Request{Text: "hi"})
	if !errors.Is(err, exchange.ErrTransport) {
		t.Fatalf("error = %v, want ErrTransport", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want to wrap context.DeadlineExceeded", err)
	}
}

func TestOpenAI_CustomSystemPrompt(t *testing.T) {
	api := &fakeAPI{status: http.StatusOK, body: okBody}
	srv := httptest.NewServer(api)
	defer srv.Close()
	o, err := NewOpenAI(OpenAIOpts{BaseURL: srv.URL + "/v1", Model: "m", SystemPrompt: "Be terse."})
	if err != nil {
		t.Fatalf("NewOpenAI: %v", err)
	}
	if _, err := o.Complete(context.Background(), exchange.Request{Text: "hi"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := api.requests[0].Messages[0].Content; got != "Be terse." {
		t.Errorf("system prompt = %q", got)
	}
}

func TestMock_DefaultReply(t *testing.T) {
	m := NewMock("Sage")
	reply, err := m.Complete(context.Background(), exchange.Request{Text: "hello"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if !strings.Contains(reply, "Sage") || !strings.Contains(reply, "hello") {
		t.Errorf("reply = %q", reply)
	}
	if len(m.Requests()) != 1 {
		t.Errorf("requests = %d, want 1", len(m.Requests()))
	}
}

func TestMock_ScriptedRepliesCycle(t *testing.T) {
	m := NewMock("")
	m.SetReplies("one", "two")
	ctx := context.Background()
	var got []string
	for i := 0; i < 3; i++ {
		r, _ := m.Complete(ctx, exchange.Request{Text: "x"})
		got = append(got, r)
	}
	if strings.Join(got, ",") != "one,two,one" {
		t.Errorf("replies = %v", got)
	}
}

func TestMock_ErrorAndDelay(t *testing.T) {
	m := NewMock("")
	boom := errors.New("boom")
	m.SetError(boom)
	if _, err := m.Complete(context.Background(), exchange.Request{}); !errors.Is(err, boom) {
		t.Errorf("error = %v, want %v", err, boom)
	}

	m.SetError(nil)
	m.SetDelay(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := m.Complete(ctx, exchange.Request{}); !errors.Is(err, exchange.ErrTransport) {
		t.Errorf("error = %v, want ErrTransport", err)
	}
}

func TestFromConfig(t *testing.T) {
	c, err := FromConfig(config.AIConfig{Provider: "mock", Name: "Sage"}, nil)
	if err != nil {
		t.Fatalf("FromConfig(mock): %v", err)
	}
	if _, ok := c.(*Mock); !ok {
		t.Errorf("FromConfig(mock) = %T, want *Mock", c)
	}

	t.Setenv("COINCHAT_TEST_OPENAI", "sk-x")
	c, err = FromConfig(config.AIConfig{Provider: "openai", Model: "m", APIKeyEnv: "COINCHAT_TEST_OPENAI"}, nil)
	if err != nil {
		t.Fatalf("FromConfig(openai): %v", err)
	}
	if _, ok := c.(*OpenAI); !ok {
		t.Errorf("FromConfig(openai) = %T, want *OpenAI", c)
	}

	if _, err := FromConfig(config.AIConfig{Provider: "nope"}, nil); err == nil {
		t.Error("expected error for unknown provider")
	}
}
