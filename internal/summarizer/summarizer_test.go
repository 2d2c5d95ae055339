package summarizer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

var texts = []string{
	"Asyncio runs coroutines on an event loop. The event loop schedules tasks. Coffee is hot.",
	"Tasks wrap coroutines for the event loop. Cancellation propagates through tasks.",
}

func fakeAI(t *testing.T, handler func(req openai.ChatCompletionRequest) (int, string)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		status, body := handler(req)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprint(w, body)
	}))
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"index": 0, "message": map[string]string{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func TestSummarize_NoKeyUsesExtractive(t *testing.T) {
	s := New(Config{}, nil)
	if s.AIEnabled() {
		t.Fatal("expected AI strategy disabled without a key")
	}

	res := s.Summarize(context.Background(), texts, "asyncio")
	if res.Strategy != StrategyExtractive || res.Degraded {
		t.Errorf("expected non-degraded extractive summary, got %+v", res)
	}
	if res.Text != Extractive(texts, DefaultMaxSentences) {
		t.Errorf("unexpected text %q", res.Text)
	}
}

func TestSummarize_AI(t *testing.T) {
	var got openai.ChatCompletionRequest
	ts := fakeAI(t, func(req openai.ChatCompletionRequest) (int, string) {
		got = req
		return http.StatusOK, completion("  Asyncio schedules coroutines as tasks.  ")
	})
	defer ts.Close()

	s := New(Config{APIKey: "sk-test", BaseURL: ts.URL + "/v1", Timeout: 2 * time.Second}, nil)
	res := s.Summarize(context.Background(), texts, "asyncio")

	if res.Strategy != StrategyAI || res.Degraded {
		t.Fatalf("expected AI summary, got %+v", res)
	}
	if res.Text != "Asyncio schedules coroutines as tasks." {
		t.Errorf("expected trimmed completion, got %q", res.Text)
	}

	if got.Model != openai.GPT3Dot5Turbo {
		t.Errorf("unexpected model %q", got.Model)
	}
	if got.Temperature != 0.5 || got.MaxTokens != 150 || got.TopP != 1.0 {
		t.Errorf("unexpected sampling parameters: %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Content != systemPrompt {
		t.Fatalf("unexpected messages: %+v", got.Messages)
	}
	if !strings.Contains(got.Messages[1].Content, "'asyncio'") {
		t.Errorf("expected query in prompt, got %q", got.Messages[1].Content)
	}
	if !strings.Contains(got.Messages[1].Content, texts[0]+"\n\n"+texts[1]) {
		t.Errorf("expected joined texts in prompt")
	}
}

func TestSummarize_TruncatesInput(t *testing.T) {
	var prompt string
	ts := fakeAI(t, func(req openai.ChatCompletionRequest) (int, string) {
		prompt = req.Messages[1].Content
		return http.StatusOK, completion("ok")
	})
	defer ts.Close()

	long := strings.Repeat("x", 20000)
	s := New(Config{APIKey: "sk-test", BaseURL: ts.URL + "/v1"}, nil)
	s.Summarize(context.Background(), []string{long}, "q")

	want := Prompt("q", strings.Repeat("x", 12000))
	if prompt != want {
		t.Errorf("expected prompt truncated to 12000 chars, got %d chars", len(prompt))
	}
}

func TestSummarize_TimeoutFallsBack(t *testing.T) {
	ts := fakeAI(t, func(req openai.ChatCompletionRequest) (int, string) {
		time.Sleep(300 * time.Millisecond)
		return http.StatusOK, completion("too late")
	})
	defer ts.Close()

	s := New(Config{APIKey: "sk-test", BaseURL: ts.URL + "/v1", Timeout: 50 * time.Millisecond}, nil)
	res := s.Summarize(context.Background(), texts, "asyncio")

	if !res.Degraded || res.Strategy != StrategyExtractive {
		t.Errorf("expected degraded extractive result, got %+v", res)
	}
	if res.Text != Extractive(texts, DefaultMaxSentences) {
		t.Errorf("expected fallback text to equal the extractive summary, got %q", res.Text)
	}
}

func TestSummarize_ServiceErrors(t *testing.T) {
	cases := map[string]func(openai.ChatCompletionRequest) (int, string){
		"unauthorized": func(openai.ChatCompletionRequest) (int, string) {
			return http.StatusUnauthorized, `{"error":{"message":"bad key","type":"invalid_request_error"}}`
		},
		"malformed": func(openai.ChatCompletionRequest) (int, string) {
			return http.StatusOK, `{"choices":`
		},
		"no choices": func(openai.ChatCompletionRequest) (int, string) {
			return http.StatusOK, `{"choices":[]}`
		},
		"blank content": func(openai.ChatCompletionRequest) (int, string) {
			return http.StatusOK, completion("   ")
		},
	}

	for name, handler := range cases {
		t.Run(name, func(t *testing.T) {
			ts := fakeAI(t, handler)
			defer ts.Close()

			s := New(Config{APIKey: "sk-test", BaseURL: ts.URL + "/v1", Timeout: time.Second}, nil)
			res := s.Summarize(context.Background(), texts, "asyncio")
			if !res.Degraded || res.Text != Extractive(texts, DefaultMaxSentences) {
				t.Errorf("expected degraded extractive fallback, got %+v", res)
			}
		})
	}
}

type stubClient struct{ err error }

func (s stubClient) CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return openai.ChatCompletionResponse{}, s.err
}

func TestSummarize_WithClient(t *testing.T) {
	s := New(Config{}, nil).WithClient(stubClient{err: context.DeadlineExceeded})
	if !s.AIEnabled() {
		t.Fatal("expected AI enabled with injected client")
	}
	res := s.Summarize(context.Background(), nil, "q")
	if !res.Degraded || res.Text != Sentinel {
		t.Errorf("expected degraded sentinel for empty input, got %+v", res)
	}
}
