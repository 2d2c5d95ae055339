// Package summarizer condenses article texts into one short paragraph, using
// an OpenAI-compatible chat model when configured and a local extractive
// method otherwise.
package summarizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/FranksOps/sift/internal/metrics"
	openai "github.com/sashabaranov/go-openai"
)

// Strategy names how a summary was produced.
type Strategy string

const (
	StrategyAI         Strategy = "ai"
	StrategyExtractive Strategy = "extractive"
)

const systemPrompt = "You are a helpful assistant that summarizes texts."

var errNoChoices = errors.New("summarizer: empty completion")

// Result is a summary plus how it was made.
type Result struct {
	Text     string
	Strategy Strategy
	// Degraded is set when the AI strategy was attempted and failed.
	Degraded bool
}

// ChatCompleter is the slice of the OpenAI client the summarizer uses.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config tunes the Summarizer. An empty APIKey disables the AI strategy.
type Config struct {
	APIKey        string
	BaseURL       string
	Model         string
	Timeout       time.Duration
	MaxInputChars int
	MaxTokens     int
	Temperature   float32
	MaxSentences  int
}

func (c *Config) setDefaults() {
	if c.Model == "" {
		c.Model = openai.GPT3Dot5Turbo
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxInputChars <= 0 {
		c.MaxInputChars = 12000
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 150
	}
	if c.Temperature == 0 {
		c.Temperature = 0.5
	}
	if c.MaxSentences <= 0 {
		c.MaxSentences = DefaultMaxSentences
	}
}

// Summarizer never fails: every call returns displayable text.
type Summarizer struct {
	cfg    Config
	client ChatCompleter
	logger *slog.Logger
}

// New creates a Summarizer. The OpenAI client is only built when an API key
// is configured.
func New(cfg Config, logger *slog.Logger) *Summarizer {
	cfg.setDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	s := &Summarizer{cfg: cfg, logger: logger}
	if cfg.APIKey != "" {
		oc := openai.DefaultConfig(cfg.APIKey)
		if cfg.BaseURL != "" {
			oc.BaseURL = cfg.BaseURL
		}
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
		s.client = openai.NewClientWithConfig(oc)
	}
	return s
}

// WithClient replaces the chat client. A nil client disables the AI strategy.
func (s *Summarizer) WithClient(c ChatCompleter) *Summarizer {
	s.client = c
	return s
}

// AIEnabled reports whether Summarize will try the AI strategy first.
func (s *Summarizer) AIEnabled() bool {
	return s.client != nil
}

// Summarize condenses texts with regard to query.
func (s *Summarizer) Summarize(ctx context.Context, texts []string, query string) Result {
	res := s.summarize(ctx, texts, query)
	metrics.RecordSummary(string(res.Strategy), res.Degraded)
	return res
}

func (s *Summarizer) summarize(ctx context.Context, texts []string, query string) Result {
	if s.client == nil {
		return Result{Text: Extractive(texts, s.cfg.MaxSentences), Strategy: StrategyExtractive}
	}

	text, err := s.complete(ctx, texts, query)
	if err != nil {
		s.logger.Warn("ai summary failed, using extractive fallback", "query", query, "err", err)
		return Result{
			Text:     Extractive(texts, s.cfg.MaxSentences),
			Strategy: StrategyExtractive,
			Degraded: true,
		}
	}
	return Result{Text: text, Strategy: StrategyAI}
}

func (s *Summarizer) complete(ctx context.Context, texts []string, query string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: Prompt(query, truncate(strings.Join(texts, "\n\n"), s.cfg.MaxInputChars))},
		},
		Temperature:      s.cfg.Temperature,
		MaxTokens:        s.cfg.MaxTokens,
		TopP:             1.0,
		FrequencyPenalty: 0,
		PresencePenalty:  0,
	})
	if err != nil {
		return "", fmt.Errorf("summarizer: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errNoChoices
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errNoChoices
	}
	return text, nil
}

// Prompt is the user instruction sent to the model.
func Prompt(query, text string) string {
	return fmt.Sprintf("Based on the following articles, provide a concise summary of the key findings regarding '%s'. "+
		"The summary should be a single, coherent paragraph of 3-5 sentences. Here is the text:\n\n%s", query, text)
}

// truncate keeps at most n characters of s.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
