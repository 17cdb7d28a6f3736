package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/qaforge/backend/internal/metrics"
	"github.com/qaforge/backend/pkg/circuitbreaker"
	"github.com/qaforge/backend/pkg/logger"
	"github.com/qaforge/backend/pkg/retry"
)

const cleaningPrompt = `You are an expert text cleaner. Goal: extract only the main informative content.

Remove ALL of the following:
- Navigation, menus, headers, footers
- Bracketed references like [1], [2], etc.
- Technical metadata, modification dates
- Advertisements and promotional content
- "edit" or "edit code" mentions
- Language lists and navigation links
- Scripts and technical tags

KEEP ONLY:
- The main written content
- Important factual information
- Logical structure in clear paragraphs

Respond only with the cleaned text, no comments.`

const qaPromptTemplate = `Generate high-quality question-answer pairs based on this text.

Strict rules:
- Varied questions (what, who, when, where, why, how)
- Complete and precise answers (minimum 2 sentences)
- Avoid trivial or overly generic questions
- Questions and answers must be in %s language
- Respond with ONLY a JSON array: [{"question": "...", "answer": "...", "confidence": 0.9}]

Source text:
%s`

// QAPair is one generated question-answer candidate.
type QAPair struct {
	Question   string  `json:"question"`
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"`
}

type Config struct {
	APIKey           string
	BaseURL          string
	Temperature      float32
	MaxTokensClean   int
	MaxTokensQA      int
	Timeout          time.Duration
	MaxCleaningInput int
}

type Client struct {
	client           *openai.Client
	temperature      float32
	maxTokensClean   int
	maxTokensQA      int
	timeout          time.Duration
	maxCleaningInput int
	cb               *circuitbreaker.CircuitBreaker
	retryConfig      retry.Config
}

func NewClient(cfg Config) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxTokensClean == 0 {
		cfg.MaxTokensClean = 4096
	}
	if cfg.MaxTokensQA == 0 {
		cfg.MaxTokensQA = 2048
	}
	if cfg.MaxCleaningInput == 0 {
		cfg.MaxCleaningInput = 10000
	}

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	return &Client{
		client:           openai.NewClientWithConfig(clientCfg),
		temperature:      cfg.Temperature,
		maxTokensClean:   cfg.MaxTokensClean,
		maxTokensQA:      cfg.MaxTokensQA,
		timeout:          cfg.Timeout,
		maxCleaningInput: cfg.MaxCleaningInput,
		cb:               cb,
		retryConfig:      retryConfig,
	}
}

// CleanText asks the model to strip boilerplate from extracted page text.
// A failed call degrades to the original text rather than failing the
// caller; cleaning is an improvement, not a prerequisite.
func (c *Client) CleanText(ctx context.Context, text, model string) string {
	input := text
	if len(input) > c.maxCleaningInput {
		input = input[:c.maxCleaningInput]
	}

	content, err := c.complete(ctx, model, cleaningPrompt, input, c.maxTokensClean)
	if err != nil {
		logger.Error("Text cleaning failed, using raw text", zap.Error(err))
		return strings.TrimSpace(text)
	}

	cleaned := strings.TrimSpace(content)
	if cleaned == "" {
		return strings.TrimSpace(text)
	}
	return cleaned
}

// GenerateQA produces question-answer candidates for the given text in the
// target language. Unlike cleaning, a failure here is fatal to the caller:
// there is nothing sensible to degrade to.
func (c *Client) GenerateQA(ctx context.Context, text, targetLanguage, model string) ([]QAPair, error) {
	if targetLanguage == "" {
		targetLanguage = "en"
	}

	prompt := fmt.Sprintf(qaPromptTemplate, targetLanguage, text)

	content, err := c.complete(ctx, model, "You are a dataset generation assistant.", prompt, c.maxTokensQA)
	if err != nil {
		return nil, fmt.Errorf("qa generation failed: %w", err)
	}

	pairs, err := parseQAPairs(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse qa response: %w", err)
	}

	logger.Info("QA pairs generated", zap.Int("count", len(pairs)), zap.String("model", model))
	return pairs, nil
}

func (c *Client) complete(ctx context.Context, model, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var content string

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       model,
				Temperature: c.temperature,
				MaxTokens:   maxTokens,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
					{Role: openai.ChatMessageRoleUser, Content: userPrompt},
				},
			})
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			metrics.LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(resp.Usage.CompletionTokens))

			content = resp.Choices[0].Message.Content
			return nil
		})
	})

	return content, err
}

// parseQAPairs decodes the model's JSON array, tolerating markdown code
// fences and stray prose around the array.
func parseQAPairs(content string) ([]QAPair, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start == -1 || end == -1 || end < start {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var pairs []QAPair
	if err := json.Unmarshal([]byte(content[start:end+1]), &pairs); err != nil {
		return nil, err
	}

	for i := range pairs {
		pairs[i].Question = strings.TrimSpace(pairs[i].Question)
		pairs[i].Answer = strings.TrimSpace(pairs[i].Answer)
		if pairs[i].Question != "" && !strings.HasSuffix(pairs[i].Question, "?") {
			pairs[i].Question += "?"
		}
	}

	return pairs, nil
}
