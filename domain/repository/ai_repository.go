package repository

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/Songmu/retry"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/azure"
	"github.com/openai/openai-go/option"
	"github.com/pyama86/dlpwatch/domain/entity"
)

const summaryBasePrompt = `## Task
You are assisting a DLP (data loss prevention) operator. Summarize the incidents below for an executive report.

## Format
Plain markdown, at most 1500 characters, with these sections:
### Overview
### Most affected users
### Most affected platforms
### Recommended actions

## Incidents`

type AIRepository struct {
	client     *openai.Client
	model      string
	maxTokens  int
	tokenCalc  *TokenCalculator
	severityOf SeverityFunc
	attempts   uint
	wait       time.Duration
}

type AIOption func(*AIRepository)

func WithAIMaxTokens(n int) AIOption {
	return func(r *AIRepository) {
		if n > 0 {
			r.maxTokens = n
		}
	}
}

func WithAIRetry(attempts uint, wait time.Duration) AIOption {
	return func(r *AIRepository) {
		if attempts > 0 {
			r.attempts = attempts
		}
		r.wait = wait
	}
}

func WithAITokenCalculator(tc *TokenCalculator) AIOption {
	return func(r *AIRepository) {
		r.tokenCalc = tc
	}
}

// NewAIRepository はAPIキーが設定されていなければnilを返す
func NewAIRepository(severityOf SeverityFunc) (*AIRepository, error) {
	if os.Getenv("OPENAI_API_KEY") == "" && os.Getenv("AZURE_OPENAI_KEY") == "" {
		return nil, nil
	}

	var model = "gpt-4"
	if os.Getenv("OPENAI_MODEL") != "" {
		model = os.Getenv("OPENAI_MODEL")
	}
	client, err := newOpenAIClient()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenAI client: %w", err)
	}

	tokenCalc, err := NewTokenCalculator()
	if err != nil {
		slog.Warn("Failed to create token calculator, using estimation", slog.Any("err", err))
		tokenCalc = &TokenCalculator{}
	}
	return NewAIRepositoryWithClient(client, model, severityOf,
		WithAIMaxTokens(GetMaxTokens()),
		WithAITokenCalculator(tokenCalc),
	), nil
}

func NewAIRepositoryWithClient(client *openai.Client, model string, severityOf SeverityFunc, opts ...AIOption) *AIRepository {
	r := &AIRepository{
		client:     client,
		model:      model,
		maxTokens:  DefaultMaxTokens,
		tokenCalc:  &TokenCalculator{},
		severityOf: severityOf,
		attempts:   3,
		wait:       3 * time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func newOpenAIClient() (*openai.Client, error) {
	if os.Getenv("AZURE_OPENAI_ENDPOINT") != "" {
		return newAzureClient()
	}

	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY is not set")
	}
	options := []option.RequestOption{
		option.WithAPIKey(key),
	}

	c := openai.NewClient(options...)
	return &c, nil
}

func newAzureClient() (*openai.Client, error) {
	key := os.Getenv("AZURE_OPENAI_KEY")
	if key == "" {
		return nil, fmt.Errorf("AZURE_OPENAI_KEY is not set")
	}
	var azureOpenAIEndpoint = os.Getenv("AZURE_OPENAI_ENDPOINT")

	var azureOpenAIAPIVersion = "2025-01-01-preview"

	if os.Getenv("AZURE_OPENAI_API_VERSION") != "" {
		azureOpenAIAPIVersion = os.Getenv("AZURE_OPENAI_API_VERSION")
	}

	c := openai.NewClient(
		azure.WithEndpoint(azureOpenAIEndpoint, azureOpenAIAPIVersion),
		azure.WithAPIKey(key),
	)
	return &c, nil
}

// SummarizeIncidents はインシデント一覧の要約を作る。
// トークン制限を超える場合は分割して要約し、最後に統合する
func (h *AIRepository) SummarizeIncidents(ctx context.Context, incidents []entity.Incident) (string, error) {
	if len(incidents) == 0 {
		return "", nil
	}

	prioritized := h.tokenCalc.PrioritizeIncidents(incidents, h.severityOf)
	if h.tokenCalc.CountIncidentsTokens(prioritized, summaryBasePrompt) <= h.maxTokens {
		return h.callOpenAIWithRetry(ctx, h.buildPrompt(prioritized))
	}

	chunks := h.tokenCalc.SplitIncidents(prioritized, summaryBasePrompt, h.maxTokens)
	slog.Info("Incidents exceed token limit, summarizing in chunks",
		slog.Int("incidents", len(incidents)),
		slog.Int("chunks", len(chunks)))

	summaries := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		summary, err := h.callOpenAIWithRetry(ctx, h.buildPrompt(chunk))
		if err != nil {
			return "", fmt.Errorf("failed to summarize chunk %d: %w", i+1, err)
		}
		summaries = append(summaries, summary)
	}

	if len(summaries) == 1 {
		return summaries[0], nil
	}
	return h.callOpenAIWithRetry(ctx, h.tokenCalc.CreateMergePrompt(summaries))
}

func (h *AIRepository) buildPrompt(incidents []entity.Incident) string {
	var builder strings.Builder
	builder.WriteString(summaryBasePrompt)
	builder.WriteString("\n")
	for _, inc := range incidents {
		builder.WriteString(h.tokenCalc.FormatIncident(inc))
		builder.WriteString("\n")
	}
	return builder.String()
}

func (h *AIRepository) callOpenAIWithRetry(ctx context.Context, prompt string) (string, error) {
	var result string
	err := retry.Retry(h.attempts, h.wait, func() error {
		if ctx.Err() != nil {
			return nil
		}
		resp, err := h.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Model: h.model,
		})
		if err != nil {
			return err
		}

		if len(resp.Choices) == 0 {
			return fmt.Errorf("no response from OpenAI")
		}

		result = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	return result, nil
}
