package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/grantwatch/retrieval/internal/domain"
)

const summarizerSystemPrompt = "You summarize government funding opportunities. " +
	"Write a short plain-text summary covering what is funded, who may apply, and the deadline."

// Summarizer generates grant summaries via an OpenAI-compatible chat endpoint.
// Every call runs under a per-call timeout; a timeout is a recoverable error,
// not fatal to the process.
type Summarizer struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// SummarizerConfig holds the summarizer settings.
type SummarizerConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewSummarizer creates a chat-completion summarizer.
func NewSummarizer(cfg *SummarizerConfig) *Summarizer {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Summarizer{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: timeout,
		logger:  cfg.Logger,
	}
}

// Summarize produces a natural-language summary of a grant record.
func (s *Summarizer) Summarize(ctx context.Context, rec domain.GrantRecord) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarizerSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: summaryPrompt(&rec)},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("summarize %s after %s: %w",
				rec.OpportunityID(), s.timeout, domain.ErrExternalToolTimeout)
		}
		return "", fmt.Errorf("summarize %s: %v: %w", rec.OpportunityID(), err, domain.ErrExternalToolError)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("empty summary for %s: %w", rec.OpportunityID(), domain.ErrExternalToolError)
	}

	s.logger.Debug("Summary generated",
		zap.String("opportunity_id", rec.OpportunityID()),
		zap.Duration("duration", time.Since(start)),
	)

	return resp.Choices[0].Message.Content, nil
}

// summaryPrompt renders the record attributes the summarizer may use.
func summaryPrompt(rec *domain.GrantRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Opportunity ID: %s\nTitle: %s\n", rec.OpportunityID(), rec.Title())
	if rec.Agency() != "" {
		fmt.Fprintf(&b, "Agency: %s\n", rec.Agency())
	}
	if rec.Category() != "" {
		fmt.Fprintf(&b, "Category: %s\n", rec.Category())
	}
	if rec.FundingType() != "" {
		fmt.Fprintf(&b, "Funding type: %s\n", rec.FundingType())
	}
	if !rec.CloseDate().IsZero() {
		fmt.Fprintf(&b, "Close date: %s\n", rec.CloseDate().Format("2006-01-02"))
	}
	if rec.Description() != "" {
		fmt.Fprintf(&b, "Description: %s\n", rec.Description())
	}
	return b.String()
}
