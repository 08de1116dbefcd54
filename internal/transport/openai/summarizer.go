package openai

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/scrapfeed/scrapfeed/internal/metrics"
)

const summarySystemPrompt = "You summarize web articles. Reply with a " +
	"2-3 sentence summary of the article, nothing else."

// Summarizer condenses extracted page text via a chat completion.
type Summarizer struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewSummarizer creates a summary provider.
func NewSummarizer(cfg Config, model string, maxTokens int) *Summarizer {
	return &Summarizer{
		client:    newClient(cfg),
		model:     model,
		maxTokens: maxTokens,
	}
}

// Summarize returns a short summary of the article text.
func (s *Summarizer) Summarize(ctx context.Context, title, content string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: summarySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: title + "\n\n" + content},
		},
	})
	if err != nil {
		metrics.SummaryRequestsTotal.WithLabelValues(s.model, "error").Inc()
		return "", fmt.Errorf("summary request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		metrics.SummaryRequestsTotal.WithLabelValues(s.model, "error").Inc()
		return "", fmt.Errorf("empty summary response")
	}

	metrics.SummaryRequestsTotal.WithLabelValues(s.model, "success").Inc()
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
