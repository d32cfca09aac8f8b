package genai

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
	"github.com/solenne-labs/serene-bot/internal/models"
	"go.uber.org/zap"
)

// OpenAIGenerator implements Generator on the OpenAI chat completion API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

func NewOpenAIGenerator(apiKey, model string, maxTokens int, temperature float64, logger *zap.Logger) *OpenAIGenerator {
	return &OpenAIGenerator{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

func (g *OpenAIGenerator) request(systemPrompt string, messages []models.Message) openai.ChatCompletionRequest {
	chatMessages := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if systemPrompt != "" {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}
	for _, m := range messages {
		chatMessages = append(chatMessages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    chatMessages,
		MaxTokens:   g.maxTokens,
		Temperature: float32(g.temperature),
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, systemPrompt string, messages []models.Message) (*Result, error) {
	resp, err := g.client.CreateChatCompletion(ctx, g.request(systemPrompt, messages))
	if err != nil {
		g.logger.Error("Chat completion failed", zap.Error(err))
		return nil, &models.TransientGenerationError{Op: "generate", Err: err}
	}
	if len(resp.Choices) == 0 {
		return nil, &models.TransientGenerationError{Op: "generate", Err: errors.New("empty response")}
	}
	return &Result{
		Content: strings.TrimSpace(resp.Choices[0].Message.Content),
		Usage: models.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func (g *OpenAIGenerator) Stream(ctx context.Context, systemPrompt string, messages []models.Message, onChunk func(string) error) (*Result, error) {
	req := g.request(systemPrompt, messages)
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		g.logger.Error("Chat completion stream failed to open", zap.Error(err))
		return nil, &models.TransientGenerationError{Op: "stream", Err: err}
	}
	defer stream.Close()

	var buf strings.Builder
	var usage models.Usage

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			g.logger.Error("Chat completion stream interrupted", zap.Error(err))
			return nil, &models.TransientGenerationError{Op: "stream", Err: err}
		}

		// The terminal chunk carries usage and no choices.
		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		buf.WriteString(delta)
		if onChunk != nil {
			if err := onChunk(delta); err != nil {
				return nil, &models.TransientGenerationError{Op: "stream", Err: err}
			}
		}
	}

	return &Result{Content: buf.String(), Usage: usage}, nil
}
