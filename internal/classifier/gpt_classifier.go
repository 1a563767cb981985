package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/caelusway/bio-sync-bot-sub000/internal/models"
)

type gptTopicResponse struct {
	Topic string `json:"topic"`
}

type GPTClassifier struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

func NewGPTClassifier(apiKey, model string, maxTokens int, temperature float64, logger *zap.Logger) *GPTClassifier {
	return &GPTClassifier{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

func (c *GPTClassifier) SuggestTopic(ctx context.Context, channelName string) (models.Topic, error) {
	known := make([]string, 0, len(models.KnownTopics))
	for _, t := range models.KnownTopics {
		known = append(known, string(t))
	}

	prompt := fmt.Sprintf(`Pick the single best topic for a community chat channel named %q.
Allowed topics: %s

Return the response as a JSON object with this structure:
{
    "topic": "chosen_topic"
}`, channelName, strings.Join(known, ", "))

	resp, err := c.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: prompt,
				},
			},
			MaxTokens:   c.maxTokens,
			Temperature: float32(c.temperature),
		},
	)
	if err != nil {
		c.logger.Error("Failed to get GPT response", zap.Error(err))
		return "", fmt.Errorf("topic suggestion failed: %w", err)
	}

	var parsed gptTopicResponse
	response := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		c.logger.Error("Failed to parse GPT response",
			zap.Error(err),
			zap.String("response", response))
		return "", fmt.Errorf("unparseable topic suggestion: %w", err)
	}

	topic := models.Topic(strings.ToLower(strings.TrimSpace(parsed.Topic)))
	if !models.IsKnownTopic(topic) {
		return "", fmt.Errorf("suggested topic %q is not a known topic", parsed.Topic)
	}
	return topic, nil
}
