// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openai

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/poiesic/knowledge/ai"
)

// maxParseAttempts bounds retries on malformed model output.
const maxParseAttempts = 3

// ErrContextualizerDisabled is returned when a contextualizer is requested
// from a config with contextual knowledge turned off.
var ErrContextualizerDisabled = errors.New("contextual knowledge is disabled")

// Contextualizer implements ai.Contextualizer using OpenAI-compatible chat APIs.
type Contextualizer struct {
	client         llms.Model
	maxInputTokens int
	logger         *slog.Logger
}

type contextResponse struct {
	Context string `json:"context"`
}

// newContextualizer is an internal constructor that returns the concrete type.
func newContextualizer(config *ai.Config) (*Contextualizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if !config.ContextualKnowledge {
		return nil, ErrContextualizerDisabled
	}

	client, err := openai.New(
		openai.WithBaseURL(config.TextHost),
		openai.WithToken(config.TextAPIKey),
		openai.WithModel(config.TextModel),
	)
	if err != nil {
		return nil, err
	}
	return newContextualizerWithModel(client, config.MaxInputTokens), nil
}

func newContextualizerWithModel(client llms.Model, maxInputTokens int) *Contextualizer {
	return &Contextualizer{
		client:         client,
		maxInputTokens: maxInputTokens,
		logger:         slog.Default().With("component", "openai-contextualizer"),
	}
}

// NewContextualizer creates a new contextualizer using the provided configuration.
//
// Returns ai.Contextualizer interface to enforce abstraction.
func NewContextualizer(config *ai.Config) (ai.Contextualizer, error) {
	return newContextualizer(config)
}

// Contextualize asks the chat model for a passage situating chunk within document.
// The document is truncated to the configured input token budget.
func (c *Contextualizer) Contextualize(ctx context.Context, document, chunk string) (string, error) {
	doc := truncateDocument(document, c.maxInputTokens)
	content := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(buildSystemPrompt())},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(buildUserPrompt(doc, chunk))},
		},
	}

	var result contextResponse
	var lastErr error
	for attempt := 0; attempt < maxParseAttempts; attempt++ {
		response, err := c.client.GenerateContent(ctx, content, llms.WithTemperature(0.0), llms.WithJSONMode())
		if err != nil {
			c.logger.Error("failed to generate content", "attempt", attempt+1, "err", err)
			return "", err
		}

		if len(response.Choices) < 1 {
			c.logger.Debug("no choices returned from model")
			return "", nil
		}

		responseText := repairJSON(stripCodeFences(response.Choices[0].Content))
		if err := json.Unmarshal([]byte(responseText), &result); err != nil {
			lastErr = err
			c.logger.Warn("error parsing context response",
				"attempt", attempt+1,
				"response", responseText,
				"err", err)
			continue
		}

		lastErr = nil
		break
	}

	if lastErr != nil {
		c.logger.Error("failed to parse context response after retries", "err", lastErr)
		return "", lastErr
	}

	passage := collapseWhitespace(result.Context)
	c.logger.Debug("generated context", "chunk_length", len(chunk), "context_length", len(passage))
	return passage, nil
}
