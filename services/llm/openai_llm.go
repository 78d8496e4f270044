package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// intentSystemPrompt pins the model to the five labels and a strict JSON
// shape. Anything else fails parsing and drops us to the regex fallback.
const intentSystemPrompt = `You classify utterances sent to a vehicle-search assistant.
Output ONLY a JSON object: {"intent": "<label>", "confidence": <0.0-1.0>}.
Labels:
- "search": a new vehicle search ("reliable BMW under 20k")
- "refine": adjusts the previous search ("cheaper ones", "in blue")
- "compare": asks to compare specific vehicles
- "information": asks about a vehicle's details or general car facts
- "off_topic": anything not about vehicles
No prose, no markdown, JSON only.`

// OpenAIClassifier classifies intent through the OpenAI chat API.
type OpenAIClassifier struct {
	client *openai.Client
	model  string
}

// NewOpenAIClassifier builds a classifier from the environment.
// Reads OPENAI_API_KEY (or the container secret) and OPENAI_MODEL.
func NewOpenAIClassifier() (*OpenAIClassifier, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API key from container secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	slog.Info("Initializing OpenAI intent classifier", "model", model)
	return &OpenAIClassifier{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Classify implements the IntentClassifier interface.
func (o *OpenAIClassifier) Classify(ctx context.Context, text, previousText string) (IntentResult, error) {
	slog.Debug("Classifying intent via OpenAI", "model", o.model)

	userContent := text
	if previousText != "" {
		userContent = fmt.Sprintf("Previous utterance: %q\nCurrent utterance: %q", previousText, text)
	}

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: intentSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Temperature: 0,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI intent classification failed", "error", err)
		return IntentResult{}, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices for intent classification")
		return IntentResult{}, fmt.Errorf("OpenAI returned no choices")
	}

	return parseIntentJSON(resp.Choices[0].Message.Content)
}

func (o *OpenAIClassifier) Available() bool { return true }

// parseIntentJSON enforces the strict output contract.
func parseIntentJSON(content string) (IntentResult, error) {
	var result IntentResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &result); err != nil {
		return IntentResult{}, fmt.Errorf("classifier output is not valid JSON: %w", err)
	}
	switch result.Intent {
	case "search", "refine", "compare", "information", "off_topic":
	default:
		return IntentResult{}, fmt.Errorf("classifier returned unknown intent %q", result.Intent)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return IntentResult{}, fmt.Errorf("classifier confidence %f out of range", result.Confidence)
	}
	return result, nil
}
