package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAITranslator translates via the chat-completions API. The model is
// asked for a strict JSON object so the reply can be decoded directly.
type OpenAITranslator struct {
	client *openai.Client
	model  string
	target string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // optional
	Target  string // target language, default "Chinese"
}

func NewOpenAI(cfg OpenAIConfig) (*OpenAITranslator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai translator: api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, fmt.Errorf("openai translator: model is required")
	}

	var c *openai.Client
	if cfg.BaseURL != "" {
		cc := openai.DefaultConfig(cfg.APIKey)
		cc.BaseURL = cfg.BaseURL
		c = openai.NewClientWithConfig(cc)
	} else {
		c = openai.NewClient(cfg.APIKey)
	}

	target := strings.TrimSpace(cfg.Target)
	if target == "" {
		target = "Chinese"
	}
	return &OpenAITranslator{client: c, model: cfg.Model, target: target}, nil
}

func (t *OpenAITranslator) Translate(ctx context.Context, title, description string) (*Translation, error) {
	sys := fmt.Sprintf(
		`You translate financial news headlines into %s. Reply with a JSON object `+
			`{"title": "...", "description": "..."} containing only the translations, nothing else. `+
			`Keep ticker symbols and company names as-is.`, t.target)
	user := fmt.Sprintf("Title: %s\nDescription: %s", title, description)

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: t.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: sys},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var out Translation
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err != nil {
		// Model ignored the shape; treat as a miss rather than an error.
		return nil, nil
	}
	if out.Title == "" && out.Description == "" {
		return nil, nil
	}
	return &out, nil
}
