package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultModel is the hosted model used when none is configured.
	DefaultModel = "gpt-4"
	// Temperature is the sampling temperature for every chat request.
	Temperature float32 = 0.8
)

// ErrNoChoices is returned when the API answers without any generated choice.
var ErrNoChoices = errors.New("chat completion returned no choices")

// Message is a minimal chat message used by the core chat service.
// Role must be one of: "system", "user", or "assistant".
type Message struct {
	Role    string
	Content string
}

// Roles accepted by the completion API.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Client defines the method required by the chat service.
// Chat accepts the full message history (system + prior turns + latest user).
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Completion is the outcome of one chat request: either generated text or
// the reason no text could be produced.
type Completion struct {
	Text string
	Err  error
}

// OK reports whether the completion succeeded.
func (c Completion) OK() bool { return c.Err == nil }

// Complete calls the client and folds its result into a Completion.
func Complete(ctx context.Context, client Client, messages []Message) Completion {
	if client == nil {
		return Completion{Err: errors.New("llm client not configured")}
	}
	text, err := client.Chat(ctx, messages)
	if err != nil {
		return Completion{Err: err}
	}
	return Completion{Text: text}
}

// Options configures an OpenAIClient.
type Options struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAIClient calls the OpenAI chat completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient constructs an OpenAI-backed LLM client. Empty options fall
// back to the package defaults.
func NewOpenAIClient(opts Options) *OpenAIClient {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Model returns the model identifier sent with every request.
func (c *OpenAIClient) Model() string { return c.model }

// Chat sends the message history to the OpenAI chat completion API and returns
// the assistant's response.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) (string, error) {
	if c.client == nil {
		return "", errors.New("openai client not initialized")
	}

	// Convert to OpenAI message type
	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != RoleSystem && role != RoleUser && role != RoleAssistant {
			// coerce anything unknown to user
			role = RoleUser
		}
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    oaMsgs,
		Temperature: Temperature,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}
