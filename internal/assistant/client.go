package assistant

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

type RunStatus string

const (
	StatusQueued     RunStatus = "queued"
	StatusInProgress RunStatus = "in_progress"
	StatusCompleted  RunStatus = "completed"
	// StatusFailed collapses every terminal-but-unsuccessful remote
	// state (failed, cancelled, expired, requires_action, ...).
	StatusFailed RunStatus = "failed"
)

type Run struct {
	ID          string
	Status      RunStatus
	TotalTokens int
}

// Message is one conversation item as reported by the service, with
// its plain-text segments in their given order.
type Message struct {
	Role string
	Text []string
}

// API is the slice of the assistant service the run driver consumes.
// ListMessages returns messages newest first, as the remote API does.
type API interface {
	CreateThread(ctx context.Context) (string, error)
	AddUserMessage(ctx context.Context, threadID, text string) error
	StartRun(ctx context.Context, threadID string) (Run, error)
	GetRun(ctx context.Context, threadID, runID string) (Run, error)
	ListMessages(ctx context.Context, threadID string) ([]Message, error)
}

// Client implements API over the OpenAI Assistants endpoints.
type Client struct {
	client      *openai.Client
	assistantID string
}

func NewClient(apiKey, baseURL, assistantID string) *Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &Client{
		client:      openai.NewClientWithConfig(config),
		assistantID: assistantID,
	}
}

func (c *Client) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

func (c *Client) AddUserMessage(ctx context.Context, threadID, text string) error {
	_, err := c.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

func (c *Client) StartRun(ctx context.Context, threadID string) (Run, error) {
	run, err := c.client.CreateRun(ctx, threadID, openai.RunRequest{
		AssistantID: c.assistantID,
	})
	if err != nil {
		return Run{}, fmt.Errorf("create run: %w", err)
	}
	return mapRun(run), nil
}

func (c *Client) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	run, err := c.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return Run{}, fmt.Errorf("retrieve run: %w", err)
	}
	return mapRun(run), nil
}

func (c *Client) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	list, err := c.client.ListMessage(ctx, threadID, nil, nil, nil, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]Message, 0, len(list.Messages))
	for _, m := range list.Messages {
		msg := Message{Role: m.Role}
		for _, part := range m.Content {
			if part.Type == "text" && part.Text != nil {
				msg.Text = append(msg.Text, part.Text.Value)
			}
		}
		out = append(out, msg)
	}
	return out, nil
}

func mapRun(run openai.Run) Run {
	out := Run{ID: run.ID, Status: StatusFailed}
	switch run.Status {
	case openai.RunStatusQueued:
		out.Status = StatusQueued
	case openai.RunStatusInProgress:
		out.Status = StatusInProgress
	case openai.RunStatusCompleted:
		out.Status = StatusCompleted
	}
	out.TotalTokens = run.Usage.TotalTokens
	return out
}
