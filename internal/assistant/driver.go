package assistant

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// Fixed user-facing replies, matching the store assistant's voice.
const (
	FailedReply    = "⚠️ Hubo un problema generando la respuesta. Intenta de nuevo."
	NoAssistantMsg = "⚠️ No encontré respuesta del asistente."
	assistantRole  = "assistant"
)

// Result is the outcome of one conversational turn.
type Result struct {
	ReplyText      string
	TokensConsumed int
	Status         RunStatus // StatusCompleted or StatusFailed
}

// Driver executes one turn against the assistant service: it appends
// the user's message, starts a run and polls at a fixed interval until
// the run leaves its two non-terminal states. The remote API models
// turn execution as an asynchronous job; the driver hides that behind
// a single blocking call.
type Driver struct {
	api          API
	pollInterval time.Duration
	maxWait      time.Duration // 0 means poll until the service reports a terminal state
}

func NewDriver(api API, pollInterval, maxWait time.Duration) *Driver {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Driver{api: api, pollInterval: pollInterval, maxWait: maxWait}
}

func (d *Driver) RunTurn(ctx context.Context, threadID, text string) (Result, error) {
	if err := d.api.AddUserMessage(ctx, threadID, text); err != nil {
		return Result{}, fmt.Errorf("append message: %w", err)
	}
	run, err := d.api.StartRun(ctx, threadID)
	if err != nil {
		return Result{}, fmt.Errorf("start run: %w", err)
	}

	started := time.Now()
	for run.Status == StatusQueued || run.Status == StatusInProgress {
		if d.maxWait > 0 && time.Since(started) >= d.maxWait {
			log.Printf("run %s on thread %s still %s after %s, treating as failed", run.ID, threadID, run.Status, d.maxWait)
			return Result{ReplyText: FailedReply, Status: StatusFailed}, nil
		}
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(d.pollInterval):
		}
		run, err = d.api.GetRun(ctx, threadID, run.ID)
		if err != nil {
			return Result{}, fmt.Errorf("poll run: %w", err)
		}
	}

	if run.Status != StatusCompleted {
		return Result{ReplyText: FailedReply, Status: StatusFailed}, nil
	}

	msgs, err := d.api.ListMessages(ctx, threadID)
	if err != nil {
		return Result{}, fmt.Errorf("list messages: %w", err)
	}
	// Messages come newest first; the first assistant-authored one is
	// this run's reply.
	for _, m := range msgs {
		if m.Role == assistantRole {
			return Result{
				ReplyText:      strings.Join(m.Text, "\n"),
				TokensConsumed: run.TotalTokens,
				Status:         StatusCompleted,
			}, nil
		}
	}
	return Result{ReplyText: NoAssistantMsg, TokensConsumed: run.TotalTokens, Status: StatusCompleted}, nil
}
