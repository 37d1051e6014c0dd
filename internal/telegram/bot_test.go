package telegram

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shop-assistant/internal/assistant"
	"shop-assistant/internal/session"
	"shop-assistant/internal/storage"
	"shop-assistant/internal/usage"
)

type fakeSender struct {
	sent    []string
	actions int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	sw := c.(tgbotapi.MessageConfig)
	f.sent = append(f.sent, sw.Text)
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.actions++
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type fakeAssistantAPI struct {
	threads   int
	runStatus assistant.RunStatus
	tokens    int
	reply     []string
	startErr  error
	starts    int
}

func (f *fakeAssistantAPI) CreateThread(ctx context.Context) (string, error) {
	f.threads++
	return "thread-" + strings.Repeat("x", f.threads), nil
}

func (f *fakeAssistantAPI) AddUserMessage(ctx context.Context, threadID, text string) error {
	return nil
}

func (f *fakeAssistantAPI) StartRun(ctx context.Context, threadID string) (assistant.Run, error) {
	if f.startErr != nil {
		return assistant.Run{}, f.startErr
	}
	f.starts++
	run := assistant.Run{ID: "run-1", Status: f.runStatus}
	if f.runStatus == assistant.StatusCompleted {
		run.TotalTokens = f.tokens
	}
	return run, nil
}

func (f *fakeAssistantAPI) GetRun(ctx context.Context, threadID, runID string) (assistant.Run, error) {
	return f.StartRun(ctx, threadID)
}

func (f *fakeAssistantAPI) ListMessages(ctx context.Context, threadID string) ([]assistant.Message, error) {
	if len(f.reply) == 0 {
		return nil, nil
	}
	return []assistant.Message{{Role: "assistant", Text: f.reply}}, nil
}

type memUsageRepo struct{ records map[int64]usage.Record }

func (m *memUsageRepo) Load() (map[int64]usage.Record, error) { return m.records, nil }
func (m *memUsageRepo) Save(records map[int64]usage.Record) error {
	m.records = make(map[int64]usage.Record, len(records))
	for id, rec := range records {
		m.records[id] = rec
	}
	return nil
}

type memRecorder struct {
	mu     sync.Mutex
	events []storage.Event
}

func (m *memRecorder) Append(ev storage.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRecorder) LoadEvents() ([]storage.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.Event{}, m.events...), nil
}

func newTestBot(t *testing.T, api *fakeAssistantAPI, repo *memUsageRepo) (*Bot, *fakeSender, *memRecorder) {
	t.Helper()
	store, err := usage.NewStore(repo, usage.Limits{DailyMessages: 50, MonthlyMessages: 1000, MonthlyTokens: 100000})
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	fs := &fakeSender{}
	rec := &memRecorder{}
	return &Bot{
		s:           fs,
		sessions:    session.NewRegistry(api),
		driver:      assistant.NewDriver(api, time.Millisecond, 0),
		policy:      usage.NewPolicy(store),
		usageStore:  store,
		recorder:    rec,
		adminUserID: 999,
		turnLocks:   make(map[int64]*sync.Mutex),
	}, fs, rec
}

func TestHandleUserText_HappyPath(t *testing.T) {
	api := &fakeAssistantAPI{runStatus: assistant.StatusCompleted, tokens: 120, reply: []string{"¡Claro!"}}
	repo := &memUsageRepo{}
	b, fs, rec := newTestBot(t, api, repo)

	b.handleUserText(context.Background(), 42, 100, "¿Tienen envíos?")

	if len(fs.sent) != 1 || fs.sent[0] != "¡Claro!" {
		t.Fatalf("unexpected replies: %+v", fs.sent)
	}
	if fs.actions != 1 {
		t.Fatalf("typing action not sent")
	}
	got := repo.records[42]
	if got.DailyMessageCount != 1 || got.TokensToday != 120 {
		t.Fatalf("usage not registered: %+v", got)
	}
	if len(rec.events) != 2 || rec.events[0].Role != "user" || rec.events[1].Role != "assistant" {
		t.Fatalf("audit events missing: %+v", rec.events)
	}
	if rec.events[0].TurnID == "" || rec.events[0].TurnID != rec.events[1].TurnID {
		t.Fatalf("turn correlation missing: %+v", rec.events)
	}
}

func TestHandleUserText_QuotaExceeded(t *testing.T) {
	now := time.Now()
	repo := &memUsageRepo{records: map[int64]usage.Record{
		42: {
			DailyMessageCount: 50,
			LastDayStamp:      now.Format("2006-01-02"),
			LastMonthStamp:    now.Format("2006-01"),
		},
	}}
	api := &fakeAssistantAPI{runStatus: assistant.StatusCompleted}
	b, fs, _ := newTestBot(t, api, repo)

	b.handleUserText(context.Background(), 42, 100, "hola")

	if len(fs.sent) != 1 || fs.sent[0] != limitReachedMsg {
		t.Fatalf("want limit message, got %+v", fs.sent)
	}
	if api.starts != 0 {
		t.Fatalf("rejected turn must not reach the assistant")
	}
	if repo.records[42].DailyMessageCount != 50 {
		t.Fatalf("rejected turn mutated counters: %+v", repo.records[42])
	}
}

func TestHandleUserText_FailedRunStillCountsMessage(t *testing.T) {
	api := &fakeAssistantAPI{runStatus: assistant.StatusFailed}
	repo := &memUsageRepo{}
	b, fs, _ := newTestBot(t, api, repo)

	b.handleUserText(context.Background(), 42, 100, "hola")

	if len(fs.sent) != 1 || fs.sent[0] != assistant.FailedReply {
		t.Fatalf("want fixed apology, got %+v", fs.sent)
	}
	got := repo.records[42]
	if got.DailyMessageCount != 1 || got.TokensToday != 0 {
		t.Fatalf("failed run must count the message with zero tokens: %+v", got)
	}
}

func TestHandleUserText_ServiceError(t *testing.T) {
	api := &fakeAssistantAPI{startErr: errors.New("network down")}
	repo := &memUsageRepo{}
	b, fs, _ := newTestBot(t, api, repo)

	b.handleUserText(context.Background(), 42, 100, "hola")

	if len(fs.sent) != 1 || fs.sent[0] != serviceErrorMsg {
		t.Fatalf("want generic error message, got %+v", fs.sent)
	}
	if repo.records[42].DailyMessageCount != 0 {
		t.Fatalf("service error must not register usage: %+v", repo.records[42])
	}
}

func TestUsageCommand_ReportsOwnCounters(t *testing.T) {
	api := &fakeAssistantAPI{runStatus: assistant.StatusCompleted}
	now := time.Now()
	repo := &memUsageRepo{records: map[int64]usage.Record{
		42: {
			DailyMessageCount: 3,
			TokensThisMonth:   900,
			LastDayStamp:      now.Format("2006-01-02"),
			LastMonthStamp:    now.Format("2006-01"),
		},
	}}
	b, fs, _ := newTestBot(t, api, repo)

	b.handleUsageCommand(42, 100)

	if len(fs.sent) != 1 {
		t.Fatalf("want 1 message, got %d", len(fs.sent))
	}
	if !strings.Contains(fs.sent[0], "3/50") || !strings.Contains(fs.sent[0], "900/100000") {
		t.Fatalf("usage summary missing counters: %q", fs.sent[0])
	}
}

func TestReportCommand_AdminOnly(t *testing.T) {
	api := &fakeAssistantAPI{runStatus: assistant.StatusCompleted}
	b, fs, _ := newTestBot(t, api, &memUsageRepo{})

	b.handleReportCommand(42, 100)
	if len(fs.sent) != 1 || fs.sent[0] != adminOnlyMsg {
		t.Fatalf("non-admin must be rejected: %+v", fs.sent)
	}

	b.handleReportCommand(999, 999)
	if len(fs.sent) != 2 || !strings.Contains(fs.sent[1], "Uso del asistente") {
		t.Fatalf("admin report not sent: %+v", fs.sent)
	}
}

func TestCallbackReset_ReplacesThread(t *testing.T) {
	api := &fakeAssistantAPI{runStatus: assistant.StatusCompleted}
	b, fs, _ := newTestBot(t, api, &memUsageRepo{})

	before, err := b.sessions.GetOrCreate(context.Background(), 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	cb := &tgbotapi.CallbackQuery{
		From:    &tgbotapi.User{ID: 42},
		Data:    resetCmd,
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 100}},
	}
	b.handleCallback(context.Background(), cb)

	if len(fs.sent) != 1 || fs.sent[0] != resetDoneMsg {
		t.Fatalf("reset confirmation missing: %+v", fs.sent)
	}
	after, err := b.sessions.GetOrCreate(context.Background(), 42)
	if err != nil {
		t.Fatalf("get after reset: %v", err)
	}
	if after == before {
		t.Fatalf("reset did not replace the thread")
	}
}

func TestCallbackReset_WithoutOriginatingMessage(t *testing.T) {
	api := &fakeAssistantAPI{runStatus: assistant.StatusCompleted}
	b, fs, _ := newTestBot(t, api, &memUsageRepo{})

	before, err := b.sessions.GetOrCreate(context.Background(), 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// Telegram delivers Message == nil when the originating message is
	// too old or inaccessible; the confirmation must fall back to the
	// user's private chat instead of crashing.
	cb := &tgbotapi.CallbackQuery{
		From: &tgbotapi.User{ID: 42},
		Data: resetCmd,
	}
	b.handleCallback(context.Background(), cb)

	if len(fs.sent) != 1 || fs.sent[0] != resetDoneMsg {
		t.Fatalf("reset confirmation missing: %+v", fs.sent)
	}
	after, err := b.sessions.GetOrCreate(context.Background(), 42)
	if err != nil {
		t.Fatalf("get after reset: %v", err)
	}
	if after == before {
		t.Fatalf("reset did not replace the thread")
	}
}

func TestSendDailyReport_CancelledContext(t *testing.T) {
	api := &fakeAssistantAPI{runStatus: assistant.StatusCompleted}
	b, fs, _ := newTestBot(t, api, &memUsageRepo{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.SendDailyReport(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context error, got %v", err)
	}
	if len(fs.sent) != 0 {
		t.Fatalf("cancelled report must not send: %+v", fs.sent)
	}

	if err := b.SendDailyReport(context.Background()); err != nil {
		t.Fatalf("send report: %v", err)
	}
	if len(fs.sent) != 1 || !strings.Contains(fs.sent[0], "Uso del asistente") {
		t.Fatalf("report not sent to admin: %+v", fs.sent)
	}
}
