package telegram

import (
	"context"
	"fmt"
	"log"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"

	"shop-assistant/internal/report"
)

func (b *Bot) handleIncomingMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	if msg.Text == "" {
		return
	}
	b.handleUserText(ctx, msg.From.ID, msg.Chat.ID, msg.Text)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		if _, err := b.sessions.GetOrCreate(ctx, userID); err != nil {
			log.Printf("failed to create thread for user %d: %v", userID, err)
			b.sendMessage(chatID, serviceErrorMsg)
			return
		}
		b.sendMessage(chatID, greetingMsg)
	case "reset":
		if _, err := b.sessions.Reset(ctx, userID); err != nil {
			log.Printf("failed to reset thread for user %d: %v", userID, err)
			b.sendMessage(chatID, serviceErrorMsg)
			return
		}
		b.sendMessage(chatID, resetDoneMsg)
	case "uso":
		b.handleUsageCommand(userID, chatID)
	case "informe":
		b.handleReportCommand(userID, chatID)
	default:
		b.sendMessage(chatID, greetingMsg)
	}
}

// handleUserText runs one conversational turn: admission, session
// lookup, assistant run, usage registration, audit log, reply. Every
// error class is contained here and mapped to its fixed user-facing
// string; nothing propagates past the handler.
func (b *Bot) handleUserText(ctx context.Context, userID, chatID int64, text string) {
	mu := b.userLock(userID)
	mu.Lock()
	defer mu.Unlock()

	turnID := uuid.NewString()
	log.Printf("turn %s: message from user %d", turnID, userID)

	admitted, err := b.policy.Admit(userID)
	if err != nil {
		log.Printf("turn %s: admission check failed: %v", turnID, err)
		b.sendMessage(chatID, serviceErrorMsg)
		return
	}
	if !admitted {
		log.Printf("turn %s: user %d over quota", turnID, userID)
		b.sendMessage(chatID, limitReachedMsg)
		return
	}

	threadID, err := b.sessions.GetOrCreate(ctx, userID)
	if err != nil {
		log.Printf("turn %s: thread lookup failed: %v", turnID, err)
		b.sendMessage(chatID, serviceErrorMsg)
		return
	}

	b.sendTyping(chatID)

	result, err := b.driver.RunTurn(ctx, threadID, text)
	if err != nil {
		log.Printf("turn %s: run failed on thread %s: %v", turnID, threadID, err)
		b.sendMessage(chatID, serviceErrorMsg)
		return
	}

	// A failed run still counts as a message (one was consumed), it
	// just contributes no tokens.
	if err := b.usageStore.RegisterUsage(userID, result.TokensConsumed); err != nil {
		log.Printf("turn %s: failed to register usage: %v", turnID, err)
		b.sendMessage(chatID, serviceErrorMsg)
		return
	}

	b.record(turnID, userID, "user", text)
	b.record(turnID, userID, "assistant", result.ReplyText)

	log.Printf("turn %s: %s, %d tokens", turnID, result.Status, result.TokensConsumed)

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Reiniciar conversación", resetCmd),
		),
	)
	out := tgbotapi.NewMessage(chatID, result.ReplyText)
	out.ReplyMarkup = kb
	if _, err := b.s.Send(out); err != nil {
		log.Printf("turn %s: failed to send reply: %v", turnID, err)
	}
}

func (b *Bot) handleUsageCommand(userID, chatID int64) {
	rec, err := b.usageStore.Current(userID)
	if err != nil {
		log.Printf("failed to read usage for user %d: %v", userID, err)
		b.sendMessage(chatID, serviceErrorMsg)
		return
	}
	lims := b.usageStore.Limits()
	b.sendMessage(chatID, fmt.Sprintf(
		"📈 Tu consumo actual:\nMensajes hoy: %d/%d\nMensajes este mes: %d/%d\nTokens este mes: %d/%d",
		rec.DailyMessageCount, lims.DailyMessages,
		rec.MonthlyMessageCount, lims.MonthlyMessages,
		rec.TokensThisMonth, lims.MonthlyTokens,
	))
}

func (b *Bot) handleReportCommand(userID, chatID int64) {
	if userID != b.adminUserID {
		b.sendMessage(chatID, adminOnlyMsg)
		return
	}
	b.sendMessage(chatID, b.buildReport())
}

// buildReport renders the usage summary plus the trailing week of
// daily counts from the audit log.
func (b *Bot) buildReport() string {
	text := report.Summarize(b.usageStore.Snapshot()).Text()
	if b.recorder != nil {
		events, err := b.recorder.LoadEvents()
		if err != nil {
			log.Printf("failed to load audit events for report: %v", err)
		} else {
			text += "\n" + report.SeriesText(report.DailySeries(events, 7, time.Now().UTC()))
		}
	}
	return text
}

// SendDailyReport pushes the usage report to the administrator chat.
// Used by the scheduler; a cancelled context skips the report.
func (b *Bot) SendDailyReport(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.adminUserID == 0 {
		return nil
	}
	b.sendMessage(b.adminUserID, b.buildReport())
	return nil
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Data != resetCmd || cb.From == nil {
		return
	}
	// Telegram omits Message when the originating message is too old
	// or inaccessible; fall back to the user's private chat.
	chatID := cb.From.ID
	if cb.Message != nil {
		chatID = cb.Message.Chat.ID
	}
	if _, err := b.sessions.Reset(ctx, cb.From.ID); err != nil {
		log.Printf("failed to reset thread for user %d: %v", cb.From.ID, err)
		b.sendMessage(chatID, serviceErrorMsg)
		return
	}
	b.sendMessage(chatID, resetDoneMsg)
}
