package telegram

import (
	"context"
	"log"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shop-assistant/internal/assistant"
	"shop-assistant/internal/session"
	"shop-assistant/internal/storage"
	"shop-assistant/internal/usage"
)

const resetCmd = "reset_ctx"

const (
	greetingMsg = "🛍️ ¡Hola! Soy el asistente oficial de la tienda online.\n" +
		"Puedo ayudarte con productos, pedidos, envíos, devoluciones y más.\n\n" +
		"Comandos disponibles:\n" +
		"/start – Mostrar este mensaje\n" +
		"/reset – Reiniciar el contexto de la conversación\n" +
		"/uso – Ver tu consumo actual"
	resetDoneMsg    = "🔄 El contexto ha sido reiniciado. Empecemos de nuevo."
	limitReachedMsg = "🚫 Has alcanzado tu límite de uso. Intenta de nuevo más tarde."
	serviceErrorMsg = "⚠️ Ocurrió un error al comunicar con el asistente. Intenta nuevamente."
	adminOnlyMsg    = "⛔ Este comando solo está disponible para el administrador."
)

type Bot struct {
	api         *tgbotapi.BotAPI
	s           sender
	sessions    *session.Registry
	driver      *assistant.Driver
	policy      *usage.Policy
	usageStore  *usage.Store
	recorder    storage.Recorder
	adminUserID int64

	// Turns for one user are strictly serialized so an interleaved
	// double-send cannot race the admission check against the usage
	// registration or thread creation.
	turnMu    sync.Mutex
	turnLocks map[int64]*sync.Mutex
}

func New(
	botToken string,
	sessions *session.Registry,
	driver *assistant.Driver,
	policy *usage.Policy,
	usageStore *usage.Store,
	recorder storage.Recorder,
	adminUserID int64,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, err
	}
	return &Bot{
		api:         api,
		s:           botAPISender{api: api},
		sessions:    sessions,
		driver:      driver,
		policy:      policy,
		usageStore:  usageStore,
		recorder:    recorder,
		adminUserID: adminUserID,
		turnLocks:   make(map[int64]*sync.Mutex),
	}, nil
}

// Start consumes updates until the context is cancelled. Each update is
// handled on its own goroutine so a turn blocked on run polling does
// not stall other users' traffic.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message != nil {
				go b.handleIncomingMessage(ctx, update.Message)
				continue
			}
			if update.CallbackQuery != nil {
				go b.handleCallback(ctx, update.CallbackQuery)
				continue
			}
		}
	}
}

func (b *Bot) userLock(userID int64) *sync.Mutex {
	b.turnMu.Lock()
	defer b.turnMu.Unlock()
	mu, ok := b.turnLocks[userID]
	if !ok {
		mu = &sync.Mutex{}
		b.turnLocks[userID] = mu
	}
	return mu
}

func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.s.Send(msg); err != nil {
		log.Printf("failed to send message: %v", err)
	}
}

func (b *Bot) sendTyping(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping)
	if _, err := b.s.Request(action); err != nil {
		log.Printf("failed to send typing action: %v", err)
	}
}

func (b *Bot) record(turnID string, userID int64, role, text string) {
	if b.recorder == nil {
		return
	}
	ev := storage.Event{Timestamp: time.Now().UTC(), TurnID: turnID, UserID: userID, Role: role, Text: text}
	if err := b.recorder.Append(ev); err != nil {
		log.Printf("failed to append audit event: %v", err)
	}
}
