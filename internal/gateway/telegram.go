package gateway

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/priya/fete/internal/confirm"
	"github.com/priya/fete/internal/orchestrator"
)

type TelegramGateway struct {
	Bot  *tgbotapi.BotAPI
	Orch *orchestrator.Orchestrator

	mu            sync.Mutex
	pendingRevise map[int64]string // chat id -> request id awaiting feedback text
}

func NewTelegramGateway(token string, orch *orchestrator.Orchestrator) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	return &TelegramGateway{
		Bot:           bot,
		Orch:          orch,
		pendingRevise: make(map[int64]string),
	}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			tg.handleCallback(update.CallbackQuery)
		case update.Message != nil:
			tg.handleMessage(update.Message)
		}
	}
	return nil
}

func (tg *TelegramGateway) handleMessage(msg *tgbotapi.Message) {
	log.Printf("[%s] %s", msg.From.UserName, msg.Text)
	ctx := context.Background()
	chatID := fmt.Sprintf("%d", msg.Chat.ID)

	// A tapped Revise button parks the chat until the next message, which
	// becomes the revision feedback.
	tg.mu.Lock()
	requestID, revising := tg.pendingRevise[msg.Chat.ID]
	delete(tg.pendingRevise, msg.Chat.ID)
	tg.mu.Unlock()

	var reply orchestrator.Reply
	var err error
	if revising {
		reply, err = tg.Orch.HandleDecision(ctx, chatID, confirm.Decision{
			RequestID: requestID,
			Kind:      confirm.DecisionRevise,
			Feedback:  msg.Text,
		})
	} else {
		reply, err = tg.Orch.HandleTurn(ctx, chatID, msg.Text)
	}
	if err != nil {
		log.Printf("Error handling turn: %v", err)
		reply = orchestrator.Reply{Text: "Something went wrong on my end. Let's try that again."}
	}

	tg.deliver(msg.Chat.ID, reply)
}

func (tg *TelegramGateway) handleCallback(q *tgbotapi.CallbackQuery) {
	// Acknowledge first so the button stops spinning even if handling fails.
	if _, err := tg.Bot.Request(tgbotapi.NewCallback(q.ID, "")); err != nil {
		log.Printf("Error answering callback: %v", err)
	}

	kind, requestID, ok := strings.Cut(q.Data, ":")
	if !ok || q.Message == nil {
		return
	}
	ctx := context.Background()
	chatID := fmt.Sprintf("%d", q.Message.Chat.ID)

	switch kind {
	case "approve":
		reply, err := tg.Orch.HandleDecision(ctx, chatID, confirm.Decision{
			RequestID: requestID,
			Kind:      confirm.DecisionApprove,
		})
		if err != nil {
			log.Printf("Error handling approval: %v", err)
			return
		}
		tg.deliver(q.Message.Chat.ID, reply)
	case "revise":
		tg.mu.Lock()
		tg.pendingRevise[q.Message.Chat.ID] = requestID
		tg.mu.Unlock()
		tg.deliver(q.Message.Chat.ID, orchestrator.Reply{Text: "Sure — tell me what to change."})
	}
}

// deliver renders a reply, attaching approve/revise buttons when the reply
// carries a confirmation request.
func (tg *TelegramGateway) deliver(chatID int64, reply orchestrator.Reply) {
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	if reply.Confirmation != nil {
		msg.ReplyMarkup = confirmationKeyboard(reply.Confirmation)
	}
	if _, err := tg.Bot.Send(msg); err != nil {
		log.Printf("Error sending message: %v", err)
	}
}

func confirmationKeyboard(req *confirm.Request) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Approve", "approve:"+req.ID),
			tgbotapi.NewInlineKeyboardButtonData("✏️ Revise", "revise:"+req.ID),
		),
	)
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	id := 0
	fmt.Sscanf(chatID, "%d", &id)
	if id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	msg := tgbotapi.NewMessage(int64(id), text)
	msg.ParseMode = "Markdown"
	_, err := tg.Bot.Send(msg)
	return err
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
