package gateway

import (
	"context"
	"fmt"
	"log"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const telegramMessageLimit = 4096

type TelegramGateway struct {
	Bot    *tgbotapi.BotAPI
	Router *Router
	// AllowedUsers restricts who may drive sessions; empty allows everyone.
	AllowedUsers map[string]bool
}

func NewTelegramGateway(token string, router *Router, allowed []string) (*TelegramGateway, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	users := make(map[string]bool, len(allowed))
	for _, u := range allowed {
		users[u] = true
	}
	return &TelegramGateway{
		Bot:          bot,
		Router:       router,
		AllowedUsers: users,
	}, nil
}

func (tg *TelegramGateway) Start() error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := tg.Bot.GetUpdatesChan(u)

	for update := range updates {
		if update.Message == nil {
			continue
		}
		if len(tg.AllowedUsers) > 0 && (update.Message.From == nil || !tg.AllowedUsers[update.Message.From.UserName]) {
			continue
		}

		if update.Message.From != nil {
			log.Printf("[%s] %s", update.Message.From.UserName, update.Message.Text)
		}

		ctx := context.Background()
		chatID := fmt.Sprintf("%d", update.Message.Chat.ID)
		reply := tg.Router.Handle(ctx, chatID, update.Message.Text)
		if reply == "" {
			continue
		}
		if err := tg.Send(chatID, reply); err != nil {
			log.Printf("Error sending to %s: %v", chatID, err)
		}
	}
	return nil
}

func (tg *TelegramGateway) Send(chatID string, text string) error {
	var id int64
	fmt.Sscanf(chatID, "%d", &id)
	if id == 0 {
		return fmt.Errorf("invalid chat ID: %s", chatID)
	}

	for _, part := range chunk(text, telegramMessageLimit) {
		msg := tgbotapi.NewMessage(id, part)
		if _, err := tg.Bot.Send(msg); err != nil {
			return err
		}
	}
	return nil
}

func (tg *TelegramGateway) Stop() error {
	tg.Bot.StopReceivingUpdates()
	return nil
}
