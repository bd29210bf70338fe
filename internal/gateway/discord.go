package gateway

import (
	"context"
	"log"

	"github.com/bwmarrin/discordgo"
)

const discordMessageLimit = 2000

type DiscordGateway struct {
	Session *discordgo.Session
	Router  *Router
	done    chan struct{}
}

func NewDiscordGateway(token string, router *Router) (*DiscordGateway, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentGuildMessages | discordgo.IntentDirectMessages | discordgo.IntentMessageContent

	dg := &DiscordGateway{Session: s, Router: router, done: make(chan struct{})}
	s.AddHandler(dg.onMessage)
	return dg, nil
}

func (dg *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}

	log.Printf("[%s] %s", m.Author.Username, m.Content)

	reply := dg.Router.Handle(context.Background(), m.ChannelID, m.Content)
	if reply == "" {
		return
	}
	if err := dg.Send(m.ChannelID, reply); err != nil {
		log.Printf("Error sending to %s: %v", m.ChannelID, err)
	}
}

// Start opens the websocket and blocks until Stop.
func (dg *DiscordGateway) Start() error {
	if err := dg.Session.Open(); err != nil {
		return err
	}
	log.Printf("Discord gateway connected")
	<-dg.done
	return nil
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	for _, part := range chunk(text, discordMessageLimit) {
		if _, err := dg.Session.ChannelMessageSend(chatID, part); err != nil {
			return err
		}
	}
	return nil
}

func (dg *DiscordGateway) Stop() error {
	select {
	case <-dg.done:
	default:
		close(dg.done)
	}
	return dg.Session.Close()
}
