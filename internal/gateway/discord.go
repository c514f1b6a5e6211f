package gateway

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/priya/fete/internal/confirm"
	"github.com/priya/fete/internal/orchestrator"
)

type DiscordGateway struct {
	Session *discordgo.Session
	Orch    *orchestrator.Orchestrator

	mu            sync.Mutex
	pendingRevise map[string]string // channel id -> request id awaiting feedback
	done          chan struct{}
}

func NewDiscordGateway(token string, orch *orchestrator.Orchestrator) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	dg := &DiscordGateway{
		Session:       session,
		Orch:          orch,
		pendingRevise: make(map[string]string),
		done:          make(chan struct{}),
	}
	session.AddHandler(dg.onMessage)
	session.AddHandler(dg.onInteraction)
	return dg, nil
}

func (dg *DiscordGateway) Start() error {
	if err := dg.Session.Open(); err != nil {
		return err
	}
	log.Printf("Discord gateway connected as %s", dg.Session.State.User.Username)
	<-dg.done // handlers run on the session's goroutines
	return nil
}

func (dg *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author.ID == s.State.User.ID {
		return
	}

	ctx := context.Background()
	dg.mu.Lock()
	requestID, revising := dg.pendingRevise[m.ChannelID]
	delete(dg.pendingRevise, m.ChannelID)
	dg.mu.Unlock()

	var reply orchestrator.Reply
	var err error
	if revising {
		reply, err = dg.Orch.HandleDecision(ctx, m.ChannelID, confirm.Decision{
			RequestID: requestID,
			Kind:      confirm.DecisionRevise,
			Feedback:  m.Content,
		})
	} else {
		reply, err = dg.Orch.HandleTurn(ctx, m.ChannelID, m.Content)
	}
	if err != nil {
		log.Printf("Error handling turn: %v", err)
		reply = orchestrator.Reply{Text: "Something went wrong on my end. Let's try that again."}
	}

	dg.deliver(m.ChannelID, reply)
}

func (dg *DiscordGateway) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	kind, requestID, ok := strings.Cut(i.MessageComponentData().CustomID, ":")
	if !ok {
		return
	}

	// Acknowledge so the interaction doesn't show as failed.
	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		log.Printf("Error acknowledging interaction: %v", err)
	}

	switch kind {
	case "approve":
		reply, err := dg.Orch.HandleDecision(context.Background(), i.ChannelID, confirm.Decision{
			RequestID: requestID,
			Kind:      confirm.DecisionApprove,
		})
		if err != nil {
			log.Printf("Error handling approval: %v", err)
			return
		}
		dg.deliver(i.ChannelID, reply)
	case "revise":
		dg.mu.Lock()
		dg.pendingRevise[i.ChannelID] = requestID
		dg.mu.Unlock()
		dg.deliver(i.ChannelID, orchestrator.Reply{Text: "Sure — tell me what to change."})
	}
}

func (dg *DiscordGateway) deliver(channelID string, reply orchestrator.Reply) {
	if reply.Confirmation == nil {
		if _, err := dg.Session.ChannelMessageSend(channelID, reply.Text); err != nil {
			log.Printf("Error sending message: %v", err)
		}
		return
	}

	_, err := dg.Session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: reply.Text,
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Approve",
					Style:    discordgo.SuccessButton,
					CustomID: "approve:" + reply.Confirmation.ID,
				},
				discordgo.Button{
					Label:    "Revise",
					Style:    discordgo.SecondaryButton,
					CustomID: "revise:" + reply.Confirmation.ID,
				},
			}},
		},
	})
	if err != nil {
		log.Printf("Error sending confirmation card: %v", err)
	}
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	_, err := dg.Session.ChannelMessageSend(chatID, text)
	return err
}

func (dg *DiscordGateway) Stop() error {
	close(dg.done)
	return dg.Session.Close()
}
