package discord

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	colorPending = 0xff9900
	colorSuccess = 0x00ff00
	colorFailure = 0xff0000
)

// Notifier renders the verification affordance and outcome messages.
// Outcomes prefer a bound interaction followup (ephemeral, visible only to
// the member); without one they fall back to a DM.
type Notifier struct {
	session         *discordgo.Session
	fallbackChannel string

	mu           sync.Mutex
	interactions map[string]*discordgo.Interaction
}

func NewNotifier(session *discordgo.Session, fallbackChannel string) *Notifier {
	return &Notifier{
		session:         session,
		fallbackChannel: fallbackChannel,
		interactions:    make(map[string]*discordgo.Interaction),
	}
}

// Bind associates an in-flight interaction with a member so the outcome
// can be delivered as a followup. Callers must Unbind when done.
func (n *Notifier) Bind(userID string, interaction *discordgo.Interaction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.interactions[userID] = interaction
}

func (n *Notifier) Unbind(userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.interactions, userID)
}

// PresentVerification DMs the member the verification embed and button,
// falling back to the configured guild channel when DMs are closed.
func (n *Notifier) PresentVerification(ctx context.Context, guildID, userID string, timeout time.Duration) error {
	const op = "discord.PresentVerification"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	guildName := guildID
	if guild, err := n.session.Guild(guildID); err == nil {
		guildName = guild.Name
	}

	minutes := int(timeout / time.Minute)

	embed := &discordgo.MessageEmbed{
		Title: "🔐 Verification Required",
		Description: fmt.Sprintf(
			"Welcome to **%s**!\n\nTo gain access to this server, you must verify your email and token within **%d minutes**.",
			guildName, minutes,
		),
		Color: colorPending,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "⚠️ Important:",
				Value: "• You will be **removed** from the server if you don't verify\n• Contact server administrator if you need help\n• Click the button below to start verification",
			},
			{
				Name:  "📋 What you need:",
				Value: "• Your registered email address\n• Your verification token/code",
			},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("Time limit: %d minutes", minutes),
		},
	}

	send := &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: []discordgo.MessageComponent{verifyButtonRow(userID)},
	}

	dm, err := n.session.UserChannelCreate(userID)
	if err == nil {
		if _, err = n.session.ChannelMessageSendComplex(dm.ID, send); err == nil {
			return nil
		}
	}

	// DMs closed; post in the fallback channel with a mention instead.
	channelID, chErr := n.channelByName(guildID, n.fallbackChannel)
	if chErr != nil {
		return fmt.Errorf("%s: dm failed (%v) and no fallback channel: %w", op, err, chErr)
	}

	send.Content = fmt.Sprintf("<@%s> Please verify your email and token to gain access:", userID)
	if _, err := n.session.ChannelMessageSendComplex(channelID, send); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// PresentOutcome shows the verification result to the member.
func (n *Notifier) PresentOutcome(ctx context.Context, guildID, userID string, ok bool, message string) error {
	const op = "discord.PresentOutcome"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	embed := outcomeEmbed(ok, message)

	n.mu.Lock()
	interaction := n.interactions[userID]
	n.mu.Unlock()

	if interaction != nil {
		_, err := n.session.FollowupMessageCreate(interaction, true, &discordgo.WebhookParams{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		})
		if err == nil {
			return nil
		}
	}

	dm, err := n.session.UserChannelCreate(userID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if _, err := n.session.ChannelMessageSendEmbed(dm.ID, embed); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (n *Notifier) channelByName(guildID, name string) (string, error) {
	const op = "discord.channelByName"

	channels, err := n.session.GuildChannels(guildID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	for _, ch := range channels {
		if ch.Type == discordgo.ChannelTypeGuildText && ch.Name == name {
			return ch.ID, nil
		}
	}

	return "", fmt.Errorf("%s: channel %q not found", op, name)
}

func outcomeEmbed(ok bool, message string) *discordgo.MessageEmbed {
	if ok {
		return &discordgo.MessageEmbed{
			Title:       "✅ Welcome to the Server!",
			Description: "Your email has been verified successfully. You now have full access to the server!",
			Color:       colorSuccess,
		}
	}

	return &discordgo.MessageEmbed{
		Title:       "❌ Verification Failed",
		Description: message,
		Color:       colorFailure,
		Fields: []*discordgo.MessageEmbedField{
			{
				Name:  "🚫 You will be removed from the server",
				Value: "Contact the server administrator if you believe this is an error.",
			},
		},
	}
}
