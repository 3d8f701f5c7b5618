package discord

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"invite_service/internal/gate"
	sl "invite_service/internal/lib/logger"

	"github.com/bwmarrin/discordgo"
)

const (
	verifyButtonPrefix = "verify_start:"
	verifyModalPrefix  = "verify_modal:"

	handlerTimeout = 60 * time.Second
)

// Bot wires discordgo gateway events into the onboarding state machine.
type Bot struct {
	log        *slog.Logger
	session    *discordgo.Session
	manager    *gate.Manager
	notifier   *Notifier
	memberRole string
}

func NewBot(log *slog.Logger, session *discordgo.Session, manager *gate.Manager, notifier *Notifier, memberRole string) *Bot {
	b := &Bot{
		log:        log,
		session:    session,
		manager:    manager,
		notifier:   notifier,
		memberRole: memberRole,
	}

	session.AddHandler(b.onReady)
	session.AddHandler(b.onGuildMemberAdd)
	session.AddHandler(b.onInteractionCreate)

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages

	return b
}

func (b *Bot) Start() error {
	const op = "discord.Bot.Start"

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (b *Bot) Stop() {
	_ = b.session.Close()
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	b.log.Info("discord session ready",
		slog.String("user", r.User.Username),
		slog.Int("guilds", len(r.Guilds)),
	)

	commands := []*discordgo.ApplicationCommand{
		{
			Name:        "verification_status",
			Description: "Check pending verifications (Admin only)",
		},
		{
			Name:        "force_verify",
			Description: "Manually verify a user (Admin only)",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "member",
					Description: "Member to verify",
					Required:    true,
				},
			},
		},
	}

	for _, cmd := range commands {
		if _, err := s.ApplicationCommandCreate(r.User.ID, "", cmd); err != nil {
			b.log.Error("failed to register command", slog.String("command", cmd.Name), sl.Err(err))
		}
	}
}

func (b *Bot) onGuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User.Bot {
		return
	}

	log := b.log.With(slog.String("user_id", m.User.ID), slog.String("guild_id", m.GuildID))

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	// A rejoining member who somehow kept the member role is left alone.
	if b.hasMemberRole(m.GuildID, m.Member) {
		log.Info("joining member already holds the member role")
		return
	}

	log.Info("member joined, starting verification")

	b.manager.Join(ctx, m.GuildID, m.User.ID)
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionMessageComponent:
		b.handleVerifyButton(s, i)
	case discordgo.InteractionModalSubmit:
		b.handleModalSubmit(s, i)
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(s, i)
	}
}

func (b *Bot) handleVerifyButton(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	if !strings.HasPrefix(customID, verifyButtonPrefix) {
		return
	}

	targetID := strings.TrimPrefix(customID, verifyButtonPrefix)
	actorID := interactionUserID(i)

	if actorID != targetID {
		b.respondEphemeral(s, i, "❌ This verification is not for you.")
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: verifyModalPrefix + targetID,
			Title:    "🔐 Server Verification Required",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    "email",
							Label:       "📧 Email Address",
							Style:       discordgo.TextInputShort,
							Placeholder: "Enter your registered email address...",
							Required:    true,
							MaxLength:   100,
						},
					},
				},
				discordgo.ActionsRow{
					Components: []discordgo.MessageComponent{
						discordgo.TextInput{
							CustomID:    "token",
							Label:       "🔑 Verification Code",
							Style:       discordgo.TextInputShort,
							Placeholder: "Enter your verification token...",
							Required:    true,
							MaxLength:   20,
						},
					},
				},
			},
		},
	})
	if err != nil {
		b.log.Error("failed to open verification modal", sl.Err(err))
	}
}

func (b *Bot) handleModalSubmit(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ModalSubmitData()
	if !strings.HasPrefix(data.CustomID, verifyModalPrefix) {
		return
	}

	targetID := strings.TrimPrefix(data.CustomID, verifyModalPrefix)
	actorID := interactionUserID(i)
	email, code := modalValues(data)

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.log.Error("failed to defer modal response", sl.Err(err))
		return
	}

	b.notifier.Bind(targetID, i.Interaction)
	defer b.notifier.Unbind(targetID)

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	res := b.manager.Submit(ctx, targetID, actorID, email, code)

	// Verified and failed submissions are reported through the notifier;
	// everything else needs a direct followup here.
	switch res.Status {
	case gate.SubmitRejected, gate.SubmitNotPending, gate.SubmitInProgress:
		b.followupEphemeral(s, i, "❌ "+res.Message)
	}
}

func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()

	if !isAdmin(i) {
		b.respondEphemeral(s, i, "❌ Admin only command.")
		return
	}

	switch data.Name {
	case "verification_status":
		b.handleStatus(s, i)
	case "force_verify":
		b.handleForceVerify(s, i)
	}
}

func (b *Bot) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pending := b.manager.Status()

	if len(pending) == 0 {
		b.respondEphemeral(s, i, "✅ No pending verifications.")
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "📋 Pending Verifications",
		Color: colorPending,
	}

	for _, p := range pending {
		if p.GuildID != i.GuildID {
			continue
		}

		remaining := p.Remaining.Round(time.Second)
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   fmt.Sprintf("<@%s>", p.UserID),
			Value:  fmt.Sprintf("Time left: %dm %ds", int(remaining.Minutes()), int(remaining.Seconds())%60),
			Inline: true,
		})
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.log.Error("failed to respond with status", sl.Err(err))
	}
}

func (b *Bot) handleForceVerify(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	if len(data.Options) == 0 {
		b.respondEphemeral(s, i, "❌ A member is required.")
		return
	}

	target := data.Options[0].UserValue(s)
	if target == nil {
		b.respondEphemeral(s, i, "❌ Unknown member.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := b.manager.ForceVerify(ctx, i.GuildID, target.ID); err != nil {
		b.log.Error("force verify failed", slog.String("user_id", target.ID), sl.Err(err))
		b.respondEphemeral(s, i, fmt.Sprintf("❌ Error: %v", err))
		return
	}

	b.respondEphemeral(s, i, fmt.Sprintf("✅ Manually verified <@%s>", target.ID))
}

func (b *Bot) hasMemberRole(guildID string, member *discordgo.Member) bool {
	if member == nil || b.memberRole == "" {
		return false
	}

	roles, err := b.session.GuildRoles(guildID)
	if err != nil {
		return false
	}

	var memberRoleID string
	for _, role := range roles {
		if role.Name == b.memberRole {
			memberRoleID = role.ID
			break
		}
	}
	if memberRoleID == "" {
		return false
	}

	for _, id := range member.Roles {
		if id == memberRoleID {
			return true
		}
	}

	return false
}

func (b *Bot) respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.log.Error("failed to respond to interaction", sl.Err(err))
	}
}

func (b *Bot) followupEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	_, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content: content,
		Flags:   discordgo.MessageFlagsEphemeral,
	})
	if err != nil {
		b.log.Error("failed to send followup", sl.Err(err))
	}
}

func verifyButtonRow(userID string) discordgo.MessageComponent {
	return discordgo.ActionsRow{
		Components: []discordgo.MessageComponent{
			discordgo.Button{
				Label:    "Verify Email & Token",
				Style:    discordgo.PrimaryButton,
				CustomID: verifyButtonPrefix + userID,
				Emoji:    &discordgo.ComponentEmoji{Name: "🔐"},
			},
		},
	}
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func isAdmin(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

func modalValues(data discordgo.ModalSubmitInteractionData) (email, code string) {
	for _, row := range data.Components {
		actionsRow, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range actionsRow.Components {
			input, ok := comp.(*discordgo.TextInput)
			if !ok {
				continue
			}
			switch input.CustomID {
			case "email":
				email = strings.TrimSpace(input.Value)
			case "token":
				code = strings.ToUpper(strings.TrimSpace(input.Value))
			}
		}
	}
	return email, code
}
