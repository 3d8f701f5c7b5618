package discord

import (
	"context"
	"fmt"

	"invite_service/internal/gate"

	"github.com/bwmarrin/discordgo"
)

// Actions implements gate.GuildActions on a discordgo session. Role names
// from config are resolved to ids per call; discordgo performs its own
// request timeouts, so the context is only honored up front.
type Actions struct {
	session *discordgo.Session
}

func NewActions(session *discordgo.Session) *Actions {
	return &Actions{session: session}
}

func (a *Actions) GrantRole(ctx context.Context, guildID, userID, roleName string) error {
	const op = "discord.GrantRole"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	roleID, err := a.roleID(guildID, roleName)
	if err != nil {
		return err
	}

	if err := a.session.GuildMemberRoleAdd(guildID, userID, roleID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *Actions) RemoveRole(ctx context.Context, guildID, userID, roleName string) error {
	const op = "discord.RemoveRole"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	roleID, err := a.roleID(guildID, roleName)
	if err != nil {
		return err
	}

	if err := a.session.GuildMemberRoleRemove(guildID, userID, roleID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *Actions) Kick(ctx context.Context, guildID, userID, reason string) error {
	const op = "discord.Kick"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := a.session.GuildMemberDeleteWithReason(guildID, userID, reason); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *Actions) roleID(guildID, roleName string) (string, error) {
	const op = "discord.roleID"

	roles, err := a.session.GuildRoles(guildID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	for _, role := range roles {
		if role.Name == roleName {
			return role.ID, nil
		}
	}

	return "", gate.ErrRoleNotFound
}
