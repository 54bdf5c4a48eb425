package bot

import (
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

var minTeamSize = 1.0

// Slash command definitions
func (b *Bot) getCommandDefinitions() []*discordgo.ApplicationCommand {
	adminPerm := int64(discordgo.PermissionManageServer)
	dmAllowed := true

	return []*discordgo.ApplicationCommand{
		{
			Name:        "arena",
			Description: "Movie challenge arena",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "join", Description: "Join this week's arena"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "leave", Description: "Leave the arena"},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "vote",
					Description: "Vote for a team size",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:        discordgo.ApplicationCommandOptionInteger,
							Name:        "size",
							Description: "Members per team",
							Required:    true,
							MinValue:    &minTeamSize,
						},
					},
				},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "start", Description: "Vote to start the arena once teams are set"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "complete", Description: "Check your Trakt history against the current challenge"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "status", Description: "Show the arena status"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "teams", Description: "Show team standings"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "leaderboard", Description: "Show the top participants"},
			},
		},
		{
			Name:                     "arena-admin",
			Description:              "Arena administration",
			DefaultMemberPermissions: &adminPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "reset", Description: "Clear the arena and start a new week"},
				{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "newchallenge", Description: "Replace the current challenge now"},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "points",
					Description: "Adjust a participant's points",
					Options: []*discordgo.ApplicationCommandOption{
						{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "The participant", Required: true},
						{Type: discordgo.ApplicationCommandOptionInteger, Name: "amount", Description: "Points to add (negative to remove)", Required: true},
					},
				},
				{
					Type:        discordgo.ApplicationCommandOptionSubCommand,
					Name:        "channel",
					Description: "Set the channel for challenge announcements",
					Options: []*discordgo.ApplicationCommandOption{
						{
							Type:         discordgo.ApplicationCommandOptionChannel,
							Name:         "channel",
							Description:  "The channel to announce in",
							Required:     true,
							ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildText},
						},
					},
				},
			},
		},
		{
			Name:         "connect",
			Description:  "Link your Trakt account",
			DMPermission: &dmAllowed,
		},
		{
			Name:         "authorize",
			Description:  "Finish linking Trakt with the code from the authorization page",
			DMPermission: &dmAllowed,
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "code", Description: "Authorization code", Required: true},
			},
		},
		{
			Name:         "disconnect",
			Description:  "Unlink your Trakt account",
			DMPermission: &dmAllowed,
		},
	}
}

// registerCommands registers all slash commands with Discord. Commands are
// scoped to DISCORD_GUILD_ID when set, global otherwise.
func (b *Bot) registerCommands() error {
	slog.Info("Registering slash commands", "guild", b.config.GuildID)

	appID := b.applicationID()
	commandDefinitions := b.getCommandDefinitions()
	registeredCommands := make([]*discordgo.ApplicationCommand, 0, len(commandDefinitions))

	for _, cmd := range commandDefinitions {
		registered, err := b.session.ApplicationCommandCreate(appID, b.config.GuildID, cmd)
		if err != nil {
			return fmt.Errorf("failed to register command %s: %w", cmd.Name, err)
		}
		registeredCommands = append(registeredCommands, registered)
		slog.Debug("Registered command", "name", cmd.Name)
	}

	b.commands = registeredCommands
	slog.Info("Slash commands registered", "count", len(registeredCommands))
	return nil
}

// removeCommands removes all registered slash commands
func (b *Bot) removeCommands() {
	appID := b.applicationID()
	for _, cmd := range b.commands {
		err := b.session.ApplicationCommandDelete(appID, b.config.GuildID, cmd.ID)
		if err != nil {
			slog.Error("Failed to remove command", "name", cmd.Name, "error", err)
		}
	}
}

func (b *Bot) applicationID() string {
	if b.config.DiscordApplicationID != "" {
		return b.config.DiscordApplicationID
	}
	return b.session.State.User.ID
}

// Helper functions

// respond sends an immediate reply. Replies to button presses are ephemeral.
func respond(s *discordgo.Session, i *discordgo.InteractionCreate, data *discordgo.InteractionResponseData) {
	if i.Type == discordgo.InteractionMessageComponent {
		data.Flags |= discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		slog.Error("Failed to respond to interaction", "error", err)
	}
}

func respondWithMessage(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	respond(s, i, &discordgo.InteractionResponseData{Content: content})
}

func respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	respond(s, i, &discordgo.InteractionResponseData{Content: content, Flags: discordgo.MessageFlagsEphemeral})
}

func respondWithEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, content string, embed *discordgo.MessageEmbed) {
	respond(s, i, &discordgo.InteractionResponseData{Content: content, Embeds: []*discordgo.MessageEmbed{embed}})
}

// deferResponse acknowledges an interaction that needs network calls before
// it can answer.
func deferResponse(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) {
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredChannelMessageWithSource}
	if ephemeral || i.Type == discordgo.InteractionMessageComponent {
		resp.Data = &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral}
	}
	if err := s.InteractionRespond(i.Interaction, resp); err != nil {
		slog.Error("Failed to defer interaction", "error", err)
	}
}

func (b *Bot) editResponse(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Content: &content,
	}); err != nil {
		slog.Error("Failed to edit interaction response", "error", err)
	}
}

func (b *Bot) editResponseEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
		Embeds: &[]*discordgo.MessageEmbed{embed},
	}); err != nil {
		slog.Error("Failed to edit interaction response", "error", err)
	}
}

// subcommand returns the first option of a command with subcommands.
func subcommand(i *discordgo.InteractionCreate) *discordgo.ApplicationCommandInteractionDataOption {
	opts := i.ApplicationCommandData().Options
	if len(opts) == 0 {
		return nil
	}
	return opts[0]
}

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, opt := range opts {
		m[opt.Name] = opt
	}
	return m
}
