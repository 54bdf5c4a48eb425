package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/noko-bot/internal/arena"
	"github.com/flor3z/noko-bot/internal/config"
	"github.com/flor3z/noko-bot/internal/storage"
	"github.com/flor3z/noko-bot/internal/trakt"
)

// AccountStore persists linked Trakt accounts and per-guild settings.
type AccountStore interface {
	UpsertAccount(ctx context.Context, a *storage.Account) error
	GetAccount(ctx context.Context, discordID string) (*storage.Account, error)
	DeleteAccount(ctx context.Context, discordID string) (bool, error)
	GetGuildSettings(ctx context.Context, guildID string) (*storage.GuildSettings, error)
	UpsertGuildSettings(ctx context.Context, settings *storage.GuildSettings) error
	AnnouncementChannels(ctx context.Context) ([]string, error)
}

// Deps are the services the bot drives.
type Deps struct {
	Arena    *arena.Service
	Accounts AccountStore
	Trakt    *trakt.Client
}

// Bot represents the Discord bot instance
type Bot struct {
	config    *config.Config
	session   *discordgo.Session
	arena     *arena.Service
	accounts  AccountStore
	trakt     *trakt.Client
	announcer *Announcer
	commands  []*discordgo.ApplicationCommand
}

// New creates a new Bot instance
func New(cfg *config.Config, deps Deps) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	b := &Bot{
		config:    cfg,
		session:   session,
		arena:     deps.Arena,
		accounts:  deps.Accounts,
		trakt:     deps.Trakt,
		announcer: NewAnnouncer(session, deps.Accounts, cfg.ArenaChannelID, slog.Default()),
	}

	b.registerHandlers()

	return b, nil
}

// Announcer returns the notifier that posts rotation announcements.
func (b *Bot) Announcer() *Announcer {
	return b.announcer
}

// Start opens the Discord connection and registers slash commands
func (b *Bot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	slog.Info("Connected to Discord", "user", b.session.State.User.Username)

	if err := b.registerCommands(); err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}
	return nil
}

// Stop closes the Discord session. Guild-scoped commands are removed first.
func (b *Bot) Stop() error {
	if b.config.GuildID != "" {
		b.removeCommands()
	}
	if b.session != nil {
		return b.session.Close()
	}
	return nil
}

// registerHandlers sets up Discord event handlers
func (b *Bot) registerHandlers() {
	b.session.AddHandler(b.handleInteraction)
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		slog.Info("Bot is ready", "guilds", len(r.Guilds))
	})
}

// handleInteraction routes slash commands and button presses
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(s, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(s, i)
	}
}

func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	slog.Debug("Received command", "command", data.Name, "guild", i.GuildID)

	switch data.Name {
	case "arena":
		b.handleArena(s, i)
	case "arena-admin":
		b.handleArenaAdmin(s, i)
	case "connect":
		b.handleConnect(s, i)
	case "authorize":
		b.handleAuthorize(s, i)
	case "disconnect":
		b.handleDisconnect(s, i)
	default:
		slog.Warn("Unknown command", "command", data.Name)
	}
}

func (b *Bot) handleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	customID := i.MessageComponentData().CustomID
	slog.Debug("Received component", "customID", customID, "guild", i.GuildID)

	switch customID {
	case customIDJoin:
		b.handleJoin(s, i)
	case customIDComplete:
		b.handleComplete(s, i)
	default:
		slog.Warn("Unknown component", "customID", customID)
	}
}

// interactionUser returns the invoking user for guild and DM interactions.
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

// displayName prefers the guild nickname, then the global name.
func displayName(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.Nick != "" {
		return i.Member.Nick
	}
	u := interactionUser(i)
	if u == nil {
		return ""
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// isAdmin reports whether the caller may run admin commands: listed in
// ADMIN_USER_IDS or holding the Administrator permission in the guild.
func isAdmin(cfg *config.Config, i *discordgo.InteractionCreate) bool {
	u := interactionUser(i)
	if u != nil && cfg.IsAdmin(u.ID) {
		return true
	}
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0
}
