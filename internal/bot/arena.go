package bot

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/noko-bot/internal/arena"
	"github.com/flor3z/noko-bot/internal/storage"
)

const (
	commandTimeout   = 10 * time.Second
	completeTimeout  = 30 * time.Second
	leaderboardLimit = 10
)

// handleArena handles the /arena subcommands
func (b *Bot) handleArena(s *discordgo.Session, i *discordgo.InteractionCreate) {
	sub := subcommand(i)
	if sub == nil {
		return
	}

	switch sub.Name {
	case "join":
		b.handleJoin(s, i)
	case "leave":
		b.handleLeave(s, i)
	case "vote":
		b.handleVote(s, i, optionMap(sub.Options))
	case "start":
		b.handleStart(s, i)
	case "complete":
		b.handleComplete(s, i)
	case "status":
		b.handleStatus(s, i)
	case "teams":
		b.handleTeams(s, i)
	case "leaderboard":
		b.handleLeaderboard(s, i)
	default:
		slog.Warn("Unknown arena subcommand", "subcommand", sub.Name)
	}
}

// replyError sends the user-facing message for err, logging failures that
// are not ordinary arena outcomes.
func replyError(s *discordgo.Session, i *discordgo.InteractionCreate, op string, err error) {
	if !arena.IsUserError(err) {
		slog.Error("Arena operation failed", "op", op, "error", err)
	}
	respondEphemeral(s, i, userMessage(err))
}

func (b *Bot) handleJoin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	user := interactionUser(i)
	p, err := b.arena.Join(ctx, user.ID, displayName(i))
	if err != nil {
		replyError(s, i, "join", err)
		return
	}

	msg := fmt.Sprintf("**%s** joined the arena!", p.DisplayName)
	username, err := b.linkedUsername(ctx, user.ID)
	switch {
	case err != nil:
		slog.Warn("Failed to look up linked account", "user", user.ID, "error", err)
	case username == "":
		msg += "\nLink your Trakt account with `/connect` so your watches can count."
	default:
		msg += fmt.Sprintf("\nWatches from Trakt user `%s` will count.", username)
	}
	respondWithMessage(s, i, msg)
}

func (b *Bot) handleLeave(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := b.arena.Leave(ctx, interactionUser(i).ID); err != nil {
		replyError(s, i, "leave", err)
		return
	}
	respondWithMessage(s, i, fmt.Sprintf("**%s** left the arena.", displayName(i)))
}

func (b *Bot) handleVote(s *discordgo.Session, i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	size := 0
	if opt, ok := opts["size"]; ok {
		size = int(opt.IntValue())
	}

	res, teams, err := b.arena.CastSizeVote(ctx, interactionUser(i).ID, size)
	if err != nil {
		replyError(s, i, "vote", err)
		return
	}
	if !res.Formed {
		respondWithMessage(s, i, fmt.Sprintf("Vote for teams of %d recorded (%d/%d votes).", size, res.Votes, res.Needed))
		return
	}

	standings := make([]arena.TeamStanding, 0, len(teams))
	for _, t := range teams {
		standings = append(standings, arena.TeamStanding{Team: t})
	}
	respondWithEmbed(s, i,
		fmt.Sprintf("Teams of %d are set! Vote to begin with `/arena start`.", res.Size),
		teamsEmbed(standings))
}

func (b *Bot) handleStart(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	out, err := b.arena.CastStartVote(ctx, interactionUser(i).ID)
	if err != nil {
		replyError(s, i, "start", err)
		return
	}
	if out.Challenge == nil {
		respondWithMessage(s, i, fmt.Sprintf("Start vote recorded (%d/%d votes).", out.Votes, out.Needed))
		return
	}
	respondWithEmbed(s, i, "The arena is live!", challengeEmbed("First challenge", *out.Challenge))
}

// handleComplete defers the reply while Trakt history is checked.
func (b *Bot) handleComplete(s *discordgo.Session, i *discordgo.InteractionCreate) {
	deferResponse(s, i, false)

	ctx, cancel := context.WithTimeout(context.Background(), completeTimeout)
	defer cancel()

	out, err := b.arena.CompleteChallenge(ctx, interactionUser(i).ID)
	if err != nil {
		if !arena.IsUserError(err) {
			slog.Error("Challenge completion failed", "user", interactionUser(i).ID, "error", err)
		}
		b.editResponse(s, i, userMessage(err))
		return
	}
	b.editResponseEmbed(s, i, completionEmbed(out))
}

func (b *Bot) handleStatus(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	st, err := b.arena.Status(ctx)
	if err != nil {
		replyError(s, i, "status", err)
		return
	}
	respond(s, i, &discordgo.InteractionResponseData{
		Embeds:     []*discordgo.MessageEmbed{statusEmbed(st, b.config.BotName)},
		Components: statusComponents(st),
	})
}

func (b *Bot) handleTeams(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	teams, err := b.arena.Teams(ctx)
	if err != nil {
		replyError(s, i, "teams", err)
		return
	}
	respondWithEmbed(s, i, "", teamsEmbed(teams))
}

func (b *Bot) handleLeaderboard(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	board, err := b.arena.Leaderboard(ctx, leaderboardLimit)
	if err != nil {
		replyError(s, i, "leaderboard", err)
		return
	}
	respondWithEmbed(s, i, "", leaderboardEmbed(board))
}

// handleArenaAdmin handles the /arena-admin subcommands
func (b *Bot) handleArenaAdmin(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if !isAdmin(b.config, i) {
		replyError(s, i, "admin", arena.ErrAdminOnly)
		return
	}
	sub := subcommand(i)
	if sub == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	admin := interactionUser(i).ID
	switch sub.Name {
	case "reset":
		if err := b.arena.AdminReset(ctx); err != nil {
			replyError(s, i, "reset", err)
			return
		}
		slog.Info("Admin reset arena", "admin", admin)
		respondWithMessage(s, i, "The arena has been reset. A new week begins!")

	case "newchallenge":
		c, err := b.arena.AdminForceNewChallenge(ctx)
		if err != nil {
			replyError(s, i, "newchallenge", err)
			return
		}
		slog.Info("Admin forced new challenge", "admin", admin, "challenge", c.Name)
		respondWithEmbed(s, i, "", challengeEmbed("New challenge!", c))

	case "points":
		opts := optionMap(sub.Options)
		target := opts["user"].UserValue(s)
		amount := int(opts["amount"].IntValue())
		total, err := b.arena.AddPoints(ctx, target.ID, amount)
		if err != nil {
			replyError(s, i, "points", err)
			return
		}
		slog.Info("Admin adjusted points", "admin", admin, "user", target.ID, "delta", amount, "total", total)
		respondEphemeral(s, i, fmt.Sprintf("<@%s> now has %d points.", target.ID, total))

	case "channel":
		if i.GuildID == "" {
			respondEphemeral(s, i, "Announcement channels can only be set in a server.")
			return
		}
		channel := optionMap(sub.Options)["channel"].ChannelValue(s)
		msg, err := b.setAnnouncementChannel(ctx, i.GuildID, channel.ID)
		if err != nil {
			slog.Error("Failed to save guild settings", "guild", i.GuildID, "error", err)
			respondEphemeral(s, i, "Failed to set the announcement channel. Please try again.")
			return
		}
		slog.Info("Admin set announcement channel", "admin", admin, "guild", i.GuildID, "channel", channel.ID)
		respondWithMessage(s, i, msg)

	default:
		slog.Warn("Unknown admin subcommand", "subcommand", sub.Name)
	}
}

// setAnnouncementChannel stores the guild's announcement channel and returns
// the confirmation, naming the channel it replaced.
func (b *Bot) setAnnouncementChannel(ctx context.Context, guildID, channelID string) (string, error) {
	prev, err := b.accounts.GetGuildSettings(ctx, guildID)
	if err != nil {
		return "", err
	}
	settings := &storage.GuildSettings{GuildID: guildID, AnnouncementChannelID: channelID}
	if err := b.accounts.UpsertGuildSettings(ctx, settings); err != nil {
		return "", err
	}

	msg := fmt.Sprintf("Challenge announcements will be sent to <#%s>", channelID)
	switch {
	case prev == nil || prev.AnnouncementChannelID == "":
	case prev.AnnouncementChannelID == channelID:
		msg += " (unchanged)"
	default:
		msg += fmt.Sprintf(" instead of <#%s>", prev.AnnouncementChannelID)
	}
	return msg, nil
}
