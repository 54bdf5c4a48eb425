package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/noko-bot/internal/arena"
)

// EmbedSender posts embeds to a channel.
type EmbedSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ChannelLister returns the per-guild announcement channels.
type ChannelLister interface {
	AnnouncementChannels(ctx context.Context) ([]string, error)
}

// Announcer posts challenge rotations and weekly resets to the arena channel
// and every guild that configured one.
type Announcer struct {
	discord        EmbedSender
	guilds         ChannelLister
	defaultChannel string
	logger         *slog.Logger
}

// NewAnnouncer creates an Announcer. guilds may be nil.
func NewAnnouncer(discord EmbedSender, guilds ChannelLister, defaultChannel string, logger *slog.Logger) *Announcer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Announcer{discord: discord, guilds: guilds, defaultChannel: defaultChannel, logger: logger}
}

// AnnounceTick posts the tick's embed. Ticks with nothing to announce are
// ignored. Errors from individual channels are joined.
func (a *Announcer) AnnounceTick(ctx context.Context, res arena.TickResult) error {
	embed := tickEmbed(res)
	if embed == nil {
		return nil
	}

	channels, err := a.channels(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, channelID := range channels {
		if _, err := a.discord.ChannelMessageSendEmbed(channelID, embed); err != nil {
			a.logger.Error("Failed to send announcement", "channelID", channelID, "tick", res.ID, "error", err)
			errs = append(errs, fmt.Errorf("channel %s: %w", channelID, err))
			continue
		}
		a.logger.Info("Sent announcement", "channelID", channelID, "tick", res.ID, "title", embed.Title)
	}
	return errors.Join(errs...)
}

func (a *Announcer) channels(ctx context.Context) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}

	add(a.defaultChannel)
	if a.guilds != nil {
		ids, err := a.guilds.AnnouncementChannels(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list announcement channels: %w", err)
		}
		for _, id := range ids {
			add(id)
		}
	}
	return out, nil
}
