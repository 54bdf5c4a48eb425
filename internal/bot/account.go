package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/flor3z/noko-bot/internal/arena"
	"github.com/flor3z/noko-bot/internal/storage"
	"github.com/flor3z/noko-bot/internal/trakt"
)

// handleConnect handles the /connect command
func (b *Bot) handleConnect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	url, _ := b.trakt.AuthURL()
	respond(s, i, &discordgo.InteractionResponseData{
		Flags: discordgo.MessageFlagsEphemeral,
		Content: "1. Open the link below and approve access.\n" +
			"2. Copy the code Trakt shows you.\n" +
			"3. Run `/authorize code:<code>`.",
		Components: []discordgo.MessageComponent{
			discordgo.ActionsRow{Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Authorize on Trakt", Style: discordgo.LinkButton, URL: url},
			}},
		},
	})
}

// handleAuthorize handles the /authorize command
func (b *Bot) handleAuthorize(s *discordgo.Session, i *discordgo.InteractionCreate) {
	code := strings.TrimSpace(optionMap(i.ApplicationCommandData().Options)["code"].StringValue())

	deferResponse(s, i, true)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	user := interactionUser(i)
	creds, err := b.trakt.Exchange(ctx, code)
	if err != nil {
		slog.Warn("Failed to exchange Trakt code", "user", user.ID, "error", err)
		b.editResponse(s, i, exchangeFailureMessage(err))
		return
	}

	profile, err := b.trakt.GetProfile(ctx, creds.AccessToken)
	if err != nil {
		slog.Error("Failed to fetch Trakt profile", "user", user.ID, "error", err)
		b.editResponse(s, i, "Linked, but Trakt didn't return your profile. Please try `/connect` again.")
		return
	}

	account := &storage.Account{
		DiscordID:     user.ID,
		TraktUsername: profile.Username,
		AccessToken:   creds.AccessToken,
		RefreshToken:  creds.RefreshToken,
		TokenExpiry:   creds.Expiry,
	}
	if err := b.accounts.UpsertAccount(ctx, account); err != nil {
		slog.Error("Failed to save account", "user", user.ID, "error", err)
		b.editResponse(s, i, "Failed to save your Trakt account. Please try again.")
		return
	}

	slog.Info("Trakt account linked", "user", user.ID, "trakt", profile.Username)
	b.editResponse(s, i, fmt.Sprintf("Linked Trakt account **%s**.", profile.Username))
}

// exchangeFailureMessage tells a rejected code apart from Trakt being down.
func exchangeFailureMessage(err error) string {
	if trakt.IsAuthError(err) {
		return "That code didn't work. Run `/connect` to get a fresh one."
	}
	return "Couldn't reach Trakt to finish linking. Please try `/authorize` again in a few minutes."
}

// handleDisconnect handles the /disconnect command
func (b *Bot) handleDisconnect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	user := interactionUser(i)
	deleted, err := b.accounts.DeleteAccount(ctx, user.ID)
	switch {
	case err != nil:
		slog.Error("Failed to delete account", "user", user.ID, "error", err)
		respondEphemeral(s, i, "Failed to unlink your Trakt account. Please try again.")
	case !deleted:
		respondEphemeral(s, i, userMessage(arena.ErrAccountNotLinked))
	default:
		slog.Info("Trakt account unlinked", "user", user.ID)
		respondEphemeral(s, i, "Your Trakt account has been unlinked.")
	}
}

// linkedUsername returns the caller's Trakt username, or "" when unlinked.
func (b *Bot) linkedUsername(ctx context.Context, discordID string) (string, error) {
	account, err := b.accounts.GetAccount(ctx, discordID)
	if errors.Is(err, arena.ErrAccountNotLinked) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return account.TraktUsername, nil
}
