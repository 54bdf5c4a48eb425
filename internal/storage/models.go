package storage

import (
	"time"

	"github.com/flor3z/noko-bot/internal/arena"
)

// Account is a Discord user's linked Trakt account
type Account struct {
	DiscordID     string
	TraktUsername string
	AccessToken   string
	RefreshToken  string
	TokenExpiry   time.Time
	ConnectedAt   time.Time
	UpdatedAt     time.Time
}

// Credentials returns the tokens used for Trakt requests.
func (a *Account) Credentials() arena.Credentials {
	return arena.Credentials{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		Expiry:       a.TokenExpiry,
	}
}

// GuildSettings stores per-server configuration
type GuildSettings struct {
	GuildID               string
	AnnouncementChannelID string
	CreatedAt             time.Time
}
