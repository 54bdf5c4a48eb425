package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/flor3z/noko-bot/internal/arena"
)

// Repository handles all database operations
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new repository with SQLite
func NewRepository(dbPath string) (*Repository, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return newRepository(db)
}

// newRepository checks and migrates db. The handle is closed on failure.
func newRepository(db *sql.DB) (*Repository, error) {
	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := &Repository{db: db}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate creates the database schema
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			discord_id VARCHAR(20) PRIMARY KEY,
			trakt_username VARCHAR(100) NOT NULL,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL DEFAULT '',
			token_expiry TIMESTAMP,
			connected_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id VARCHAR(20) PRIMARY KEY,
			announcement_channel_id VARCHAR(20),
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS arena_state (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL,
			document TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_accounts_trakt_username ON accounts(trakt_username)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Account operations

// UpsertAccount links or relinks a Trakt account
func (r *Repository) UpsertAccount(ctx context.Context, a *Account) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (discord_id, trakt_username, access_token, refresh_token, token_expiry, connected_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(discord_id) DO UPDATE SET
			trakt_username = excluded.trakt_username,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_expiry = excluded.token_expiry,
			updated_at = excluded.updated_at`,
		a.DiscordID, a.TraktUsername, a.AccessToken, a.RefreshToken, a.TokenExpiry.UTC(), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert account: %w", err)
	}
	return nil
}

// GetAccount finds the account linked to a Discord user. It returns
// arena.ErrAccountNotLinked when there is none.
func (r *Repository) GetAccount(ctx context.Context, discordID string) (*Account, error) {
	a := &Account{}
	var expiry sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT discord_id, trakt_username, access_token, refresh_token, token_expiry, connected_at, updated_at
		 FROM accounts WHERE discord_id = ?`,
		discordID,
	).Scan(&a.DiscordID, &a.TraktUsername, &a.AccessToken, &a.RefreshToken, &expiry, &a.ConnectedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, arena.ErrAccountNotLinked
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if expiry.Valid {
		a.TokenExpiry = expiry.Time
	}
	return a, nil
}

// DeleteAccount unlinks a Discord user. It reports whether an account existed.
func (r *Repository) DeleteAccount(ctx context.Context, discordID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM accounts WHERE discord_id = ?`, discordID)
	if err != nil {
		return false, fmt.Errorf("failed to delete account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Credentials implements arena.CredentialStore.
func (r *Repository) Credentials(ctx context.Context, discordID string) (arena.Credentials, error) {
	a, err := r.GetAccount(ctx, discordID)
	if err != nil {
		return arena.Credentials{}, err
	}
	return a.Credentials(), nil
}

// UpdateCredentials implements arena.CredentialStore.
func (r *Repository) UpdateCredentials(ctx context.Context, discordID string, creds arena.Credentials) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET access_token = ?, refresh_token = ?, token_expiry = ?, updated_at = ? WHERE discord_id = ?`,
		creds.AccessToken, creds.RefreshToken, creds.Expiry.UTC(), time.Now().UTC(), discordID,
	)
	if err != nil {
		return fmt.Errorf("failed to update credentials: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return arena.ErrAccountNotLinked
	}
	return nil
}

// Guild settings operations

// UpsertGuildSettings creates or updates guild settings
func (r *Repository) UpsertGuildSettings(ctx context.Context, settings *GuildSettings) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO guild_settings (guild_id, announcement_channel_id) VALUES (?, ?)
		 ON CONFLICT(guild_id) DO UPDATE SET announcement_channel_id = excluded.announcement_channel_id`,
		settings.GuildID, settings.AnnouncementChannelID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert guild settings: %w", err)
	}
	return nil
}

// GetGuildSettings retrieves guild settings. It returns nil without error
// when the guild has none.
func (r *Repository) GetGuildSettings(ctx context.Context, guildID string) (*GuildSettings, error) {
	settings := &GuildSettings{}
	var channel sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT guild_id, announcement_channel_id, created_at FROM guild_settings WHERE guild_id = ?`,
		guildID,
	).Scan(&settings.GuildID, &channel, &settings.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get guild settings: %w", err)
	}
	settings.AnnouncementChannelID = channel.String
	return settings, nil
}

// AnnouncementChannels returns every configured announcement channel.
func (r *Repository) AnnouncementChannels(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT announcement_channel_id FROM guild_settings
		 WHERE announcement_channel_id IS NOT NULL AND announcement_channel_id != ''`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list announcement channels: %w", err)
	}
	defer rows.Close()

	var channels []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		channels = append(channels, id)
	}

	return channels, rows.Err()
}
