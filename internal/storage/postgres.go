package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/caelusway/bio-sync-bot-sub000/internal/models"
)

//go:embed migrations.sql
var migrations embed.FS

type DatabaseConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	UseInMemory bool
}

type PostgresStorage struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewPostgresStorage(config DatabaseConfig, logger *zap.Logger) (*PostgresStorage, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to the database: %w", err)
	}

	storage := &PostgresStorage{db: db, logger: logger}

	if err := storage.initializeSchema(); err != nil {
		return nil, fmt.Errorf("error initializing database schema: %w", err)
	}

	return storage, nil
}

func (s *PostgresStorage) initializeSchema() error {
	migrationSQL, err := migrations.ReadFile("migrations.sql")
	if err != nil {
		return fmt.Errorf("error reading migrations file: %w", err)
	}

	if _, err := s.db.Exec(string(migrationSQL)); err != nil {
		return fmt.Errorf("error executing migrations: %w", err)
	}

	return nil
}

// SaveMessage performs the idempotent upsert: on a duplicate id the mutable
// fields are overwritten while created_at and sent_at keep their first-seen
// values. The "xmax = 0" check tells an insert apart from a conflict update.
func (s *PostgresStorage) SaveMessage(ctx context.Context, msg *models.CanonicalMessage) (SaveOutcome, error) {
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return 0, fmt.Errorf("error encoding attachments: %w", err)
	}
	metadata, err := json.Marshal(msg.Metadata)
	if err != nil {
		return 0, fmt.Errorf("error encoding metadata: %w", err)
	}
	if msg.Metadata == nil {
		metadata = []byte("{}")
	}
	if msg.Attachments == nil {
		attachments = []byte("[]")
	}

	query := `
		INSERT INTO messages (
			id, channel_id, channel_name, is_thread, thread_id, thread_name,
			parent_channel_id, parent_channel_name, author_id, author_name,
			content, attachments, semantic_topic, phase_tag, metadata,
			sent_at, edited_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO UPDATE SET
			content     = EXCLUDED.content,
			attachments = EXCLUDED.attachments,
			metadata    = EXCLUDED.metadata,
			edited_at   = EXCLUDED.edited_at,
			updated_at  = NOW()
		RETURNING (xmax = 0)`

	var inserted bool
	err = s.db.QueryRowContext(ctx, query,
		msg.ID,
		msg.ChannelID,
		msg.ChannelName,
		msg.IsThread,
		nullString(msg.ThreadID),
		nullString(msg.ThreadName),
		nullString(msg.ParentChannelID),
		nullString(msg.ParentChannelName),
		msg.AuthorID,
		nullString(msg.AuthorName),
		msg.Content,
		attachments,
		string(msg.SemanticTopic),
		msg.PhaseTag,
		metadata,
		msg.Timestamp,
		nullTime(msg.EditedTimestamp),
	).Scan(&inserted)
	if err != nil {
		return 0, fmt.Errorf("error saving message: %w", err)
	}

	if inserted {
		return SaveInserted, nil
	}
	return SaveUpdatedDuplicate, nil
}

func (s *PostgresStorage) UpdateMessage(ctx context.Context, id string, upd models.MessageUpdate) error {
	attachments, err := json.Marshal(upd.Attachments)
	if err != nil {
		return fmt.Errorf("error encoding attachments: %w", err)
	}
	if upd.Attachments == nil {
		attachments = []byte("[]")
	}
	metadata, err := json.Marshal(upd.Metadata)
	if err != nil {
		return fmt.Errorf("error encoding metadata: %w", err)
	}
	if upd.Metadata == nil {
		metadata = []byte("{}")
	}

	query := `
		UPDATE messages
		SET content = $1, attachments = $2, edited_at = $3, metadata = $4, updated_at = NOW()
		WHERE id = $5`

	result, err := s.db.ExecContext(ctx, query, upd.Content, attachments, nullTime(upd.EditedTimestamp), metadata, id)
	if err != nil {
		return fmt.Errorf("error updating message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("error getting rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) DeleteMessage(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = $1`, id); err != nil {
		return fmt.Errorf("error deleting message: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetChannelStats(ctx context.Context, channelID string) (*models.ChannelStats, error) {
	query := `
		SELECT channel_id, total_messages, messages_today, messages_this_week, last_message_at
		FROM channel_stats
		WHERE channel_id = $1`

	stats := &models.ChannelStats{}
	err := s.db.QueryRowContext(ctx, query, channelID).Scan(
		&stats.ChannelID,
		&stats.TotalMessages,
		&stats.MessagesToday,
		&stats.MessagesThisWeek,
		&stats.LastMessageAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying channel stats: %w", err)
	}
	return stats, nil
}

// RecordChannelMessage increments the channel aggregates in one statement so
// concurrent ingestions into the same channel never lose an update. The
// day/week boundary checks compare against the stored last_message_at in UTC;
// date_trunc('week', ...) starts weeks on Monday, matching ISO weeks.
func (s *PostgresStorage) RecordChannelMessage(ctx context.Context, channelID string, at time.Time) error {
	query := `
		INSERT INTO channel_stats (channel_id, total_messages, messages_today, messages_this_week, last_message_at)
		VALUES ($1, 1, 1, 1, $2)
		ON CONFLICT (channel_id) DO UPDATE SET
			total_messages = channel_stats.total_messages + 1,
			messages_today = CASE
				WHEN date_trunc('day', channel_stats.last_message_at AT TIME ZONE 'UTC')
				   = date_trunc('day', EXCLUDED.last_message_at AT TIME ZONE 'UTC')
				THEN channel_stats.messages_today + 1
				ELSE 1
			END,
			messages_this_week = CASE
				WHEN date_trunc('week', channel_stats.last_message_at AT TIME ZONE 'UTC')
				   = date_trunc('week', EXCLUDED.last_message_at AT TIME ZONE 'UTC')
				THEN channel_stats.messages_this_week + 1
				ELSE 1
			END,
			last_message_at = GREATEST(channel_stats.last_message_at, EXCLUDED.last_message_at)`

	if _, err := s.db.ExecContext(ctx, query, channelID, at); err != nil {
		return fmt.Errorf("error recording channel message: %w", err)
	}
	return nil
}

func (s *PostgresStorage) UpsertUserActivity(ctx context.Context, userID, channelID string, at time.Time) error {
	query := `
		INSERT INTO user_activity (user_id, channel_id, message_count, first_message_at, last_message_at)
		VALUES ($1, $2, 1, $3, $3)
		ON CONFLICT (user_id, channel_id) DO UPDATE SET
			message_count   = user_activity.message_count + 1,
			last_message_at = GREATEST(user_activity.last_message_at, EXCLUDED.last_message_at)`

	if _, err := s.db.ExecContext(ctx, query, userID, channelID, at); err != nil {
		return fmt.Errorf("error upserting user activity: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
