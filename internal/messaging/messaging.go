// Package messaging owns channels, DM channels, messages and reactions.
// Channel access is computed from server membership on every call, never
// cached; DM access is computed from the channel's user pair.
package messaging

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"guildchat-backend/internal/apperrors"
	"guildchat-backend/internal/database"
	"guildchat-backend/internal/members"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/notifications"
	"guildchat-backend/internal/permissions"
	"guildchat-backend/internal/relationships"
	"guildchat-backend/internal/snowflake"

	"go.uber.org/zap"
)

type Engine struct {
	sugar         *zap.SugaredLogger
	db            *sql.DB
	members       *members.Engine
	relationships *relationships.Engine
	notify        *notifications.Queue
}

func New(sugar *zap.SugaredLogger, db *sql.DB, membersEngine *members.Engine, relationshipsEngine *relationships.Engine, notify *notifications.Queue) *Engine {
	return &Engine{
		sugar:         sugar,
		db:            db,
		members:       membersEngine,
		relationships: relationshipsEngine,
		notify:        notify,
	}
}

func (e *Engine) CreateChannel(ctx context.Context, serverID int64, actorID int64, name string) (models.Channel, error) {
	if name == "" {
		return models.Channel{}, apperrors.InvalidArgument("channel name can't be empty")
	}

	if err := e.members.RequirePermission(ctx, serverID, actorID, permissions.ManageChannels); err != nil {
		return models.Channel{}, err
	}

	channelID, err := snowflake.Generate()
	if err != nil {
		return models.Channel{}, apperrors.Unavailable("generating channel ID", err)
	}

	channel := models.Channel{
		ID:        channelID,
		ServerID:  serverID,
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	_, err = e.db.ExecContext(ctx, "INSERT INTO channels (id, server_id, name, created_at) VALUES (?, ?, ?, ?)",
		channel.ID, channel.ServerID, channel.Name, channel.CreatedAt)
	if err != nil {
		return models.Channel{}, apperrors.Unavailable("creating channel", err)
	}

	return channel, nil
}

func (e *Engine) getChannel(ctx context.Context, channelID int64) (models.Channel, error) {
	var channel models.Channel
	err := e.db.QueryRowContext(ctx, "SELECT id, server_id, name, created_at FROM channels WHERE id = ?", channelID).
		Scan(&channel.ID, &channel.ServerID, &channel.Name, &channel.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Channel{}, apperrors.NotFound("channel %d not found", channelID)
		}
		return models.Channel{}, apperrors.Unavailable("fetching channel", err)
	}
	return channel, nil
}

func (e *Engine) ListChannels(ctx context.Context, serverID int64, actorID int64) ([]models.Channel, error) {
	if err := e.members.RequireMember(ctx, serverID, actorID); err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx, "SELECT id, server_id, name, created_at FROM channels WHERE server_id = ?", serverID)
	if err != nil {
		return nil, apperrors.Unavailable("listing channels", err)
	}
	defer rows.Close()

	channels := []models.Channel{}
	for rows.Next() {
		var channel models.Channel
		err := rows.Scan(&channel.ID, &channel.ServerID, &channel.Name, &channel.CreatedAt)
		if err != nil {
			return nil, apperrors.Unavailable("scanning channel", err)
		}
		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("listing channels", err)
	}

	return channels, nil
}

// PostChannelMessage appends a message to a server channel. Membership in
// the channel's server is the only gate; there are no per-channel
// permission overrides.
func (e *Engine) PostChannelMessage(ctx context.Context, channelID int64, actorID int64, content string) (models.Message, error) {
	if content == "" {
		return models.Message{}, apperrors.InvalidArgument("message content can't be empty")
	}

	channel, err := e.getChannel(ctx, channelID)
	if err != nil {
		return models.Message{}, err
	}

	if err := e.members.RequireMember(ctx, channel.ServerID, actorID); err != nil {
		return models.Message{}, err
	}

	messageID, err := snowflake.Generate()
	if err != nil {
		return models.Message{}, apperrors.Unavailable("generating message ID", err)
	}

	msg := models.Message{
		ID:        messageID,
		ChannelID: channelID,
		UserID:    actorID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	_, err = e.db.ExecContext(ctx, "INSERT INTO messages (id, channel_id, dm_channel_id, user_id, content, edited, created_at) VALUES (?, ?, NULL, ?, ?, FALSE, ?)",
		msg.ID, msg.ChannelID, msg.UserID, msg.Content, msg.CreatedAt)
	if err != nil {
		return models.Message{}, apperrors.Unavailable("creating message", err)
	}

	err = e.db.QueryRowContext(ctx, "SELECT display_name FROM users WHERE id = ?", actorID).Scan(&msg.User.DisplayName)
	if err != nil {
		return models.Message{}, apperrors.Unavailable("fetching author", err)
	}

	return msg, nil
}

func canonicalPair(a int64, b int64) (int64, int64) {
	if a < b {
		return a, b
	}
	return b, a
}

func (e *Engine) getDMChannel(ctx context.Context, dmChannelID int64) (models.DMChannel, error) {
	var dm models.DMChannel
	err := e.db.QueryRowContext(ctx, "SELECT id, user_low, user_high, last_message_at, created_at FROM dm_channels WHERE id = ?", dmChannelID).
		Scan(&dm.ID, &dm.UserLow, &dm.UserHigh, &dm.LastMessageAt, &dm.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.DMChannel{}, apperrors.NotFound("DM channel %d not found", dmChannelID)
		}
		return models.DMChannel{}, apperrors.Unavailable("fetching DM channel", err)
	}
	return dm, nil
}

// OpenDM returns the existing DM channel for the pair, creating it if
// needed. Creation requires an accepted friendship and no block in either
// direction; an already existing channel stays usable regardless.
func (e *Engine) OpenDM(ctx context.Context, actorID int64, otherID int64) (models.DMChannel, error) {
	if actorID == otherID {
		return models.DMChannel{}, apperrors.InvalidArgument("can't open a DM with yourself")
	}

	low, high := canonicalPair(actorID, otherID)

	var dm models.DMChannel
	err := e.db.QueryRowContext(ctx, "SELECT id, user_low, user_high, last_message_at, created_at FROM dm_channels WHERE user_low = ? AND user_high = ?", low, high).
		Scan(&dm.ID, &dm.UserLow, &dm.UserHigh, &dm.LastMessageAt, &dm.CreatedAt)
	if err == nil {
		return dm, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.DMChannel{}, apperrors.Unavailable("fetching DM channel", err)
	}

	friends, err := e.relationships.AreFriends(ctx, actorID, otherID)
	if err != nil {
		return models.DMChannel{}, err
	}
	if !friends {
		return models.DMChannel{}, apperrors.Forbidden("you can only open a DM with a friend")
	}

	blocked, err := e.relationships.BlockedEitherDirection(ctx, actorID, otherID)
	if err != nil {
		return models.DMChannel{}, err
	}
	if blocked {
		return models.DMChannel{}, apperrors.Forbidden("a block exists between these users")
	}

	dmID, err := snowflake.Generate()
	if err != nil {
		return models.DMChannel{}, apperrors.Unavailable("generating DM channel ID", err)
	}

	now := time.Now().UTC()
	dm = models.DMChannel{
		ID:            dmID,
		UserLow:       low,
		UserHigh:      high,
		LastMessageAt: now,
		CreatedAt:     now,
	}

	_, err = e.db.ExecContext(ctx, "INSERT INTO dm_channels (id, user_low, user_high, last_message_at, created_at) VALUES (?, ?, ?, ?, ?)",
		dm.ID, dm.UserLow, dm.UserHigh, dm.LastMessageAt, dm.CreatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			// lost the race, use the channel the other call created
			err = e.db.QueryRowContext(ctx, "SELECT id, user_low, user_high, last_message_at, created_at FROM dm_channels WHERE user_low = ? AND user_high = ?", low, high).
				Scan(&dm.ID, &dm.UserLow, &dm.UserHigh, &dm.LastMessageAt, &dm.CreatedAt)
			if err != nil {
				return models.DMChannel{}, apperrors.Unavailable("fetching DM channel", err)
			}
			return dm, nil
		}
		return models.DMChannel{}, apperrors.Unavailable("creating DM channel", err)
	}

	return dm, nil
}

// PostDMMessage appends a message to an existing DM channel. Friendship is
// not re-checked here: once the channel exists it stays usable.
func (e *Engine) PostDMMessage(ctx context.Context, dmChannelID int64, actorID int64, content string) (models.Message, error) {
	if content == "" {
		return models.Message{}, apperrors.InvalidArgument("message content can't be empty")
	}

	dm, err := e.getDMChannel(ctx, dmChannelID)
	if err != nil {
		return models.Message{}, err
	}
	if actorID != dm.UserLow && actorID != dm.UserHigh {
		return models.Message{}, apperrors.Forbidden("you are not part of this DM")
	}

	messageID, err := snowflake.Generate()
	if err != nil {
		return models.Message{}, apperrors.Unavailable("generating message ID", err)
	}

	msg := models.Message{
		ID:          messageID,
		DMChannelID: dmChannelID,
		UserID:      actorID,
		Content:     content,
		CreatedAt:   time.Now().UTC(),
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Message{}, apperrors.Unavailable("starting transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "INSERT INTO messages (id, channel_id, dm_channel_id, user_id, content, edited, created_at) VALUES (?, NULL, ?, ?, ?, FALSE, ?)",
		msg.ID, msg.DMChannelID, msg.UserID, msg.Content, msg.CreatedAt)
	if err != nil {
		return models.Message{}, apperrors.Unavailable("creating message", err)
	}

	_, err = tx.ExecContext(ctx, "UPDATE dm_channels SET last_message_at = ? WHERE id = ?", msg.CreatedAt, dmChannelID)
	if err != nil {
		return models.Message{}, apperrors.Unavailable("updating DM channel", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, apperrors.Unavailable("committing message", err)
	}

	otherID := dm.UserLow
	if actorID == dm.UserLow {
		otherID = dm.UserHigh
	}
	e.notify.Enqueue(otherID, models.NotifyMessage, "New message", content)

	return msg, nil
}

func (e *Engine) getMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	var channelID, dmChannelID sql.NullInt64
	var editedAt sql.NullTime
	err := e.db.QueryRowContext(ctx, "SELECT id, channel_id, dm_channel_id, user_id, content, edited, edited_at, created_at FROM messages WHERE id = ?", messageID).
		Scan(&msg.ID, &channelID, &dmChannelID, &msg.UserID, &msg.Content, &msg.Edited, &editedAt, &msg.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Message{}, apperrors.NotFound("message %d not found", messageID)
		}
		return models.Message{}, apperrors.Unavailable("fetching message", err)
	}
	msg.ChannelID = channelID.Int64
	msg.DMChannelID = dmChannelID.Int64
	if editedAt.Valid {
		msg.EditedAt = &editedAt.Time
	}
	return msg, nil
}

// canAccessMessage reproduces the posting gate for an existing message:
// server membership for channel messages, pair membership for DMs.
func (e *Engine) canAccessMessage(ctx context.Context, msg models.Message, actorID int64) error {
	if msg.ChannelID != 0 {
		channel, err := e.getChannel(ctx, msg.ChannelID)
		if err != nil {
			return err
		}
		return e.members.RequireMember(ctx, channel.ServerID, actorID)
	}

	dm, err := e.getDMChannel(ctx, msg.DMChannelID)
	if err != nil {
		return err
	}
	if actorID != dm.UserLow && actorID != dm.UserHigh {
		return apperrors.Forbidden("you are not part of this DM")
	}
	return nil
}

// EditMessage is author-only and never reorders: the edit flips the edited
// flag and timestamp, creation time stays put.
func (e *Engine) EditMessage(ctx context.Context, messageID int64, actorID int64, content string) error {
	if content == "" {
		return apperrors.InvalidArgument("message content can't be empty")
	}

	msg, err := e.getMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if msg.UserID != actorID {
		return apperrors.Forbidden("only the author can edit a message")
	}

	_, err = e.db.ExecContext(ctx, "UPDATE messages SET content = ?, edited = TRUE, edited_at = ? WHERE id = ?", content, time.Now().UTC(), messageID)
	if err != nil {
		return apperrors.Unavailable("editing message", err)
	}
	return nil
}

// DeleteMessage allows the author always; for channel messages also anyone
// with manage_messages in the channel's server. DM messages are
// author-only.
func (e *Engine) DeleteMessage(ctx context.Context, messageID int64, actorID int64) error {
	msg, err := e.getMessage(ctx, messageID)
	if err != nil {
		return err
	}

	if msg.UserID != actorID {
		if msg.ChannelID == 0 {
			return apperrors.Forbidden("only the author can delete a DM message")
		}
		channel, err := e.getChannel(ctx, msg.ChannelID)
		if err != nil {
			return err
		}
		if err := e.members.RequirePermission(ctx, channel.ServerID, actorID, permissions.ManageMessages); err != nil {
			return err
		}
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Unavailable("starting transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM message_reactions WHERE message_id = ?", messageID); err != nil {
		return apperrors.Unavailable("deleting reactions", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", messageID); err != nil {
		return apperrors.Unavailable("deleting message", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Unavailable("committing message deletion", err)
	}
	return nil
}

func (e *Engine) listMessages(ctx context.Context, where string, destinationID int64) ([]models.Message, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT
			m.id, m.channel_id, m.dm_channel_id, m.user_id, m.content, m.edited, m.edited_at, m.created_at,
			u.display_name
		FROM
			messages m
		JOIN
			users u ON m.user_id = u.id
		WHERE
			`+where+`
		ORDER BY
			m.created_at ASC
	`, destinationID)
	if err != nil {
		return nil, apperrors.Unavailable("listing messages", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		var msg models.Message
		var channelID, dmChannelID sql.NullInt64
		var editedAt sql.NullTime
		err := rows.Scan(&msg.ID, &channelID, &dmChannelID, &msg.UserID, &msg.Content, &msg.Edited, &editedAt, &msg.CreatedAt, &msg.User.DisplayName)
		if err != nil {
			return nil, apperrors.Unavailable("scanning message", err)
		}
		msg.ChannelID = channelID.Int64
		msg.DMChannelID = dmChannelID.Int64
		if editedAt.Valid {
			msg.EditedAt = &editedAt.Time
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("listing messages", err)
	}

	return messages, nil
}

func (e *Engine) ListChannelMessages(ctx context.Context, channelID int64, actorID int64) ([]models.Message, error) {
	channel, err := e.getChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if err := e.members.RequireMember(ctx, channel.ServerID, actorID); err != nil {
		return nil, err
	}

	return e.listMessages(ctx, "m.channel_id = ?", channelID)
}

func (e *Engine) ListDMMessages(ctx context.Context, dmChannelID int64, actorID int64) ([]models.Message, error) {
	dm, err := e.getDMChannel(ctx, dmChannelID)
	if err != nil {
		return nil, err
	}
	if actorID != dm.UserLow && actorID != dm.UserHigh {
		return nil, apperrors.Forbidden("you are not part of this DM")
	}

	return e.listMessages(ctx, "m.dm_channel_id = ?", dmChannelID)
}

// ToggleReaction flips the actor's reaction on a message: removes the row
// if it exists, creates it otherwise. The primary key on
// (message, user, emoji) keeps concurrent toggles at a single row.
func (e *Engine) ToggleReaction(ctx context.Context, messageID int64, actorID int64, emoji string) (string, error) {
	if emoji == "" {
		return "", apperrors.InvalidArgument("emoji can't be empty")
	}

	msg, err := e.getMessage(ctx, messageID)
	if err != nil {
		return "", err
	}
	if err := e.canAccessMessage(ctx, msg, actorID); err != nil {
		return "", err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return "", apperrors.Unavailable("starting transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "DELETE FROM message_reactions WHERE message_id = ? AND user_id = ? AND emoji = ?", messageID, actorID, emoji)
	if err != nil {
		return "", apperrors.Unavailable("removing reaction", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return "", apperrors.Unavailable("removing reaction", err)
	}

	if affected > 0 {
		if err := tx.Commit(); err != nil {
			return "", apperrors.Unavailable("committing reaction removal", err)
		}
		return "removed", nil
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO message_reactions (message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?)",
		messageID, actorID, emoji, time.Now().UTC())
	if err != nil {
		if database.IsUniqueViolation(err) {
			// a concurrent toggle created the row first
			return "", apperrors.Conflict("reaction already exists")
		}
		return "", apperrors.Unavailable("adding reaction", err)
	}

	if err := tx.Commit(); err != nil {
		return "", apperrors.Unavailable("committing reaction", err)
	}
	return "added", nil
}

// ListReactions returns the reactions on a message, author-visible only
// through the same access gate as reading the message.
func (e *Engine) ListReactions(ctx context.Context, messageID int64, actorID int64) ([]models.MessageReaction, error) {
	msg, err := e.getMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if err := e.canAccessMessage(ctx, msg, actorID); err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx, "SELECT message_id, user_id, emoji, created_at FROM message_reactions WHERE message_id = ?", messageID)
	if err != nil {
		return nil, apperrors.Unavailable("listing reactions", err)
	}
	defer rows.Close()

	reactions := []models.MessageReaction{}
	for rows.Next() {
		var r models.MessageReaction
		err := rows.Scan(&r.MessageID, &r.UserID, &r.Emoji, &r.CreatedAt)
		if err != nil {
			return nil, apperrors.Unavailable("scanning reaction", err)
		}
		reactions = append(reactions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("listing reactions", err)
	}

	return reactions, nil
}
