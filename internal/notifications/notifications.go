// Package notifications persists notification rows and pushes them onto a
// redis queue for whatever delivery transport sits downstream. Enqueue is
// fire-and-forget: a sink failure is logged and never propagated back into
// the transaction that triggered it.
package notifications

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"guildchat-backend/internal/apperrors"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/snowflake"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Queue struct {
	sugar         *zap.SugaredLogger
	db            *sql.DB
	redisClient   *redis.Client
	selfContained bool
}

var redisCtx = context.Background()

func NewQueue(sugar *zap.SugaredLogger, db *sql.DB, redisClient *redis.Client, selfContained bool) *Queue {
	return &Queue{
		sugar:         sugar,
		db:            db,
		redisClient:   redisClient,
		selfContained: selfContained,
	}
}

// Enqueue records a notification for the target user and pushes it to the
// delivery queue. Best effort: failures are logged at Warn and dropped.
func (q *Queue) Enqueue(userID int64, notifyType models.NotificationType, title string, content string) {
	id, err := snowflake.Generate()
	if err != nil {
		q.sugar.Warnf("Dropping %s notification for user ID [%d]: %v", notifyType, userID, err)
		return
	}

	notification := models.Notification{
		ID:        id,
		UserID:    userID,
		Type:      notifyType,
		Title:     title,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}

	_, err = q.db.Exec("INSERT INTO notifications (id, user_id, type, title, content, is_read, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		notification.ID, notification.UserID, notification.Type, notification.Title, notification.Content, false, notification.CreatedAt)
	if err != nil {
		q.sugar.Warnf("Dropping %s notification for user ID [%d]: %v", notifyType, userID, err)
		return
	}

	if q.selfContained {
		return
	}

	bytes, err := json.Marshal(notification)
	if err != nil {
		q.sugar.Warn(err)
		return
	}

	err = q.redisClient.LPush(redisCtx, fmt.Sprintf("notifications:%d", userID), bytes).Err()
	if err != nil {
		q.sugar.Warnf("Queue push failed for user ID [%d]: %v", userID, err)
	}
}

func (q *Queue) List(ctx context.Context, userID int64) ([]models.Notification, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT id, user_id, type, title, content, is_read, created_at FROM notifications WHERE user_id = ? ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, apperrors.Unavailable("listing notifications", err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var n models.Notification
		err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Content, &n.IsRead, &n.CreatedAt)
		if err != nil {
			return nil, apperrors.Unavailable("scanning notification", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("listing notifications", err)
	}

	return notifications, nil
}

func (q *Queue) MarkRead(ctx context.Context, userID int64, notificationID int64) error {
	result, err := q.db.ExecContext(ctx, "UPDATE notifications SET is_read = TRUE WHERE id = ? AND user_id = ?", notificationID, userID)
	if err != nil {
		return apperrors.Unavailable("marking notification read", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Unavailable("marking notification read", err)
	}
	if affected == 0 {
		return apperrors.NotFound("notification %d not found", notificationID)
	}

	return nil
}
