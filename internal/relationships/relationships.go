// Package relationships is the friend-request/friendship/block state
// machine. An accepted friendship is two symmetric directed edges, always
// written and removed together in one transaction.
package relationships

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"guildchat-backend/internal/apperrors"
	"guildchat-backend/internal/database"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/notifications"
	"guildchat-backend/internal/snowflake"
	"guildchat-backend/internal/users"

	"go.uber.org/zap"
)

type Engine struct {
	sugar  *zap.SugaredLogger
	db     *sql.DB
	users  *users.Store
	notify *notifications.Queue
}

func New(sugar *zap.SugaredLogger, db *sql.DB, userStore *users.Store, notify *notifications.Queue) *Engine {
	return &Engine{sugar: sugar, db: db, users: userStore, notify: notify}
}

func (e *Engine) friendsEitherDirection(ctx context.Context, q database.Querier, a int64, b int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM friends WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?))",
		a, b, b, a).Scan(&exists)
	if err != nil {
		return false, apperrors.Unavailable("checking friendship", err)
	}
	return exists, nil
}

func (e *Engine) blockedEitherDirection(ctx context.Context, q database.Querier, a int64, b int64) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM user_blocks WHERE (user_id = ? AND blocked_id = ?) OR (user_id = ? AND blocked_id = ?))",
		a, b, b, a).Scan(&exists)
	if err != nil {
		return false, apperrors.Unavailable("checking blocks", err)
	}
	return exists, nil
}

// AreFriends reports whether an accepted friendship exists between the
// pair. Used by the messaging engine to gate new DM channels.
func (e *Engine) AreFriends(ctx context.Context, a int64, b int64) (bool, error) {
	return e.friendsEitherDirection(ctx, e.db, a, b)
}

// BlockedEitherDirection reports whether either user blocks the other.
func (e *Engine) BlockedEitherDirection(ctx context.Context, a int64, b int64) (bool, error) {
	return e.blockedEitherDirection(ctx, e.db, a, b)
}

func (e *Engine) SendFriendRequest(ctx context.Context, senderID int64, receiverID int64) (models.FriendRequest, error) {
	if senderID == receiverID {
		return models.FriendRequest{}, apperrors.InvalidArgument("can't send a friend request to yourself")
	}

	exists, err := e.users.UserExists(ctx, receiverID)
	if err != nil {
		return models.FriendRequest{}, err
	}
	if !exists {
		return models.FriendRequest{}, apperrors.NotFound("user %d not found", receiverID)
	}

	requestID, err := snowflake.Generate()
	if err != nil {
		return models.FriendRequest{}, apperrors.Unavailable("generating request ID", err)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return models.FriendRequest{}, apperrors.Unavailable("starting transaction", err)
	}
	defer tx.Rollback()

	blocked, err := e.blockedEitherDirection(ctx, tx, senderID, receiverID)
	if err != nil {
		return models.FriendRequest{}, err
	}
	if blocked {
		return models.FriendRequest{}, apperrors.Forbidden("a block exists between these users")
	}

	friends, err := e.friendsEitherDirection(ctx, tx, senderID, receiverID)
	if err != nil {
		return models.FriendRequest{}, err
	}
	if friends {
		return models.FriendRequest{}, apperrors.Conflict("already friends")
	}

	var pending bool
	err = tx.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM friend_requests WHERE status = 'pending' AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)))",
		senderID, receiverID, receiverID, senderID).Scan(&pending)
	if err != nil {
		return models.FriendRequest{}, apperrors.Unavailable("checking pending requests", err)
	}
	if pending {
		return models.FriendRequest{}, apperrors.Conflict("a pending request already exists between these users")
	}

	request := models.FriendRequest{
		ID:         requestID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     models.RequestPending,
		CreatedAt:  time.Now().UTC(),
		UpdatedAt:  time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO friend_requests (id, sender_id, receiver_id, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		request.ID, request.SenderID, request.ReceiverID, request.Status, request.CreatedAt, request.UpdatedAt)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return models.FriendRequest{}, apperrors.Conflict("a request already exists between these users")
		}
		return models.FriendRequest{}, apperrors.Unavailable("creating friend request", err)
	}

	if err := tx.Commit(); err != nil {
		return models.FriendRequest{}, apperrors.Unavailable("committing friend request", err)
	}

	e.notify.Enqueue(receiverID, models.NotifyFriendRequest, "New friend request", "You have a new friend request")
	return request, nil
}

func (e *Engine) getRequest(ctx context.Context, q database.Querier, requestID int64) (models.FriendRequest, error) {
	var request models.FriendRequest
	err := q.QueryRowContext(ctx, "SELECT id, sender_id, receiver_id, status, created_at, updated_at FROM friend_requests WHERE id = ?", requestID).
		Scan(&request.ID, &request.SenderID, &request.ReceiverID, &request.Status, &request.CreatedAt, &request.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.FriendRequest{}, apperrors.NotFound("friend request %d not found", requestID)
		}
		return models.FriendRequest{}, apperrors.Unavailable("fetching friend request", err)
	}
	return request, nil
}

// AcceptFriendRequest transitions a pending request to accepted and writes
// both symmetric friend edges in the same transaction, so one edge never
// exists without the other.
func (e *Engine) AcceptFriendRequest(ctx context.Context, actorID int64, requestID int64) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Unavailable("starting transaction", err)
	}
	defer tx.Rollback()

	request, err := e.getRequest(ctx, tx, requestID)
	if err != nil {
		return err
	}
	if request.ReceiverID != actorID {
		return apperrors.Forbidden("only the receiver can accept a friend request")
	}
	if request.Status != models.RequestPending {
		return apperrors.Conflict("friend request is already %s", request.Status)
	}

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, "UPDATE friend_requests SET status = ?, updated_at = ? WHERE id = ?", models.RequestAccepted, now, requestID)
	if err != nil {
		return apperrors.Unavailable("accepting friend request", err)
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO friends (user_id, friend_id, created_at) VALUES (?, ?, ?), (?, ?, ?)",
		request.SenderID, request.ReceiverID, now, request.ReceiverID, request.SenderID, now)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Conflict("already friends")
		}
		return apperrors.Unavailable("creating friend edges", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Unavailable("committing acceptance", err)
	}

	e.notify.Enqueue(request.SenderID, models.NotifyFriendRequest, "Friend request accepted", "Your friend request was accepted")
	return nil
}

// RejectFriendRequest moves a pending request to rejected, a terminal
// status.
func (e *Engine) RejectFriendRequest(ctx context.Context, actorID int64, requestID int64) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Unavailable("starting transaction", err)
	}
	defer tx.Rollback()

	request, err := e.getRequest(ctx, tx, requestID)
	if err != nil {
		return err
	}
	if request.ReceiverID != actorID {
		return apperrors.Forbidden("only the receiver can reject a friend request")
	}
	if request.Status != models.RequestPending {
		return apperrors.Conflict("friend request is already %s", request.Status)
	}

	_, err = tx.ExecContext(ctx, "UPDATE friend_requests SET status = ?, updated_at = ? WHERE id = ?", models.RequestRejected, time.Now().UTC(), requestID)
	if err != nil {
		return apperrors.Unavailable("rejecting friend request", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Unavailable("committing rejection", err)
	}
	return nil
}

// RemoveFriend deletes both symmetric edges together.
func (e *Engine) RemoveFriend(ctx context.Context, actorID int64, otherID int64) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Unavailable("starting transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, "DELETE FROM friends WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)",
		actorID, otherID, otherID, actorID)
	if err != nil {
		return apperrors.Unavailable("removing friendship", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Unavailable("removing friendship", err)
	}
	if affected == 0 {
		return apperrors.NotFound("no friendship between users %d and %d", actorID, otherID)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Unavailable("committing removal", err)
	}
	return nil
}

// BlockUser severs everything between the pair: friend edges go, pending
// requests become rejected, and the directed block edge is created. B
// blocking A is independent of A blocking B.
func (e *Engine) BlockUser(ctx context.Context, actorID int64, targetID int64) error {
	if actorID == targetID {
		return apperrors.InvalidArgument("can't block yourself")
	}

	exists, err := e.users.UserExists(ctx, targetID)
	if err != nil {
		return err
	}
	if !exists {
		return apperrors.NotFound("user %d not found", targetID)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Unavailable("starting transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "DELETE FROM friends WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)",
		actorID, targetID, targetID, actorID)
	if err != nil {
		return apperrors.Unavailable("removing friend edges", err)
	}

	_, err = tx.ExecContext(ctx, "UPDATE friend_requests SET status = ?, updated_at = ? WHERE status = 'pending' AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))",
		models.RequestRejected, time.Now().UTC(), actorID, targetID, targetID, actorID)
	if err != nil {
		return apperrors.Unavailable("rejecting pending requests", err)
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO user_blocks (user_id, blocked_id, created_at) VALUES (?, ?, ?)", actorID, targetID, time.Now().UTC())
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Conflict("user %d is already blocked", targetID)
		}
		return apperrors.Unavailable("creating block", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Unavailable("committing block", err)
	}

	e.sugar.Infof("User ID [%d] blocked user ID [%d]", actorID, targetID)
	return nil
}

// UnblockUser removes only the actor's own block edge.
func (e *Engine) UnblockUser(ctx context.Context, actorID int64, targetID int64) error {
	result, err := e.db.ExecContext(ctx, "DELETE FROM user_blocks WHERE user_id = ? AND blocked_id = ?", actorID, targetID)
	if err != nil {
		return apperrors.Unavailable("removing block", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Unavailable("removing block", err)
	}
	if affected == 0 {
		return apperrors.NotFound("user %d is not blocked", targetID)
	}

	return nil
}

func (e *Engine) ListFriends(ctx context.Context, userID int64) ([]models.User, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT
			u.id, u.username, u.display_name, u.avatar
		FROM
			friends f
		JOIN
			users u ON f.friend_id = u.id
		WHERE
			f.user_id = ?
	`, userID)
	if err != nil {
		return nil, apperrors.Unavailable("listing friends", err)
	}
	defer rows.Close()

	friends := []models.User{}
	for rows.Next() {
		var u models.User
		var avatar sql.NullString
		err := rows.Scan(&u.ID, &u.UserName, &u.DisplayName, &avatar)
		if err != nil {
			return nil, apperrors.Unavailable("scanning friend", err)
		}
		u.Avatar = avatar.String
		friends = append(friends, u)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("listing friends", err)
	}

	return friends, nil
}

// ListPendingRequests returns the actor's incoming pending requests.
func (e *Engine) ListPendingRequests(ctx context.Context, userID int64) ([]models.FriendRequest, error) {
	rows, err := e.db.QueryContext(ctx, "SELECT id, sender_id, receiver_id, status, created_at, updated_at FROM friend_requests WHERE receiver_id = ? AND status = 'pending'", userID)
	if err != nil {
		return nil, apperrors.Unavailable("listing pending requests", err)
	}
	defer rows.Close()

	requests := []models.FriendRequest{}
	for rows.Next() {
		var r models.FriendRequest
		err := rows.Scan(&r.ID, &r.SenderID, &r.ReceiverID, &r.Status, &r.CreatedAt, &r.UpdatedAt)
		if err != nil {
			return nil, apperrors.Unavailable("scanning friend request", err)
		}
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("listing pending requests", err)
	}

	return requests, nil
}
