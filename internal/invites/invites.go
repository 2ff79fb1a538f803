// Package invites is the invite-code lifecycle engine. An invite has no
// status field: validity is computed from expires_at and the use counter,
// and redemption is the only mutator of the counter.
package invites

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"time"

	"guildchat-backend/internal/apperrors"
	"guildchat-backend/internal/database"
	"guildchat-backend/internal/members"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/permissions"
	"guildchat-backend/internal/snowflake"

	"go.uber.org/zap"
)

type Engine struct {
	sugar   *zap.SugaredLogger
	db      *sql.DB
	members *members.Engine
}

func New(sugar *zap.SugaredLogger, db *sql.DB, membersEngine *members.Engine) *Engine {
	return &Engine{sugar: sugar, db: db, members: membersEngine}
}

const codeLength = 8

// no 0/O or 1/I, codes get read out loud
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateCode() string {
	bytes := make([]byte, codeLength)
	rand.Read(bytes)
	for i := range bytes {
		bytes[i] = codeAlphabet[int(bytes[i])%len(codeAlphabet)]
	}
	return string(bytes)
}

// IsValid computes invite validity at a point in time: not expired, and
// not exhausted when a use limit is set.
func IsValid(invite models.ServerInvite, now time.Time) bool {
	if invite.ExpiresAt != nil && now.After(*invite.ExpiresAt) {
		return false
	}
	if invite.MaxUses > 0 && invite.Uses >= invite.MaxUses {
		return false
	}
	return true
}

// Create issues a new invite. Code collisions are retried, never surfaced.
func (e *Engine) Create(ctx context.Context, serverID int64, actorID int64, maxUses int, expiresAt *time.Time) (models.ServerInvite, error) {
	if maxUses < 0 {
		return models.ServerInvite{}, apperrors.InvalidArgument("max uses can't be negative")
	}
	if expiresAt != nil && expiresAt.Before(time.Now().UTC()) {
		return models.ServerInvite{}, apperrors.InvalidArgument("expiry is in the past")
	}

	if err := e.members.RequirePermission(ctx, serverID, actorID, permissions.CreateInvites); err != nil {
		return models.ServerInvite{}, err
	}

	inviteID, err := snowflake.Generate()
	if err != nil {
		return models.ServerInvite{}, apperrors.Unavailable("generating invite ID", err)
	}

	invite := models.ServerInvite{
		ID:        inviteID,
		ServerID:  serverID,
		CreatedBy: actorID,
		MaxUses:   maxUses,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}

	for attempt := 0; attempt < 5; attempt++ {
		invite.Code = generateCode()

		_, err = e.db.ExecContext(ctx, "INSERT INTO server_invites (id, server_id, code, created_by, max_uses, uses, expires_at, created_at) VALUES (?, ?, ?, ?, ?, 0, ?, ?)",
			invite.ID, invite.ServerID, invite.Code, invite.CreatedBy, invite.MaxUses, invite.ExpiresAt, invite.CreatedAt)
		if err == nil {
			return invite, nil
		}
		if !database.IsUniqueViolation(err) {
			return models.ServerInvite{}, apperrors.Unavailable("creating invite", err)
		}
		e.sugar.Debugf("Invite code collision on %q, retrying", invite.Code)
	}

	return models.ServerInvite{}, apperrors.Unavailable("creating invite", err)
}

func (e *Engine) getByCode(ctx context.Context, q database.Querier, code string) (models.ServerInvite, error) {
	var invite models.ServerInvite
	var expiresAt sql.NullTime
	err := q.QueryRowContext(ctx, "SELECT id, server_id, code, created_by, max_uses, uses, expires_at, created_at FROM server_invites WHERE code = ?", code).
		Scan(&invite.ID, &invite.ServerID, &invite.Code, &invite.CreatedBy, &invite.MaxUses, &invite.Uses, &expiresAt, &invite.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ServerInvite{}, apperrors.NotFound("no invite with code %q", code)
		}
		return models.ServerInvite{}, apperrors.Unavailable("fetching invite", err)
	}
	if expiresAt.Valid {
		invite.ExpiresAt = &expiresAt.Time
	}
	return invite, nil
}

// Redeem turns a valid invite into a membership row. The membership insert
// and the guarded use-counter increment commit in one transaction, so
// concurrent redemptions can never push uses past max_uses: the UPDATE's
// uses < max_uses condition is the serialization point.
func (e *Engine) Redeem(ctx context.Context, code string, userID int64) (models.ServerInvite, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return models.ServerInvite{}, apperrors.Unavailable("starting transaction", err)
	}
	defer tx.Rollback()

	invite, err := e.getByCode(ctx, tx, code)
	if err != nil {
		return models.ServerInvite{}, err
	}

	now := time.Now().UTC()
	if !IsValid(invite, now) {
		return models.ServerInvite{}, apperrors.Conflict("invite %q is expired or exhausted", code)
	}

	result, err := tx.ExecContext(ctx, "UPDATE server_invites SET uses = uses + 1 WHERE id = ? AND (max_uses = 0 OR uses < max_uses)", invite.ID)
	if err != nil {
		return models.ServerInvite{}, apperrors.Unavailable("incrementing invite uses", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return models.ServerInvite{}, apperrors.Unavailable("incrementing invite uses", err)
	}
	if affected == 0 {
		// a concurrent redemption took the last use
		return models.ServerInvite{}, apperrors.Conflict("invite %q is expired or exhausted", code)
	}

	if err := e.members.AddMemberTx(ctx, tx, invite.ServerID, userID); err != nil {
		return models.ServerInvite{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.ServerInvite{}, apperrors.Unavailable("committing redemption", err)
	}

	invite.Uses++
	e.sugar.Infof("User ID [%d] joined server ID [%d] via invite %q", userID, invite.ServerID, code)
	return invite, nil
}

func (e *Engine) List(ctx context.Context, serverID int64, actorID int64) ([]models.ServerInvite, error) {
	if err := e.members.RequirePermission(ctx, serverID, actorID, permissions.ManageServer); err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx, "SELECT id, server_id, code, created_by, max_uses, uses, expires_at, created_at FROM server_invites WHERE server_id = ?", serverID)
	if err != nil {
		return nil, apperrors.Unavailable("listing invites", err)
	}
	defer rows.Close()

	invites := []models.ServerInvite{}
	for rows.Next() {
		var invite models.ServerInvite
		var expiresAt sql.NullTime
		err := rows.Scan(&invite.ID, &invite.ServerID, &invite.Code, &invite.CreatedBy, &invite.MaxUses, &invite.Uses, &expiresAt, &invite.CreatedAt)
		if err != nil {
			return nil, apperrors.Unavailable("scanning invite", err)
		}
		if expiresAt.Valid {
			invite.ExpiresAt = &expiresAt.Time
		}
		invites = append(invites, invite)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("listing invites", err)
	}

	return invites, nil
}

// Delete revokes an invite. Allowed for its creator, or anyone with
// manage_server.
func (e *Engine) Delete(ctx context.Context, serverID int64, actorID int64, code string) error {
	invite, err := e.getByCode(ctx, e.db, code)
	if err != nil {
		return err
	}
	if invite.ServerID != serverID {
		return apperrors.NotFound("no invite with code %q", code)
	}

	if invite.CreatedBy != actorID {
		if err := e.members.RequirePermission(ctx, serverID, actorID, permissions.ManageServer); err != nil {
			return err
		}
	}

	if _, err := e.db.ExecContext(ctx, "DELETE FROM server_invites WHERE id = ?", invite.ID); err != nil {
		return apperrors.Unavailable("deleting invite", err)
	}
	return nil
}
