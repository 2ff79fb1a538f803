// Package members is the membership and role engine: server lifecycle,
// membership rows, custom roles and effective-permission resolution.
package members

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"guildchat-backend/internal/apperrors"
	"guildchat-backend/internal/database"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/permissions"
	"guildchat-backend/internal/snowflake"

	"go.uber.org/zap"
)

type Engine struct {
	sugar *zap.SugaredLogger
	db    *sql.DB
}

func New(sugar *zap.SugaredLogger, db *sql.DB) *Engine {
	return &Engine{sugar: sugar, db: db}
}

// DefaultRoleName is the undeletable role every server is created with.
const DefaultRoleName = "@everyone"

func (e *Engine) serverExists(ctx context.Context, q database.Querier, serverID int64) error {
	var exists bool
	err := q.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM servers WHERE id = ?)", serverID).Scan(&exists)
	if err != nil {
		return apperrors.Unavailable("checking server", err)
	}
	if !exists {
		return apperrors.NotFound("server %d not found", serverID)
	}
	return nil
}

// memberRow loads the coarse role of a membership row. Absence is a
// NotFound distinct from any permission verdict, so callers can tell
// "not a member" apart from "forbidden".
func (e *Engine) memberRow(ctx context.Context, q database.Querier, serverID int64, userID int64) (models.CoarseRole, error) {
	var coarse models.CoarseRole
	err := q.QueryRowContext(ctx, "SELECT role FROM server_members WHERE server_id = ? AND user_id = ?", serverID, userID).Scan(&coarse)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			if err := e.serverExists(ctx, q, serverID); err != nil {
				return "", err
			}
			return "", apperrors.NotFound("user %d is not a member of server %d", userID, serverID)
		}
		return "", apperrors.Unavailable("fetching membership", err)
	}
	return coarse, nil
}

func (e *Engine) memberCustomRoles(ctx context.Context, q database.Querier, serverID int64, userID int64) ([]models.ServerRole, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			r.id, r.server_id, r.name, r.color, r.position, r.is_default,
			r.manage_channels, r.manage_server, r.manage_roles, r.manage_messages,
			r.kick_members, r.ban_members, r.create_invites
		FROM
			server_roles r
		JOIN
			member_roles mr ON mr.role_id = r.id
		WHERE
			mr.server_id = ? AND mr.user_id = ?
	`, serverID, userID)
	if err != nil {
		return nil, apperrors.Unavailable("fetching member roles", err)
	}
	defer rows.Close()

	var roles []models.ServerRole
	for rows.Next() {
		var r models.ServerRole
		err := rows.Scan(&r.ID, &r.ServerID, &r.Name, &r.Color, &r.Position, &r.IsDefault,
			&r.ManageChannels, &r.ManageServer, &r.ManageRoles, &r.ManageMessages,
			&r.KickMembers, &r.BanMembers, &r.CreateInvites)
		if err != nil {
			return nil, apperrors.Unavailable("scanning role", err)
		}
		roles = append(roles, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("fetching member roles", err)
	}

	return roles, nil
}

func (e *Engine) resolve(ctx context.Context, q database.Querier, serverID int64, actorID int64, p permissions.Permission) (bool, error) {
	coarse, err := e.memberRow(ctx, q, serverID, actorID)
	if err != nil {
		return false, err
	}

	if coarse == models.CoarseOwner {
		return true, nil
	}

	roles, err := e.memberCustomRoles(ctx, q, serverID, actorID)
	if err != nil {
		return false, err
	}

	return permissions.Resolve(coarse, roles, p), nil
}

// ResolvePermission computes the actor's effective permission for a server.
// A missing membership row surfaces as NotFound, never as a false verdict.
func (e *Engine) ResolvePermission(ctx context.Context, serverID int64, actorID int64, p permissions.Permission) (bool, error) {
	return e.resolve(ctx, e.db, serverID, actorID, p)
}

func (e *Engine) requirePermission(ctx context.Context, q database.Querier, serverID int64, actorID int64, p permissions.Permission) error {
	allowed, err := e.resolve(ctx, q, serverID, actorID, p)
	if err != nil {
		return err
	}
	if !allowed {
		return apperrors.Forbidden("missing %s permission", p)
	}
	return nil
}

// RequirePermission is the exported gate used by the invite and messaging
// engines.
func (e *Engine) RequirePermission(ctx context.Context, serverID int64, actorID int64, p permissions.Permission) error {
	return e.requirePermission(ctx, e.db, serverID, actorID, p)
}

// RequireMember fails with NotFound unless the user holds a membership row.
func (e *Engine) RequireMember(ctx context.Context, serverID int64, userID int64) error {
	_, err := e.memberRow(ctx, e.db, serverID, userID)
	return err
}

func (e *Engine) CreateServer(ctx context.Context, ownerID int64, name string, description string) (models.Server, error) {
	if name == "" {
		return models.Server{}, apperrors.InvalidArgument("server name can't be empty")
	}

	serverID, err := snowflake.Generate()
	if err != nil {
		return models.Server{}, apperrors.Unavailable("generating server ID", err)
	}
	roleID, err := snowflake.Generate()
	if err != nil {
		return models.Server{}, apperrors.Unavailable("generating role ID", err)
	}

	server := models.Server{
		ID:          serverID,
		OwnerID:     ownerID,
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Server{}, apperrors.Unavailable("starting transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "INSERT INTO servers (id, owner_id, name, description, is_public, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		server.ID, server.OwnerID, server.Name, server.Description, false, server.CreatedAt)
	if err != nil {
		return models.Server{}, apperrors.Unavailable("creating server", err)
	}

	// the owner membership row is created exactly once, here
	_, err = tx.ExecContext(ctx, "INSERT INTO server_members (server_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)",
		server.ID, ownerID, models.CoarseOwner, server.CreatedAt)
	if err != nil {
		return models.Server{}, apperrors.Unavailable("creating owner membership", err)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO server_roles
		(id, server_id, name, color, position, is_default, manage_channels, manage_server, manage_roles, manage_messages, kick_members, ban_members, create_invites)
		VALUES (?, ?, ?, '#99AAB5', 0, TRUE, FALSE, FALSE, FALSE, FALSE, FALSE, FALSE, TRUE)`,
		roleID, server.ID, DefaultRoleName)
	if err != nil {
		return models.Server{}, apperrors.Unavailable("creating default role", err)
	}

	if err := tx.Commit(); err != nil {
		return models.Server{}, apperrors.Unavailable("committing server creation", err)
	}

	return server, nil
}

func (e *Engine) GetServer(ctx context.Context, serverID int64) (models.Server, error) {
	var server models.Server
	var inviteCode sql.NullString
	err := e.db.QueryRowContext(ctx, "SELECT id, owner_id, name, description, is_public, invite_code, created_at FROM servers WHERE id = ?", serverID).
		Scan(&server.ID, &server.OwnerID, &server.Name, &server.Description, &server.IsPublic, &inviteCode, &server.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Server{}, apperrors.NotFound("server %d not found", serverID)
		}
		return models.Server{}, apperrors.Unavailable("fetching server", err)
	}
	server.InviteCode = inviteCode.String
	return server, nil
}

func (e *Engine) ListServers(ctx context.Context, userID int64) ([]models.Server, error) {
	rows, err := e.db.QueryContext(ctx, `
		SELECT
			s.id, s.owner_id, s.name, s.description, s.is_public, s.created_at
		FROM
			servers s
		JOIN
			server_members m ON s.id = m.server_id
		WHERE
			m.user_id = ?
	`, userID)
	if err != nil {
		return nil, apperrors.Unavailable("listing servers", err)
	}
	defer rows.Close()

	servers := []models.Server{}
	for rows.Next() {
		var s models.Server
		err := rows.Scan(&s.ID, &s.OwnerID, &s.Name, &s.Description, &s.IsPublic, &s.CreatedAt)
		if err != nil {
			return nil, apperrors.Unavailable("scanning server", err)
		}
		servers = append(servers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("listing servers", err)
	}

	return servers, nil
}

type ServerUpdate struct {
	Name        *string
	Description *string
	IsPublic    *bool
}

func (e *Engine) UpdateServer(ctx context.Context, serverID int64, actorID int64, changes ServerUpdate) error {
	if changes.Name == nil && changes.Description == nil && changes.IsPublic == nil {
		return apperrors.InvalidArgument("no server changes given")
	}
	if changes.Name != nil && *changes.Name == "" {
		return apperrors.InvalidArgument("server name can't be empty")
	}

	if err := e.requirePermission(ctx, e.db, serverID, actorID, permissions.ManageServer); err != nil {
		return err
	}

	if changes.Name != nil {
		if _, err := e.db.ExecContext(ctx, "UPDATE servers SET name = ? WHERE id = ?", *changes.Name, serverID); err != nil {
			return apperrors.Unavailable("renaming server", err)
		}
	}
	if changes.Description != nil {
		if _, err := e.db.ExecContext(ctx, "UPDATE servers SET description = ? WHERE id = ?", *changes.Description, serverID); err != nil {
			return apperrors.Unavailable("updating server description", err)
		}
	}
	if changes.IsPublic != nil {
		if _, err := e.db.ExecContext(ctx, "UPDATE servers SET is_public = ? WHERE id = ?", *changes.IsPublic, serverID); err != nil {
			return apperrors.Unavailable("updating server visibility", err)
		}
	}
	return nil
}

// DeleteServer removes the server and everything hanging off it in one
// transaction: reactions, messages, channels, role assignments, roles,
// invites and memberships.
func (e *Engine) DeleteServer(ctx context.Context, serverID int64, actorID int64) error {
	server, err := e.GetServer(ctx, serverID)
	if err != nil {
		return err
	}
	if server.OwnerID != actorID {
		return apperrors.Forbidden("only the owner can delete a server")
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Unavailable("starting transaction", err)
	}
	defer tx.Rollback()

	cleanup := []string{
		"DELETE FROM message_reactions WHERE message_id IN (SELECT m.id FROM messages m JOIN channels c ON m.channel_id = c.id WHERE c.server_id = ?)",
		"DELETE FROM messages WHERE channel_id IN (SELECT id FROM channels WHERE server_id = ?)",
		"DELETE FROM channels WHERE server_id = ?",
		"DELETE FROM member_roles WHERE server_id = ?",
		"DELETE FROM server_roles WHERE server_id = ?",
		"DELETE FROM server_invites WHERE server_id = ?",
		"DELETE FROM server_members WHERE server_id = ?",
		"DELETE FROM servers WHERE id = ?",
	}
	for _, stmt := range cleanup {
		if _, err := tx.ExecContext(ctx, stmt, serverID); err != nil {
			return apperrors.Unavailable("deleting server", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Unavailable("committing server deletion", err)
	}

	e.sugar.Infof("Server ID [%d] deleted by owner ID [%d]", serverID, actorID)
	return nil
}

// JoinServer creates a membership row with the baseline coarse role. The
// owner row is never created here; that happens once at server creation.
func (e *Engine) JoinServer(ctx context.Context, serverID int64, userID int64) error {
	return e.addMember(ctx, e.db, serverID, userID)
}

func (e *Engine) addMember(ctx context.Context, q database.Querier, serverID int64, userID int64) error {
	if err := e.serverExists(ctx, q, serverID); err != nil {
		return err
	}

	_, err := q.ExecContext(ctx, "INSERT INTO server_members (server_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)",
		serverID, userID, models.CoarseMember, time.Now().UTC())
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Conflict("user %d is already a member of server %d", userID, serverID)
		}
		return apperrors.Unavailable("adding member", err)
	}
	return nil
}

// AddMemberTx is the invite engine's hook: it runs the membership insert
// inside the redemption transaction so the row and the use counter commit
// together.
func (e *Engine) AddMemberTx(ctx context.Context, tx *sql.Tx, serverID int64, userID int64) error {
	return e.addMember(ctx, tx, serverID, userID)
}

func (e *Engine) LeaveServer(ctx context.Context, serverID int64, actorID int64) error {
	coarse, err := e.memberRow(ctx, e.db, serverID, actorID)
	if err != nil {
		return err
	}
	if coarse == models.CoarseOwner {
		return apperrors.Forbidden("the owner can't leave their own server")
	}

	return e.removeMember(ctx, serverID, actorID)
}

func (e *Engine) removeMember(ctx context.Context, serverID int64, userID int64) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Unavailable("starting transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM member_roles WHERE server_id = ? AND user_id = ?", serverID, userID); err != nil {
		return apperrors.Unavailable("removing role assignments", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM server_members WHERE server_id = ? AND user_id = ?", serverID, userID); err != nil {
		return apperrors.Unavailable("removing member", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Unavailable("committing member removal", err)
	}
	return nil
}

// KickMember enforces the hierarchy: owners are never kickable, kicking
// yourself is a leave, and only owner/admin actors may remove admin or
// moderator members.
func (e *Engine) KickMember(ctx context.Context, serverID int64, actorID int64, targetID int64) error {
	if actorID == targetID {
		return apperrors.InvalidArgument("use leave instead of kicking yourself")
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Unavailable("starting transaction", err)
	}
	defer tx.Rollback()

	if err := e.requirePermission(ctx, tx, serverID, actorID, permissions.KickMembers); err != nil {
		return err
	}

	targetCoarse, err := e.memberRow(ctx, tx, serverID, targetID)
	if err != nil {
		return err
	}
	if targetCoarse == models.CoarseOwner {
		return apperrors.Forbidden("the owner can't be kicked")
	}

	actorCoarse, err := e.memberRow(ctx, tx, serverID, actorID)
	if err != nil {
		return err
	}
	privilegedActor := actorCoarse == models.CoarseOwner || actorCoarse == models.CoarseAdmin
	privilegedTarget := targetCoarse == models.CoarseAdmin || targetCoarse == models.CoarseModerator
	if privilegedTarget && !privilegedActor {
		return apperrors.Forbidden("only the owner or an admin can kick a %s", targetCoarse)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM member_roles WHERE server_id = ? AND user_id = ?", serverID, targetID); err != nil {
		return apperrors.Unavailable("removing role assignments", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM server_members WHERE server_id = ? AND user_id = ?", serverID, targetID); err != nil {
		return apperrors.Unavailable("removing member", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Unavailable("committing kick", err)
	}

	e.sugar.Infof("User ID [%d] kicked from server ID [%d] by user ID [%d]", targetID, serverID, actorID)
	return nil
}

type MemberUpdate struct {
	Nickname *string
	Role     *models.CoarseRole
}

// UpdateMember changes a membership row's nickname or coarse role. The
// current owner's row is immutable through this path; ownership transfer
// is out of scope.
func (e *Engine) UpdateMember(ctx context.Context, serverID int64, actorID int64, targetID int64, changes MemberUpdate) error {
	if changes.Nickname == nil && changes.Role == nil {
		return apperrors.InvalidArgument("no member changes given")
	}
	if changes.Role != nil && !changes.Role.Valid() {
		return apperrors.InvalidArgument("unknown role %q", *changes.Role)
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Unavailable("starting transaction", err)
	}
	defer tx.Rollback()

	if err := e.requirePermission(ctx, tx, serverID, actorID, permissions.ManageRoles); err != nil {
		return err
	}

	targetCoarse, err := e.memberRow(ctx, tx, serverID, targetID)
	if err != nil {
		return err
	}

	if changes.Role != nil {
		if targetCoarse == models.CoarseOwner && *changes.Role != models.CoarseOwner {
			return apperrors.Forbidden("the owner's role can't be changed")
		}
		if targetCoarse != models.CoarseOwner && *changes.Role == models.CoarseOwner {
			return apperrors.InvalidArgument("ownership can't be granted through member updates")
		}
		if _, err := tx.ExecContext(ctx, "UPDATE server_members SET role = ? WHERE server_id = ? AND user_id = ?", *changes.Role, serverID, targetID); err != nil {
			return apperrors.Unavailable("updating member role", err)
		}
	}
	if changes.Nickname != nil {
		if _, err := tx.ExecContext(ctx, "UPDATE server_members SET nickname = ? WHERE server_id = ? AND user_id = ?", *changes.Nickname, serverID, targetID); err != nil {
			return apperrors.Unavailable("updating nickname", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Unavailable("committing member update", err)
	}
	return nil
}

func (e *Engine) ListMembers(ctx context.Context, serverID int64, actorID int64) ([]models.ServerMember, error) {
	if _, err := e.memberRow(ctx, e.db, serverID, actorID); err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx, "SELECT server_id, user_id, nickname, role, joined_at FROM server_members WHERE server_id = ?", serverID)
	if err != nil {
		return nil, apperrors.Unavailable("listing members", err)
	}
	defer rows.Close()

	members := []models.ServerMember{}
	for rows.Next() {
		var m models.ServerMember
		var nickname sql.NullString
		err := rows.Scan(&m.ServerID, &m.UserID, &nickname, &m.Role, &m.JoinedAt)
		if err != nil {
			return nil, apperrors.Unavailable("scanning member", err)
		}
		m.Nickname = nickname.String
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Unavailable("listing members", err)
	}

	return members, nil
}
