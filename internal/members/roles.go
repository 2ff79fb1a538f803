package members

import (
	"context"
	"database/sql"
	"errors"

	"guildchat-backend/internal/apperrors"
	"guildchat-backend/internal/database"
	"guildchat-backend/internal/models"
	"guildchat-backend/internal/permissions"
	"guildchat-backend/internal/snowflake"
)

func (e *Engine) getRole(ctx context.Context, q database.Querier, serverID int64, roleID int64) (models.ServerRole, error) {
	var r models.ServerRole
	err := q.QueryRowContext(ctx, `
		SELECT
			id, server_id, name, color, position, is_default,
			manage_channels, manage_server, manage_roles, manage_messages,
			kick_members, ban_members, create_invites
		FROM server_roles WHERE id = ? AND server_id = ?
	`, roleID, serverID).Scan(&r.ID, &r.ServerID, &r.Name, &r.Color, &r.Position, &r.IsDefault,
		&r.ManageChannels, &r.ManageServer, &r.ManageRoles, &r.ManageMessages,
		&r.KickMembers, &r.BanMembers, &r.CreateInvites)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ServerRole{}, apperrors.NotFound("role %d not found in server %d", roleID, serverID)
		}
		return models.ServerRole{}, apperrors.Unavailable("fetching role", err)
	}
	return r, nil
}

func (e *Engine) CreateRole(ctx context.Context, serverID int64, actorID int64, role models.ServerRole) (models.ServerRole, error) {
	if role.Name == "" {
		return models.ServerRole{}, apperrors.InvalidArgument("role name can't be empty")
	}

	if err := e.requirePermission(ctx, e.db, serverID, actorID, permissions.ManageRoles); err != nil {
		return models.ServerRole{}, err
	}

	roleID, err := snowflake.Generate()
	if err != nil {
		return models.ServerRole{}, apperrors.Unavailable("generating role ID", err)
	}

	role.ID = roleID
	role.ServerID = serverID
	role.IsDefault = false
	if role.Color == "" {
		role.Color = "#99AAB5"
	}

	_, err = e.db.ExecContext(ctx, `INSERT INTO server_roles
		(id, server_id, name, color, position, is_default, manage_channels, manage_server, manage_roles, manage_messages, kick_members, ban_members, create_invites)
		VALUES (?, ?, ?, ?, ?, FALSE, ?, ?, ?, ?, ?, ?, ?)`,
		role.ID, role.ServerID, role.Name, role.Color, role.Position,
		role.ManageChannels, role.ManageServer, role.ManageRoles, role.ManageMessages,
		role.KickMembers, role.BanMembers, role.CreateInvites)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return models.ServerRole{}, apperrors.Conflict("role %q already exists in server %d", role.Name, serverID)
		}
		return models.ServerRole{}, apperrors.Unavailable("creating role", err)
	}

	return role, nil
}

// UpdateRole replaces the role's attributes and permission flags. The
// is_default flag is not editable.
func (e *Engine) UpdateRole(ctx context.Context, serverID int64, actorID int64, roleID int64, role models.ServerRole) error {
	if role.Name == "" {
		return apperrors.InvalidArgument("role name can't be empty")
	}

	if err := e.requirePermission(ctx, e.db, serverID, actorID, permissions.ManageRoles); err != nil {
		return err
	}

	if _, err := e.getRole(ctx, e.db, serverID, roleID); err != nil {
		return err
	}

	_, err := e.db.ExecContext(ctx, `UPDATE server_roles SET
		name = ?, color = ?, position = ?,
		manage_channels = ?, manage_server = ?, manage_roles = ?, manage_messages = ?,
		kick_members = ?, ban_members = ?, create_invites = ?
		WHERE id = ? AND server_id = ?`,
		role.Name, role.Color, role.Position,
		role.ManageChannels, role.ManageServer, role.ManageRoles, role.ManageMessages,
		role.KickMembers, role.BanMembers, role.CreateInvites,
		roleID, serverID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Conflict("role %q already exists in server %d", role.Name, serverID)
		}
		return apperrors.Unavailable("updating role", err)
	}

	return nil
}

// DeleteRole rejects deleting the default role: a server always keeps
// exactly one.
func (e *Engine) DeleteRole(ctx context.Context, serverID int64, actorID int64, roleID int64) error {
	if err := e.requirePermission(ctx, e.db, serverID, actorID, permissions.ManageRoles); err != nil {
		return err
	}

	role, err := e.getRole(ctx, e.db, serverID, roleID)
	if err != nil {
		return err
	}
	if role.IsDefault {
		return apperrors.Conflict("the default role can't be deleted")
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Unavailable("starting transaction", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM member_roles WHERE role_id = ?", roleID); err != nil {
		return apperrors.Unavailable("removing role assignments", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM server_roles WHERE id = ?", roleID); err != nil {
		return apperrors.Unavailable("deleting role", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Unavailable("committing role deletion", err)
	}
	return nil
}

func (e *Engine) ListRoles(ctx context.Context, serverID int64, actorID int64) ([]models.ServerRole, error) {
	if _, err := e.memberRow(ctx, e.db, serverID, actorID); err != nil {
		return nil, err
	}

	rows, err := e.db.QueryContext(ctx, `
		SELECT
			id, server_id, name, color, position, is_default,
			manage_channels, manage_server, manage_roles, manage_messages,
			kick_members, ban_members, create_invites
		FROM server_roles WHERE server_id = ? ORDER BY position DESC
	`, serverID)
	if err != nil {
		return nil, apperrors.Unavailable("listing roles", err)
	}
	defer rows.Close()

	roles := []models.ServerRole{}
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
		return nil, apperrors.Unavailable("listing roles", err)
	}

	return roles, nil
}

func (e *Engine) AssignRole(ctx context.Context, serverID int64, actorID int64, targetID int64, roleID int64) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.Unavailable("starting transaction", err)
	}
	defer tx.Rollback()

	if err := e.requirePermission(ctx, tx, serverID, actorID, permissions.ManageRoles); err != nil {
		return err
	}
	if _, err := e.getRole(ctx, tx, serverID, roleID); err != nil {
		return err
	}
	if _, err := e.memberRow(ctx, tx, serverID, targetID); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, "INSERT INTO member_roles (server_id, user_id, role_id) VALUES (?, ?, ?)", serverID, targetID, roleID)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.Conflict("role %d is already assigned to user %d", roleID, targetID)
		}
		return apperrors.Unavailable("assigning role", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Unavailable("committing role assignment", err)
	}
	return nil
}

func (e *Engine) UnassignRole(ctx context.Context, serverID int64, actorID int64, targetID int64, roleID int64) error {
	if err := e.requirePermission(ctx, e.db, serverID, actorID, permissions.ManageRoles); err != nil {
		return err
	}

	result, err := e.db.ExecContext(ctx, "DELETE FROM member_roles WHERE server_id = ? AND user_id = ? AND role_id = ?", serverID, targetID, roleID)
	if err != nil {
		return apperrors.Unavailable("unassigning role", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return apperrors.Unavailable("unassigning role", err)
	}
	if affected == 0 {
		return apperrors.NotFound("role %d is not assigned to user %d", roleID, targetID)
	}

	return nil
}
