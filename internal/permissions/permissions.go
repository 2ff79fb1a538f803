// Package permissions holds the effective-permission rules for server
// members. It is pure: the membership engine loads the member's coarse role
// and custom role flags from the store and asks Resolve for the verdict.
package permissions

import "guildchat-backend/internal/models"

type Permission int

const (
	ManageChannels Permission = iota
	ManageServer
	ManageRoles
	ManageMessages
	KickMembers
	BanMembers
	CreateInvites
)

func (p Permission) String() string {
	switch p {
	case ManageChannels:
		return "manage_channels"
	case ManageServer:
		return "manage_server"
	case ManageRoles:
		return "manage_roles"
	case ManageMessages:
		return "manage_messages"
	case KickMembers:
		return "kick_members"
	case BanMembers:
		return "ban_members"
	case CreateInvites:
		return "create_invites"
	}
	return "unknown"
}

// RoleHas is the typed flag lookup for a custom role.
func RoleHas(role *models.ServerRole, p Permission) bool {
	switch p {
	case ManageChannels:
		return role.ManageChannels
	case ManageServer:
		return role.ManageServer
	case ManageRoles:
		return role.ManageRoles
	case ManageMessages:
		return role.ManageMessages
	case KickMembers:
		return role.KickMembers
	case BanMembers:
		return role.BanMembers
	case CreateInvites:
		return role.CreateInvites
	}
	return false
}

// Resolve applies the precedence chain for a member who holds the given
// coarse role and assigned custom roles:
//
//  1. owner: everything
//  2. admin: everything except manage_server
//  3. any assigned custom role with the flag set
//  4. moderator: manage_messages, kick_members, create_invites
//  5. create_invites: baseline grant for every member
func Resolve(coarse models.CoarseRole, roles []models.ServerRole, p Permission) bool {
	if coarse == models.CoarseOwner {
		return true
	}

	if coarse == models.CoarseAdmin && p != ManageServer {
		return true
	}

	for i := range roles {
		if RoleHas(&roles[i], p) {
			return true
		}
	}

	if coarse == models.CoarseModerator {
		switch p {
		case ManageMessages, KickMembers, CreateInvites:
			return true
		}
	}

	return p == CreateInvites
}
