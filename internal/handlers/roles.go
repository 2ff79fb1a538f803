package handlers

import (
	"encoding/json"
	"net/http"

	"guildchat-backend/internal/models"
)

type rolePayload struct {
	Name           string `json:"name"`
	Color          string `json:"color"`
	Position       int    `json:"position"`
	ManageChannels bool   `json:"manageChannels"`
	ManageServer   bool   `json:"manageServer"`
	ManageRoles    bool   `json:"manageRoles"`
	ManageMessages bool   `json:"manageMessages"`
	KickMembers    bool   `json:"kickMembers"`
	BanMembers     bool   `json:"banMembers"`
	CreateInvites  bool   `json:"createInvites"`
}

func (p rolePayload) toModel() models.ServerRole {
	return models.ServerRole{
		Name:           p.Name,
		Color:          p.Color,
		Position:       p.Position,
		ManageChannels: p.ManageChannels,
		ManageServer:   p.ManageServer,
		ManageRoles:    p.ManageRoles,
		ManageMessages: p.ManageMessages,
		KickMembers:    p.KickMembers,
		BanMembers:     p.BanMembers,
		CreateInvites:  p.CreateInvites,
	}
}

func GetRoleList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	if serverID == 0 {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	roles, err := memberEngine.ListRoles(r.Context(), serverID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, roles)
}

func CreateRole(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	if serverID == 0 {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	var payload rolePayload
	err := json.NewDecoder(r.Body).Decode(&payload)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	role, err := memberEngine.CreateRole(r.Context(), serverID, userID, payload.toModel())
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, role)
}

func UpdateRole(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	roleID := parseID(r, "roleID")
	if serverID == 0 || roleID == 0 {
		http.Error(w, "Invalid server or role ID", http.StatusBadRequest)
		return
	}

	var payload rolePayload
	err := json.NewDecoder(r.Body).Decode(&payload)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	err = memberEngine.UpdateRole(r.Context(), serverID, userID, roleID, payload.toModel())
	if err != nil {
		writeEngineError(w, err)
		return
	}
}

func DeleteRole(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	roleID := parseID(r, "roleID")
	if serverID == 0 || roleID == 0 {
		http.Error(w, "Invalid server or role ID", http.StatusBadRequest)
		return
	}

	err := memberEngine.DeleteRole(r.Context(), serverID, userID, roleID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
}

func AssignRole(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	targetID := parseID(r, "userID")
	roleID := parseID(r, "roleID")
	if serverID == 0 || targetID == 0 || roleID == 0 {
		http.Error(w, "Invalid server, user or role ID", http.StatusBadRequest)
		return
	}

	err := memberEngine.AssignRole(r.Context(), serverID, userID, targetID, roleID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
}

func UnassignRole(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	targetID := parseID(r, "userID")
	roleID := parseID(r, "roleID")
	if serverID == 0 || targetID == 0 || roleID == 0 {
		http.Error(w, "Invalid server, user or role ID", http.StatusBadRequest)
		return
	}

	err := memberEngine.UnassignRole(r.Context(), serverID, userID, targetID, roleID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
}
