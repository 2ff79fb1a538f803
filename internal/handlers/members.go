package handlers

import (
	"encoding/json"
	"net/http"

	"guildchat-backend/internal/members"
	"guildchat-backend/internal/models"
)

func GetMemberList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	if serverID == 0 {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	memberList, err := memberEngine.ListMembers(r.Context(), serverID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, memberList)
}

func KickMember(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	targetID := parseID(r, "userID")
	if serverID == 0 || targetID == 0 {
		http.Error(w, "Invalid server or user ID", http.StatusBadRequest)
		return
	}

	err := memberEngine.KickMember(r.Context(), serverID, userID, targetID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
}

func UpdateMember(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	targetID := parseID(r, "userID")
	if serverID == 0 || targetID == 0 {
		http.Error(w, "Invalid server or user ID", http.StatusBadRequest)
		return
	}

	type Update struct {
		Nickname *string            `json:"nickname"`
		Role     *models.CoarseRole `json:"role"`
	}

	var update Update
	err := json.NewDecoder(r.Body).Decode(&update)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	err = memberEngine.UpdateMember(r.Context(), serverID, userID, targetID, members.MemberUpdate{
		Nickname: update.Nickname,
		Role:     update.Role,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
}
