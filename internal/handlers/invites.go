package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

func GetInviteList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	if serverID == 0 {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	inviteList, err := inviteEngine.List(r.Context(), serverID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, inviteList)
}

func CreateInvite(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	if serverID == 0 {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	type Create struct {
		MaxUses   int        `json:"maxUses"`
		ExpiresAt *time.Time `json:"expiresAt"`
	}

	var create Create
	err := json.NewDecoder(r.Body).Decode(&create)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	invite, err := inviteEngine.Create(r.Context(), serverID, userID, create.MaxUses, create.ExpiresAt)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, invite)
}

func DeleteInvite(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	code := r.URL.Query().Get("code")
	if serverID == 0 || code == "" {
		http.Error(w, "Invalid server ID or invite code", http.StatusBadRequest)
		return
	}

	err := inviteEngine.Delete(r.Context(), serverID, userID, code)
	if err != nil {
		writeEngineError(w, err)
		return
	}
}

func RedeemInvite(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "No invite code was provided", http.StatusBadRequest)
		return
	}

	invite, err := inviteEngine.Redeem(r.Context(), code, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	server, err := memberEngine.GetServer(r.Context(), invite.ServerID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, server)
}
