package handlers

import (
	"encoding/json"
	"net/http"

	"guildchat-backend/internal/members"
)

func CreateServer(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	type Create struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	var create Create
	err := json.NewDecoder(r.Body).Decode(&create)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	if create.Name == "" {
		create.Name = "My server"
	}

	server, err := memberEngine.CreateServer(r.Context(), userID, create.Name, create.Description)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, server)
}

func GetServerList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	servers, err := memberEngine.ListServers(r.Context(), userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, servers)
}

func GetServer(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	if serverID == 0 {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	err := memberEngine.RequireMember(r.Context(), serverID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	server, err := memberEngine.GetServer(r.Context(), serverID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, server)
}

func UpdateServer(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	if serverID == 0 {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	type Update struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		IsPublic    *bool   `json:"isPublic"`
	}

	var update Update
	err := json.NewDecoder(r.Body).Decode(&update)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	err = memberEngine.UpdateServer(r.Context(), serverID, userID, members.ServerUpdate{
		Name:        update.Name,
		Description: update.Description,
		IsPublic:    update.IsPublic,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
}

func DeleteServer(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	if serverID == 0 {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	err := memberEngine.DeleteServer(r.Context(), serverID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
}

func LeaveServer(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	if serverID == 0 {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	err := memberEngine.LeaveServer(r.Context(), serverID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
}
