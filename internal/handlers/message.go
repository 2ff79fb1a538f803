package handlers

import (
	"encoding/json"
	"net/http"
)

func CreateChannel(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	if serverID == 0 {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	channelName := r.URL.Query().Get("name")
	if channelName == "" {
		channelName = "Default"
	}

	channel, err := messagingEngine.CreateChannel(r.Context(), serverID, userID, channelName)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, channel)
}

func GetChannelList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	serverID := parseID(r, "serverID")
	if serverID == 0 {
		http.Error(w, "Invalid server ID", http.StatusBadRequest)
		return
	}

	channels, err := messagingEngine.ListChannels(r.Context(), serverID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, channels)
}

func CreateMessage(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	channelID := parseID(r, "channelID")
	if channelID == 0 {
		http.Error(w, "Invalid channel ID", http.StatusBadRequest)
		return
	}

	type Create struct {
		Content string `json:"content"`
	}

	var create Create
	err := json.NewDecoder(r.Body).Decode(&create)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	message, err := messagingEngine.PostChannelMessage(r.Context(), channelID, userID, create.Content)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, message)
}

func GetMessageList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	channelID := parseID(r, "channelID")
	if channelID == 0 {
		http.Error(w, "Invalid channel ID", http.StatusBadRequest)
		return
	}

	messages, err := messagingEngine.ListChannelMessages(r.Context(), channelID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, messages)
}

func EditMessage(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	messageID := parseID(r, "messageID")
	if messageID == 0 {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	type Edit struct {
		Content string `json:"content"`
	}

	var edit Edit
	err := json.NewDecoder(r.Body).Decode(&edit)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	err = messagingEngine.EditMessage(r.Context(), messageID, userID, edit.Content)
	if err != nil {
		writeEngineError(w, err)
		return
	}
}

func DeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	messageID := parseID(r, "messageID")
	if messageID == 0 {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	err := messagingEngine.DeleteMessage(r.Context(), messageID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
}

func ToggleReaction(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	messageID := parseID(r, "messageID")
	emoji := r.URL.Query().Get("emoji")
	if messageID == 0 {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	outcome, err := messagingEngine.ToggleReaction(r.Context(), messageID, userID, emoji)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, map[string]string{"result": outcome})
}

func GetReactionList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	messageID := parseID(r, "messageID")
	if messageID == 0 {
		http.Error(w, "Invalid message ID", http.StatusBadRequest)
		return
	}

	reactions, err := messagingEngine.ListReactions(r.Context(), messageID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, reactions)
}

func OpenDM(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	otherID := parseID(r, "userID")
	if otherID == 0 {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	dmChannel, err := messagingEngine.OpenDM(r.Context(), userID, otherID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, dmChannel)
}

func CreateDMMessage(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	dmChannelID := parseID(r, "dmChannelID")
	if dmChannelID == 0 {
		http.Error(w, "Invalid DM channel ID", http.StatusBadRequest)
		return
	}

	type Create struct {
		Content string `json:"content"`
	}

	var create Create
	err := json.NewDecoder(r.Body).Decode(&create)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	message, err := messagingEngine.PostDMMessage(r.Context(), dmChannelID, userID, create.Content)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, message)
}

func GetDMMessageList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	dmChannelID := parseID(r, "dmChannelID")
	if dmChannelID == 0 {
		http.Error(w, "Invalid DM channel ID", http.StatusBadRequest)
		return
	}

	messages, err := messagingEngine.ListDMMessages(r.Context(), dmChannelID, userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, messages)
}
