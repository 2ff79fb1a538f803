package handlers

import (
	"net/http"
)

func GetFriendList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	friends, err := relationshipEngine.ListFriends(r.Context(), userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, friends)
}

func GetPendingRequests(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	requests, err := relationshipEngine.ListPendingRequests(r.Context(), userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, requests)
}

func SendFriendRequest(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	receiverID := parseID(r, "userID")
	if receiverID == 0 {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	request, err := relationshipEngine.SendFriendRequest(r.Context(), userID, receiverID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, request)
}

func AcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	requestID := parseID(r, "requestID")
	if requestID == 0 {
		http.Error(w, "Invalid request ID", http.StatusBadRequest)
		return
	}

	err := relationshipEngine.AcceptFriendRequest(r.Context(), userID, requestID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
}

func RejectFriendRequest(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	requestID := parseID(r, "requestID")
	if requestID == 0 {
		http.Error(w, "Invalid request ID", http.StatusBadRequest)
		return
	}

	err := relationshipEngine.RejectFriendRequest(r.Context(), userID, requestID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
}

func RemoveFriend(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	otherID := parseID(r, "userID")
	if otherID == 0 {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	err := relationshipEngine.RemoveFriend(r.Context(), userID, otherID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
}

func BlockUser(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	targetID := parseID(r, "userID")
	if targetID == 0 {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	err := relationshipEngine.BlockUser(r.Context(), userID, targetID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
}

func UnblockUser(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	targetID := parseID(r, "userID")
	if targetID == 0 {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	err := relationshipEngine.UnblockUser(r.Context(), userID, targetID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
}
