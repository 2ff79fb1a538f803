package handlers

import (
	"net/http"
)

func GetNotificationList(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	notificationList, err := notifyQueue.List(r.Context(), userID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, notificationList)
}

func MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	notificationID := parseID(r, "notificationID")
	if notificationID == 0 {
		http.Error(w, "Invalid notification ID", http.StatusBadRequest)
		return
	}

	err := notifyQueue.MarkRead(r.Context(), userID, notificationID)
	if err != nil {
		writeEngineError(w, err)
		return
	}
}
