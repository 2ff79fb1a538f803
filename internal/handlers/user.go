package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func GetUserInfo(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	paramUserID := r.URL.Query().Get("userID")
	if paramUserID == "" {
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	var requestedUserID int64

	if paramUserID == "self" {
		requestedUserID = userID
	} else {
		var err error
		requestedUserID, err = strconv.ParseInt(paramUserID, 10, 64)
		if err != nil {
			http.Error(w, "", http.StatusBadRequest)
			return
		}
	}

	user, err := userStore.GetUser(r.Context(), requestedUserID)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, user)
}

func UpdateUserInfo(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r)

	type Update struct {
		DisplayName *string `json:"displayName"`
		Bio         *string `json:"bio"`
		Avatar      *string `json:"avatar"`
	}

	var update Update
	err := json.NewDecoder(r.Body).Decode(&update)
	if err != nil {
		sugar.Debug(err)
		http.Error(w, "", http.StatusBadRequest)
		return
	}

	err = userStore.UpdateProfile(r.Context(), userID, update.DisplayName, update.Bio, update.Avatar)
	if err != nil {
		writeEngineError(w, err)
		return
	}
}
