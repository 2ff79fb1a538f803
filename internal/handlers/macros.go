package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"guildchat-backend/internal/apperrors"
)

func userIDFromContext(r *http.Request) int64 {
	return r.Context().Value(UserIDKeyType{}).(int64)
}

// parseID reads an int64 query parameter, 0 when missing or malformed.
func parseID(r *http.Request, name string) int64 {
	id, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(value)
	if err != nil {
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
	}
}

// writeEngineError maps the engine error taxonomy onto HTTP status codes.
// Errors outside the taxonomy reply with an empty 500 body so internals
// never leak to the client.
func writeEngineError(w http.ResponseWriter, err error) {
	switch apperrors.KindOf(err) {
	case apperrors.KindNotFound:
		sugar.Debug(err)
		http.Error(w, err.Error(), http.StatusNotFound)
	case apperrors.KindForbidden:
		sugar.Debug(err)
		http.Error(w, err.Error(), http.StatusForbidden)
	case apperrors.KindConflict:
		sugar.Debug(err)
		http.Error(w, err.Error(), http.StatusConflict)
	case apperrors.KindInvalidArgument:
		sugar.Debug(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
	case apperrors.KindUnavailable:
		sugar.Error(err)
		http.Error(w, "", http.StatusServiceUnavailable)
	default:
		sugar.Error(err)
		http.Error(w, "", http.StatusInternalServerError)
	}
}
