package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"teamchat/internal/chat"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, chat.ErrInvalidDestination),
		errors.Is(err, chat.ErrInvalidContentType),
		errors.Is(err, chat.ErrInvalidOffset):
		return http.StatusBadRequest
	case errors.Is(err, chat.ErrNotInTeam),
		errors.Is(err, chat.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, chat.ErrDestinationNotFound),
		errors.Is(err, chat.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrDestinationVanished):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// fail maps an engine error to its status. Server errors are logged and
// their detail is not echoed to the client.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, status, http.StatusText(status))
		return
	}
	writeError(w, status, err.Error())
}
