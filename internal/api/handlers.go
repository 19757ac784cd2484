package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"teamchat/internal/auth"
	"teamchat/internal/metrics"
)

func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(a.logger))
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Public
	r.Get("/health", a.Health)
	r.Handle("/metrics", metrics.Handler())

	// Secured
	r.Group(func(r chi.Router) {
		r.Use(a.Auth.Middleware)

		r.Post("/messages", a.SendMessage)
		r.Get("/conversations/{id}/messages", a.History)
		r.Get("/previews", a.Previews)
	})

	return r
}

// @Summary Health check
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /health [get]
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	if err := a.Storage.Ping(r.Context()); err != nil {
		a.logger.Warn().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// @Summary Send a message to a user or channel
// @Tags Messages
// @Security ApiKeyAuth
// @Accept json
// @Produce json
// @Param body body SendMessageRequest true "Message"
// @Success 201 {object} model.Message
// @Failure 400,403,404,409,500 {object} map[string]string
// @Router /messages [post]
func (a *API) SendMessage(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body")
		return
	}
	if err := a.validate.Struct(body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := a.Chat.Send(r.Context(), actor, body.toSendRequest())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// @Summary Page through a conversation, newest first
// @Tags Messages
// @Security ApiKeyAuth
// @Produce json
// @Param id path string true "Channel or peer UUID"
// @Param offset query int false "Number of messages to skip"
// @Success 200 {object} map[string]interface{}
// @Failure 400,404,500 {object} map[string]string
// @Router /conversations/{id}/messages [get]
func (a *API) History(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}

	offset := 0
	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
	}

	items, err := a.Chat.History(r.Context(), actor, id, offset)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	data := make([]HistoryItemResponse, 0, len(items))
	for _, it := range items {
		data = append(data, renderHistoryItem(it))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":   data,
		"offset": offset,
	})
}

// @Summary Inbox previews across direct and channel conversations
// @Tags Messages
// @Security ApiKeyAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /previews [get]
func (a *API) Previews(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	previews, err := a.Chat.Previews(r.Context(), actor)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	data := make([]PreviewResponse, 0, len(previews))
	for _, p := range previews {
		data = append(data, renderPreview(p))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}
