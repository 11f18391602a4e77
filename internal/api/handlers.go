package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"casebeam/internal/auth"
	"casebeam/internal/hub"
	"casebeam/internal/mailer"
	"casebeam/internal/rag"
	"casebeam/internal/store"

	"github.com/go-chi/chi/v5"
)

// Handlers holds the dependencies shared by every endpoint.
type Handlers struct {
	store     store.Store
	pipeline  *rag.Pipeline
	mailer    mailer.Sender
	hub       *hub.Hub
	issuer    *auth.Issuer
	revoked   *auth.Revocations
	uploadDir string
	baseURL   string
}

type Deps struct {
	Store       store.Store
	Pipeline    *rag.Pipeline
	Mailer      mailer.Sender
	Hub         *hub.Hub
	Issuer      *auth.Issuer
	Revocations *auth.Revocations
	UploadDir   string
	BaseURL     string
}

func NewHandlers(d Deps) *Handlers {
	if d.Mailer == nil {
		d.Mailer = mailer.Log{}
	}
	if d.Hub == nil {
		d.Hub = hub.New(nil)
	}
	if d.Revocations == nil {
		d.Revocations = auth.NewRevocations()
	}
	if d.UploadDir == "" {
		d.UploadDir = "uploads"
	}
	return &Handlers{
		store:     d.Store,
		pipeline:  d.Pipeline,
		mailer:    d.Mailer,
		hub:       d.Hub,
		issuer:    d.Issuer,
		revoked:   d.Revocations,
		uploadDir: d.UploadDir,
		baseURL:   d.BaseURL,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// storeError maps a store failure to a response. Rows the user does not
// own come back as sql.ErrNoRows and are reported as not found.
func storeError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		errorJSON(w, http.StatusNotFound, what+" not found")
	case errors.Is(err, store.ErrEmailTaken), errors.Is(err, store.ErrNameTaken):
		errorJSON(w, http.StatusConflict, err.Error())
	default:
		log.Printf("[db] %s: %v", what, err)
		errorJSON(w, http.StatusInternalServerError, "database error")
	}
}

// upstreamError reports a failed call to the LLM, embedding, vector or
// mail service.
func upstreamError(w http.ResponseWriter, err error) {
	log.Printf("[rag] upstream: %v", err)
	errorJSON(w, http.StatusBadGateway, err.Error())
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || id <= 0 {
		errorJSON(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// queryID parses an optional positive integer query parameter.
func queryID(w http.ResponseWriter, r *http.Request, name string) (*int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		errorJSON(w, http.StatusBadRequest, "invalid "+name)
		return nil, false
	}
	return &id, true
}

func userID(r *http.Request) int {
	id, _ := auth.GetUserIDFromContext(r.Context())
	return id
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// Realtime upgrades to a WebSocket that receives refresh events.
func (h *Handlers) Realtime(w http.ResponseWriter, r *http.Request) {
	h.hub.ServeWS(w, r, userID(r))
}
