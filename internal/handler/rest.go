package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/doggos/internal/auth"
	"github.com/vyrodovalexey/doggos/internal/compose"
	"github.com/vyrodovalexey/doggos/internal/middleware"
	"github.com/vyrodovalexey/doggos/internal/model"
	"github.com/vyrodovalexey/doggos/internal/roster"
	"github.com/vyrodovalexey/doggos/internal/session"
)

const (
	// maxBodyBytes limits request bodies; a dog is two short strings.
	maxBodyBytes = 64 << 10
	// maxDraftWait caps the ?wait= parameter of GET /api/v1/drafts/{id}.
	maxDraftWait = 10 * time.Second
)

// MeResponse describes the caller and their session.
type MeResponse struct {
	Subject          string    `json:"subject"`
	Method           string    `json:"method"`
	SessionStartedAt time.Time `json:"session_started_at"`
	Dogs             int       `json:"dogs"`
	Drafts           int       `json:"drafts"`
}

// DogHandler serves the roster and add-flow endpoints of the caller's session.
type DogHandler struct {
	sessions *session.Manager
	logger   *zap.Logger
}

// NewDogHandler creates a new DogHandler instance.
func NewDogHandler(sessions *session.Manager, logger *zap.Logger) *DogHandler {
	return &DogHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// RegisterRoutes registers the REST API routes with the router.
func (h *DogHandler) RegisterRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/dogs", h.ListDogs).Methods(http.MethodGet)
	api.HandleFunc("/dogs", h.AddDog).Methods(http.MethodPost)
	api.HandleFunc("/dogs/{name}", h.GetDog).Methods(http.MethodGet)
	api.HandleFunc("/dogs/{name}", h.RemoveDog).Methods(http.MethodDelete)
	api.HandleFunc("/dogs/{name}/like", h.ToggleLike).Methods(http.MethodPost)

	api.HandleFunc("/drafts", h.StartDraft).Methods(http.MethodPost)
	api.HandleFunc("/drafts/{id}", h.GetDraft).Methods(http.MethodGet)
	api.HandleFunc("/drafts/{id}", h.CancelDraft).Methods(http.MethodDelete)
	api.HandleFunc("/drafts/{id}/commit", h.CommitDraft).Methods(http.MethodPost)

	api.HandleFunc("/session", h.EndSession).Methods(http.MethodDelete)
	api.HandleFunc("/me", h.Me).Methods(http.MethodGet)
}

// ListDogs handles GET /api/v1/dogs?q= requests.
func (h *DogHandler) ListDogs(w http.ResponseWriter, r *http.Request) {
	s := h.session(r)
	query := r.URL.Query().Get("q")

	writeJSON(h.logger, w, http.StatusOK, model.NewSuccessResponse(currentView(s.Roster, query)))
}

// AddDog handles POST /api/v1/dogs requests. The dog is added without a photo.
func (h *DogHandler) AddDog(w http.ResponseWriter, r *http.Request) {
	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	if err := input.Validate(); err != nil {
		h.handleError(w, r, err, "add dog")
		return
	}

	dog := input.Dog("")
	if err := h.session(r).Roster.Add(dog); err != nil {
		h.handleError(w, r, err, "add dog")
		return
	}

	writeJSON(h.logger, w, http.StatusCreated, model.NewSuccessResponse(dog))
}

// GetDog handles GET /api/v1/dogs/{name} requests.
func (h *DogHandler) GetDog(w http.ResponseWriter, r *http.Request) {
	name, ok := h.pathVar(w, r, "name")
	if !ok {
		return
	}

	dog, found := h.session(r).Roster.Get(name)
	if !found {
		writeError(h.logger, w, http.StatusNotFound, "dog not found")
		return
	}

	writeJSON(h.logger, w, http.StatusOK, model.NewSuccessResponse(dog))
}

// RemoveDog handles DELETE /api/v1/dogs/{name} requests. Removing an absent
// dog is not an error.
func (h *DogHandler) RemoveDog(w http.ResponseWriter, r *http.Request) {
	name, ok := h.pathVar(w, r, "name")
	if !ok {
		return
	}

	if removed := h.session(r).Roster.Remove(name); removed {
		h.logger.Debug("dog removed", zap.String("dog", name))
	}

	writeJSON(h.logger, w, http.StatusNoContent, nil)
}

// ToggleLike handles POST /api/v1/dogs/{name}/like requests.
// Toggling an absent dog is a no-op answered with 204.
func (h *DogHandler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	name, ok := h.pathVar(w, r, "name")
	if !ok {
		return
	}

	dog, found := h.session(r).Roster.ToggleLiked(name)
	if !found {
		writeJSON(h.logger, w, http.StatusNoContent, nil)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, model.NewSuccessResponse(dog))
}

// StartDraft handles POST /api/v1/drafts requests. It answers immediately
// while the photo is still loading.
func (h *DogHandler) StartDraft(w http.ResponseWriter, r *http.Request) {
	draft, err := h.session(r).Drafts.Start()
	if err != nil {
		h.handleError(w, r, err, "start draft")
		return
	}

	w.Header().Set("Location", "/api/v1/drafts/"+draft.ID)
	writeJSON(h.logger, w, http.StatusAccepted, model.NewSuccessResponse(draft))
}

// GetDraft handles GET /api/v1/drafts/{id} requests. With ?wait=<duration>
// it blocks until the photo is resolved, the wait elapses or the client goes
// away, whichever comes first.
func (h *DogHandler) GetDraft(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	wait, err := parseWait(r.URL.Query().Get("wait"))
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid wait duration")
		return
	}

	drafts := h.session(r).Drafts

	var draft compose.Draft
	if wait > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), wait)
		defer cancel()
		draft, err = drafts.Wait(ctx, id)
	} else {
		draft, err = drafts.Get(id)
	}
	if err != nil {
		h.handleError(w, r, err, "get draft")
		return
	}

	writeJSON(h.logger, w, http.StatusOK, model.NewSuccessResponse(draft))
}

// CommitDraft handles POST /api/v1/drafts/{id}/commit requests.
func (h *DogHandler) CommitDraft(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	input, ok := h.decodeInput(w, r)
	if !ok {
		return
	}

	dog, err := h.session(r).Drafts.Commit(id, input)
	if err != nil {
		h.handleError(w, r, err, "commit draft")
		return
	}

	writeJSON(h.logger, w, http.StatusCreated, model.NewSuccessResponse(dog))
}

// CancelDraft handles DELETE /api/v1/drafts/{id} requests.
func (h *DogHandler) CancelDraft(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if err := h.session(r).Drafts.Cancel(id); err != nil {
		h.handleError(w, r, err, "cancel draft")
		return
	}

	writeJSON(h.logger, w, http.StatusNoContent, nil)
}

// EndSession handles DELETE /api/v1/session requests. The caller's roster is
// discarded; the next request starts an empty one.
func (h *DogHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	h.sessions.End(auth.SubjectFrom(r.Context()))
	writeJSON(h.logger, w, http.StatusNoContent, nil)
}

// Me handles GET /api/v1/me requests.
func (h *DogHandler) Me(w http.ResponseWriter, r *http.Request) {
	method := auth.AuthMethodNone
	if info, ok := auth.FromContext(r.Context()); ok && info != nil {
		method = info.Method
	}

	s := h.session(r)
	writeJSON(h.logger, w, http.StatusOK, model.NewSuccessResponse(MeResponse{
		Subject:          s.Subject,
		Method:           string(method),
		SessionStartedAt: s.StartedAt,
		Dogs:             s.Roster.Len(),
		Drafts:           s.Drafts.Len(),
	}))
}

// session returns the session of the authenticated caller.
func (h *DogHandler) session(r *http.Request) *session.Session {
	return h.sessions.For(auth.SubjectFrom(r.Context()))
}

// decodeInput reads a DogInput body, writing 400 on failure.
func (h *DogHandler) decodeInput(w http.ResponseWriter, r *http.Request) (model.DogInput, bool) {
	var input model.DogInput

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.logger.Warn("invalid request body",
			zap.String("request_id", middleware.RequestIDFrom(r.Context())),
			zap.Error(err),
		)
		writeError(h.logger, w, http.StatusBadRequest, "invalid request body")
		return model.DogInput{}, false
	}

	return input, true
}

// pathVar returns the unescaped path variable key, writing 400 when it is
// not valid percent-encoding. Routes match the escaped path so that names
// may contain a slash.
func (h *DogHandler) pathVar(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	value, err := url.PathUnescape(mux.Vars(r)[key])
	if err != nil {
		writeError(h.logger, w, http.StatusBadRequest, "invalid "+key)
		return "", false
	}
	return value, true
}

// handleError maps domain errors to HTTP responses.
func (h *DogHandler) handleError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	switch {
	case errors.Is(err, roster.ErrDuplicateName):
		writeError(h.logger, w, http.StatusConflict, roster.ErrDuplicateName.Error())
	case errors.Is(err, model.ErrEmptyName),
		errors.Is(err, model.ErrNameTooLong),
		errors.Is(err, model.ErrBreedTooLong):
		writeError(h.logger, w, http.StatusBadRequest, err.Error())
	case errors.Is(err, compose.ErrDraftNotFound):
		writeError(h.logger, w, http.StatusNotFound, "draft not found")
	case errors.Is(err, compose.ErrClosed), errors.Is(err, roster.ErrClosed):
		writeError(h.logger, w, http.StatusConflict, "session ended")
	default:
		h.logger.Error("request failed",
			zap.String("operation", operation),
			zap.String("request_id", middleware.RequestIDFrom(r.Context())),
			zap.Error(err),
		)
		writeError(h.logger, w, http.StatusInternalServerError, "internal server error")
	}
}

// parseWait parses the ?wait= parameter; empty means no wait.
func parseWait(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}

	wait, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if wait < 0 {
		return 0, errors.New("negative wait")
	}

	return min(wait, maxDraftWait), nil
}
