package translation

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/conneroisu/docsite/internal/errors"
	"github.com/conneroisu/docsite/internal/logging"
)

// maxBody bounds PUT payloads.
const maxBody = 1 << 20

// Handler exposes a Store over HTTP.
type Handler struct {
	store  *Store
	logger logging.Logger
}

// NewHandler creates the API handler.
func NewHandler(store *Store, logger logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}

	return &Handler{store: store, logger: logger.WithComponent("translation")}
}

// Routes returns the router to mount under /api/translation.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.list)
	r.Get("/{lang}", h.get)
	r.Put("/{lang}", h.put)

	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	locales, err := h.store.Locales()
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"locales": locales})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	msgs, ok, err := h.store.Get(chi.URLParam(r, "lang"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown locale"})
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	var update Messages
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(&update); err != nil || update == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "body must be a JSON object"})
		return
	}

	lang := chi.URLParam(r, "lang")
	msgs, err := h.store.Merge(lang, update)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info(r.Context(), "Translation updated", "lang", lang, "keys", len(update))
	writeJSON(w, http.StatusOK, msgs)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.IsType(err, errors.ErrorTypeValidation) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	h.logger.Error(r.Context(), err, "Translation request failed", "path", r.URL.Path)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
