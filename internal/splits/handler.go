package splits

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the timer's control surface using go-chi.
type Handler struct {
	timer *Timer
	loop  *Loop
	store RecordStore
	log   *slog.Logger
}

// NewHandler returns a Handler. Advance requests go through loop so they are
// serialized with every other trigger source.
func NewHandler(timer *Timer, loop *Loop, store RecordStore, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Handler{timer: timer, loop: loop, store: store, log: log}
}

// Register mounts the control routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Post("/advance", h.Advance)
	r.Post("/reset", h.Reset)
	r.Post("/retry", h.Retry)
	r.Post("/discard", h.Discard)
	r.Get("/board", h.Board)
	r.Get("/status", h.Status)
	r.Get("/history", h.History)
}

// Advance handles POST /advance. The trigger is queued, not applied inline.
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	if !h.loop.Trigger() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// Reset handles POST /reset, abandoning the run in progress.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	if !h.timer.Reset() {
		w.WriteHeader(http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Retry handles POST /retry for a finished run whose records failed to save.
func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	err := h.timer.Retry(r.Context())
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, ErrNotFinished), errors.Is(err, ErrFinalizing):
		w.WriteHeader(http.StatusConflict)
	default:
		h.log.Error("retry failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// Discard handles POST /discard.
func (h *Handler) Discard(w http.ResponseWriter, r *http.Request) {
	if err := h.timer.Discard(); err != nil {
		w.WriteHeader(http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Board handles GET /board.
func (h *Handler) Board(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.timer.Board())
}

type statusResponse struct {
	Game         string          `json:"game"`
	Status       Status          `json:"status"`
	Current      int             `json:"current"`
	Sections     SectionSequence `json:"sections"`
	RunID        string          `json:"run_id,omitempty"`
	PersistError string          `json:"persist_error,omitempty"`
	LastNewPB    *bool           `json:"last_new_pb,omitempty"`
	LastGolds    []int           `json:"last_golds,omitempty"`
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	snap := h.timer.Snapshot()
	resp := statusResponse{
		Game:     snap.Game,
		Status:   snap.Status,
		Current:  snap.Current,
		Sections: snap.Run.Sequence(),
		RunID:    snap.Run.ID,
	}
	if snap.PersistErr != nil {
		resp.PersistError = snap.PersistErr.Error()
	}
	if snap.LastResult != nil {
		resp.LastNewPB = &snap.LastResult.NewPB
		resp.LastGolds = snap.LastResult.Golds
	}
	writeJSON(w, http.StatusOK, resp)
}

// History handles GET /history, newest run first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.History(r.Context(), h.timer.Snapshot().Game)
	if err != nil {
		h.log.Error("list history failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
