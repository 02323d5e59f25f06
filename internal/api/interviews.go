package api

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/navai/interview-server/internal/brain"
	"github.com/navai/interview-server/internal/domain"
	"github.com/navai/interview-server/internal/identity"
)

// listLimit caps how many interviews one history request returns.
const listLimit = 50

// reportLocks prevents concurrent report regeneration for the same
// interview.
var reportLocks sync.Map

// InterviewHandler serves interview history and report regeneration.
type InterviewHandler struct {
	*Handler
	gen brain.Generator
}

// NewInterviewHandler creates the interview history handler. The
// generator is used to regenerate reports on demand.
func NewInterviewHandler(base *Handler, gen brain.Generator) *InterviewHandler {
	return &InterviewHandler{Handler: base, gen: gen}
}

// RegisterRoutes registers the interview API routes.
func (h *InterviewHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/config", h.GetConfig)
		r.Route("/interviews", func(r chi.Router) {
			r.Get("/", h.List)
			r.Get("/{id}", h.Get)
			r.Delete("/{id}", h.Delete)
			r.Post("/{id}/report", h.RegenerateReport)
		})
	})
}

// List returns the requester's interviews, newest first, without
// exchanges.
func (h *InterviewHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := identity.OwnerIDFromContext(r.Context())

	interviews, err := h.repo.ListInterviews(r.Context(), ownerID, listLimit)
	if err != nil {
		slog.Error("[API] list interviews failed", "owner_id", ownerID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list interviews")
		return
	}
	if interviews == nil {
		interviews = []*domain.Interview{}
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"interviews": interviews,
		"count":      len(interviews),
	})
}

// Get returns one full interview including its exchanges and summary.
func (h *InterviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	iv := h.fetchOwned(w, r)
	if iv == nil {
		return
	}
	JSON(w, http.StatusOK, iv)
}

// Delete removes an interview and its exchanges.
func (h *InterviewHandler) Delete(w http.ResponseWriter, r *http.Request) {
	iv := h.fetchOwned(w, r)
	if iv == nil {
		return
	}

	if err := h.repo.DeleteInterview(r.Context(), iv.ID); err != nil {
		slog.Error("[API] delete interview failed", "interview_id", iv.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to delete interview")
		return
	}

	slog.Info("[API] interview deleted", "interview_id", iv.ID)
	JSON(w, http.StatusOK, map[string]string{"deleted": iv.ID})
}

// RegenerateReport rebuilds the summary for a finished interview. One
// regeneration per interview runs at a time; a second request while one
// is in flight gets a conflict.
func (h *InterviewHandler) RegenerateReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	lock, _ := reportLocks.LoadOrStore(id, &sync.Mutex{})
	mutex := lock.(*sync.Mutex)
	if !mutex.TryLock() {
		slog.Warn("[API] report regeneration already in progress", "interview_id", id)
		Error(w, http.StatusConflict, "report_in_progress")
		return
	}
	defer mutex.Unlock()

	iv := h.fetchOwned(w, r)
	if iv == nil {
		return
	}
	if iv.EndedAt == nil {
		Error(w, http.StatusConflict, "interview still running")
		return
	}

	summary, err := h.gen.Summarize(r.Context(), iv)
	if err != nil || summary == nil {
		// The statistical fallback keeps this endpoint deterministic
		// when generation is down.
		slog.Warn("[API] report generation failed, using statistical fallback",
			"interview_id", iv.ID, "error", err)
		summary = brain.FallbackSummary(iv)
	}

	if err := h.repo.SaveSummary(r.Context(), iv.ID, summary); err != nil {
		slog.Error("[API] saving regenerated report failed", "interview_id", iv.ID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save report")
		return
	}

	slog.Info("[API] report regenerated", "interview_id", iv.ID, "overall_score", summary.OverallScore)
	JSON(w, http.StatusOK, map[string]interface{}{"report": summary})
}

// GetConfig returns the runtime settings the browser client needs to
// drive capture and playback.
func (h *InterviewHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"sample_rate":                h.cfg.SampleRate,
		"frame_interval_ms":          h.cfg.ClientFrameInterval.Milliseconds(),
		"max_duration_seconds":       int(h.cfg.MaxDuration.Seconds()),
		"keepalive_interval_seconds": int(h.cfg.KeepaliveInterval.Seconds()),
		"tts_provider":               h.cfg.TTSProvider,
	})
}

// fetchOwned loads the interview in the URL and checks it belongs to
// the requester. Foreign interviews 404 rather than 403 so ids do not
// leak. Writes the error response itself and returns nil on any miss.
func (h *InterviewHandler) fetchOwned(w http.ResponseWriter, r *http.Request) *domain.Interview {
	id := chi.URLParam(r, "id")
	ownerID := identity.OwnerIDFromContext(r.Context())

	iv, err := h.repo.GetInterview(r.Context(), id)
	if err != nil {
		slog.Error("[API] get interview failed", "interview_id", id, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load interview")
		return nil
	}
	if iv == nil || (iv.OwnerID != "" && iv.OwnerID != ownerID) {
		Error(w, http.StatusNotFound, "interview not found")
		return nil
	}
	return iv
}
