package daemon

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/pkgship/internal/eventstore"
	ferrors "git.home.luguber.info/inful/pkgship/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgship/internal/logfields"
	"git.home.luguber.info/inful/pkgship/internal/pipeline"
	"git.home.luguber.info/inful/pkgship/internal/queue"
	"git.home.luguber.info/inful/pkgship/internal/version"
)

// statusProvider is the daemon surface the admin API reads.
type statusProvider interface {
	GetStatus() Status
	GetStartTime() time.Time
	GetActiveJobs() int
	GetQueueLength() int
	ProjectName() string
}

// AdminHandlers serves the operational HTTP API: health, status, manual
// release triggers and release history.
type AdminHandlers struct {
	status       statusProvider
	enqueuer     releaseEnqueuer
	history      *eventstore.ReleaseHistoryProjection
	errorAdapter *ferrors.HTTPErrorAdapter
}

// NewAdminHandlers constructs the admin API handlers.
func NewAdminHandlers(status statusProvider, enqueuer releaseEnqueuer, history *eventstore.ReleaseHistoryProjection) *AdminHandlers {
	return &AdminHandlers{
		status:       status,
		enqueuer:     enqueuer,
		history:      history,
		errorAdapter: ferrors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// HandleHealth implements a liveness probe.
func (h *AdminHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Version,
	})
}

// HandleStatus reports daemon runtime state.
func (h *AdminHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r, http.MethodGet)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       string(h.status.GetStatus()),
		"project":      h.status.ProjectName(),
		"version":      version.Version,
		"uptime":       time.Since(h.status.GetStartTime()).Round(time.Second).String(),
		"active_jobs":  h.status.GetActiveJobs(),
		"queue_length": h.status.GetQueueLength(),
	})
}

// triggerRequest is the body of a manual release trigger.
type triggerRequest struct {
	Ref string `json:"ref,omitempty"`
}

// HandleTriggerRelease enqueues a manual release. An empty ref releases the
// configured branch head.
func (h *AdminHandlers) HandleTriggerRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req triggerRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			derr := ferrors.ValidationError("invalid JSON payload").
				WithContext("error", err.Error()).
				Build()
			h.errorAdapter.WriteErrorResponse(w, r, derr)
			return
		}
	}

	job := &queue.ReleaseJob{
		ID:        uuid.NewString(),
		Trigger:   pipeline.TriggerManual,
		Ref:       req.Ref,
		CreatedAt: time.Now(),
	}

	if err := h.enqueuer.Enqueue(job); err != nil {
		derr := ferrors.DaemonError("failed to enqueue release").
			WithCause(err).
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, derr)
		return
	}

	slog.Info("Manual release triggered",
		logfields.JobID(job.ID), logfields.Ref(job.Ref))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":     "queued",
		"release_id": job.ID,
		"ref":        job.Ref,
	})
}

// HandleReleases serves the release history, newest first, and individual
// releases under /api/releases/{id}.
func (h *AdminHandlers) HandleReleases(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w, r, http.MethodGet)
		return
	}

	if h.history == nil {
		writeJSON(w, http.StatusOK, map[string]any{"releases": []any{}})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/releases")
	id = strings.Trim(id, "/")
	if id == "" {
		writeJSON(w, http.StatusOK, map[string]any{"releases": h.history.History()})
		return
	}

	summary, ok := h.history.Get(id)
	if !ok {
		derr := ferrors.NewError(ferrors.CategoryNotFound, "release not found").
			WithContext("release_id", id).
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, derr)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *AdminHandlers) methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	err := ferrors.ValidationError("invalid HTTP method").
		WithContext("method", r.Method).
		WithContext("allowed_method", allowed).
		Build()
	h.errorAdapter.WriteErrorResponse(w, r, err)
}
