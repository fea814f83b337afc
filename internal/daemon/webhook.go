package daemon

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	ferrors "git.home.luguber.info/inful/pkgship/internal/foundation/errors"
	"git.home.luguber.info/inful/pkgship/internal/logfields"
	"git.home.luguber.info/inful/pkgship/internal/pipeline"
	"git.home.luguber.info/inful/pkgship/internal/queue"
)

const maxWebhookBodySize = 1 << 20 // 1 MiB

// releaseEnqueuer is the queue surface the webhook handler needs.
type releaseEnqueuer interface {
	Enqueue(job *queue.ReleaseJob) error
}

// WebhookHandlers receives forge webhook deliveries and enqueues releases
// for published release events.
type WebhookHandlers struct {
	enqueuer     releaseEnqueuer
	secret       string
	errorAdapter *ferrors.HTTPErrorAdapter
}

// NewWebhookHandlers constructs webhook handlers. An empty secret disables
// signature verification.
func NewWebhookHandlers(enqueuer releaseEnqueuer, secret string) *WebhookHandlers {
	return &WebhookHandlers{
		enqueuer:     enqueuer,
		secret:       secret,
		errorAdapter: ferrors.NewHTTPErrorAdapter(slog.Default()),
	}
}

// releasePayload is the subset of forge release webhook payloads we read.
// GitHub, Forgejo and Gitea all deliver this shape for release events.
type releasePayload struct {
	Action  string `json:"action"`
	Release struct {
		TagName string `json:"tag_name"`
		Draft   bool   `json:"draft"`
	} `json:"release"`
}

// HandleReleaseWebhook processes a forge release webhook. Only published
// (non-draft) release events enqueue a release; everything else is
// acknowledged and ignored.
func (h *WebhookHandlers) HandleReleaseWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		err := ferrors.ValidationError("invalid HTTP method").
			WithContext("method", r.Method).
			WithContext("allowed_method", "POST").
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, err)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodySize))
	if err != nil {
		derr := ferrors.ValidationError("failed to read webhook body").
			WithContext("error", err.Error()).
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, derr)
		return
	}

	if h.secret != "" {
		if !verifySignature(h.secret, body, r.Header.Get("X-Hub-Signature-256")) {
			derr := ferrors.AuthError("webhook signature verification failed").Build()
			h.errorAdapter.WriteErrorResponse(w, r, derr)
			return
		}
	}

	event := eventName(r.Header)
	if event != "" && event != "release" {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status": "ignored",
			"reason": "not a release event",
			"event":  event,
		})
		return
	}

	var payload releasePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		derr := ferrors.ValidationError("invalid JSON payload").
			WithContext("content_type", r.Header.Get("Content-Type")).
			WithContext("error", err.Error()).
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, derr)
		return
	}

	if payload.Action != "published" || payload.Release.Draft {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status": "ignored",
			"reason": "not a published release",
			"action": payload.Action,
		})
		return
	}

	job := &queue.ReleaseJob{
		ID:        uuid.NewString(),
		Trigger:   pipeline.TriggerWebhook,
		Ref:       payload.Release.TagName,
		CreatedAt: time.Now(),
	}

	if err := h.enqueuer.Enqueue(job); err != nil {
		derr := ferrors.DaemonError("failed to enqueue release").
			WithCause(err).
			WithContext("ref", job.Ref).
			Build()
		h.errorAdapter.WriteErrorResponse(w, r, derr)
		return
	}

	slog.Info("Webhook release accepted",
		logfields.JobID(job.ID), logfields.Ref(job.Ref))

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":     "queued",
		"release_id": job.ID,
		"ref":        job.Ref,
	})
}

// eventName extracts the forge event type from delivery headers. GitHub,
// Forgejo and Gitea use different header names for the same concept.
func eventName(h http.Header) string {
	for _, key := range []string{"X-GitHub-Event", "X-Forgejo-Event", "X-Gitea-Event"} {
		if v := h.Get(key); v != "" {
			return strings.ToLower(v)
		}
	}
	return ""
}

// verifySignature checks an HMAC-SHA256 delivery signature in the form
// "sha256=<hex>" against the raw body.
func verifySignature(secret string, body []byte, header string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, prefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to write JSON response", logfields.Error(err))
	}
}
