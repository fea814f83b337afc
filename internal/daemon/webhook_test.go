package daemon

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"git.home.luguber.info/inful/pkgship/internal/pipeline"
	"git.home.luguber.info/inful/pkgship/internal/queue"
)

type fakeEnqueuer struct {
	jobs []*queue.ReleaseJob
	err  error
}

func (f *fakeEnqueuer) Enqueue(job *queue.ReleaseJob) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(h *WebhookHandlers, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.HandleReleaseWebhook(rec, req)
	return rec
}

func TestWebhookEnqueuesPublishedRelease(t *testing.T) {
	enq := &fakeEnqueuer{}
	h := NewWebhookHandlers(enq, "")

	body := []byte(`{"action":"published","release":{"tag_name":"v1.4.0"}}`)
	rec := postWebhook(h, body, map[string]string{"X-GitHub-Event": "release"})

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(enq.jobs) != 1 {
		t.Fatalf("expected 1 enqueued job, got %d", len(enq.jobs))
	}
	job := enq.jobs[0]
	if job.Ref != "v1.4.0" {
		t.Errorf("expected ref v1.4.0, got %q", job.Ref)
	}
	if job.Trigger != pipeline.TriggerWebhook {
		t.Errorf("expected webhook trigger, got %q", job.Trigger)
	}
	if job.ID == "" {
		t.Error("expected generated job ID")
	}
}

func TestWebhookSignatureVerification(t *testing.T) {
	body := []byte(`{"action":"published","release":{"tag_name":"v2.0.0"}}`)

	t.Run("valid signature accepted", func(t *testing.T) {
		enq := &fakeEnqueuer{}
		h := NewWebhookHandlers(enq, "s3cret")
		rec := postWebhook(h, body, map[string]string{
			"X-GitHub-Event":      "release",
			"X-Hub-Signature-256": sign("s3cret", body),
		})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
		if len(enq.jobs) != 1 {
			t.Fatalf("expected enqueued job")
		}
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		enq := &fakeEnqueuer{}
		h := NewWebhookHandlers(enq, "s3cret")
		rec := postWebhook(h, body, map[string]string{
			"X-GitHub-Event":      "release",
			"X-Hub-Signature-256": sign("wrong", body),
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
		if len(enq.jobs) != 0 {
			t.Fatal("job must not be enqueued on bad signature")
		}
	})

	t.Run("missing signature rejected", func(t *testing.T) {
		enq := &fakeEnqueuer{}
		h := NewWebhookHandlers(enq, "s3cret")
		rec := postWebhook(h, body, map[string]string{"X-GitHub-Event": "release"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})
}

func TestWebhookIgnoresNonReleaseEvents(t *testing.T) {
	enq := &fakeEnqueuer{}
	h := NewWebhookHandlers(enq, "")

	rec := postWebhook(h, []byte(`{"zen":"keep it simple"}`), map[string]string{"X-GitHub-Event": "ping"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(enq.jobs) != 0 {
		t.Fatal("ping event must not enqueue a release")
	}
}

func TestWebhookIgnoresUnpublishedActions(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"created action", `{"action":"created","release":{"tag_name":"v1.0.0"}}`},
		{"deleted action", `{"action":"deleted","release":{"tag_name":"v1.0.0"}}`},
		{"draft release", `{"action":"published","release":{"tag_name":"v1.0.0","draft":true}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enq := &fakeEnqueuer{}
			h := NewWebhookHandlers(enq, "")
			rec := postWebhook(h, []byte(tc.body), map[string]string{"X-GitHub-Event": "release"})
			if rec.Code != http.StatusAccepted {
				t.Fatalf("expected 202, got %d", rec.Code)
			}
			if len(enq.jobs) != 0 {
				t.Fatal("must not enqueue a release")
			}
		})
	}
}

func TestWebhookRejectsInvalidRequests(t *testing.T) {
	t.Run("GET not allowed", func(t *testing.T) {
		h := NewWebhookHandlers(&fakeEnqueuer{}, "")
		req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
		rec := httptest.NewRecorder()
		h.HandleReleaseWebhook(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		h := NewWebhookHandlers(&fakeEnqueuer{}, "")
		rec := postWebhook(h, []byte(`{not json`), map[string]string{"X-GitHub-Event": "release"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
	})

	t.Run("full queue surfaces error", func(t *testing.T) {
		enq := &fakeEnqueuer{err: errors.New("release queue is full")}
		h := NewWebhookHandlers(enq, "")
		body := []byte(`{"action":"published","release":{"tag_name":"v1.0.0"}}`)
		rec := postWebhook(h, body, map[string]string{"X-GitHub-Event": "release"})
		if rec.Code < 500 {
			t.Fatalf("expected server error, got %d", rec.Code)
		}
	})
}

func TestEventNameHeaderVariants(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"X-GitHub-Event", "release"},
		{"X-Forgejo-Event", "release"},
		{"X-Gitea-Event", "release"},
	}
	for _, tc := range cases {
		h := http.Header{}
		h.Set(tc.header, "Release")
		if got := eventName(h); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.header, tc.want, got)
		}
	}
	if got := eventName(http.Header{}); got != "" {
		t.Errorf("expected empty event name, got %q", got)
	}
}
