package logfields

import "log/slog"

// Canonical log field name constants to avoid drift across packages.
const (
	KeyJobID      = "job_id"
	KeyJobType    = "job_type"
	KeyJobStatus  = "job_status"
	KeyReleaseID  = "release_id"
	KeyStage      = "stage"
	KeyProject    = "project"
	KeyVersion    = "version"
	KeyRef        = "ref"
	KeyIndex      = "index"
	KeyArtifact   = "artifact"
	KeyPath       = "path"
	KeyURL        = "url"
	KeyName       = "name"
	KeyWorker     = "worker"
	KeyDurationMS = "duration_ms"
	KeyError      = "error"
)

// Simple helpers returning slog.Attr. Keeping each granular means callers can compose.
func JobID(id string) slog.Attr       { return slog.String(KeyJobID, id) }
func JobType(t string) slog.Attr      { return slog.String(KeyJobType, t) }
func JobStatus(s string) slog.Attr    { return slog.String(KeyJobStatus, s) }
func ReleaseID(id string) slog.Attr   { return slog.String(KeyReleaseID, id) }
func Stage(name string) slog.Attr     { return slog.String(KeyStage, name) }
func Project(p string) slog.Attr      { return slog.String(KeyProject, p) }
func Version(v string) slog.Attr      { return slog.String(KeyVersion, v) }
func Ref(r string) slog.Attr          { return slog.String(KeyRef, r) }
func Index(i string) slog.Attr        { return slog.String(KeyIndex, i) }
func Artifact(a string) slog.Attr     { return slog.String(KeyArtifact, a) }
func Path(p string) slog.Attr         { return slog.String(KeyPath, p) }
func URL(u string) slog.Attr          { return slog.String(KeyURL, u) }
func Name(n string) slog.Attr         { return slog.String(KeyName, n) }
func Worker(w string) slog.Attr       { return slog.String(KeyWorker, w) }
func DurationMS(ms float64) slog.Attr { return slog.Float64(KeyDurationMS, ms) }

func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
