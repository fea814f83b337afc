package daemon

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/pkgship/internal/config"
	"git.home.luguber.info/inful/pkgship/internal/logfields"
)

// HTTPServer manages the daemon's two listeners: the webhook receiver and
// the admin/metrics API.
type HTTPServer struct {
	webhookServer *http.Server
	adminServer   *http.Server
	config        *config.Config
	registry      *prom.Registry

	webhookHandlers *WebhookHandlers
	adminHandlers   *AdminHandlers
}

// NewHTTPServer creates the HTTP server over the daemon's handler modules.
func NewHTTPServer(cfg *config.Config, webhook *WebhookHandlers, admin *AdminHandlers, registry *prom.Registry) *HTTPServer {
	return &HTTPServer{
		config:          cfg,
		registry:        registry,
		webhookHandlers: webhook,
		adminHandlers:   admin,
	}
}

// Start binds and starts both servers. All ports are pre-bound so a partial
// startup cannot leave one server running while the other failed.
func (s *HTTPServer) Start(ctx context.Context) error {
	if s.config.Daemon == nil {
		return fmt.Errorf("daemon configuration required for HTTP servers")
	}

	type preBind struct {
		name string
		port int
		ln   net.Listener
	}
	binds := []preBind{
		{name: "webhook", port: s.config.Daemon.HTTP.WebhookPort},
		{name: "admin", port: s.config.Daemon.HTTP.AdminPort},
	}
	var bindErrs []error
	for i := range binds {
		addr := fmt.Sprintf(":%d", binds[i].port)
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			bindErrs = append(bindErrs, fmt.Errorf("%s port %d: %w", binds[i].name, binds[i].port, err))
			continue
		}
		binds[i].ln = ln
	}
	if len(bindErrs) > 0 {
		for _, b := range binds {
			if b.ln != nil {
				_ = b.ln.Close()
			}
		}
		return fmt.Errorf("http startup failed: %w", stdErrors.Join(bindErrs...))
	}

	s.startWebhookServer(binds[0].ln)
	s.startAdminServer(binds[1].ln)

	slog.Info("HTTP servers started",
		slog.Int("webhook_port", s.config.Daemon.HTTP.WebhookPort),
		slog.Int("admin_port", s.config.Daemon.HTTP.AdminPort))
	return nil
}

// Stop gracefully shuts down both servers, admin first.
func (s *HTTPServer) Stop(ctx context.Context) error {
	var errs []error

	if s.adminServer != nil {
		if err := s.adminServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}

	if s.webhookServer != nil {
		if err := s.webhookServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("webhook server shutdown: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}

	slog.Info("HTTP servers stopped")
	return nil
}

func (s *HTTPServer) startWebhookServer(ln net.Listener) {
	s.webhookServer = newServer(s.webhookMux())
	go serve(s.webhookServer, ln, "webhook")
}

func (s *HTTPServer) startAdminServer(ln net.Listener) {
	s.adminServer = newServer(s.adminMux())
	go serve(s.adminServer, ln, "admin")
}

// webhookMux routes release webhooks. Forge integrations differ in the path
// they post to, so all three spellings land on the same handler.
func (s *HTTPServer) webhookMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandlers.HandleReleaseWebhook)
	mux.HandleFunc("/webhook/release", s.webhookHandlers.HandleReleaseWebhook)
	mux.HandleFunc("/webhooks/release", s.webhookHandlers.HandleReleaseWebhook)
	return mux
}

func (s *HTTPServer) adminMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.adminHandlers.HandleHealth)
	mux.HandleFunc("/api/status", s.adminHandlers.HandleStatus)
	mux.HandleFunc("/api/release", s.adminHandlers.HandleTriggerRelease)
	mux.HandleFunc("/api/releases", s.adminHandlers.HandleReleases)
	mux.HandleFunc("/api/releases/", s.adminHandlers.HandleReleases)

	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	return mux
}

func newServer(mux *http.ServeMux) *http.Server {
	return &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

func serve(srv *http.Server, ln net.Listener, name string) {
	if err := srv.Serve(ln); err != nil && !stdErrors.Is(err, http.ErrServerClosed) {
		slog.Error("HTTP server error", slog.String("server", name), logfields.Error(err))
	}
}
