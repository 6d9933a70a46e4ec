// Package httpapi exposes the registration service over HTTP/JSON.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"prodigymun/internal/auth"
	"prodigymun/internal/core"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 64 << 10

// Options configures the HTTP handler.
type Options struct {
	Logger *slog.Logger
	// Verifier checks admin credentials for login and, when RequireAdminAuth
	// is set, for every admin route.
	Verifier         auth.Verifier
	RequireAdminAuth bool
	// Registry receives the HTTP metrics; Gatherer backs /metrics. Both
	// default to the prometheus default registry.
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer
	// Now stamps export filenames (time.Now when nil).
	Now func() time.Time
}

// Handler routes API requests to the registration service.
type Handler struct {
	svc         *core.Service
	verifier    auth.Verifier
	logger      *slog.Logger
	requireAuth bool
	now         func() time.Time
	router      chi.Router
}

// NewHandler builds the router. A nil Verifier rejects every login.
func NewHandler(svc *core.Service, opts Options) *Handler {
	h := &Handler{
		svc:         svc,
		verifier:    opts.Verifier,
		logger:      opts.Logger,
		requireAuth: opts.RequireAdminAuth,
		now:         opts.Now,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With("component", "httpapi")
	if h.verifier == nil {
		h.verifier = denyAll{}
	}
	if h.now == nil {
		h.now = time.Now
	}
	registry := opts.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(h.logger))
	r.Use(newHTTPMetrics(registry).middleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/admin/login", h.handleLogin)
		r.Get("/committees", h.handleCommittees)
		r.Post("/registrations", h.handleCreate)

		r.Group(func(r chi.Router) {
			if h.requireAuth {
				r.Use(h.adminGuard)
			}
			r.Get("/registrations", h.handleList)
			r.Get("/registrations/stats", h.handleStats)
			r.Get("/registrations/export", h.handleExport)
			r.Post("/registrations/exports", h.handleArchive)
			r.Get("/registrations/exports", h.handleListArchives)
			r.Get("/registrations/{id}", h.handleGet)
			r.Patch("/registrations/{id}/status", h.handleUpdateStatus)
			r.Delete("/registrations/{id}", h.handleDelete)
		})
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, kindBadRequest, "Method not allowed")
	})
	h.router = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, envelope{"status": "ok"})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.verifier.Verify(r.Context(), req.Username, req.Password); err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			h.logger.Error("credential check failed", "request_id", RequestIDFromContext(r.Context()), "error", err)
			writeError(w, http.StatusInternalServerError, "internal", msgServerError)
			return
		}
		writeError(w, http.StatusUnauthorized, kindUnauthorized, msgInvalidLogin)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"message": msgLoginOK})
}

func (h *Handler) handleCommittees(w http.ResponseWriter, r *http.Request) {
	committees, err := h.svc.Committees(r.URL.Query().Get("category"))
	if err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"committees": committees})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in core.RegistrationInput
	if !h.decode(w, r, &in) {
		return
	}
	reg, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err, msgInvalidCreate)
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"message": msgRegistrationAdded, "registration": reg})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filter(w, r)
	if !ok {
		return
	}
	regs, err := h.svc.List(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"registrations": regs})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"stats": stats})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filter(w, r)
	if !ok {
		return
	}
	// Render first so a failure can still produce a JSON error.
	var buf bytes.Buffer
	if _, err := h.svc.ExportCSV(r.Context(), &buf, filter); err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}
	filename := "mun_registrations_" + h.now().UTC().Format("2006-01-02") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filter(w, r)
	if !ok {
		return
	}
	info, err := h.svc.ArchiveExport(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}
	writeSuccess(w, http.StatusCreated, envelope{"export": info})
}

func (h *Handler) handleListArchives(w http.ResponseWriter, r *http.Request) {
	infos, err := h.svc.ListArchives(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"exports": infos})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	reg, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"registration": reg})
}

type statusRequest struct {
	Status core.Status `json:"status"`
}

func (h *Handler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	reg, err := h.svc.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"registration": reg})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err, "")
		return
	}
	writeSuccess(w, http.StatusOK, envelope{"message": msgDeleted})
}

func (h *Handler) filter(w http.ResponseWriter, r *http.Request) (core.ListFilter, bool) {
	q := r.URL.Query()
	filter, err := h.svc.ResolveFilter(core.ListQuery{
		Status:    q.Get("status"),
		Committee: q.Get("committee"),
		Category:  q.Get("category"),
		Class:     q.Get("class"),
		Division:  q.Get("division"),
		Search:    q.Get("q"),
	})
	if err != nil {
		h.writeServiceError(w, r, err, "")
		return core.ListFilter{}, false
	}
	return filter, true
}

// decode reads a JSON body into dst, answering 400 bad_request on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, kindBadRequest, "Request body is required")
			return false
		}
		writeError(w, http.StatusBadRequest, kindBadRequest, msgInvalidBody)
		return false
	}
	return true
}

// pathID parses {id}. Ids that are not positive integers cannot exist.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "not_found", msgNotFound)
		return 0, false
	}
	return id, true
}

type denyAll struct{}

func (denyAll) Verify(_ context.Context, _, _ string) error { return auth.ErrInvalidCredentials }
